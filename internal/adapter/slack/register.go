package slack

import "github.com/Strob0t/fleetwatch/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		return NewNotifier(config[notifier.ConfigWebhookURL]), nil
	})
}
