package main

// Each import activates a self-registering notifier adapter.

import (
	_ "github.com/Strob0t/fleetwatch/internal/adapter/discord"
	_ "github.com/Strob0t/fleetwatch/internal/adapter/slack"
)
