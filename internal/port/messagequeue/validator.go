package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch {
	case subject == SubjectAgentRemove, subject == SubjectCommandRetry, subject == SubjectCommandCancel:
		target = &IDPayload{}
	case subject == SubjectAgentUpsert:
		target = &AgentUpsertPayload{}
	case subject == SubjectCommandUpsert:
		target = &CommandUpsertPayload{}
	case subject == SubjectConnectionUpsert:
		target = &ConnectionUpsertPayload{}
	case subject == SubjectLog:
		target = &LogPayload{}
	case subject == SubjectAudit:
		target = &AuditPayload{}
	case subject == SubjectMetric:
		target = &MetricPayload{}
	case strings.HasPrefix(subject, SubjectHookPrefix+"."):
		// Relayed hooks are produced by this process; any JSON is accepted.
		return nil
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
