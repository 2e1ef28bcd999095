package command

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestNewDefaults(t *testing.T) {
	now := time.Now()
	c := New(Patch{ID: "c1"}, now)

	if c.Type != "unknown" || c.AgentID != "unknown" {
		t.Errorf("expected unknown type/agent, got %q/%q", c.Type, c.AgentID)
	}
	if c.Status != StatusQueued {
		t.Errorf("expected queued, got %s", c.Status)
	}
	if c.Priority != PriorityMedium {
		t.Errorf("expected medium priority, got %s", c.Priority)
	}
	if c.MaxRetries != DefaultMaxRetries || c.RetryCount != 0 {
		t.Errorf("expected 0/%d retries, got %d/%d", DefaultMaxRetries, c.RetryCount, c.MaxRetries)
	}
	if !c.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, c.Timestamp)
	}
}

func TestNewKeepsExplicitZeroRetries(t *testing.T) {
	c := New(Patch{ID: "c1", MaxRetries: ptr(0)}, time.Now())
	if c.MaxRetries != 0 {
		t.Fatalf("expected explicit max_retries 0 to survive, got %d", c.MaxRetries)
	}
	if c.Retryable() {
		t.Fatal("command with zero budget must not be retryable")
	}
}

func TestApplyDoesNotAliasDuration(t *testing.T) {
	c := New(Patch{ID: "c1", Duration: ptr(int64(10))}, time.Now())
	next := Apply(c, Patch{Output: ptr("done")})

	*next.Duration = 99
	if *c.Duration != 10 {
		t.Fatal("Apply shared the duration pointer with its input")
	}
	if next.Output != "done" {
		t.Fatalf("expected output merged, got %q", next.Output)
	}
}

func TestCancellable(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusRunning} {
		c := Command{Status: s}
		if !c.Cancellable() {
			t.Errorf("%s should be cancellable", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		c := Command{Status: s}
		if c.Cancellable() {
			t.Errorf("%s should not be cancellable", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusFailed, StatusQueued, true},
		{StatusQueued, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCancelled, StatusQueued, false},
		{StatusRunning, StatusRunning, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPatchValidate(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
		ok    bool
	}{
		{"id only", Patch{ID: "c1"}, true},
		{"known enums", Patch{ID: "c1", Status: ptr(StatusCancelled), Priority: ptr(PriorityCritical)}, true},
		{"missing id", Patch{Status: ptr(StatusQueued)}, false},
		{"unknown status", Patch{ID: "c1", Status: ptr(Status("exploded"))}, false},
		{"unknown priority", Patch{ID: "c1", Priority: ptr(Priority("urgent"))}, false},
		{"negative budget", Patch{ID: "c1", MaxRetries: ptr(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
