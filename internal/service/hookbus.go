package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	"github.com/Strob0t/fleetwatch/internal/domain"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/retention"
)

// ErrCascadeDepth is returned by Publish when a hook raised while
// dispatching another hook would exceed the configured cascade depth.
var ErrCascadeDepth = errors.New("hook cascade depth exceeded")

// Handler receives a published hook. A returned error or panic is logged
// and never reaches the publisher or other subscribers.
type Handler func(ctx context.Context, h hook.Hook) error

type subscription struct {
	id       string
	selector hook.Type
	handler  Handler
	filter   hook.Filter
	async    bool
}

func (s *subscription) matches(h *hook.Hook, fields map[string]any) bool {
	return s.selector.Matches(h.Type) && s.filter.Matches(fields)
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithFilter narrows the subscription to hooks whose payload fields equal
// every entry of f.
func WithFilter(f hook.Filter) SubscribeOption {
	return func(s *subscription) { s.filter = f }
}

// Async runs the handler on its own goroutine so a slow subscriber does
// not hold up the publisher or later subscribers.
func Async() SubscribeOption {
	return func(s *subscription) { s.async = true }
}

// cascadeKey carries the hook being dispatched, so hooks published from
// inside a handler inherit its depth and root.
type cascadeKey struct{}

type cascade struct {
	depth int
	root  string
}

// HookBus routes hooks to subscriptions and keeps a bounded log of every
// published hook.
type HookBus struct {
	mu       sync.RWMutex
	subs     []*subscription
	log      *retention.Buffer[hook.Hook]
	maxDepth int
	inflight sync.WaitGroup
	now      func() time.Time
	metrics  *cfotel.Metrics
}

// NewHookBus creates a bus retaining at most capacity hooks and accepting
// cascades up to maxDepth hops below a directly published hook.
func NewHookBus(capacity, maxDepth int) *HookBus {
	return &HookBus{
		log:      retention.New[hook.Hook](capacity),
		maxDepth: maxDepth,
		now:      time.Now,
	}
}

// SetMetrics attaches OpenTelemetry instruments.
func (b *HookBus) SetMetrics(m *cfotel.Metrics) {
	b.metrics = m
}

// Publish stamps the hook (id, timestamp, priority, cascade depth), appends
// it to the hook log and dispatches it to the subscriptions registered at
// this moment, in registration order. The stamped hook is returned.
func (b *HookBus) Publish(ctx context.Context, h hook.Hook) (hook.Hook, error) {
	if h.Payload == nil {
		return h, fmt.Errorf("%w: hook payload is required", domain.ErrValidation)
	}
	if h.Type == "" {
		h.Type = h.Payload.Kind()
	}
	if h.Type != h.Payload.Kind() {
		return h, fmt.Errorf("%w: hook type %s does not match payload %s", domain.ErrValidation, h.Type, h.Payload.Kind())
	}

	h.Metadata.Depth = 0
	h.Metadata.CascadeRoot = ""
	if parent, ok := ctx.Value(cascadeKey{}).(cascade); ok {
		h.Metadata.Depth = parent.depth + 1
		h.Metadata.CascadeRoot = parent.root
	}
	if h.Metadata.Depth > b.maxDepth {
		slog.Warn("hook cascade depth exceeded, dropping hook",
			"hook_type", h.Type,
			"trigger", h.Trigger,
			"depth", h.Metadata.Depth,
			"cascade_root", h.Metadata.CascadeRoot,
		)
		if b.metrics != nil {
			b.metrics.HooksDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("hook.type", string(h.Type))))
		}
		return h, ErrCascadeDepth
	}

	if h.ID == "" {
		h.ID = string(h.Type) + "-" + uuid.NewString()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = b.now()
	}
	if h.Metadata.CascadeRoot == "" {
		h.Metadata.CascadeRoot = h.ID
	}
	h.Metadata.Priority = hook.PriorityFor(h.Type)
	h.Metadata.Processed = true

	b.mu.Lock()
	b.log.Push(h.Clone())
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	ctx, span := cfotel.StartPublishSpan(ctx, h.ID, string(h.Type), h.Metadata.Depth)
	defer span.End()

	dctx := context.WithValue(ctx, cascadeKey{}, cascade{depth: h.Metadata.Depth, root: h.Metadata.CascadeRoot})
	fields := h.Fields()
	start := time.Now()
	for _, s := range subs {
		if !s.matches(&h, fields) {
			continue
		}
		if s.async {
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				b.deliver(context.WithoutCancel(dctx), s, h.Clone())
			}()
			continue
		}
		b.deliver(dctx, s, h.Clone())
	}

	if b.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("hook.type", string(h.Type)))
		b.metrics.HooksPublished.Add(ctx, 1, attrs)
		b.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return h.Clone(), nil
}

// deliver runs one handler under recover.
func (b *HookBus) deliver(ctx context.Context, s *subscription, h hook.Hook) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("hook subscriber panicked",
				"subscription_id", s.id, "hook_id", h.ID, "hook_type", h.Type, "panic", r)
			b.countFailure(ctx, h)
		}
	}()
	if err := s.handler(ctx, h); err != nil {
		slog.Error("hook subscriber failed",
			"subscription_id", s.id, "hook_id", h.ID, "hook_type", h.Type, "error", err)
		b.countFailure(ctx, h)
	}
}

func (b *HookBus) countFailure(ctx context.Context, h hook.Hook) {
	if b.metrics == nil {
		return
	}
	b.metrics.SubscriberFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("hook.type", string(h.Type))))
}

// Subscribe registers handler for hooks matching selector, which is either
// a concrete hook type or hook.TypeAny. It returns the subscription id.
func (b *HookBus) Subscribe(selector hook.Type, handler Handler, opts ...SubscribeOption) string {
	s := &subscription{
		id:       "sub-" + uuid.NewString(),
		selector: selector,
		handler:  handler,
	}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	slog.Debug("hook subscription added", "subscription_id", s.id, "selector", selector, "async", s.async)
	return s.id
}

// Unsubscribe removes a subscription. Dispatches already in progress still
// deliver to it. It reports whether the subscription existed.
func (b *HookBus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.subs, func(s *subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Wait blocks until every asynchronous handler started so far has returned.
func (b *HookBus) Wait() {
	b.inflight.Wait()
}

// Hooks returns the retained hooks, oldest first.
func (b *HookBus) Hooks() []hook.Hook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneHooks(b.log.Items())
}

// HooksByType returns the retained hooks matching selector, oldest first.
func (b *HookBus) HooksByType(selector hook.Type) []hook.Hook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneHooks(b.log.Filter(func(h hook.Hook) bool { return selector.Matches(h.Type) }))
}

// cloneHooks detaches hooks from the retained log in place.
func cloneHooks(hs []hook.Hook) []hook.Hook {
	for i := range hs {
		hs[i] = hs[i].Clone()
	}
	return hs
}

// Hook looks up a retained hook by id.
func (b *HookBus) Hook(id string) (hook.Hook, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.log.Reverse() {
		if h.ID == id {
			return h.Clone(), nil
		}
	}
	return hook.Hook{}, fmt.Errorf("hook %s: %w", id, domain.ErrNotFound)
}

// HookCount returns the number of retained hooks.
func (b *HookBus) HookCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.log.Len()
}

// SubscriptionCount returns the number of live subscriptions.
func (b *HookBus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear drops the retained hooks. Subscriptions are kept.
func (b *HookBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Clear()
}
