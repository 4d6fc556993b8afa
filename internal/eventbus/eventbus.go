// Copyright 2025 The Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package eventbus provides the in-process event bus the core components
// communicate through: reliable publish, per-subscriber concurrency
// ceilings, retry budgets with exponential backoff, at-least-once delivery
// with per-event-id dedup, and a durable-sleep primitive. It generalizes
// the single-consumer priority queue pattern into a topic/subscriber model.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
)

// Event is the envelope every handler receives. Payload carries one of the
// typed payloads in payloads.go.
type Event struct {
	ID        string
	Topic     string
	Payload   any
	CreatedAt time.Time
}

// Handler processes one event. An error causes a retry (subject to the
// subscription's retry budget); a PermanentError or ValidationError from
// pkg/errors short-circuits retries.
type Handler func(ctx context.Context, ev Event) error

// SubscribeOptions configures a subscription's delivery semantics.
type SubscribeOptions struct {
	// Concurrency caps the number of handler invocations running at once
	// for this subscription (the per-function concurrency ceiling, §5.1).
	Concurrency int
	// MaxRetries is the retry budget before a failed delivery is dropped
	// (logged, not re-queued).
	MaxRetries int
	// InitialBackoff is the delay before the first retry; each subsequent
	// retry doubles it.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth of InitialBackoff.
	MaxBackoff time.Duration
}

// DefaultSubscribeOptions returns conservative defaults: concurrency 1,
// three retries, 500ms initial backoff doubling to a 30s cap.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{
		Concurrency:    1,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

type subscription struct {
	topic   string
	handler Handler
	opts    SubscribeOptions
	sem     chan struct{}

	mu   sync.Mutex
	seen map[string]struct{} // event ids already delivered to this subscriber
}

// Bus is an in-process, topic-based event bus.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string][]*subscription

	wg     sync.WaitGroup
	closed bool
}

// New constructs a Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: clog.WithComponent(logger, "eventbus"),
		subs:   make(map[string][]*subscription),
	}
}

// Subscribe registers handler to receive every event published on topic.
// Subscriptions must be established before the events they care about are
// published; there is no replay.
func (b *Bus) Subscribe(topic string, handler Handler, opts SubscribeOptions) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	sub := &subscription{
		topic:   topic,
		handler: handler,
		opts:    opts,
		sem:     make(chan struct{}, opts.Concurrency),
		seen:    make(map[string]struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], sub)
}

// Publish delivers payload to every subscriber of topic. Each subscriber is
// dispatched on its own goroutine, bounded by its own concurrency ceiling,
// so a slow subscriber never blocks others or the publisher. Publish
// returns once dispatch has been handed off; it does not wait for handlers
// to complete.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) (string, error) {
	id := uuid.NewString()
	return id, b.publishWithID(ctx, id, topic, payload)
}

// PublishWithID is like Publish but lets the caller choose the event id,
// useful for tests asserting dedup behavior.
func (b *Bus) PublishWithID(ctx context.Context, id, topic string, payload any) error {
	return b.publishWithID(ctx, id, topic, payload)
}

func (b *Bus) publishWithID(ctx context.Context, id, topic string, payload any) error {
	ev := Event{ID: id, Topic: topic, Payload: payload, CreatedAt: time.Now()}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	b.logger.Debug("publish", clog.EventKey, topic, "event_id", id, "subscribers", len(subs))

	for _, sub := range subs {
		sub := sub
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.deliver(ctx, sub, ev)
		}()
	}
	return nil
}

// deliver runs one subscriber's handler for one event, applying dedup, the
// concurrency ceiling, and the retry budget.
func (b *Bus) deliver(ctx context.Context, sub *subscription, ev Event) {
	sub.mu.Lock()
	if _, dup := sub.seen[ev.ID]; dup {
		sub.mu.Unlock()
		b.logger.Debug("duplicate event ignored", clog.EventKey, ev.Topic, "event_id", ev.ID)
		return
	}
	sub.seen[ev.ID] = struct{}{}
	sub.mu.Unlock()

	select {
	case sub.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-sub.sem }()

	backoff := sub.opts.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= sub.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			backoff *= 2
			if backoff > sub.opts.MaxBackoff {
				backoff = sub.opts.MaxBackoff
			}
		}

		err := sub.handler(ctx, ev)
		if err == nil {
			return
		}
		lastErr = err

		if !isRetryable(err) {
			b.logger.Warn("handler failed permanently", clog.EventKey, ev.Topic, "event_id", ev.ID, "error", err)
			return
		}
		b.logger.Warn("handler failed, will retry", clog.EventKey, ev.Topic, "event_id", ev.ID, "attempt", attempt, "error", err)
	}

	b.logger.Error("handler exhausted retry budget", clog.EventKey, ev.Topic, "event_id", ev.ID, "error", lastErr)
}

// Wait blocks until every in-flight delivery has completed. Intended for
// tests and graceful shutdown.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close marks the bus closed; in-flight deliveries still run to completion,
// but Publish after Close returns ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// ErrBusClosed is returned by Publish once the bus has been closed.
var ErrBusClosed = busClosedError{}

type busClosedError struct{}

func (busClosedError) Error() string { return "eventbus: closed" }
