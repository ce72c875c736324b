// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package mailbox queues notifications per (subject, role) pair for clients that collect them
// with long-polls.
//
// Queues are keyed by the pair rather than by connection, so a notification published between
// two polls from the same client is delivered by the second one. A consumer that nobody has
// polled for longer than the idle TTL is discarded together with anything still queued.
package mailbox

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/matt-FFFFFF/fanout/internal/longpoll"
)

const (
	// DefaultConsumerTTL is how long an idle consumer survives after its last poll.
	DefaultConsumerTTL = 5 * time.Second
	// BroadcastTarget is the wire value of a publish target addressing every role.
	BroadcastTarget = "*"
	// JSONRPCVersion is the protocol marker carried by every notification.
	JSONRPCVersion = "2.0"
)

// ID identifies a registered consumer.
type ID uint64

// Notification is a JSON-RPC 2.0 notification. Values are never modified after publishing.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewNotification returns a notification for method without params.
func NewNotification(method string) Notification {
	return Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
}

// Target selects the consumers of a subject that receive a notification.
type Target struct {
	Role      string
	Broadcast bool
}

// RoleTarget addresses a single role.
func RoleTarget(role string) Target {
	return Target{Role: role}
}

// Broadcast addresses every role of a subject.
func Broadcast() Target {
	return Target{Broadcast: true}
}

// ParseTarget converts the wire representation, where "*" means broadcast.
func ParseTarget(s string) Target {
	if s == BroadcastTarget {
		return Broadcast()
	}

	return RoleTarget(s)
}

func (t Target) matches(role string) bool {
	return t.Broadcast || t.Role == role
}

type consumer struct {
	subject  string
	role     string
	queue    []Notification
	lastSeen time.Time
	polling  int
}

// Registry holds all consumers behind a single lock.
type Registry struct {
	mu        sync.Mutex
	consumers map[ID]*consumer
	nextID    ID
	bus       *changebus.Bus
	ttl       time.Duration
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithConsumerTTL overrides DefaultConsumerTTL. A non-positive TTL disables expiry.
func WithConsumerTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry that bumps bus on every publish.
func New(bus *changebus.Bus, opts ...Option) *Registry {
	r := &Registry{
		consumers: make(map[ID]*consumer),
		nextID:    1,
		bus:       bus,
		ttl:       DefaultConsumerTTL,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register returns the consumer for (subject, role), creating an empty one if needed.
func (r *Registry) Register(subject, role string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expireLocked(now)

	for id, c := range r.consumers {
		if c.subject == subject && c.role == role {
			c.lastSeen = now
			return id
		}
	}

	id := r.nextID
	r.nextID++
	r.consumers[id] = &consumer{
		subject:  subject,
		role:     role,
		lastSeen: now,
	}

	return id
}

// Unregister removes a consumer and discards its queue. Unknown ids are ignored.
func (r *Registry) Unregister(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.consumers, id)
}

// Publish appends n to every consumer of subject selected by target. Publishing to a subject
// without consumers is a no-op.
func (r *Registry) Publish(subject string, target Target, n Notification) {
	r.mu.Lock()

	for _, c := range r.consumers {
		if c.subject != subject || !target.matches(c.role) {
			continue
		}

		c.queue = append(c.queue, n)
	}

	r.mu.Unlock()

	r.bus.Bump()
}

// HasMessages reports whether the consumer has queued notifications.
func (r *Registry) HasMessages(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consumers[id]

	return ok && len(c.queue) > 0
}

// Drain removes and returns all queued notifications in publish order. The result is never
// nil so it encodes as an empty JSON array.
func (r *Registry) Drain(id ID) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consumers[id]
	if !ok || len(c.queue) == 0 {
		return []Notification{}
	}

	out := c.queue
	c.queue = nil
	c.lastSeen = r.now()

	return out
}

// Len returns the number of registered consumers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.consumers)
}

// Poll registers (subject, role), waits up to wait for a notification and drains the queue.
// The consumer stays registered for the idle TTL afterwards so that the next poll picks up
// anything published in between.
func (r *Registry) Poll(ctx context.Context, subject, role string, wait time.Duration) []Notification {
	id := r.Register(subject, role)

	if r.HasMessages(id) {
		return r.Drain(id)
	}

	r.setPolling(id, 1)
	defer r.setPolling(id, -1)

	ctxlog.Debug(ctx, "mailbox poll waiting", "subject", subject, "role", role, "wait", wait)

	longpoll.WaitFor(ctx, r.bus, wait, func() bool {
		return r.HasMessages(id)
	})

	return r.Drain(id)
}

// setPolling tracks in-flight polls. A consumer being polled is never expired, however long
// the wait.
func (r *Registry) setPolling(id ID, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consumers[id]
	if !ok {
		return
	}

	c.polling += delta
	c.lastSeen = r.now()
}

func (r *Registry) expireLocked(now time.Time) {
	if r.ttl <= 0 {
		return
	}

	for id, c := range r.consumers {
		if c.polling == 0 && now.Sub(c.lastSeen) >= r.ttl {
			delete(r.consumers, id)
		}
	}
}

// Subjects returns the distinct subjects with at least one consumer, sorted.
func (r *Registry) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.consumers))
	for _, c := range r.consumers {
		if !slices.Contains(out, c.subject) {
			out = append(out, c.subject)
		}
	}

	slices.Sort(out)

	return out
}
