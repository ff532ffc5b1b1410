// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Type identifies a notification kind.
type Type string

const (
	TypeStatus  Type = "status"  // Player status changed
	TypeCommand Type = "command" // Backend command for the rendering client
	TypeError   Type = "error"   // User-visible failure
)

// Notification is a message delivered to subscribers.
type Notification struct {
	Type       Type
	SequenceNo uint64
	Time       time.Time
	Payload    map[string]any
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
	types  map[Type]bool // Empty means all types
}

func (s *subscription) wants(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
	}
}

// SetSendTimeout sets the per-subscriber send timeout.
func (m *Manager) SetSendTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.sendTimeout = d
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
// With no types the subscriber receives every notification.
func (m *Manager) Subscribe(stream Stream, types ...Type) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	sub := &subscription{id: id, stream: stream, types: make(map[Type]bool, len(types))}
	for _, t := range types {
		sub.types[t] = true
	}
	m.subscriptions[id] = sub
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast sends a notification to all interested subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
// A subscriber whose send fails is removed.
func (m *Manager) Broadcast(notification *Notification) error {
	notification.SequenceNo = m.NextSequenceNo()
	if notification.Time.IsZero() {
		notification.Time = time.Now()
	}

	m.mu.RLock()
	timeout := m.sendTimeout
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.wants(notification.Type) {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed, unsubscribing: subscription_id=%s err=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification: send timed out: subscription_id=%s type=%s seq=%d",
					s.id, notification.Type, notification.SequenceNo)
			}
		}(sub)
	}

	// Wait for all sends to complete or timeout
	wg.Wait()
	return nil
}

// Send sends a notification to a specific subscriber.
func (m *Manager) Send(subscriptionID string, notification *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	notification.SequenceNo = m.NextSequenceNo()
	if notification.Time.IsZero() {
		notification.Time = time.Now()
	}
	return sub.stream.Send(notification)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
