package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu       sync.Mutex
	received []*Notification
	err      error
	block    chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, n)
	return nil
}

func (s *recordingStream) all() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification(nil), s.received...)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)

	require.NoError(t, m.Broadcast(&Notification{Type: TypeStatus, Payload: map[string]any{"state": "playing"}}))
	require.NoError(t, m.Broadcast(&Notification{Type: TypeStatus}))

	for _, s := range []*recordingStream{a, b} {
		got := s.all()
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].SequenceNo)
		assert.Equal(t, uint64(2), got[1].SequenceNo)
		assert.Equal(t, "playing", got[0].Payload["state"])
		assert.False(t, got[0].Time.IsZero())
	}
}

func TestManager_SubscribeByType(t *testing.T) {
	m := NewManager()
	commands := &recordingStream{}
	everything := &recordingStream{}
	m.Subscribe(commands, TypeCommand)
	m.Subscribe(everything)

	require.NoError(t, m.Broadcast(&Notification{Type: TypeStatus}))
	require.NoError(t, m.Broadcast(&Notification{Type: TypeCommand}))

	require.Len(t, commands.all(), 1)
	assert.Equal(t, TypeCommand, commands.all()[0].Type)
	assert.Len(t, everything.all(), 2)
}

func TestManager_FailedSubscriberIsRemoved(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recordingStream{err: errors.New("stream closed")})
	ok := &recordingStream{}
	m.Subscribe(ok)

	require.NoError(t, m.Broadcast(&Notification{Type: TypeStatus}))

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, ok.all(), 1)
}

func TestManager_SlowSubscriberTimesOut(t *testing.T) {
	m := NewManager()
	m.SetSendTimeout(20 * time.Millisecond)
	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	m.Subscribe(slow)

	start := time.Now()
	require.NoError(t, m.Broadcast(&Notification{Type: TypeStatus}))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_UnsubscribeAndClose(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)
	m.Subscribe(&recordingStream{})
	assert.Equal(t, 2, m.SubscriberCount())

	m.Unsubscribe(id)
	require.NoError(t, m.Broadcast(&Notification{Type: TypeStatus}))
	assert.Empty(t, s.all())

	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestManager_Send(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)

	require.NoError(t, m.Send(id, &Notification{Type: TypeStatus}))
	require.NoError(t, m.Send("unknown", &Notification{Type: TypeStatus}))

	require.Len(t, s.all(), 1)
	assert.Equal(t, uint64(1), s.all()[0].SequenceNo)
}
