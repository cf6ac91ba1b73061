package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	msgs     []Message
	claimErr error
}

func (s *fakeStore) add(t *testing.T, typ string) Message {
	t.Helper()
	m, err := NewMessage(uuid.New(), typ, map[string]string{"k": "v"}, "", time.Now())
	require.NoError(t, err)
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return m
}

func (s *fakeStore) Claim(_ context.Context, relayID string, _ time.Duration) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return Message{}, s.claimErr
	}
	for i := range s.msgs {
		m := &s.msgs[i]
		if !m.Dispatched && !m.Quarantined() && m.ClaimedBy == "" {
			m.ClaimedBy = relayID
			return *m, nil
		}
	}
	return Message{}, ErrNoMessage
}

func (s *fakeStore) Release(_ context.Context, msg Message, _ string, cause string, quarantine bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.ID != msg.ID {
			continue
		}
		m.ClaimedBy = ""
		m.Attempts++
		m.LastError = cause
		if quarantine {
			now := time.Now()
			m.QuarantinedAt = &now
		}
	}
	return nil
}

func (s *fakeStore) markDispatched(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Dispatched = true
			s.msgs[i].ClaimedBy = ""
		}
	}
}

func (s *fakeStore) get(id uuid.UUID) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == id {
			return m
		}
	}
	return Message{}
}

func TestRelay_RunOnce_EmptyQueue(t *testing.T) {
	r := NewRelay(logging.Discard(), &fakeStore{}, HandlerFunc(func(context.Context, Message) error {
		t.Fatal("handler must not run")
		return nil
	}), "r1")

	processed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRelay_RunOnce_OldestFirst(t *testing.T) {
	store := &fakeStore{}
	first := store.add(t, "A")
	second := store.add(t, "B")

	var seen []uuid.UUID
	r := NewRelay(logging.Discard(), store, HandlerFunc(func(_ context.Context, m Message) error {
		seen = append(seen, m.ID)
		store.markDispatched(m.ID)
		return nil
	}), "r1")

	for range 3 {
		_, err := r.RunOnce(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, seen)
}

func TestRelay_FailureKeepsMessageForRetry(t *testing.T) {
	store := &fakeStore{}
	m := store.add(t, "A")

	calls := 0
	r := NewRelay(logging.Discard(), store, HandlerFunc(func(_ context.Context, msg Message) error {
		calls++
		if calls == 1 {
			return errors.New("psp unreachable")
		}
		store.markDispatched(msg.ID)
		return nil
	}), "r1", WithMaxAttempts(5))

	processed, err := r.RunOnce(context.Background())
	assert.True(t, processed)
	require.Error(t, err)

	got := store.get(m.ID)
	assert.False(t, got.Dispatched)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "psp unreachable", got.LastError)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, store.get(m.ID).Dispatched)
	assert.Equal(t, 2, calls)
}

func TestRelay_QuarantinesAfterMaxAttempts(t *testing.T) {
	store := &fakeStore{}
	poison := store.add(t, "A")
	next := store.add(t, "B")

	r := NewRelay(logging.Discard(), store, HandlerFunc(func(_ context.Context, msg Message) error {
		if msg.ID == poison.ID {
			return errors.New("boom")
		}
		store.markDispatched(msg.ID)
		return nil
	}), "r1", WithMaxAttempts(2))

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err, "quarantine is not reported as a failure")

	assert.True(t, store.get(poison.ID).Quarantined())
	assert.Equal(t, 2, store.get(poison.ID).Attempts)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, store.get(next.ID).Dispatched)
}

func TestRelay_ZeroMaxAttemptsRetriesForever(t *testing.T) {
	store := &fakeStore{}
	m := store.add(t, "A")
	r := NewRelay(logging.Discard(), store, HandlerFunc(func(context.Context, Message) error {
		return errors.New("boom")
	}), "r1", WithMaxAttempts(0))

	for range 20 {
		_, _ = r.RunOnce(context.Background())
	}
	got := store.get(m.ID)
	assert.False(t, got.Quarantined())
	assert.Equal(t, 20, got.Attempts)
}

func TestRelay_LeaseLostIsNotReleased(t *testing.T) {
	store := &fakeStore{}
	m := store.add(t, "A")
	r := NewRelay(logging.Discard(), store, HandlerFunc(func(context.Context, Message) error {
		return ErrLeaseLost
	}), "r1")

	processed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 0, store.get(m.ID).Attempts)
}

func TestRelay_HandlerSurvivesCancellation(t *testing.T) {
	store := &fakeStore{}
	store.add(t, "A")

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRelay(logging.Discard(), store, HandlerFunc(func(hctx context.Context, msg Message) error {
		cancel()
		assert.NoError(t, hctx.Err())
		store.markDispatched(msg.ID)
		return nil
	}), "r1")

	processed, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	wake := make(chan struct{}, 1)
	handled := make(chan uuid.UUID, 4)

	r := NewRelay(logging.Discard(), store, HandlerFunc(func(_ context.Context, msg Message) error {
		store.markDispatched(msg.ID)
		handled <- msg.ID
		return nil
	}), "r1", WithInterval(time.Hour), WithWakeup(wake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	m := store.add(t, "A")
	wake <- struct{}{}

	select {
	case id := <-handled:
		assert.Equal(t, m.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("wakeup did not trigger a claim")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}
