// Package memory is a process-local payment store used for single-process
// runs and tests. It honours the same atomicity and claim rules as the
// postgres store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	payments map[uuid.UUID]domain.PaymentSnapshot
	crypto   map[uuid.UUID]domain.CryptoSnapshot
	txHashes map[string]uuid.UUID
	messages []outbox.Message
	leases   map[uuid.UUID]time.Time
	wake     chan struct{}
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		payments: make(map[uuid.UUID]domain.PaymentSnapshot),
		crypto:   make(map[uuid.UUID]domain.CryptoSnapshot),
		txHashes: make(map[string]uuid.UUID),
		leases:   make(map[uuid.UUID]time.Time),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Wakeups fires after new messages are appended.
func (s *Store) Wakeups() <-chan struct{} { return s.wake }

func (s *Store) CreatePayment(_ context.Context, p *domain.Payment, msgs ...outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID()]; ok {
		return fmt.Errorf("payment %s already exists", p.ID())
	}
	s.payments[p.ID()] = p.Snapshot()
	s.appendLocked(msgs)
	return nil
}

func (s *Store) CreateCryptoPayment(_ context.Context, p *domain.Payment, tx *domain.CryptoTransaction, msgs ...outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID()]; ok {
		return fmt.Errorf("payment %s already exists", p.ID())
	}
	if _, ok := s.txHashes[tx.TxHash()]; ok {
		return fmt.Errorf("tx hash %s already exists", tx.TxHash())
	}
	s.payments[p.ID()] = p.Snapshot()
	s.crypto[p.ID()] = tx.Snapshot()
	s.txHashes[tx.TxHash()] = p.ID()
	s.appendLocked(msgs)
	return nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	snap, ok := s.payments[id]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.RestorePayment(snap)
}

func (s *Store) GetCryptoTransaction(_ context.Context, paymentID uuid.UUID) (*domain.CryptoTransaction, error) {
	s.mu.Lock()
	snap, ok := s.crypto[paymentID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.RestoreCryptoTransaction(snap)
}

func (s *Store) CompleteDispatch(_ context.Context, msg outbox.Message, c application.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(msg.ID)
	if i < 0 || s.messages[i].Dispatched || s.messages[i].ClaimedBy != msg.ClaimedBy {
		return outbox.ErrLeaseLost
	}
	if c.Payment != nil {
		if _, ok := s.payments[c.Payment.ID()]; !ok {
			return domain.ErrNotFound
		}
	}
	if c.Crypto != nil {
		if _, ok := s.crypto[c.Crypto.PaymentID()]; !ok {
			return domain.ErrNotFound
		}
	}

	if c.Payment != nil {
		s.payments[c.Payment.ID()] = c.Payment.Snapshot()
	}
	if c.Crypto != nil {
		s.crypto[c.Crypto.PaymentID()] = c.Crypto.Snapshot()
	}
	now := s.now().UTC()
	m := &s.messages[i]
	m.Dispatched = true
	m.DispatchedAt = &now
	m.ClaimedBy = ""
	delete(s.leases, m.ID)
	s.appendLocked(c.FollowUps)
	return nil
}

func (s *Store) Claim(_ context.Context, relayID string, lease time.Duration) (outbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for i := range s.messages {
		m := &s.messages[i]
		if m.Dispatched || m.Quarantined() {
			continue
		}
		if m.ClaimedBy != "" && now.Before(s.leases[m.ID]) {
			continue
		}
		m.ClaimedBy = relayID
		s.leases[m.ID] = now.Add(lease)
		return *m, nil
	}
	return outbox.Message{}, outbox.ErrNoMessage
}

func (s *Store) Release(_ context.Context, msg outbox.Message, relayID, cause string, quarantine bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(msg.ID)
	if i < 0 || s.messages[i].Dispatched || s.messages[i].ClaimedBy != relayID {
		return outbox.ErrLeaseLost
	}
	m := &s.messages[i]
	m.Attempts++
	m.LastError = cause
	m.ClaimedBy = ""
	delete(s.leases, m.ID)
	if quarantine {
		now := s.now().UTC()
		m.QuarantinedAt = &now
	}
	return nil
}

func (s *Store) Pending(_ context.Context, limit int) ([]outbox.Message, error) {
	return s.filter(limit, func(m outbox.Message) bool { return !m.Dispatched && !m.Quarantined() }), nil
}

func (s *Store) Quarantined(_ context.Context, limit int) ([]outbox.Message, error) {
	return s.filter(limit, outbox.Message.Quarantined), nil
}

func (s *Store) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 || !s.messages[i].Quarantined() || s.messages[i].Dispatched {
		return false, nil
	}
	s.messages[i].QuarantinedAt = nil
	s.messages[i].Attempts = 0
	s.notify()
	return true, nil
}

// Messages returns every message in creation order.
func (s *Store) Messages() []outbox.Message {
	return s.filter(0, func(outbox.Message) bool { return true })
}

func (s *Store) filter(limit int, keep func(outbox.Message) bool) []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Message
	for _, m := range s.messages {
		if !keep(m) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) appendLocked(msgs []outbox.Message) {
	if len(msgs) == 0 {
		return
	}
	s.messages = append(s.messages, msgs...)
	s.notify()
}

func (s *Store) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(s.messages, func(m outbox.Message) bool { return m.ID == id })
}

func (s *Store) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
