package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// PairingCodeTTL is how long an issued pairing code stays in the pending set.
const PairingCodeTTL = 10 * time.Minute

type PairingCode struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Snapshot is a consistent copy of the observable state. Seq increases with
// every change, so a later snapshot always carries a larger Seq.
type Snapshot struct {
	Seq                 uint64 `json:"seq"`
	Status              Status `json:"botStatus"`
	Prefix              string `json:"prefix"`
	QR                  string `json:"qr,omitempty"`
	PendingPairingCodes int    `json:"pairingCodesCount"`
}

// View is the read side handed to handlers and plugins.
type View interface {
	Status() Status
	Prefix() string
	Snapshot() Snapshot
}

// PrefixStore persists the command prefix.
type PrefixStore interface {
	LoadPrefix(ctx context.Context) (string, bool, error)
	SavePrefix(ctx context.Context, prefix string) error
}

// Session owns the bot's shared runtime state. Every mutation notifies the
// subscribers with a fresh snapshot.
type Session struct {
	mu          sync.RWMutex
	status      Status
	prefix      string
	qr          string
	codes       map[string]PairingCode
	store       PrefixStore
	subscribers []func(Snapshot)
	seq         uint64

	now func() time.Time
}

func New(defaultPrefix string, store PrefixStore) *Session {
	return &Session{
		status: StatusDisconnected,
		prefix: defaultPrefix,
		codes:  make(map[string]PairingCode),
		store:  store,
		now:    time.Now,
	}
}

// LoadPrefix replaces the default prefix with the stored one, if any.
func (s *Session) LoadPrefix(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	prefix, ok, err := s.store.LoadPrefix(ctx)
	if err != nil {
		return err
	}
	if !ok || prefix == "" {
		return nil
	}
	s.mu.Lock()
	s.prefix = prefix
	s.mu.Unlock()
	zap.S().Infof("Loaded command prefix %q", prefix)
	return nil
}

func (s *Session) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Prefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefix
}

func (s *Session) QR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) SetStatus(status Status) {
	s.update(func() bool {
		if s.status == status {
			return false
		}
		zap.L().Info("connection status changed", zap.String("from", string(s.status)), zap.String("to", string(status)))
		s.status = status
		return true
	})
}

func (s *Session) SetQR(qr string) {
	s.update(func() bool {
		if s.qr == qr {
			return false
		}
		s.qr = qr
		return true
	})
}

// SetPrefix persists the new prefix and then makes it current. An empty prefix
// is rejected.
func (s *Session) SetPrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return errors.New("prefix must not be empty")
	}
	if s.store != nil {
		if err := s.store.SavePrefix(ctx, prefix); err != nil {
			return err
		}
	}
	s.update(func() bool {
		s.prefix = prefix
		return true
	})
	return nil
}

// RecordPairingCode stores a code for phone and drops codes older than
// PairingCodeTTL.
func (s *Session) RecordPairingCode(phone, code string) {
	s.update(func() bool {
		now := s.now()
		for p, c := range s.codes {
			if now.Sub(c.IssuedAt) > PairingCodeTTL {
				delete(s.codes, p)
			}
		}
		s.codes[phone] = PairingCode{Code: code, IssuedAt: now}
		return true
	})
}

func (s *Session) PairingCode(phone string) (PairingCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[phone]
	return c, ok
}

func (s *Session) PendingPairingCodes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// Reset forgets the QR and all pending pairing codes. Status and prefix are
// untouched.
func (s *Session) Reset() {
	s.update(func() bool {
		s.qr = ""
		s.codes = make(map[string]PairingCode)
		return true
	})
}

func (s *Session) update(mutate func() bool) {
	s.mu.Lock()
	if !mutate() {
		s.mu.Unlock()
		return
	}
	s.seq++
	snap := s.snapshotLocked()
	subs := append([]func(Snapshot){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Seq:                 s.seq,
		Status:              s.status,
		Prefix:              s.prefix,
		QR:                  s.qr,
		PendingPairingCodes: len(s.codes),
	}
}
