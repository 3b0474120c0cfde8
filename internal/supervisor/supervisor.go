package supervisor

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"whatsapp-bot/internal/session"
	"whatsapp-bot/internal/whatsapp"
)

// ErrNotConnecting is returned for pairing requests outside the connecting state.
var ErrNotConnecting = errors.New("bot not ready for pairing")

// WhatsApp shows the first QR code for 60 seconds and each later one for 20.
const (
	firstQRTimeout = 60 * time.Second
	nextQRTimeout  = 20 * time.Second
)

// stopPersistTimeout bounds the last credential save during shutdown.
const stopPersistTimeout = 10 * time.Second

// Connection is one live link to WhatsApp.
type Connection interface {
	whatsapp.Conn
	AddEventHandler(handler func(evt any))
	Connect() error
	Disconnect()
	Close() error
	PairPhone(ctx context.Context, phone string) (string, error)
	SaveCredentials(ctx context.Context) error
}

// Dialer opens a new, unconnected Connection from the credentials on disk.
type Dialer func(ctx context.Context) (Connection, error)

type CredentialStore interface {
	Restore(ctx context.Context) error
	Persist(ctx context.Context) error
	Clear(ctx context.Context) error
	Dir() string
}

type MessageHandler interface {
	Dispatch(ctx context.Context, conn whatsapp.Conn, evt *events.Message)
}

type Options struct {
	ReconnectDelay       time.Duration
	LogoutDelay          time.Duration
	PresenceInterval     time.Duration
	HousekeepingInterval time.Duration
	NotifyOnConnect      bool

	// Submit runs one dispatch task. Defaults to a new goroutine per task.
	Submit func(task func()) error
}

type timer interface {
	Stop() bool
}

// Supervisor owns the single live connection. Every event handler is tagged
// with the generation of the connection it was attached to, and events from
// a superseded generation are dropped.
type Supervisor struct {
	mu sync.Mutex

	session *session.Session
	creds   CredentialStore
	dial    Dialer
	handler MessageHandler
	opts    Options

	ctx      context.Context
	conn     Connection
	gen      uint64
	restored bool
	stopped  bool

	jobs       *cron.Cron
	restart    timer
	restartSeq uint64
	qrTimer    timer
	qrCodes    []string

	afterFunc func(d time.Duration, f func()) timer
}

func New(sess *session.Session, creds CredentialStore, dial Dialer, handler MessageHandler, opts Options) *Supervisor {
	if opts.Submit == nil {
		opts.Submit = func(task func()) error {
			go task()
			return nil
		}
	}
	return &Supervisor{
		session: sess,
		creds:   creds,
		dial:    dial,
		handler: handler,
		opts:    opts,
		ctx:     context.Background(),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Start opens the first connection. A failure is returned for logging but a
// retry is already scheduled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.stopped = false
	return s.startLocked()
}

// Stop cancels every timer and job and closes the connection.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelRestartLocked()
	s.teardownLocked()
	s.gen++
	s.session.SetStatus(session.StatusDisconnected)

	// The start context is usually already cancelled by the shutdown signal.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), stopPersistTimeout)
	defer cancel()
	if err := s.creds.Persist(ctx); err != nil {
		zap.L().Warn("final credential persist failed", zap.Error(err))
	}
}

// RequestPairingCode asks WhatsApp for a phone-number pairing code. Only
// valid while a connection is waiting to be linked.
func (s *Supervisor) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	s.mu.Lock()
	status := s.session.Status()
	conn := s.conn
	s.mu.Unlock()

	if status != session.StatusConnecting || conn == nil {
		return "", errors.Wrapf(ErrNotConnecting, "current status: %s", status)
	}
	code, err := conn.PairPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	s.session.RecordPairingCode(phone, code)
	zap.L().Info("pairing code issued", zap.String("phone", phone))
	return code, nil
}

func (s *Supervisor) startLocked() error {
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.session.SetStatus(session.StatusConnecting)

	// Later reconnects keep the files already on disk, which are newer than
	// anything in the store.
	if !s.restored {
		if err := s.creds.Restore(s.ctx); err != nil {
			zap.L().Error("credential restore failed", zap.Error(err))
		}
		s.restored = true
	}

	conn, err := s.dial(s.ctx)
	if err != nil {
		s.session.SetStatus(session.StatusDisconnected)
		s.scheduleLocked(s.opts.ReconnectDelay)
		return errors.Wrap(err, "open connection")
	}
	conn.AddEventHandler(func(evt any) { s.handleEvent(gen, evt) })
	s.conn = conn

	if err := conn.Connect(); err != nil {
		s.teardownLocked()
		s.session.SetStatus(session.StatusDisconnected)
		s.scheduleLocked(s.opts.ReconnectDelay)
		return errors.Wrap(err, "connect")
	}
	zap.L().Info("connection opened", zap.Uint64("generation", gen))
	return nil
}

func (s *Supervisor) handleEvent(gen uint64, evt any) {
	switch e := evt.(type) {
	case *events.Message:
		s.onMessage(gen, e)
	case *events.QR:
		s.onQR(gen, e.Codes)
	case *events.PairSuccess, *events.PushNameSetting:
		s.onCredentialsUpdate(gen)
	case *events.Connected:
		s.onConnected(gen)
	case *events.LoggedOut:
		s.onLoggedOut(gen, fmt.Sprint(e.Reason))
	case *events.ConnectFailure:
		if e.Reason.IsLoggedOut() {
			s.onLoggedOut(gen, fmt.Sprint(e.Reason))
		} else {
			s.onClosed(gen, fmt.Sprintf("connect failure: %v", e.Reason))
		}
	case *events.Disconnected:
		s.onClosed(gen, "disconnected")
	case *events.StreamReplaced:
		s.onClosed(gen, "stream replaced")
	case *events.ClientOutdated:
		s.onClosed(gen, "client outdated")
	case *events.TemporaryBan:
		s.onClosed(gen, fmt.Sprintf("temporary ban: %v", e))
	}
}

func (s *Supervisor) current(gen uint64) (Connection, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.currentLocked(gen)
	return conn, s.ctx, ok
}

func (s *Supervisor) currentLocked(gen uint64) (Connection, bool) {
	if gen != s.gen || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

func (s *Supervisor) onMessage(gen uint64, evt *events.Message) {
	conn, ctx, ok := s.current(gen)
	if !ok {
		return
	}
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("message dispatch panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			}
		}()
		s.handler.Dispatch(ctx, conn, evt)
	}
	if err := s.opts.Submit(task); err != nil {
		zap.L().Warn("dropping message, dispatch pool rejected it", zap.String("id", evt.Info.ID), zap.Error(err))
	}
}

func (s *Supervisor) onQR(gen uint64, codes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.currentLocked(gen); !ok || len(codes) == 0 {
		return
	}
	s.stopQRLocked()
	s.qrCodes = codes
	s.showQRLocked(gen, 0)
	zap.L().Info("scan the QR code or request a pairing code to link the bot")
}

func (s *Supervisor) showQRLocked(gen uint64, i int) {
	s.session.SetQR(s.qrCodes[i])
	if i+1 >= len(s.qrCodes) {
		return
	}
	wait := nextQRTimeout
	if i == 0 {
		wait = firstQRTimeout
	}
	codes := s.qrCodes
	s.qrTimer = s.afterFunc(wait, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.currentLocked(gen); !ok || len(s.qrCodes) != len(codes) || &s.qrCodes[0] != &codes[0] {
			return
		}
		s.showQRLocked(gen, i+1)
	})
}

func (s *Supervisor) stopQRLocked() {
	if s.qrTimer != nil {
		s.qrTimer.Stop()
		s.qrTimer = nil
	}
	s.qrCodes = nil
}

func (s *Supervisor) onCredentialsUpdate(gen uint64) {
	conn, ctx, ok := s.current(gen)
	if !ok {
		return
	}
	s.saveCredentials(ctx, conn)
}

func (s *Supervisor) saveCredentials(ctx context.Context, conn Connection) {
	if err := conn.SaveCredentials(ctx); err != nil {
		zap.L().Error("failed to save device state", zap.Error(err))
	}
	if err := s.creds.Persist(ctx); err != nil {
		zap.L().Error("failed to persist credentials", zap.Error(err))
	}
}

func (s *Supervisor) onConnected(gen uint64) {
	s.mu.Lock()
	conn, ok := s.currentLocked(gen)
	if !ok {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.stopQRLocked()
	s.session.SetQR("")
	s.session.SetStatus(session.StatusConnected)
	s.startJobsLocked(ctx, conn)
	s.mu.Unlock()

	zap.L().Info("bot connected", zap.String("jid", conn.OwnID().String()))
	s.saveCredentials(ctx, conn)

	if !s.opts.NotifyOnConnect {
		return
	}
	own := conn.OwnID()
	if own.IsEmpty() {
		return
	}
	text := fmt.Sprintf("Bot linked successfully!\nCurrent prefix: %s", s.session.Prefix())
	if _, err := conn.SendMessage(ctx, own, whatsapp.Text(text)); err != nil {
		zap.L().Warn("failed to send link confirmation", zap.Error(err))
	}
}

func (s *Supervisor) onLoggedOut(gen uint64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.currentLocked(gen); !ok {
		return
	}
	zap.L().Warn("logged out, wiping credentials", zap.String("reason", reason))

	s.session.SetStatus(session.StatusDisconnected)
	s.teardownLocked()
	if err := os.RemoveAll(s.creds.Dir()); err != nil {
		zap.L().Error("failed to remove auth folder", zap.String("dir", s.creds.Dir()), zap.Error(err))
	}
	if err := s.creds.Clear(s.ctx); err != nil {
		zap.L().Error("failed to clear stored credentials", zap.Error(err))
	}
	s.session.Reset()
	s.scheduleLocked(s.opts.LogoutDelay)
}

func (s *Supervisor) onClosed(gen uint64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.currentLocked(gen); !ok {
		return
	}
	zap.L().Info("connection closed, reconnecting",
		zap.String("reason", reason),
		zap.Duration("delay", s.opts.ReconnectDelay))

	s.session.SetStatus(session.StatusDisconnected)
	s.teardownLocked()
	if err := s.creds.Persist(s.ctx); err != nil {
		zap.L().Warn("credential persist after close failed", zap.Error(err))
	}
	s.scheduleLocked(s.opts.ReconnectDelay)
}

func (s *Supervisor) startJobsLocked(ctx context.Context, conn Connection) {
	s.stopJobsLocked()
	c := cron.New()
	if s.opts.PresenceInterval > 0 {
		_, err := c.AddFunc(every(s.opts.PresenceInterval), func() {
			if err := conn.SendPresence(ctx, types.PresenceAvailable); err != nil {
				zap.L().Debug("presence update failed", zap.Error(err))
			}
		})
		if err != nil {
			zap.L().Error("failed to schedule presence", zap.Error(err))
		}
	}
	if s.opts.HousekeepingInterval > 0 {
		_, err := c.AddFunc(every(s.opts.HousekeepingInterval), func() {
			if err := s.creds.Persist(ctx); err != nil {
				zap.L().Warn("credential housekeeping failed", zap.Error(err))
			}
		})
		if err != nil {
			zap.L().Error("failed to schedule credential housekeeping", zap.Error(err))
		}
	}
	c.Start()
	s.jobs = c
}

func (s *Supervisor) stopJobsLocked() {
	if s.jobs != nil {
		s.jobs.Stop()
		s.jobs = nil
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// teardownLocked detaches the current connection. Events it emits afterwards
// fail the generation check.
func (s *Supervisor) teardownLocked() {
	s.stopJobsLocked()
	s.stopQRLocked()
	if s.conn == nil {
		return
	}
	conn := s.conn
	s.conn = nil
	conn.Disconnect()
	if err := conn.Close(); err != nil {
		zap.L().Warn("failed to close device store", zap.Error(err))
	}
}

// scheduleLocked arranges a fresh start after d, replacing any pending one.
func (s *Supervisor) scheduleLocked(d time.Duration) {
	if s.stopped {
		return
	}
	s.cancelRestartLocked()
	seq := s.restartSeq
	s.restart = s.afterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stopped || seq != s.restartSeq {
			return
		}
		s.restart = nil
		if err := s.startLocked(); err != nil {
			zap.L().Error("restart failed", zap.Error(err))
		}
	})
}

func (s *Supervisor) cancelRestartLocked() {
	s.restartSeq++
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
}
