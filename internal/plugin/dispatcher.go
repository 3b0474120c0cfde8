package plugin

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/session"
	"whatsapp-bot/internal/whatsapp"
)

// FailureReply is sent to the chat when a command fails.
const FailureReply = "Error running command."

type Dispatcher struct {
	registry  *Registry
	session   session.View
	normalize func(ctx context.Context, conn whatsapp.Conn, evt *events.Message) *message.Message
}

func NewDispatcher(registry *Registry, view session.View) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		session:   view,
		normalize: message.Normalize,
	}
}

// Dispatch routes one inbound event: at most one command, then every
// observer. Failures of one plugin never stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, conn whatsapp.Conn, evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}

	if evt.Info.Chat == types.StatusBroadcastJID {
		if !evt.Info.Sender.IsEmpty() {
			if err := conn.MarkRead(ctx, []types.MessageID{evt.Info.ID}, evt.Info.Chat, evt.Info.Sender); err != nil {
				zap.L().Debug("failed to mark status read", zap.Error(err))
			}
		}
		return
	}

	m := d.normalize(ctx, conn, evt)

	if name, args, ok := ParseCommand(m.Body, d.session.Prefix()); ok {
		if cmd, found := d.registry.Lookup(name); found {
			d.execute(ctx, conn, cmd, m, args)
		}
	}

	for _, obs := range d.registry.Observers() {
		err := safeCall(func() error { return obs.OnMessage(ctx, conn, m) })
		if err != nil {
			zap.L().Error("observer failed", zap.String("plugin", obs.Name()), zap.Error(err))
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, conn whatsapp.Conn, cmd Command, m *message.Message, args []string) {
	zap.L().Info("running command",
		zap.String("plugin", cmd.Name()),
		zap.String("chat", m.Chat.String()),
		zap.String("sender", m.Sender.String()))

	err := safeCall(func() error { return cmd.Execute(ctx, conn, m, args) })
	if err == nil {
		return
	}
	zap.L().Error("command failed", zap.String("plugin", cmd.Name()), zap.Error(err))
	if sendErr := m.Reply(ctx, FailureReply); sendErr != nil {
		zap.L().Warn("failed to send failure reply", zap.String("plugin", cmd.Name()), zap.Error(sendErr))
	}
}

// ParseCommand splits "<prefix>name arg1 arg2" into a lowercased name and
// its arguments.
func ParseCommand(body, prefix string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(body, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
			zap.L().Error("plugin panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	return fn()
}
