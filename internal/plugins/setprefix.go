package plugins

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/whatsapp"
)

type SetPrefix struct {
	session PrefixController
	owners  []string
}

func (p *SetPrefix) Name() string        { return "setprefix" }
func (p *SetPrefix) Aliases() []string   { return []string{"prefix", "changeprefix"} }
func (p *SetPrefix) Description() string { return "Change the command prefix (Owner only)" }

func (p *SetPrefix) Execute(ctx context.Context, conn whatsapp.Conn, m *message.Message, args []string) error {
	if !p.isOwner(m) {
		return m.Reply(ctx, "You are not allowed to change the prefix.")
	}
	if len(args) == 0 {
		return m.Reply(ctx, fmt.Sprintf("Usage: %ssetprefix <newPrefix>", p.session.Prefix()))
	}

	prefix := args[0]
	if err := p.session.SetPrefix(ctx, prefix); err != nil {
		return err
	}

	for _, owner := range parseOwners(p.owners) {
		if _, err := conn.SendMessage(ctx, owner, whatsapp.Text(fmt.Sprintf("Prefix has been changed to: `%s`", prefix))); err != nil {
			zap.L().Warn("could not notify owner", zap.String("owner", owner.String()), zap.Error(err))
		}
	}
	return m.Reply(ctx, fmt.Sprintf("Prefix changed to: `%s`", prefix))
}

func (p *SetPrefix) isOwner(m *message.Message) bool {
	sender := m.Sender.ToNonAD().String()
	for _, o := range p.owners {
		if o == sender {
			return true
		}
	}
	return false
}
