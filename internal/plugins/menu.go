package plugins

import (
	"context"
	"strings"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/whatsapp"
)

type Menu struct {
	session  PrefixController
	registry CommandLister
}

func (p *Menu) Name() string        { return "menu" }
func (p *Menu) Aliases() []string   { return []string{"help"} }
func (p *Menu) Description() string { return "Show available bot commands" }

func (p *Menu) Execute(ctx context.Context, _ whatsapp.Conn, m *message.Message, _ []string) error {
	prefix := p.session.Prefix()

	var b strings.Builder
	b.WriteString("*Available Commands*\n")
	for _, cmd := range p.registry.Commands() {
		b.WriteString("\n")
		b.WriteString(prefix)
		b.WriteString(cmd.Name)
		if len(cmd.Aliases) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(cmd.Aliases, ", "))
			b.WriteString(")")
		}
		if cmd.Description != "" {
			b.WriteString(" - ")
			b.WriteString(cmd.Description)
		}
	}
	return m.Send(ctx, b.String())
}
