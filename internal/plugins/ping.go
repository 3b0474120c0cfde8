package plugins

import (
	"context"
	"fmt"
	"time"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/whatsapp"
)

type Ping struct {
	now func() time.Time
}

func (p *Ping) Name() string        { return "ping" }
func (p *Ping) Aliases() []string   { return []string{"speed", "latency"} }
func (p *Ping) Description() string { return "Check bot response speed" }

// Execute replies once with the time between the message being sent and it
// being handled.
func (p *Ping) Execute(ctx context.Context, _ whatsapp.Conn, m *message.Message, _ []string) error {
	var latency time.Duration
	if sent := m.Raw.Info.Timestamp; !sent.IsZero() {
		latency = p.now().Sub(sent)
		if latency < 0 {
			latency = 0
		}
	}
	return m.Reply(ctx, fmt.Sprintf("Pong!\n> Latency: %d ms", latency.Milliseconds()))
}
