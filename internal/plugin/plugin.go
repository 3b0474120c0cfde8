package plugin

import (
	"context"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/whatsapp"
)

// Plugin is anything the registry can hold. A usable plugin also implements
// Command, Observer or both.
type Plugin interface {
	Name() string
}

// Command handles "<prefix><name> args..." messages.
type Command interface {
	Plugin
	Execute(ctx context.Context, conn whatsapp.Conn, m *message.Message, args []string) error
}

// Observer sees every inbound message, command or not.
type Observer interface {
	Plugin
	OnMessage(ctx context.Context, conn whatsapp.Conn, m *message.Message) error
}

// Aliased plugins are also reachable under extra command names.
type Aliased interface {
	Aliases() []string
}

// Described plugins contribute a line to the command menu.
type Described interface {
	Description() string
}

// Info is the menu view of a registered command.
type Info struct {
	Name        string
	Aliases     []string
	Description string
}
