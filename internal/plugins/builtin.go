// Package plugins holds the commands compiled into the bot.
package plugins

import (
	"context"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	"whatsapp-bot/internal/plugin"
	"whatsapp-bot/internal/session"
)

// PrefixController reads and changes the active command prefix.
type PrefixController interface {
	session.View
	SetPrefix(ctx context.Context, prefix string) error
}

// CommandLister is the registry view the menu needs.
type CommandLister interface {
	Commands() []plugin.Info
}

type Deps struct {
	Session  PrefixController
	Registry CommandLister
	Owners   []string
	Now      func() time.Time
}

// Builtin returns every built-in plugin not named in disabled.
func Builtin(deps Deps, disabled []string) []plugin.Plugin {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	all := []plugin.Plugin{
		&Ping{now: deps.Now},
		&Menu{session: deps.Session, registry: deps.Registry},
		&SetPrefix{session: deps.Session, owners: deps.Owners},
		&TagAll{owners: deps.Owners},
		&ViewOnce{},
	}

	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		off[strings.ToLower(name)] = true
	}
	out := make([]plugin.Plugin, 0, len(all))
	for _, p := range all {
		if off[p.Name()] {
			zap.L().Info("plugin disabled by configuration", zap.String("plugin", p.Name()))
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseOwners keeps the owner entries that are valid JIDs.
func parseOwners(owners []string) []types.JID {
	out := make([]types.JID, 0, len(owners))
	for _, o := range owners {
		jid, err := types.ParseJID(o)
		if err != nil || jid.User == "" {
			zap.L().Warn("ignoring malformed owner", zap.String("owner", o))
			continue
		}
		out = append(out, jid)
	}
	return out
}
