package plugin

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	errNoName       = errors.New("plugin has no name")
	errNoCapability = errors.New("plugin implements neither Command nor Observer")
)

// Registry indexes commands by lowercased name and alias and keeps observers
// in registration order.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]int // key -> index into ordered
	ordered   []Command
	observers []Observer
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]int)}
}

// Register validates and adds plugins, returning how many were accepted.
// Invalid plugins are logged and skipped. On a key collision the plugin
// registered last wins.
func (r *Registry) Register(plugins ...Plugin) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := 0
	for _, p := range plugins {
		if err := Validate(p); err != nil {
			name := ""
			if p != nil {
				name = p.Name()
			}
			zap.L().Warn("skipping invalid plugin", zap.String("plugin", name), zap.Error(err))
			continue
		}

		if cmd, ok := p.(Command); ok {
			r.ordered = append(r.ordered, cmd)
			idx := len(r.ordered) - 1
			r.index(strings.ToLower(cmd.Name()), idx)
			if a, ok := p.(Aliased); ok {
				for _, alias := range a.Aliases() {
					if alias = strings.ToLower(strings.TrimSpace(alias)); alias != "" {
						r.index(alias, idx)
					}
				}
			}
		}
		if obs, ok := p.(Observer); ok {
			r.observers = append(r.observers, obs)
		}
		accepted++
		zap.L().Debug("plugin registered", zap.String("plugin", p.Name()))
	}
	return accepted
}

func (r *Registry) index(key string, idx int) {
	if prev, ok := r.commands[key]; ok && prev != idx {
		zap.L().Warn("command key overwritten",
			zap.String("key", key),
			zap.String("previous", r.ordered[prev].Name()),
			zap.String("plugin", r.ordered[idx].Name()))
	}
	r.commands[key] = idx
}

// Lookup finds the command registered under key (case-insensitive).
func (r *Registry) Lookup(key string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.commands[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	return r.ordered[idx], true
}

func (r *Registry) Observers() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Observer(nil), r.observers...)
}

// Commands lists the commands still reachable under their own name, in
// registration order.
func (r *Registry) Commands() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.ordered))
	for i, cmd := range r.ordered {
		if idx, ok := r.commands[strings.ToLower(cmd.Name())]; !ok || idx != i {
			continue
		}
		info := Info{Name: strings.ToLower(cmd.Name())}
		if a, ok := cmd.(Aliased); ok {
			info.Aliases = a.Aliases()
		}
		if d, ok := cmd.(Described); ok {
			info.Description = d.Description()
		}
		out = append(out, info)
	}
	return out
}

// Validate reports why p cannot be registered, or nil.
func Validate(p Plugin) error {
	if p == nil {
		return errNoName
	}
	if strings.TrimSpace(p.Name()) == "" {
		return errNoName
	}
	_, isCmd := p.(Command)
	_, isObs := p.(Observer)
	if !isCmd && !isObs {
		return errNoCapability
	}
	return nil
}
