package apiversions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apiversionscommand "github.com/goliatone/go-apiversions/command"
	"github.com/goliatone/go-apiversions/core"
)

// ChangePack is a named bundle of change modules contributed by a plugin for
// one transformer channel.
type ChangePack struct {
	Name    string
	Channel core.Channel
	Modules []core.ChangeModule
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	changePacks map[string]ChangePack
	bundles     map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		changePacks: map[string]ChangePack{},
		bundles:     map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterChangePack(pack ChangePack) error {
	if h == nil {
		return fmt.Errorf("apiversions: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("apiversions: change pack name is required")
	}
	channel := core.NormalizeChannel(string(pack.Channel))
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("apiversions: change pack %q: %w", name, err)
	}
	if len(pack.Modules) == 0 {
		return fmt.Errorf("apiversions: change pack %q has no modules", name)
	}

	normalized := ChangePack{
		Name:    name,
		Channel: channel,
		Modules: append([]core.ChangeModule(nil), pack.Modules...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.changePacks[name]; exists {
		return fmt.Errorf("apiversions: change pack %q already registered", name)
	}
	h.changePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("apiversions: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("apiversions: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("apiversions: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("apiversions: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// Apply registers every change pack in name order. Registration stops at the
// first failing pack; packs applied before it stay registered.
func (h *ExtensionHooks) Apply(registrar apiversionscommand.ChangeRegistrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("apiversions: change registrar is required")
	}
	for _, pack := range h.ChangePacks() {
		if err := registrar.RegisterChanges(pack.Channel, pack.Modules...); err != nil {
			return fmt.Errorf("apiversions: apply change pack %q: %w", pack.Name, err)
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("apiversions: command/query service is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.bundles)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ChangePacks() []ChangePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := sortedKeys(h.changePacks)
	out := make([]ChangePack, 0, len(names))
	for _, name := range names {
		pack := h.changePacks[name]
		out = append(out, ChangePack{
			Name:    pack.Name,
			Channel: pack.Channel,
			Modules: append([]core.ChangeModule(nil), pack.Modules...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
