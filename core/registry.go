package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type ConflictPolicy string

const (
	ConflictPolicyReject  ConflictPolicy = "reject"
	ConflictPolicyReplace ConflictPolicy = "replace"
	ConflictPolicyAppend  ConflictPolicy = "append"
)

func ParseConflictPolicy(value string) (ConflictPolicy, error) {
	switch policy := ConflictPolicy(strings.TrimSpace(strings.ToLower(value))); policy {
	case "":
		return ConflictPolicyReject, nil
	case ConflictPolicyReject, ConflictPolicyReplace, ConflictPolicyAppend:
		return policy, nil
	default:
		return "", newConfigError(
			fmt.Sprintf("core: unsupported conflict policy %q", value),
			map[string]any{"conflict_policy": value},
		)
	}
}

// RegistrySnapshot is an immutable view of the registered changes. A new
// snapshot is built for every registration call.
type RegistrySnapshot struct {
	changes    map[string][]ChangeDefinition
	size       int
	generation uint64
}

func (s *RegistrySnapshot) ChangesFor(target string) []ChangeDefinition {
	if s == nil {
		return []ChangeDefinition{}
	}
	definitions := s.changes[normalizeTarget(target)]
	return append([]ChangeDefinition{}, definitions...)
}

func (s *RegistrySnapshot) Targets() []string {
	if s == nil {
		return []string{}
	}
	targets := make([]string, 0, len(s.changes))
	for target := range s.changes {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

func (s *RegistrySnapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

func (s *RegistrySnapshot) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation
}

// view returns the shared backing slice. Callers must not modify it.
func (s *RegistrySnapshot) view(target string) []ChangeDefinition {
	if s == nil {
		return nil
	}
	return s.changes[target]
}

func (s *RegistrySnapshot) clone() *RegistrySnapshot {
	next := &RegistrySnapshot{
		changes: map[string][]ChangeDefinition{},
	}
	if s == nil {
		return next
	}
	for target, definitions := range s.changes {
		next.changes[target] = definitions
	}
	next.size = s.size
	next.generation = s.generation
	return next
}

type RegistryOption func(*ChangeRegistry)

func WithConflictPolicy(policy ConflictPolicy) RegistryOption {
	return func(r *ChangeRegistry) {
		if policy != "" {
			r.policy = policy
		}
	}
}

type ChangeRegistry struct {
	catalog *VersionCatalog
	policy  ConflictPolicy

	mu      sync.Mutex
	seq     int
	current atomic.Pointer[RegistrySnapshot]
}

func NewChangeRegistry(catalog *VersionCatalog, opts ...RegistryOption) (*ChangeRegistry, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, newConfigError("core: change registry requires a version catalog", nil)
	}
	registry := &ChangeRegistry{
		catalog: catalog,
		policy:  ConflictPolicyReject,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(registry)
	}
	if _, err := ParseConflictPolicy(string(registry.policy)); err != nil {
		return nil, err
	}
	registry.current.Store(&RegistrySnapshot{changes: map[string][]ChangeDefinition{}})
	return registry, nil
}

func (r *ChangeRegistry) Catalog() *VersionCatalog {
	if r == nil {
		return nil
	}
	return r.catalog
}

func (r *ChangeRegistry) ConflictPolicy() ConflictPolicy {
	if r == nil {
		return ""
	}
	return r.policy
}

// Register normalizes the given modules and publishes a new snapshot that
// extends the current one. Either every change of the call is published or
// none is.
func (r *ChangeRegistry) Register(modules ...ChangeModule) error {
	if r == nil {
		return newConfigError("core: change registry is nil", nil)
	}
	definitions, err := r.normalizeModules(modules)
	if err != nil {
		return err
	}
	if len(definitions) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.current.Load().clone()
	touched := map[string][]ChangeDefinition{}
	seq := r.seq
	for _, definition := range definitions {
		sequence, ok := touched[definition.Target]
		if !ok {
			sequence = append([]ChangeDefinition(nil), next.changes[definition.Target]...)
		}
		seq++
		definition.seq = seq
		sequence, added, insertErr := r.insert(sequence, definition)
		if insertErr != nil {
			return insertErr
		}
		touched[definition.Target] = sequence
		next.size += added
	}
	for target, sequence := range touched {
		r.sortSequence(sequence)
		next.changes[target] = sequence
	}
	next.generation++

	r.seq = seq
	r.current.Store(next)
	return nil
}

func (r *ChangeRegistry) ChangesFor(target string) []ChangeDefinition {
	return r.Snapshot().ChangesFor(target)
}

func (r *ChangeRegistry) Snapshot() *RegistrySnapshot {
	if r == nil {
		return nil
	}
	return r.current.Load()
}

func (r *ChangeRegistry) Targets() []string {
	return r.Snapshot().Targets()
}

func (r *ChangeRegistry) Len() int {
	return r.Snapshot().Len()
}

func (r *ChangeRegistry) insert(sequence []ChangeDefinition, definition ChangeDefinition) ([]ChangeDefinition, int, error) {
	for index, existing := range sequence {
		if existing.Version != definition.Version {
			continue
		}
		switch r.policy {
		case ConflictPolicyAppend:
			return append(sequence, definition), 1, nil
		case ConflictPolicyReplace:
			definition.seq = existing.seq
			sequence[index] = definition
			return sequence, 0, nil
		default:
			return nil, 0, newConfigError(
				fmt.Sprintf(
					"core: change for target %q at version %q registered by module %q conflicts with module %q",
					definition.Target,
					definition.Version,
					definition.Module,
					existing.Module,
				),
				map[string]any{
					"target":          definition.Target,
					"version":         definition.Version,
					"module":          definition.Module,
					"existing_module": existing.Module,
				},
			)
		}
	}
	return append(sequence, definition), 1, nil
}

func (r *ChangeRegistry) sortSequence(sequence []ChangeDefinition) {
	sort.SliceStable(sequence, func(i, j int) bool {
		left, _ := r.catalog.Index(sequence[i].Version)
		right, _ := r.catalog.Index(sequence[j].Version)
		if left != right {
			return left < right
		}
		return sequence[i].seq < sequence[j].seq
	})
}

func (r *ChangeRegistry) normalizeModules(modules []ChangeModule) ([]ChangeDefinition, error) {
	definitions := make([]ChangeDefinition, 0, len(modules))
	for moduleIndex, module := range modules {
		name := strings.TrimSpace(module.Name)
		if name == "" {
			name = fmt.Sprintf("module_%d", moduleIndex)
		}
		for changeIndex, change := range module.Changes {
			definition, err := r.normalizeChange(name, changeIndex, change)
			if err != nil {
				return nil, err
			}
			definitions = append(definitions, definition)
		}
	}
	return definitions, nil
}

func (r *ChangeRegistry) normalizeChange(module string, index int, change ChangeConfig) (ChangeDefinition, error) {
	target := normalizeTarget(change.Target)
	version := normalizeVersion(change.Version)
	metadata := map[string]any{
		"module":  module,
		"index":   index,
		"target":  target,
		"version": version,
	}
	if target == "" {
		return ChangeDefinition{}, newConfigError(
			fmt.Sprintf("core: change %d in module %q requires a target", index, module),
			metadata,
		)
	}
	if version == "" {
		return ChangeDefinition{}, newConfigError(
			fmt.Sprintf("core: change for target %q in module %q requires a version", target, module),
			metadata,
		)
	}
	if !r.catalog.Contains(version) {
		return ChangeDefinition{}, newConfigError(
			fmt.Sprintf("core: change for target %q in module %q uses version %q outside the catalog", target, module, version),
			metadata,
		)
	}
	if change.Up == nil {
		return ChangeDefinition{}, newConfigError(
			fmt.Sprintf("core: change for target %q at version %q in module %q requires an up function", target, version, module),
			metadata,
		)
	}
	return ChangeDefinition{
		Target:      target,
		Version:     version,
		Module:      module,
		Description: strings.TrimSpace(change.Description),
		Up:          change.Up,
		Down:        change.Down,
	}, nil
}

func normalizeTarget(target string) string {
	return strings.TrimSpace(target)
}
