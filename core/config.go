package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultServiceName   = "apiversions"
	DefaultVersionHeader = "X-Api-Version"
)

type TransformConfig struct {
	TimeoutMS int `koanf:"timeout_ms" mapstructure:"timeout_ms"`
}

type RoutingConfig struct {
	VersionHeader string `koanf:"version_header" mapstructure:"version_header"`
}

type Config struct {
	ServiceName      string          `koanf:"service_name" mapstructure:"service_name"`
	Versions         []string        `koanf:"versions" mapstructure:"versions"`
	CanonicalVersion string          `koanf:"canonical_version" mapstructure:"canonical_version"`
	ConflictPolicy   string          `koanf:"conflict_policy" mapstructure:"conflict_policy"`
	Transform        TransformConfig `koanf:"transform" mapstructure:"transform"`
	Routing          RoutingConfig   `koanf:"routing" mapstructure:"routing"`
}

// DefaultConfig carries no versions. Callers supply the catalog, usually
// through the root package defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    DefaultServiceName,
		ConflictPolicy: string(ConflictPolicyReject),
		Routing: RoutingConfig{
			VersionHeader: DefaultVersionHeader,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return newConfigError("core: service_name is required", map[string]any{"field": "service_name"})
	}
	catalog, err := NewVersionCatalog(c.Versions...)
	if err != nil {
		return err
	}
	if canonical := normalizeVersion(c.CanonicalVersion); canonical != "" && !catalog.Contains(canonical) {
		return newConfigError(
			fmt.Sprintf("core: canonical_version %q is not in versions", canonical),
			map[string]any{"field": "canonical_version", "version": canonical},
		)
	}
	if _, err := ParseConflictPolicy(c.ConflictPolicy); err != nil {
		return err
	}
	if c.Transform.TimeoutMS < 0 {
		return newConfigError("core: transform.timeout_ms must be zero or positive", map[string]any{
			"field":      "transform.timeout_ms",
			"timeout_ms": c.Transform.TimeoutMS,
		})
	}
	if strings.TrimSpace(c.Routing.VersionHeader) == "" {
		return newConfigError("core: routing.version_header is required", map[string]any{"field": "routing.version_header"})
	}
	return nil
}

func (c Config) TransformTimeout() time.Duration {
	if c.Transform.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.Transform.TimeoutMS) * time.Millisecond
}
