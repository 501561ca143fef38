package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-apiversions/core"
	"github.com/spf13/viper"
)

const envPrefix = "APIVERSIONS"

// engineKeys are handed to the engine config provider; the rest of the file
// configures the server process.
var engineKeys = []string{
	"service_name",
	"versions",
	"canonical_version",
	"conflict_policy",
	"transform.timeout_ms",
	"routing.version_header",
}

type serverSettings struct {
	Addr           string
	AllowedOrigins []string
	DBDriver       string
	DBDSN          string
	MaxAttempts    int
	CoalesceWindow time.Duration
	LogLevel       string
}

// viperLoader reads config.yaml plus APIVERSIONS_* environment overrides.
type viperLoader struct {
	v     *viper.Viper
	found bool
}

func newViperLoader(configPath string) (*viperLoader, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:apiversions?mode=memory&cache=shared")
	v.SetDefault("webhooks.max_attempts", 5)
	v.SetDefault("webhooks.coalesce_window_ms", 0)
	v.SetDefault("log.level", "info")

	for _, key := range engineKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	loader := &viperLoader{v: v}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	} else {
		loader.found = true
	}
	return loader, nil
}

// LoadRaw returns only the engine keys that are set.
func (l *viperLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	for _, key := range engineKeys {
		if !l.v.IsSet(key) {
			continue
		}
		value := l.v.Get(key)
		if key == "versions" {
			value = splitList(value)
		}
		setNested(raw, key, value)
	}
	return raw, nil
}

func (l *viperLoader) Settings() serverSettings {
	return serverSettings{
		Addr:           l.v.GetString("server.addr"),
		AllowedOrigins: splitList(l.v.Get("server.allowed_origins")),
		DBDriver:       l.v.GetString("database.driver"),
		DBDSN:          l.v.GetString("database.dsn"),
		MaxAttempts:    l.v.GetInt("webhooks.max_attempts"),
		CoalesceWindow: time.Duration(l.v.GetInt("webhooks.coalesce_window_ms")) * time.Millisecond,
		LogLevel:       l.v.GetString("log.level"),
	}
}

// splitList accepts YAML lists and comma separated env values.
func splitList(value any) []string {
	var items []string
	switch typed := value.(type) {
	case string:
		items = strings.Split(typed, ",")
	case []string:
		items = typed
	case []any:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				items = append(items, text)
			}
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func setNested(target map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

var _ core.RawConfigLoader = (*viperLoader)(nil)
