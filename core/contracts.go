package core

import (
	"context"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

type Params = map[string]any

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func (d Direction) Validate() error {
	switch d {
	case DirectionUp, DirectionDown:
		return nil
	default:
		return newConfigError("core: direction must be up or down", map[string]any{"direction": string(d)})
	}
}

type Channel string

const (
	ChannelRequest  Channel = "request"
	ChannelResponse Channel = "response"
)

func NormalizeChannel(value string) Channel {
	return Channel(strings.TrimSpace(strings.ToLower(value)))
}

func (c Channel) Validate() error {
	switch c {
	case ChannelRequest, ChannelResponse:
		return nil
	default:
		return newBadInputError("core: channel must be request or response", map[string]any{"channel": string(c)})
	}
}

// ChangeContext is handed to every change function by value. It is meant for
// diagnostics and logging.
type ChangeContext struct {
	Label     string
	Target    string
	Version   string
	Direction Direction
}

type ChangeFunc func(ctx context.Context, params Params, cc ChangeContext) (Params, error)

// ChangeConfig is the raw shape authored in a change module. Version is the
// version at which the change takes effect.
type ChangeConfig struct {
	Target      string
	Version     string
	Description string
	Up          ChangeFunc
	Down        ChangeFunc
}

type ChangeModule struct {
	Name    string
	Changes []ChangeConfig
}

type ChangeDefinition struct {
	Target      string
	Version     string
	Module      string
	Description string
	Up          ChangeFunc
	Down        ChangeFunc

	seq int
}

func (d ChangeDefinition) HasDown() bool {
	return d.Down != nil
}

func (d ChangeDefinition) Summary() ChangeSummary {
	return ChangeSummary{
		Target:      d.Target,
		Version:     d.Version,
		Module:      d.Module,
		Description: d.Description,
		Reversible:  d.HasDown(),
	}
}

type ChangeSummary struct {
	Target      string `json:"target"`
	Version     string `json:"version"`
	Module      string `json:"module"`
	Description string `json:"description,omitempty"`
	Reversible  bool   `json:"reversible"`
}

type ApplyChangesRequest struct {
	Target      string
	FromVersion string
	ToVersion   string
	Params      Params
}

type PlanStep struct {
	Target      string    `json:"target"`
	Version     string    `json:"version"`
	Module      string    `json:"module"`
	Direction   Direction `json:"direction"`
	Description string    `json:"description,omitempty"`
}

type TransformationPlan struct {
	Target      string     `json:"target"`
	FromVersion string     `json:"from_version"`
	ToVersion   string     `json:"to_version"`
	Direction   Direction  `json:"direction,omitempty"`
	Steps       []PlanStep `json:"steps"`
}

func (p TransformationPlan) Empty() bool {
	return len(p.Steps) == 0
}

type CatalogDescription struct {
	Versions  []string `json:"versions"`
	Earliest  string   `json:"earliest"`
	Latest    string   `json:"latest"`
	Canonical string   `json:"canonical"`
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
