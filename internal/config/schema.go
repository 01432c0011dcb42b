package config

import (
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/never2/internal/params"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
)

// Config is the top-level YAML structure.
type Config struct {
	Version string     `yaml:"version" validate:"required,oneof=v1"`
	Server  ServerConf `yaml:"server"`
	Log     LogConf    `yaml:"log"`
	Canvas  CanvasConf `yaml:"canvas"`
	Editor  EditorConf `yaml:"editor"`
	Jobs    JobsConf   `yaml:"jobs"`
}

// ServerConf configures the HTTP listener.
type ServerConf struct {
	Addr           string `yaml:"addr" validate:"required"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms" validate:"gte=0"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms" validate:"gte=0"`
}

// LogConf holds the log level (debug, info, warn or error) and the output
// format. "auto" writes text to a terminal and JSON otherwise.
type LogConf struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
}

// SlogLevel parses the level, falling back to info.
func (c LogConf) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// CanvasConf places the permanent blocks.
type CanvasConf struct {
	InputX   float64 `yaml:"input_x"`
	InputY   float64 `yaml:"input_y"`
	OutputX  float64 `yaml:"output_x"`
	OutputY  float64 `yaml:"output_y"`
	BlockGap float64 `yaml:"block_gap" validate:"gte=0"`
}

// EditorConf holds the scene defaults.
type EditorConf struct {
	CatalogPath      string `yaml:"catalog_path"`
	InputID          string `yaml:"input_id" validate:"required"`
	OutputID         string `yaml:"output_id" validate:"required"`
	InputDim         string `yaml:"input_dim" validate:"required"`
	CommandTimeoutMs int    `yaml:"command_timeout_ms" validate:"gte=0"`
	QueueDepth       int    `yaml:"queue_depth" validate:"gte=0"`
}

// JobsConf configures verification and training. Strategies are keyed by the
// name clients submit jobs with.
type JobsConf struct {
	TimeoutMs int                 `yaml:"timeout_ms" validate:"gte=0"`
	Verifiers map[string]Strategy `yaml:"verifiers" validate:"dive"`
	Trainers  map[string]Strategy `yaml:"trainers" validate:"dive"`
}

// Strategy is an external program run for a job.
type Strategy struct {
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`
}

// SceneConfig converts the canvas and editor sections.
func (c *Config) SceneConfig() (scene.Config, error) {
	dim, err := params.TextToShape(c.Editor.InputDim)
	if err != nil {
		return scene.Config{}, err
	}
	return scene.Config{
		Canvas: scene.Canvas{
			Input:  scene.Point{X: c.Canvas.InputX, Y: c.Canvas.InputY},
			Output: scene.Point{X: c.Canvas.OutputX, Y: c.Canvas.OutputY},
			Gap:    c.Canvas.BlockGap,
		},
		InputID:  c.Editor.InputID,
		OutputID: c.Editor.OutputID,
		InputDim: dim,
	}, nil
}

// CommandTimeout returns the editor command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Editor.CommandTimeoutMs) * time.Millisecond
}

// JobTimeout returns the job timeout; zero means none.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.TimeoutMs) * time.Millisecond
}
