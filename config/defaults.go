package config

import (
	"errors"
	"strconv"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/helper"
)

// Keys of the defaults held in config.yaml.
const (
	KeyLogLevel              = "log-level"
	KeyScenarioDir           = "scenario-dir"
	KeyParallelism           = "parallelism"
	KeyStatsDumpFrequency    = "stats-dump-frequency"
	KeyMaxScriptLoopIterates = "max-loop-iterations"
)

// DefaultKeys lists the keys that may be set with "config defaults add".
var DefaultKeys = []string{
	KeyLogLevel,
	KeyScenarioDir,
	KeyParallelism,
	KeyStatsDumpFrequency,
	KeyMaxScriptLoopIterates,
}

// Defaults are engine settings applied when a scenario or command does not say otherwise.
type Defaults struct {
	LogLevel                string
	ScenarioDir             string
	Parallelism             int // degree of parallelism used when a scenario does not set one.
	StatsDumpFrequency      int // seconds
	MaxScriptLoopIterations int
}

// Settings couples the config files used by an engine run.
type Settings struct {
	Main        *File
	Connections *File
}

// NewSettings returns Settings using the files in the user's config dir.
func NewSettings() *Settings {
	return &Settings{Main: Main, Connections: Connections}
}

// NewSettingsWithDir returns Settings using files in dir.
func NewSettingsWithDir(dir string) *Settings {
	return &Settings{
		Main:        NewConfigFileWithDir(dir, MainFileFullName),
		Connections: NewConfigFileWithDir(dir, ConnectionsConfigFileFullName),
	}
}

// Initialized returns true when at least one of the config files has been written.
func (s *Settings) Initialized() bool {
	return s != nil && (s.Main.Exists() || s.Connections.Exists())
}

// LoadDefaults reads config.yaml and applies ETL_<KEY> environment overrides.
func (s *Settings) LoadDefaults() (Defaults, error) {
	d := Defaults{
		LogLevel:                "info",
		ScenarioDir:             ".",
		Parallelism:             constants.DefaultParallelism,
		StatsDumpFrequency:      constants.StatsCaptureFrequencySeconds,
		MaxScriptLoopIterations: constants.DefaultMaxScriptLoopIterations,
	}
	str := func(key string, v *string) error {
		var x string
		if err := s.Main.Get(key, &x); err != nil && !errors.As(err, &KeyNotFoundError{}) {
			return err
		}
		if x == "" {
			x = *v
		}
		*v = helper.ReadValueFromEnvWithDefault(helper.GetEnvVarName(key), x)
		return nil
	}
	num := func(key string, v *int) error {
		x := strconv.Itoa(*v)
		if err := str(key, &x); err != nil {
			return err
		}
		i, err := strconv.Atoi(x)
		if err != nil {
			return err
		}
		*v = i
		return nil
	}
	if err := str(KeyLogLevel, &d.LogLevel); err != nil {
		return d, err
	}
	if err := str(KeyScenarioDir, &d.ScenarioDir); err != nil {
		return d, err
	}
	if err := num(KeyParallelism, &d.Parallelism); err != nil {
		return d, err
	}
	if err := num(KeyStatsDumpFrequency, &d.StatsDumpFrequency); err != nil {
		return d, err
	}
	if err := num(KeyMaxScriptLoopIterates, &d.MaxScriptLoopIterations); err != nil {
		return d, err
	}
	return d, nil
}

// IsDefaultKey returns true if key is one of DefaultKeys.
func IsDefaultKey(key string) bool {
	for _, k := range DefaultKeys {
		if k == key {
			return true
		}
	}
	return false
}
