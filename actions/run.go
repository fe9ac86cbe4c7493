package actions

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/engine"
	"github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

type RunConfig struct {
	LogLevel         string `errorTxt:"log level" mandatory:"yes"`
	StackDumpOnPanic bool
	Scenario         string `errorTxt:"scenario file or name" mandatory:"yes"`
	Variables        map[string]string
	Settings         *config.Settings
	Connections      shared.ConnectionGetter `errorTxt:"connections" mandatory:"yes"`
	Defaults         config.Defaults
	Output           io.Writer
	OutputFormat     string // one of OutputText, OutputJson or OutputYaml.
	// Executor replaces the engine, for testing.
	Executor ScenarioExecutor
}

// RunScenario loads the scenario named in cfg, executes it and writes the Response to cfg.Output.
// Cancelling ctx interrupts the execution, which then rolls back.
// An error is returned only when the scenario could not be started; execution failures are in the Response.
func RunScenario(ctx context.Context, cfg *RunConfig) (*engine.Response, error) {
	if cfg == nil {
		return nil, errors.New("nil pointer to run config supplied")
	}
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	log := logger.NewLogger(constants.ServiceName, cfg.LogLevel, cfg.StackDumpOnPanic)
	s, repo, err := loadScenario(cfg.Scenario, cfg.Defaults.ScenarioDir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load scenario %v", cfg.Scenario)
	}
	exec := cfg.Executor
	if exec == nil {
		exec = engine.NewEtlProcess(engine.Config{
			Log:         log,
			Settings:    cfg.Settings,
			Connections: cfg.Connections,
			Repository:  repo,
			Defaults:    cfg.Defaults,
		})
	}
	resp := exec.Execute(ctx, &engine.Request{Scenario: s, ScenarioName: s.Name, Variables: cfg.Variables})
	if cfg.Output != nil {
		if err := writeResponse(cfg.Output, resp, cfg.OutputFormat); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// newEtlProcess builds the engine used by the web server.
func newEtlProcess(log logger.Logger, settings *config.Settings, conns shared.ConnectionGetter, repo scenario.Repository, d config.Defaults) *engine.EtlProcess {
	return engine.NewEtlProcess(engine.Config{
		Log:         log,
		Settings:    settings,
		Connections: conns,
		Repository:  repo,
		Defaults:    d,
	})
}
