package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/relloyd/etl-engine/actions"
	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
)

var runCfg = struct {
	vars               []string
	output             string
	scenarioDir        string
	parallelism        int
	maxLoopIterations  int
	statsDumpFrequency int
}{}

var runCmd = &cobra.Command{
	Use:   "run <scenario file or name>",
	Short: "Execute a scenario and print the response",
	Long: `Execute a scenario once and print the response.

The scenario is either the path to a YAML or JSON file, or the name of a
scenario found in the scenario directory. Inner scenarios are resolved from
the directory of the outer scenario file. Variables supplied using --var
override the values declared by the scenario.

The exit code is 0 when the scenario succeeds, 1 when it fails, 2 when a
connection is not configured and 3 when no config has been created yet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := parseVariables(runCfg.vars)
		if err != nil {
			return err
		}
		settings := config.NewSettings()
		d, err := settings.LoadDefaults()
		if err != nil {
			return err
		}
		d.LogLevel = logLevel
		d.ScenarioDir = runCfg.scenarioDir
		d.Parallelism = runCfg.parallelism
		d.MaxScriptLoopIterations = runCfg.maxLoopIterations
		d.StatsDumpFrequency = runCfg.statsDumpFrequency
		format := runCfg.output
		if format == "" { // if the output format was not chosen...
			format = actions.OutputJson
			if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
				format = actions.OutputText
			}
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		cmd.SilenceUsage = true
		resp, err := actions.RunScenario(ctx, &actions.RunConfig{
			LogLevel:         logLevel,
			StackDumpOnPanic: stackDumpOnPanic,
			Scenario:         args[0],
			Variables:        vars,
			Settings:         settings,
			Connections:      config.Connections,
			Defaults:         d,
			Output:           os.Stdout,
			OutputFormat:     format,
		})
		if err != nil {
			return err
		}
		if !resp.OK() { // if the scenario failed...
			stop()
			os.Exit(resp.ReturnCode.ExitCode())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SortFlags = false
	switches.addFlag(runCmd, &runCfg.vars, "var", "", false, "")
	switches.addFlag(runCmd, &runCfg.output, "output", "", false, "")
	switches.addFlag(runCmd, &runCfg.scenarioDir, "scenario-dir", ".", false, "")
	switches.addFlag(runCmd, &runCfg.parallelism, "parallelism", strconv.Itoa(constants.DefaultParallelism), false, "")
	switches.addFlag(runCmd, &runCfg.maxLoopIterations, "max-loop-iterations", strconv.Itoa(constants.DefaultMaxScriptLoopIterations), false, "")
	switches.addFlag(runCmd, &runCfg.statsDumpFrequency, "stats-dump-frequency", strconv.Itoa(constants.StatsCaptureFrequencySeconds), false, "")
}
