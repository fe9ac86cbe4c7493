package cmd

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/helper"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug | trace\""},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Format of the execution response: \"text | json | yaml\". When omitted, text is\n" +
			"printed to terminals and JSON otherwise"},
	"var": cliFlag{name: "var", shortHand: "v",
		desc: "Scenario variable of the form <name>=<value>, overriding the value declared by the\n" +
			"scenario (repeat the flag for more variables)"},
	"scenario-dir": cliFlag{name: "scenario-dir", shortHand: "d",
		desc: "Directory holding scenario files, used to resolve scenarios by name"},
	"parallelism": cliFlag{name: "parallelism", shortHand: "P",
		desc: "Degree of parallelism used when a scenario does not set one"},
	"max-loop-iterations": cliFlag{name: "max-loop-iterations", shortHand: "i",
		desc: "Maximum number of iterations of a script-driven loop"},
	"stats-dump-frequency": cliFlag{name: "stats", shortHand: "L",
		desc: "Number of seconds between dumping block statistics (use 0 to disable)"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name referred to by scenarios"},
	"dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "Connect string of the form <type>://<user>:<password>@<host>/<database>[?<params>]"},
	"force-connection": cliFlag{name: "force", shortHand: "f",
		desc: "Allow overwrite of existing connections"},
}

// addFlag adds a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The flag is looked up in map, cliFlags, by name, which is also the config key.
// The default value is taken from environment variable ETL_<NAME> if set, else from config if it exists,
// else the supplied defaultValue is applied.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, config.Main.Get) // get the cliFlag details, with defaults taken from config or the supplied defaultValue
	desc := sw.desc + desc2                                 // create the full flag description for use below
	// Apply the flag.
	switch p := targetVar.(type) {
	case *string:
		c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
		// Signal that the flag was set so defaults take effect.
		if sw.val != "" { // if there is a value via config or default...
			mustSetFlag(c.Flags(), sw.name, sw.val)
		}
	case *bool:
		defaultBool := helper.GetTrueFalseStringAsBool(sw.val)
		c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
	case *int:
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
	case *[]string:
		c.Flags().StringArrayVarP(p, sw.name, sw.shortHand, nil, desc)
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && sw.val == "" { // if the flag is required and there is no default...
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment or else reads the Main config file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if err := helper.ReadValueFromEnv(helper.GetEnvVarName(name), &s.val); err == nil { // if the environment has a value...
		return s
	}
	if err := fnGetConfig(name, &s.val); err != nil || s.val == "" { // if there was no key found...
		// Apply the default.
		s.val = defaultValue
	}
	return s
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// parseVariables converts <name>=<value> pairs into a map.
func parseVariables(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		i := strings.Index(p, "=")
		if i <= 0 { // if there is no name...
			return nil, fmt.Errorf("variable %q must be of the form <name>=<value>", p)
		}
		m[strings.TrimSpace(p[:i])] = p[i+1:]
	}
	return m, nil
}
