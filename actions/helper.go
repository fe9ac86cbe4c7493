package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/relloyd/etl-engine/engine"
	"github.com/relloyd/etl-engine/scenario"
)

// Output formats for an execution Response.
const (
	OutputText = "text"
	OutputJson = "json"
	OutputYaml = "yaml"
)

// writeResponse renders r to w in the requested format.
func writeResponse(w io.Writer, r *engine.Response, format string) error {
	var data []byte
	var err error
	switch strings.ToLower(format) {
	case OutputJson:
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	case OutputYaml:
		data, err = yaml.Marshal(r)
	case OutputText, "":
		data = []byte(responseText(r))
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// responseText is the terminal-friendly rendering of a Response.
func responseText(r *engine.Response) string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("Execution:   %v\n", r.ExecutionID))
	s.WriteString(fmt.Sprintf("Scenario:    %v\n", r.Scenario))
	s.WriteString(fmt.Sprintf("Return code: %v\n", r.ReturnCode))
	s.WriteString(fmt.Sprintf("Elapsed:     %.3fs\n", r.ElapsedSeconds))
	if r.Error != "" {
		s.WriteString(fmt.Sprintf("Error:       %v\n", r.Error))
		if r.FileName != "" {
			s.WriteString(fmt.Sprintf("File:        %v\n", r.FileName))
		}
		if r.LastCode != "" {
			s.WriteString(fmt.Sprintf("Last code (line %v):\n%v\n", r.LastLine, r.LastCode))
		}
	}
	for _, st := range r.Stats { // for each block...
		s.WriteString(st.String())
		s.WriteString("\n")
	}
	if len(r.Variables) > 0 {
		keys := make([]string, 0, len(r.Variables))
		for k := range r.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.WriteString("Variables:\n")
		for _, k := range keys {
			s.WriteString(fmt.Sprintf("  %v = %v\n", k, r.Variables[k]))
		}
	}
	return s.String()
}

// loadScenario resolves s as a scenario file when one exists, else as a name in the directory dir.
// The returned repository resolves inner scenarios from the directory holding the outer one.
func loadScenario(s string, dir string) (*scenario.Scenario, scenario.Repository, error) {
	if fi, err := os.Stat(s); err == nil && !fi.IsDir() { // if s is a file...
		sc, err := scenario.ParseFile(s)
		if err != nil {
			return nil, nil, err
		}
		return sc, &scenario.FileRepository{Dir: filepath.Dir(s)}, nil
	}
	repo := &scenario.FileRepository{Dir: dir}
	sc, err := repo.Load(s)
	if err != nil {
		return nil, nil, err
	}
	return sc, repo, nil
}
