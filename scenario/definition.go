package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/relloyd/etl-engine/constants"
)

// The *Def types are the YAML/JSON shape of a scenario definition file.

type ExceptionDef struct {
	OnException       string   `json:"onException"`
	Masks             []string `json:"masks"`
	IgnoreParseErrors bool     `json:"ignoreParseErrors"`
	Savepoint         bool     `json:"savepoint"`
}

type VariableDef struct {
	Name              string `json:"name"`
	Value             string `json:"value"`
	Source            string `json:"source"`
	Code              string `json:"code"`
	Connection        string `json:"connection"`
	Global            bool   `json:"global"`
	Hidden            bool   `json:"hidden"`
	Linked            string `json:"linked"`
	TolerateException bool   `json:"tolerateException"`
}

type TaskDef struct {
	Name           string            `json:"name"`
	Class          string            `json:"class"`
	Connection     string            `json:"connection"`
	Driver         string            `json:"driver"`
	Code           json.RawMessage   `json:"code"` // SQL text or a script object.
	Binds          []string          `json:"binds"`
	Scope          []string          `json:"scope"`
	CommitWhenDone bool              `json:"commitWhenDone"`
	Variables      []VariableDef     `json:"variables"`
	Params         map[string]string `json:"params"`
}

type BlockDef struct {
	Name       string          `json:"name"`
	Connection string          `json:"connection"`
	Driver     string          `json:"driver"`
	Disabled   bool            `json:"disabled"`
	Parallel   bool            `json:"parallel"`
	Empty      bool            `json:"empty"`
	Encoded    bool            `json:"encoded"`
	Variables  []VariableDef   `json:"variables"`
	Tasks      []TaskDef       `json:"tasks"`
	Exception  *ExceptionDef   `json:"exception"`
	Condition  json.RawMessage `json:"condition"`
}

type SourceDef struct {
	BlockDef
	SQL          string            `json:"sql"`
	Binds        []string          `json:"binds"`
	KeyName      string            `json:"keyName"`
	KeyFields    []string          `json:"keyFields"`
	Independent  bool              `json:"independent"`
	Mandatory    bool              `json:"mandatory"`
	Linked       string            `json:"linked"`
	Reader       string            `json:"reader"`
	ReaderParams map[string]string `json:"readerParams"`
	Writer       string            `json:"writer"`
	WriterParams map[string]string `json:"writerParams"`
}

type CursorTableDef struct {
	Name         string `json:"name"`
	SQL          string `json:"sql"`
	Temp         bool   `json:"temp"`
	KeepOnFinish bool   `json:"keepOnFinish"`
}

type DestinationDef struct {
	BlockDef
	Object         string            `json:"object"`
	Type           string            `json:"type"`
	LoadAction     string            `json:"loadAction"`
	LoadKey        []string          `json:"loadKey"`
	Columns        []string          `json:"columns"`
	Scope          string            `json:"scope"`
	CursorTable    *CursorTableDef   `json:"cursorTable"`
	Stream         bool              `json:"stream"`
	Then           string            `json:"then"`
	Else           string            `json:"else"`
	After          string            `json:"after"`
	MetadataPolicy string            `json:"metadataPolicy"`
	Source         *string           `json:"source"` // nil binds to the source of the same name; "" binds to nothing.
	Cache          string            `json:"cache"`
	Writer         string            `json:"writer"`
	WriterParams   map[string]string `json:"writerParams"`
}

type LoopDef struct {
	Code       json.RawMessage `json:"code"`
	Language   string          `json:"language"`
	Count      int             `json:"count"`
	Variable   string          `json:"variable"`
	Pattern    string          `json:"pattern"`
	Field      string          `json:"field"`
	Connection string          `json:"connection"`
}

type ParallelDef struct {
	Sources        int  `json:"sources"`
	Destinations   int  `json:"destinations"`
	InnerScenarios int  `json:"innerScenarios"`
	Connections    bool `json:"connections"`
}

type Definition struct {
	Name          string           `json:"name"`
	Driver        string           `json:"driver"`
	CodeGen       string           `json:"codegen"`
	FunctionClass string           `json:"functionClass"`
	Action        string           `json:"action"`
	Parallel      ParallelDef      `json:"parallel"`
	IsParallel    bool             `json:"runInParallel"`
	Loop          *LoopDef         `json:"loop"`
	Condition     json.RawMessage  `json:"condition"`
	Variables     []VariableDef    `json:"variables"`
	Sources       []SourceDef      `json:"sources"`
	Destinations  []DestinationDef `json:"destinations"`
	Execute       []Definition     `json:"execute"`
	OnSave        string           `json:"onSave"`
	OnPersist     string           `json:"onPersist"`
	OnPopulate    string           `json:"onPopulate"`
}

// Parse reads a YAML or JSON scenario definition and builds a ready Scenario.
func Parse(b []byte, scriptName string) (*Scenario, error) {
	def := Definition{}
	if err := yaml.Unmarshal(b, &def); err != nil {
		return nil, errors.Wrapf(err, "unable to parse scenario definition %v", scriptName)
	}
	return def.Build(scriptName)
}

// ParseFile reads a scenario definition from a file.
func ParseFile(fileName string) (*Scenario, error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	return Parse(b, filepath.Base(fileName))
}

// Build converts the definition into a Scenario.
// Inner scenarios with only a name stay structure-only and are resolved at run time.
func (d *Definition) Build(scriptName string) (*Scenario, error) {
	s := New(d.Name)
	s.ScriptName = scriptName
	s.DriverName = d.Driver
	s.CodeGenName = d.CodeGen
	s.FunctionClass = d.FunctionClass
	s.IsParallel = d.IsParallel
	s.Parallel = Parallelism{
		Sources:        d.Parallel.Sources,
		Destinations:   d.Parallel.Destinations,
		InnerScenarios: d.Parallel.InnerScenarios,
		Connections:    d.Parallel.Connections,
	}
	var err error
	if s.Action, err = ParseAction(d.Action); err != nil {
		return nil, err
	}
	if s.OnSave, err = ParsePolicy(d.OnSave); err != nil {
		return nil, err
	}
	if s.OnPersist, err = ParsePolicy(d.OnPersist); err != nil {
		return nil, err
	}
	if s.OnPopulate, err = ParsePolicy(d.OnPopulate); err != nil {
		return nil, err
	}
	if s.Condition, err = buildCondition(d.Condition); err != nil {
		return nil, err
	}
	if d.Loop != nil {
		code, lang := rawCode(d.Loop.Code)
		if d.Loop.Language != "" {
			lang = d.Loop.Language
		}
		s.Loop = &Loop{
			Code:           code,
			Language:       lang,
			Count:          d.Loop.Count,
			VariableName:   d.Loop.Variable,
			Pattern:        d.Loop.Pattern,
			Field:          d.Loop.Field,
			ConnectionName: d.Loop.Connection,
		}
	}
	if s.Variables, err = buildVariables(d.Variables); err != nil {
		return nil, err
	}
	for _, sd := range d.Sources {
		src := &Source{
			SQL:              sd.SQL,
			Binds:            sd.Binds,
			KeyName:          sd.KeyName,
			KeyFields:        sd.KeyFields,
			Independent:      sd.Independent,
			Mandatory:        sd.Mandatory,
			LinkedSourceName: sd.Linked,
			Reader:           sd.Reader,
			ReaderParams:     sd.ReaderParams,
			Writer:           sd.Writer,
			WriterParams:     sd.WriterParams,
		}
		if err = buildBlock(&src.BlockCore, &sd.BlockDef); err != nil {
			return nil, errors.Wrapf(err, "source %q", sd.Name)
		}
		s.AddSource(src)
	}
	for _, dd := range d.Destinations {
		dst := &Destination{
			ObjectName:     dd.Object,
			LoadKey:        dd.LoadKey,
			Columns:        dd.Columns,
			Stream:         dd.Stream,
			Then:           dd.Then,
			Else:           dd.Else,
			After:          dd.After,
			MetadataPolicy: dd.MetadataPolicy,
			CacheName:      dd.Cache,
			Writer:         dd.Writer,
			WriterParams:   dd.WriterParams,
		}
		if err = buildBlock(&dst.BlockCore, &dd.BlockDef); err != nil {
			return nil, errors.Wrapf(err, "destination %q", dd.Name)
		}
		if dst.Type, err = ParseDestinationType(dd.Type); err != nil {
			return nil, err
		}
		if dst.LoadAction, err = ParseLoadAction(dd.LoadAction); err != nil {
			return nil, err
		}
		if dst.Scope, err = ParseDestinationScope(dd.Scope); err != nil {
			return nil, err
		}
		if dd.CursorTable != nil {
			dst.CursorTable = &CursorTable{
				Name:         dd.CursorTable.Name,
				SQL:          dd.CursorTable.SQL,
				Temp:         dd.CursorTable.Temp,
				KeepOnFinish: dd.CursorTable.KeepOnFinish,
			}
		}
		if dd.Source != nil { // if the binding is explicit...
			dst.SourceName = *dd.Source
		} else if _, ok := s.GetSource(dd.Name); ok { // else bind symmetrically by name...
			dst.SourceName = dd.Name
		}
		s.AddDestination(dst)
	}
	for idx := range d.Execute {
		inner := &d.Execute[idx]
		if inner.isReference() { // if only the name was given...
			ref := New(inner.Name)
			ref.IsParallel = inner.IsParallel
			if ref.Variables, err = buildVariables(inner.Variables); err != nil {
				return nil, err
			}
			s.Execute = append(s.Execute, ref)
			continue
		}
		x, err := inner.Build(scriptName)
		if err != nil {
			return nil, errors.Wrapf(err, "inner scenario %q", inner.Name)
		}
		if x.DriverName == "" { // inherit the default driver.
			x.DriverName = s.DriverName
		}
		s.Execute = append(s.Execute, x)
	}
	s.MarkReady()
	return s, nil
}

func (d *Definition) isReference() bool {
	return len(d.Sources) == 0 && len(d.Destinations) == 0 && len(d.Execute) == 0 && d.Loop == nil
}

func buildBlock(b *BlockCore, d *BlockDef) error {
	b.Name = d.Name
	b.ConnectionName = d.Connection
	b.DriverName = d.Driver
	b.Disabled = d.Disabled
	b.Parallel = d.Parallel
	b.Empty = d.Empty
	b.Encoded = d.Encoded
	var err error
	if b.Variables, err = buildVariables(d.Variables); err != nil {
		return err
	}
	if b.Condition, err = buildCondition(d.Condition); err != nil {
		return err
	}
	if d.Exception != nil {
		b.Exception = &ExceptionPolicy{
			Masks:             d.Exception.Masks,
			IgnoreParseErrors: d.Exception.IgnoreParseErrors,
			Savepoint:         d.Exception.Savepoint,
		}
		if b.Exception.OnException, err = ParseExceptionAction(d.Exception.OnException); err != nil {
			return err
		}
		if err = b.Exception.Compile(); err != nil {
			return err
		}
	}
	for idx := range d.Tasks {
		td := &d.Tasks[idx]
		t := &Task{
			Name:           td.Name,
			Class:          td.Class,
			ConnectionName: td.Connection,
			DriverName:     td.Driver,
			Binds:          td.Binds,
			CommitWhenDone: td.CommitWhenDone,
			Params:         td.Params,
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("%v#%v", td.Class, idx+1)
		}
		t.Code, _ = rawCode(td.Code)
		if t.Scope, err = ParseTaskScope(td.Scope); err != nil {
			return err
		}
		if t.Variables, err = buildVariables(td.Variables); err != nil {
			return err
		}
		b.Tasks = append(b.Tasks, t)
	}
	return nil
}

func buildVariables(defs []VariableDef) (*om.OrderedMap, error) {
	m := om.NewOrderedMap()
	for _, vd := range defs {
		if vd.Name == "" {
			return nil, errors.New("variable has no name")
		}
		v := &Variable{
			Name:              vd.Name,
			Value:             vd.Value,
			Code:              vd.Code,
			ConnectionName:    vd.Connection,
			Global:            vd.Global,
			Hidden:            vd.Hidden,
			Linked:            vd.Linked,
			TolerateException: vd.TolerateException,
		}
		var err error
		if v.Source, err = ParseVariableSource(vd.Source); err != nil {
			return nil, err
		}
		m.Set(v.Name, v)
	}
	return m, nil
}

// rawCode returns SQL held in a JSON string, or the JSON text of a script object as a jsonlogic script.
func rawCode(raw json.RawMessage) (code string, language string) {
	t := strings.TrimSpace(string(raw))
	if t == "" || t == "null" {
		return "", ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}
	return t, constants.ScriptLanguageJsonLogic
}

func buildCondition(raw json.RawMessage) (*ConditionPolicy, error) {
	code, lang := rawCode(raw)
	if code == "" {
		return nil, nil
	}
	if lang == "" { // if the condition was given as a string it must still hold a script.
		if !json.Valid([]byte(code)) {
			return nil, fmt.Errorf("condition is not a valid script: %v", code)
		}
		lang = constants.ScriptLanguageJsonLogic
	}
	return &ConditionPolicy{Code: code, Language: lang}, nil
}
