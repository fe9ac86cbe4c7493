package scenario

import (
	"fmt"

	om "github.com/cevaris/ordered_map"
)

// Loop drives repeated execution of a scenario body.
// When Language is empty Code is SQL run on ConnectionName, otherwise it is a script.
type Loop struct {
	Code           string
	Language       string
	Count          int    // rows per iteration; values < 1 mean 1.
	VariableName   string // set to the joined pattern values of the rows in each iteration.
	Pattern        string // ${FIELD} template applied to each row; defaults to ${<Field>}.
	Field          string // field used when Pattern is empty; defaults to the first column.
	ConnectionName string
}

func (l *Loop) IsScript() bool {
	return l.Language != ""
}

func (l *Loop) BatchSize() int {
	if l.Count < 1 {
		return 1
	}
	return l.Count
}

// Parallelism holds the per-scenario worker pool sizes.
type Parallelism struct {
	Sources        int
	Destinations   int
	InnerScenarios int
	Connections    bool // load connection groups concurrently.
}

// Scenario is a named ETL unit.
type Scenario struct {
	Name          string
	ScriptName    string // file the definition was read from.
	DriverName    string
	CodeGenName   string
	FunctionClass string
	Sources       *om.OrderedMap // name -> *Source
	Destinations  *om.OrderedMap // name -> *Destination
	Variables     *om.OrderedMap // name -> *Variable
	Loop          *Loop
	Condition     *ConditionPolicy
	Action        Action
	Parallel      Parallelism
	IsParallel    bool // run in the parent's inner scenario pool.
	Execute       []*Scenario
	OnSave        Policy
	OnPersist     Policy
	OnPopulate    Policy
	ready         bool
}

// New returns a structure-only scenario with empty collections.
func New(name string) *Scenario {
	return &Scenario{
		Name:         name,
		Sources:      om.NewOrderedMap(),
		Destinations: om.NewOrderedMap(),
		Variables:    om.NewOrderedMap(),
		Action:       ActionExtractLoad,
	}
}

// MarkReady flags the scenario as fully parsed.
func (s *Scenario) MarkReady() {
	s.ready = true
}

func (s *Scenario) IsReady() bool {
	return s.ready
}

func (s *Scenario) AddSource(src *Source) {
	s.Sources.Set(src.Name, src)
}

func (s *Scenario) AddDestination(d *Destination) {
	s.Destinations.Set(d.Name, d)
}

// SourceList returns the sources in declaration order.
func (s *Scenario) SourceList() []*Source {
	retval := make([]*Source, 0, s.Sources.Len())
	iter := s.Sources.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(*Source))
	}
	return retval
}

// DestinationList returns the destinations in declaration order.
func (s *Scenario) DestinationList() []*Destination {
	retval := make([]*Destination, 0, s.Destinations.Len())
	iter := s.Destinations.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(*Destination))
	}
	return retval
}

func (s *Scenario) GetSource(name string) (*Source, bool) {
	v, ok := s.Sources.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Source), true
}

func (s *Scenario) GetDestination(name string) (*Destination, bool) {
	v, ok := s.Destinations.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Destination), true
}

// MandatorySources returns the names of sources flagged mandatory.
func (s *Scenario) MandatorySources() []string {
	var retval []string
	for _, src := range s.SourceList() {
		if src.Mandatory {
			retval = append(retval, src.Name)
		}
	}
	return retval
}

// DestinationsFor returns the destinations bound to the source in declaration order.
func (s *Scenario) DestinationsFor(src *Source) []*Destination {
	var retval []*Destination
	for _, d := range s.DestinationList() {
		if d.SourceName == src.Name {
			retval = append(retval, d)
		}
	}
	return retval
}

// SourceFor returns the source bound to the destination, if any.
func (s *Scenario) SourceFor(d *Destination) (*Source, bool) {
	if d.SourceName == "" {
		return nil, false
	}
	return s.GetSource(d.SourceName)
}

// UsageCount returns how many destinations are bound to src.
func (s *Scenario) UsageCount(src *Source) int {
	return len(s.DestinationsFor(src))
}

// DriverFor returns the driver of b, falling back to the scenario default.
func (s *Scenario) DriverFor(b Block) string {
	if d := b.GetDriverName(); d != "" {
		return d
	}
	return s.DriverName
}

// NotFoundError is returned when a scenario cannot be resolved by name.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("scenario %q not found", e.Name)
}
