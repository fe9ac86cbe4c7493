package scenario

// CursorTable describes a staging table used by drivers that load via a temporary table.
type CursorTable struct {
	Name         string
	SQL          string
	Temp         bool
	KeepOnFinish bool
}

// Destination is a Block that persists a dataset.
type Destination struct {
	BlockCore
	ObjectName     string
	Type           DestinationType
	LoadAction     LoadAction
	LoadKey        []string
	Columns        []string // optional subset of dataset fields to persist.
	Scope          DestinationScope
	CursorTable    *CursorTable
	Stream         bool
	Then           string // SQL run after loading a non-empty dataset.
	Else           string // SQL run instead when the dataset is empty.
	After          string // SQL run after either.
	MetadataPolicy string
	SourceName     string // bound source; defaults to the source with the same name.
	CacheName      string
	Writer         string
	WriterParams   map[string]string
}

// IsSingle returns true if the destination's code must never be batched with other destinations.
func (d *Destination) IsSingle() bool {
	return d.Scope == ScopeSingle || d.Stream
}

// IsWait returns true for a barrier destination.
func (d *Destination) IsWait() bool {
	return d.Type == DestinationWait
}
