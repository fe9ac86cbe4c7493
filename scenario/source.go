package scenario

// Source is a Block that populates a dataset.
type Source struct {
	BlockCore
	SQL              string
	Binds            []string // variable names bound in order; derived from :name markers when empty.
	KeyName          string
	KeyFields        []string
	Independent      bool // not linked to any destination.
	Mandatory        bool // extracted before any load and never streamed.
	LinkedSourceName string
	Reader           string // connector used to populate the dataset.
	ReaderParams     map[string]string
	Writer           string // optional secondary writer fed every extracted row.
	WriterParams     map[string]string
}

// IsStub returns true for a source with nothing to extract.
// Stubs are barriers between groups of parallel extracts.
func (s *Source) IsStub() bool {
	return s.SQL == "" && s.Reader == "" && s.LinkedSourceName == "" && len(s.Tasks) == 0
}
