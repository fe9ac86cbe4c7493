package scenario

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ghodss/yaml"
)

// Repository resolves scenarios by name.
type Repository interface {
	Load(name string) (*Scenario, error)
}

// FileRepository loads <Dir>/<name>.yaml, .yml or .json.
// Every call parses the file again so callers get a fresh graph.
type FileRepository struct {
	Dir string
}

var fileExtensions = []string{".yaml", ".yml", ".json"}

func (r *FileRepository) Load(name string) (*Scenario, error) {
	for _, ext := range fileExtensions {
		fn := filepath.Join(r.Dir, name+ext)
		if _, err := os.Stat(fn); err == nil {
			return ParseFile(fn)
		}
	}
	return nil, NotFoundError{Name: name}
}

// MemoryRepository holds definitions in memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{defs: make(map[string]Definition)}
}

func (r *MemoryRepository) Add(d Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.Name] = d
}

// AddYaml parses b and stores the definition under its name.
func (r *MemoryRepository) AddYaml(b []byte) error {
	def := Definition{}
	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}
	if _, err := def.Build(""); err != nil { // if the definition is unusable...
		return err
	}
	r.Add(def)
	return nil
}

func (r *MemoryRepository) Load(name string) (*Scenario, error) {
	r.mu.RLock()
	d, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return d.Build("")
}
