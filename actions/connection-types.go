package actions

import (
	"sort"
	"strings"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/driver"
)

// IsSupportedConnectionType returns true if connections of the given type can be opened,
// i.e. a driver of the same name is registered.
func IsSupportedConnectionType(connectionType string) bool {
	_, ok := getSupportedConnectionTypesMap()[connectionType]
	return ok
}

// GetSupportedConnectionTypes returns a comma separated string of the connection types that can be configured.
func GetSupportedConnectionTypes() string {
	m := getSupportedConnectionTypesMap()
	s := make([]string, 0, len(m))
	for k := range m { // for each supported connection type as a key...
		s = append(s, k)
	}
	sort.Strings(s)
	return strings.Join(s, ", ")
}

func getSupportedConnectionTypesMap() map[string]struct{} {
	m := make(map[string]struct{})
	for _, name := range driver.Names() { // for each registered driver...
		if name == constants.DriverGeneric { // generic is a fallback dialect, not a connection type.
			continue
		}
		m[name] = struct{}{}
	}
	return m
}
