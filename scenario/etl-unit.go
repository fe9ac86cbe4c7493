package scenario

import "fmt"

// EtlUnit groups destinations that share a physical connection and dialect.
// It is comparable so it can be used as a map key.
type EtlUnit struct {
	ConnectionName string
	DriverName     string
}

func (u EtlUnit) String() string {
	return fmt.Sprintf("%v/%v", u.ConnectionName, u.DriverName)
}

// GroupDestinations groups ds by EtlUnit preserving first-seen order of the units and declaration order within each.
// driverFor resolves the effective driver of a destination.
func GroupDestinations(ds []*Destination, driverFor func(*Destination) string) ([]EtlUnit, map[EtlUnit][]*Destination) {
	var order []EtlUnit
	groups := make(map[EtlUnit][]*Destination)
	for _, d := range ds {
		u := EtlUnit{ConnectionName: d.ConnectionName, DriverName: driverFor(d)}
		if _, ok := groups[u]; !ok {
			order = append(order, u)
		}
		groups[u] = append(groups[u], d)
	}
	return order, groups
}
