package rdbms

import (
	"strings"
)

// SchemaTable is an object name of the form [<schema>.]<table> where either part may be quoted.
// A quoted name holding a period, e.g. "random.table", is a table without a schema.
type SchemaTable struct {
	Schema string
	Table  string
}

// ParseSchemaTable splits s on the first period found outside double quotes.
func ParseSchemaTable(s string) SchemaTable {
	inQuotes := false
	for i, c := range s {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == '.' && !inQuotes: // if we have schema.table...
			return SchemaTable{Schema: s[:i], Table: s[i+1:]}
		}
	}
	// else we have just a table...
	return SchemaTable{Table: s}
}

// WithSuffix returns a copy of st with suffix appended to the table, inside the quotes of a quoted table.
func (st SchemaTable) WithSuffix(suffix string) SchemaTable {
	if len(st.Table) > 1 && strings.HasPrefix(st.Table, `"`) && strings.HasSuffix(st.Table, `"`) {
		st.Table = strings.TrimSuffix(st.Table, `"`) + suffix + `"`
	} else {
		st.Table = st.Table + suffix
	}
	return st
}

func (st SchemaTable) String() string {
	if st.Schema == "" {
		return st.Table
	}
	return st.Schema + "." + st.Table
}
