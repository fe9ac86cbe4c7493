package shared

import (
	om "github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
)

// FixSqlStatementGeneratorConfig applies defaults to cfg.
// It returns an error if the output table is missing.
func FixSqlStatementGeneratorConfig(cfg *SqlStatementGeneratorConfig) error {
	if cfg.OutputTable == "" {
		return errors.New("missing output table name")
	}
	if cfg.OutputSchema == "" {
		cfg.SchemaSeparator = ""
	} else {
		cfg.SchemaSeparator = "."
	}
	if cfg.Placeholder == nil {
		cfg.Placeholder = PlaceholderColon
	}
	if cfg.TargetKeyCols == nil {
		cfg.TargetKeyCols = om.NewOrderedMap()
	}
	if cfg.TargetOtherCols == nil {
		cfg.TargetOtherCols = om.NewOrderedMap()
	}
	return nil
}
