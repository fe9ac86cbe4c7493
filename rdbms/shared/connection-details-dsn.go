package shared

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xo/dburl"
)

var DefaultDsnConnectionKeyNames = struct {
	Dsn string
}{
	Dsn: "dsn",
}

// DsnConnectionDetails holds a DSN of the form <scheme>://<user>:<password>@<host>/<dbname>[?<params>].
type DsnConnectionDetails struct {
	Dsn            string `errorTxt:"data source name i.e. connect string" mandatory:"yes"`
	OriginalScheme string
}

// redactDsn returns dsn with its password replaced, or a marker if dsn is not a URL.
func redactDsn(dsn string) string {
	u, err := dburl.Parse(dsn)
	if err != nil {
		return fmt.Sprintf("<unparsable dsn: %v>", err)
	}
	return u.Redacted()
}

func (d DsnConnectionDetails) String() string {
	return redactDsn(d.Dsn)
}

// Parse validates the DSN and records the scheme it was given with, e.g. postgres rather than pg.
func (d *DsnConnectionDetails) Parse() error {
	if d.Dsn == "" {
		return errors.New("DSN not found")
	}
	u, err := dburl.Parse(d.Dsn)
	if err != nil {
		return errors.Wrap(err, "DSN could not be parsed")
	}
	d.OriginalScheme = u.OriginalScheme
	return nil
}

func (d *DsnConnectionDetails) GetScheme() (string, error) {
	if d.OriginalScheme != "" {
		return d.OriginalScheme, nil
	}
	err := d.Parse()
	return d.OriginalScheme, err
}

func (d DsnConnectionDetails) GetMap(m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[DefaultDsnConnectionKeyNames.Dsn] = d.Dsn
	return m
}

// GetDsnConnectionDetails takes the DSN out of the generic connection data.
func GetDsnConnectionDetails(c *ConnectionDetails) *DsnConnectionDetails {
	return &DsnConnectionDetails{Dsn: c.Data[DefaultDsnConnectionKeyNames.Dsn]}
}
