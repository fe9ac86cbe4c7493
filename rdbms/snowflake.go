package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

const snowflakeScheme = constants.ConnectionTypeSnowflake + "://"

// SnowflakeConnectionDetails holds a Snowflake DSN and, once parsed, its parts.
type SnowflakeConnectionDetails struct {
	Dsn            string `errorTxt:"data source name i.e. connect string" mandatory:"yes"`
	Account        string
	DBName         string
	Schema         string
	User           string
	Password       string
	Warehouse      string
	RoleName       string
	OriginalScheme string
}

// String returns the parts of the DSN with the password redacted.
func (d SnowflakeConnectionDetails) String() string {
	if d.Account == "" && d.Dsn != "" { // if the DSN was not parsed yet...
		if err := d.Parse(); err != nil {
			return fmt.Sprintf("<unparsable dsn: %v>", err)
		}
	}
	return fmt.Sprintf("%v%v:xxxxx@%v/%v?schema=%v&warehouse=%v&role=%v",
		snowflakeScheme, d.User, d.Account, d.DBName, d.Schema, d.Warehouse, d.RoleName)
}

// Parse validates the DSN and populates the remaining fields of d from it.
func (d *SnowflakeConnectionDetails) Parse() error {
	p, err := SnowflakeParseDSN(d.Dsn)
	if err != nil {
		return err
	}
	p.Dsn = d.Dsn
	p.OriginalScheme = constants.ConnectionTypeSnowflake
	*d = *p
	return nil
}

func (d SnowflakeConnectionDetails) GetScheme() (string, error) {
	return constants.ConnectionTypeSnowflake, nil
}

func (d SnowflakeConnectionDetails) GetMap(m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[shared.DefaultDsnConnectionKeyNames.Dsn] = d.Dsn
	return m
}

// newSnowflakeConnection opens the Snowflake database connection specified in d.
func newSnowflakeConnection(ctx context.Context, log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	conn := &shared.SqlConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{},
		DbType: constants.ConnectionTypeSnowflake,
	}
	var err error
	if conn.DbSql, err = sql.Open("snowflake", strings.TrimPrefix(d.Dsn, snowflakeScheme)); err != nil {
		return nil, err
	}
	if err = conn.DbSql.PingContext(ctx); err != nil {
		_ = conn.DbSql.Close()
		return nil, errors.Wrap(err, "unable to connect to Snowflake")
	}
	log.Info("Successful database connection to Snowflake.")
	return conn, nil
}

// SnowflakeGetDSN builds a DSN, prefixed with snowflake://, from the parts held in c.
func SnowflakeGetDSN(c *SnowflakeConnectionDetails) (string, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:   c.Account,
		Database:  c.DBName,
		Schema:    c.Schema,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Role:      c.RoleName,
	})
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(dsn, snowflakeScheme) { // if the prefix is missing...
		dsn = snowflakeScheme + dsn
	}
	return dsn, nil
}

// SnowflakeParseDSN converts a DSN of the form snowflake://<user>:<password>@<account>/<db>?<params>
// into its parts. A region given as a parameter is folded into the account.
func SnowflakeParseDSN(d string) (*SnowflakeConnectionDetails, error) {
	if !strings.HasPrefix(d, snowflakeScheme) {
		return nil, errors.New("unsupported Snowflake DSN format")
	}
	cfg, err := sf.ParseDSN(strings.TrimPrefix(d, snowflakeScheme))
	if err != nil {
		return nil, err
	}
	retval := &SnowflakeConnectionDetails{
		User:      cfg.User,
		Password:  cfg.Password,
		Schema:    cfg.Schema,
		DBName:    cfg.Database,
		Account:   cfg.Account,
		RoleName:  cfg.Role,
		Warehouse: cfg.Warehouse,
	}
	if cfg.Region != "" { // if region exists in the parsed config...
		retval.Account = fmt.Sprintf("%v.%v", retval.Account, cfg.Region)
	}
	return retval, nil
}
