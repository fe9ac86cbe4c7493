package shared

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/helper"
)

// reNetezzaDsn matches netezza://<user>/<password>@//<host>:<port>/<dbname>[?<params>].
var reNetezzaDsn = regexp.MustCompile(`^netezza://.+?/.+?@//.+:[0-9]+/.+$`)

var errNetezzaDsn = errors.New("unsupported Netezza DSN format")

// NetezzaConnectionDetails holds a Netezza DSN, which dburl cannot parse.
type NetezzaConnectionDetails struct {
	Dsn            string `errorTxt:"data source name i.e. connect string" mandatory:"yes"`
	OriginalScheme string
}

// netezzaDsn is the parsed form of a Netezza DSN.
type netezzaDsn struct {
	user, password, host, port, dbName string
	params                             []string
}

func parseNetezzaDsn(s string) (*netezzaDsn, error) {
	if !reNetezzaDsn.MatchString(s) {
		return nil, errNetezzaDsn
	}
	dsn := strings.TrimPrefix(s, constants.ConnectionTypeNetezza+"://")
	userPwd, theRest := helper.SplitRight(dsn, `@`)
	n := &netezzaDsn{}
	n.user, n.password = helper.Split(userPwd, `/`)
	location, params := helper.Split(theRest, `?`) // params may hold file paths e.g. sslcert.
	hostPort, dbName := helper.Split(strings.TrimLeft(location, "/"), `/`)
	n.host, n.port = helper.SplitRight(hostPort, `:`)
	n.dbName = dbName
	if params != "" {
		n.params = strings.Split(params, "&")
	}
	return n, nil
}

// String returns the DSN with the password redacted.
func (d NetezzaConnectionDetails) String() string {
	n, err := parseNetezzaDsn(d.Dsn)
	if err != nil {
		return fmt.Sprintf("<unparsable dsn: %v>", err)
	}
	s := fmt.Sprintf("%v://%v/xxxxx@//%v:%v/%v", constants.ConnectionTypeNetezza, n.user, n.host, n.port, n.dbName)
	if len(n.params) > 0 {
		s += "?" + strings.Join(n.params, "&")
	}
	return s
}

func (d NetezzaConnectionDetails) Parse() error {
	_, err := parseNetezzaDsn(d.Dsn)
	return err
}

func (d NetezzaConnectionDetails) GetScheme() (string, error) {
	return constants.ConnectionTypeNetezza, nil
}

func (d NetezzaConnectionDetails) GetMap(m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[DefaultDsnConnectionKeyNames.Dsn] = d.Dsn
	return m
}

// GetNzgoConnectionString converts the DSN to the space separated key=value form used by nzgo.
// Query parameters such as sslmode and securityLevel are passed through.
func (d NetezzaConnectionDetails) GetNzgoConnectionString() (string, error) {
	n, err := parseNetezzaDsn(d.Dsn)
	if err != nil {
		return "", err
	}
	connStr := fmt.Sprintf("user=%s password='%s' host=%s port=%s dbname=%s logLevel=Off %s",
		n.user, n.password, n.host, n.port, n.dbName, strings.Join(n.params, " "))
	return strings.TrimSpace(connStr), nil
}
