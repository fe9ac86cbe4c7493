package shared

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"github.com/relloyd/etl-engine/logger"
)

// MockStatement is a statement seen by a MockConnection.
type MockStatement struct {
	Query string
	Args  []interface{}
	TxId  int // 0 when executed outside a transaction.
}

// MockResultSet is a scripted result returned by MockConnection.QueryContext.
type MockResultSet struct {
	Columns []string
	Types   []string // database type names, optional.
	Rows    [][]interface{}
}

// MockQueryFunc can build a result set from the query and its args.
type MockQueryFunc func(query string, args []interface{}) (*MockResultSet, error)

type mockRule struct {
	re  *regexp.Regexp
	fn  MockQueryFunc
	err error
}

// MockConnection is an in-memory Connector that records every statement it is given.
// It is safe for concurrent use.
type MockConnection struct {
	mu         sync.Mutex
	DbType     string
	Dml        DmlGenerator
	statements []MockStatement
	queryRules []mockRule
	execRules  []mockRule
	txCount    int
	commits    int
	rollbacks  int
	closed     bool
}

// NewMockConnection creates a MockConnection for the given database type.
func NewMockConnection(dbType string) *MockConnection {
	return &MockConnection{DbType: dbType, Dml: &DmlGeneratorTxtBatch{}}
}

// NewMockConnectionWithMockTx returns a MockConnection that logs its creation.
func NewMockConnectionWithMockTx(log logger.Logger, dbType string) (*MockConnection, error) {
	log.Debug("creating mock connection of type ", dbType)
	return NewMockConnection(dbType), nil
}

// AddQueryResult registers a result set for queries matching pattern.
func (c *MockConnection) AddQueryResult(pattern string, rs *MockResultSet) {
	c.AddQueryFunc(pattern, func(string, []interface{}) (*MockResultSet, error) {
		return rs, nil
	})
}

// AddQueryFunc registers fn to produce results for queries matching pattern.
// Rules are checked in the order they were added.
func (c *MockConnection) AddQueryFunc(pattern string, fn MockQueryFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryRules = append(c.queryRules, mockRule{re: regexp.MustCompile(pattern), fn: fn})
}

// AddExecError causes statements matching pattern to fail with err.
func (c *MockConnection) AddExecError(pattern string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execRules = append(c.execRules, mockRule{re: regexp.MustCompile(pattern), err: err})
}

// Statements returns a copy of all statements seen so far.
func (c *MockConnection) Statements() []MockStatement {
	c.mu.Lock()
	defer c.mu.Unlock()
	retval := make([]MockStatement, len(c.statements))
	copy(retval, c.statements)
	return retval
}

// StatementTexts returns just the SQL text of all statements seen so far.
func (c *MockConnection) StatementTexts() []string {
	s := c.Statements()
	retval := make([]string, len(s))
	for idx, v := range s {
		retval[idx] = v.Query
	}
	return retval
}

func (c *MockConnection) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *MockConnection) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

func (c *MockConnection) TxCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCount
}

func (c *MockConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockConnection) record(txId int, query string, args []interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("mock connection is closed")
	}
	c.statements = append(c.statements, MockStatement{Query: query, Args: args, TxId: txId})
	for _, r := range c.execRules {
		if r.re.MatchString(query) {
			return r.err
		}
	}
	return nil
}

func (c *MockConnection) exec(ctx context.Context, txId int, query string, args []interface{}) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.record(txId, query, args); err != nil {
		return nil, err
	}
	return mockResult{}, nil
}

func (c *MockConnection) query(ctx context.Context, txId int, query string, args []interface{}) (Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.record(txId, query, args); err != nil {
		return nil, err
	}
	c.mu.Lock()
	rules := make([]mockRule, len(c.queryRules))
	copy(rules, c.queryRules)
	c.mu.Unlock()
	for _, r := range rules {
		if r.re.MatchString(query) {
			rs, err := r.fn(query, args)
			if err != nil {
				return nil, err
			}
			return newMockRows(rs), nil
		}
	}
	return newMockRows(&MockResultSet{}), nil
}

// Connector:

func (c *MockConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.exec(ctx, 0, query, args)
}

func (c *MockConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return c.query(ctx, 0, query, args)
}

func (c *MockConnection) BeginTx(ctx context.Context) (Transacter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("mock connection is closed")
	}
	c.txCount++
	return &MockTx{conn: c, id: c.txCount}, nil
}

func (c *MockConnection) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *MockConnection) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockConnection) GetType() string {
	return c.DbType
}

func (c *MockConnection) GetDmlGenerator() DmlGenerator {
	return c.Dml
}

// MockTx records statements against the parent MockConnection.
type MockTx struct {
	conn *MockConnection
	id   int
	done bool
}

func (t *MockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.conn.exec(ctx, t.id, query, args)
}

func (t *MockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return t.conn.query(ctx, t.id, query, args)
}

func (t *MockTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.done {
		return errors.New("transaction has already been committed or rolled back")
	}
	t.done = true
	t.conn.commits++
	return nil
}

func (t *MockTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.done {
		return errors.New("transaction has already been committed or rolled back")
	}
	t.done = true
	t.conn.rollbacks++
	return nil
}

type mockResult struct{}

func (mockResult) LastInsertId() (int64, error) { return 0, nil }
func (mockResult) RowsAffected() (int64, error) { return 0, nil }

// mockRows iterates a MockResultSet.
type mockRows struct {
	rs  *MockResultSet
	idx int
}

func newMockRows(rs *MockResultSet) *mockRows {
	return &mockRows{rs: rs, idx: -1}
}

func (r *mockRows) Columns() ([]string, error) {
	return r.rs.Columns, nil
}

func (r *mockRows) ColumnTypes() ([]ColumnType, error) {
	retval := make([]ColumnType, len(r.rs.Columns))
	for idx, n := range r.rs.Columns {
		t := ""
		if idx < len(r.rs.Types) {
			t = r.rs.Types[idx]
		}
		retval[idx] = mockColumnType{name: n, dbType: t}
	}
	return retval, nil
}

func (r *mockRows) Next() bool {
	r.idx++
	return r.idx < len(r.rs.Rows)
}

func (r *mockRows) Scan(dest ...interface{}) error {
	if r.idx < 0 || r.idx >= len(r.rs.Rows) {
		return errors.New("scan called without a current row")
	}
	row := r.rs.Rows[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %v destination arguments in Scan, not %v", len(row), len(dest))
	}
	for idx, d := range dest {
		if p, ok := d.(*interface{}); ok { // if we have a generic destination...
			*p = row[idx]
			continue
		}
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Ptr || dv.IsNil() {
			return fmt.Errorf("destination %v is not a pointer", idx)
		}
		if row[idx] == nil {
			dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			continue
		}
		sv := reflect.ValueOf(row[idx])
		if !sv.Type().ConvertibleTo(dv.Elem().Type()) {
			return fmt.Errorf("cannot scan %T into %T", row[idx], d)
		}
		dv.Elem().Set(sv.Convert(dv.Elem().Type()))
	}
	return nil
}

func (r *mockRows) Err() error {
	return nil
}

func (r *mockRows) Close() error {
	return nil
}

type mockColumnType struct {
	name   string
	dbType string
}

func (m mockColumnType) Name() string                                   { return m.name }
func (m mockColumnType) DatabaseTypeName() string                       { return m.dbType }
func (m mockColumnType) Nullable() (bool, bool)                         { return true, true }
func (m mockColumnType) Length() (int64, bool)                          { return 0, false }
func (m mockColumnType) DecimalSize() (precision, scale int64, ok bool) { return 0, 0, false }
