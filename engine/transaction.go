package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

// ConnectionOpener opens the named connection.
type ConnectionOpener func(ctx context.Context, name string) (shared.Connector, error)

// NewConfigOpener returns an opener that reads connection details from getter.
func NewConfigOpener(log logger.Logger, getter shared.ConnectionGetter) ConnectionOpener {
	return func(ctx context.Context, name string) (shared.Connector, error) {
		cd, err := getter.LoadConnection(name)
		if err != nil {
			return nil, &NoConfigError{Connection: name, Err: err}
		}
		return rdbms.OpenDbConnection(ctx, log, cd)
	}
}

// Connection is a transaction on one physical connection, registered with a TransactionMonitor.
// It satisfies shared.Querier so the transaction can be renewed after a mid-run commit
// without callers noticing.
type Connection struct {
	mu     sync.Mutex
	Name   string
	key    string
	Driver driver.Driver
	conn   shared.Connector
	tx     shared.Transacter
}

func (c *Connection) current() shared.Transacter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (shared.Result, error) {
	return c.current().ExecContext(ctx, query, args...)
}

func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (shared.Rows, error) {
	return c.current().QueryContext(ctx, query, args...)
}

// DmlGenerator returns the DML generator of the underlying connection.
func (c *Connection) DmlGenerator() shared.DmlGenerator {
	return c.conn.GetDmlGenerator()
}

// TransactionMonitor owns every transaction started by one top-level execution and
// commits or rolls them back together.
// Connections are opened once per name; each branch gets its own transaction
// so parallel work never shares a physical connection.
type TransactionMonitor struct {
	mu         sync.Mutex
	log        logger.Logger
	open       ConnectionOpener
	connectors map[string]shared.Connector
	conns      map[string]*Connection
	order      []*Connection
	finished   bool
}

func NewTransactionMonitor(log logger.Logger, open ConnectionOpener) *TransactionMonitor {
	return &TransactionMonitor{
		log:        log,
		open:       open,
		connectors: make(map[string]shared.Connector),
		conns:      make(map[string]*Connection),
	}
}

func (m *TransactionMonitor) connector(ctx context.Context, name string) (shared.Connector, error) {
	if c, ok := m.connectors[name]; ok {
		return c, nil
	}
	c, err := m.open(ctx, name)
	if err != nil {
		return nil, err
	}
	m.connectors[name] = c
	return c, nil
}

// resolveDriver returns the named driver, or the driver matching the connection type.
func resolveDriver(name string, c shared.Connector) (driver.Driver, error) {
	if name != "" {
		return driver.Get(name)
	}
	if drv, err := driver.Get(c.GetType()); err == nil {
		return drv, nil
	}
	return driver.Get(constants.DriverGeneric)
}

// Acquire returns the transaction for connection name on branch, starting it on first use.
// isNew is true only for the call that registered the transaction; the caller runs init SQL then.
func (m *TransactionMonitor) Acquire(ctx context.Context, name string, branch string, driverName string) (c *Connection, isNew bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return nil, false, errors.New("transaction monitor has already finished")
	}
	key := name + "#" + branch
	if c, ok := m.conns[key]; ok {
		return c, false, nil
	}
	conn, err := m.connector(ctx, name)
	if err != nil {
		return nil, false, err
	}
	drv, err := resolveDriver(driverName, conn)
	if err != nil {
		return nil, false, err
	}
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return nil, false, errors.Wrapf(err, "unable to begin transaction on connection %v", name)
	}
	c = &Connection{Name: name, key: key, Driver: drv, conn: conn, tx: tx}
	m.conns[key] = c
	m.order = append(m.order, c)
	m.log.Debug("registered transaction ", key)
	return c, true, nil
}

// CommitAndContinue commits the work done so far on c and starts a new transaction in its place.
func (m *TransactionMonitor) CommitAndContinue(ctx context.Context, c *Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit failed on connection %v", c.Name)
	}
	tx, err := c.conn.BeginTx(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to begin transaction on connection %v", c.Name)
	}
	c.tx = tx
	for _, s := range c.Driver.StartTransactionSQL() {
		if _, err = tx.ExecContext(ctx, s); err != nil {
			return errors.Wrapf(err, "start transaction SQL failed on connection %v", c.Name)
		}
	}
	return nil
}

// Autonomous runs fn in its own transaction on connection name and commits it straight away.
// It is used for cleanup after a failure and for DDL on drivers that need a separate connection.
func (m *TransactionMonitor) Autonomous(ctx context.Context, name string, fn func(q shared.Querier) error) error {
	m.mu.Lock()
	conn, err := m.connector(ctx, name)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to begin autonomous transaction on connection %v", name)
	}
	if err = fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			m.log.Warn("rollback of autonomous transaction failed: ", rerr)
		}
		return err
	}
	return tx.Commit()
}

// Commit commits every registered transaction in registration order.
// If one fails the remainder are rolled back.
func (m *TransactionMonitor) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return nil
	}
	m.finished = true
	for idx, c := range m.order {
		if err := c.current().Commit(); err != nil {
			for _, r := range m.order[idx+1:] {
				if rerr := r.current().Rollback(); rerr != nil {
					m.log.Warn("rollback of ", r.key, " failed: ", rerr)
				}
			}
			return errors.Wrapf(err, "commit failed on connection %v", c.Name)
		}
		m.log.Debug("committed ", c.key)
	}
	return nil
}

// Rollback rolls back every registered transaction.
// cause is nil when the execution was interrupted.
func (m *TransactionMonitor) Rollback(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return
	}
	m.finished = true
	if cause != nil {
		m.log.Warn("rolling back ", len(m.order), " transaction(s) after error: ", cause)
	} else {
		m.log.Warn("rolling back ", len(m.order), " transaction(s) after interrupt")
	}
	for _, c := range m.order {
		if err := c.current().Rollback(); err != nil {
			m.log.Warn("rollback of ", c.key, " failed: ", err)
		}
	}
}

// Registered returns the number of transactions registered.
func (m *TransactionMonitor) Registered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Close closes every connection opened by the monitor.
func (m *TransactionMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.connectors {
		c.Close()
		delete(m.connectors, name)
	}
}
