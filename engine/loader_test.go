package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/driver"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

const pause = 50 * time.Millisecond

var _ = Describe("Sources shared by destinations", func() {
	It("buffers a source when only some of its destinations stream", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from customers", idRows(1, 3))
		resp := e.execute(mustParse(`
name: fanout
driver: mock
sources:
  - name: customers
    connection: src
    sql: select ID from customers
destinations:
  - name: streamed
    source: customers
    connection: dst
    object: dw.streamed
    stream: true
  - name: buffered
    source: customers
    connection: dst
    object: dw.buffered
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(e.conns["src"].StatementTexts()).To(Equal([]string{"select ID from customers"}))
		Expect(statementsLike(e.conns["dst"], "insert")).To(Equal([]string{
			"insert into dw.streamed (ID) values (:1),(:2),(:3)",
			"insert into dw.buffered (ID) values (:1),(:2),(:3)",
		}))
	})

	It("streams a source once per destination when every destination streams", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from customers", idRows(1, 2))
		ec := e.context(mustParse(`
name: twostreams
driver: mock
sources:
  - name: customers
    connection: src
    sql: select ID from customers
destinations:
  - {name: first, source: customers, connection: dst, object: dw.first, stream: true}
  - {name: second, source: customers, connection: dst, object: dw.second, stream: true}
`))
		Expect(ec.runSelf(context.Background())).To(Succeed())
		Expect(e.conns["src"].StatementTexts()).To(HaveLen(2))
		Expect(statementsLike(e.conns["dst"], "insert into dw.first")).To(HaveLen(2))
		Expect(statementsLike(e.conns["dst"], "insert into dw.second")).To(HaveLen(2))
		_, extracted := ec.arena.extractedDataSet("customers")
		Expect(extracted).To(BeFalse())
	})

	It("extracts a source once for parallel destinations of a LOAD action", func() {
		e := newTestEnv("db")
		var calls int32
		e.conns["db"].AddQueryFunc("from customers", func(string, []interface{}) (*shared.MockResultSet, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(pause)
			return idRows(1, 2), nil
		})
		resp := e.execute(mustParse(`
name: lazy
driver: mock
action: load
parallel:
  destinations: 4
sources:
  - name: customers
    connection: db
    sql: select ID from customers
destinations:
  - {name: a, source: customers, connection: db, object: dw.a, parallel: true}
  - {name: b, source: customers, connection: db, object: dw.b, parallel: true}
  - {name: c, source: customers, connection: db, object: dw.c, parallel: true}
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		Expect(statementsLike(e.conns["db"], "insert")).To(Equal([]string{
			"insert into dw.a (ID) values (:1),(:2)",
			"insert into dw.b (ID) values (:1),(:2)",
			"insert into dw.c (ID) values (:1),(:2)",
		}))
	})
})

var _ = Describe("Barriers", func() {
	It("waits for parallel extracts submitted before a stub source", func() {
		e := newTestEnv("db")
		tl := &timeline{}
		e.conns["db"].AddQueryFunc("from t1", tl.slowQuery("t1", 1, pause))
		e.conns["db"].AddQueryFunc("from t2", tl.slowQuery("t2", 1, 0))
		ec := e.context(mustParse(`
name: staged
driver: mock
parallel:
  sources: 2
sources:
  - {name: t1, connection: db, sql: select ID from t1, parallel: true}
  - {name: barrier}
  - {name: t2, connection: db, sql: select ID from t2, parallel: true}
`))
		Expect(newExtractor(ec).Extract(context.Background())).To(Succeed())
		Expect(tl.get()).To(Equal([]string{"t1 start", "t1 done", "t2 start", "t2 done"}))
	})

	It("waits for parallel loads submitted before a WAIT destination", func() {
		e := newTestEnv("db")
		tl := &timeline{}
		e.conns["db"].AddQueryFunc("from s1", tl.slowQuery("s1", 1, pause))
		e.conns["db"].AddQueryFunc("from s2", tl.slowQuery("s2", 1, 0))
		resp := e.execute(mustParse(`
name: waiting
driver: mock
action: load
parallel:
  destinations: 2
sources:
  - {name: s1, connection: db, sql: select ID from s1}
  - {name: s2, connection: db, sql: select ID from s2}
destinations:
  - {name: s1, connection: db, object: dw.s1, parallel: true}
  - {name: hold, connection: db, type: wait}
  - {name: s2, connection: db, object: dw.s2, parallel: true}
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(tl.get()).To(Equal([]string{"s1 start", "s1 done", "s2 start", "s2 done"}))
	})

	It("adds the code of parallel GLOBAL destinations in declaration order", func() {
		e := newTestEnv("db")
		tl := &timeline{}
		e.conns["db"].AddQueryFunc("from slow", tl.slowQuery("slow", 1, pause))
		e.conns["db"].AddQueryFunc("from fast", tl.slowQuery("fast", 1, 0))
		resp := e.execute(mustParse(`
name: ordered
driver: mock
action: load
parallel:
  destinations: 2
sources:
  - {name: slow, connection: db, sql: select ID from slow}
  - {name: fast, connection: db, sql: select ID from fast}
destinations:
  - {name: slow, connection: db, object: dw.slow, parallel: true}
  - {name: fast, connection: db, object: dw.fast, parallel: true}
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(tl.get()).To(ContainElement("fast done"))
		Expect(statementsLike(e.conns["db"], "insert")).To(Equal([]string{
			"insert into dw.slow (ID) values (:1)",
			"insert into dw.fast (ID) values (:1)",
		}))
	})
})

var _ = Describe("Connection groups", func() {
	It("loads the groups of different connections together when asked", func() {
		e := newTestEnv("a", "b")
		aStarted, bStarted := make(chan struct{}), make(chan struct{})
		meet := func(mine chan struct{}, other chan struct{}) shared.MockQueryFunc {
			return func(string, []interface{}) (*shared.MockResultSet, error) {
				close(mine)
				select {
				case <-other:
					return idRows(1, 2), nil
				case <-time.After(5 * time.Second):
					return nil, errors.New("connection groups were loaded one after the other")
				}
			}
		}
		e.conns["a"].AddQueryFunc("from ta", meet(aStarted, bStarted))
		e.conns["b"].AddQueryFunc("from tb", meet(bStarted, aStarted))
		resp := e.execute(mustParse(`
name: together
driver: mock
action: load
parallel:
  connections: true
sources:
  - {name: ta, connection: a, sql: select ID from ta}
  - {name: tb, connection: b, sql: select ID from tb}
destinations:
  - {name: ta, connection: a, object: dw.ta}
  - {name: tb, connection: b, object: dw.tb}
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(statementsLike(e.conns["a"], "insert")).To(Equal([]string{"insert into dw.ta (ID) values (:1),(:2)"}))
		Expect(statementsLike(e.conns["b"], "insert")).To(Equal([]string{"insert into dw.tb (ID) values (:1),(:2)"}))
		Expect(e.conns["a"].Commits()).To(Equal(1))
		Expect(e.conns["b"].Commits()).To(Equal(1))
	})

	It("drops a cursor table on a committed transaction of its own when the group fails", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from orders", idRows(1, 2))
		e.conns["dst"].AddExecError("^merge into dw.orders", errors.New("deadlock"))
		resp := e.execute(mustParse(`
name: staged
driver: mock
sources:
  - name: orders
    connection: src
    sql: select ID from orders
destinations:
  - name: orders
    connection: dst
    object: dw.orders
    cursorTable:
      sql: merge into dw.orders using dw.orders_ETL_CUR
`))
		Expect(resp.ReturnCode).To(Equal(ReturnError))
		Expect(resp.Error).To(ContainSubstring("deadlock"))
		stmts := e.conns["dst"].Statements()
		Expect(e.conns["dst"].StatementTexts()).To(Equal([]string{
			"create table dw.orders_ETL_CUR as select * from dw.orders where 1=0",
			"insert into dw.orders_ETL_CUR (ID) values (:1),(:2)",
			"merge into dw.orders using dw.orders_ETL_CUR",
			"drop table dw.orders_ETL_CUR",
		}))
		Expect(stmts[3].TxId).NotTo(Equal(stmts[2].TxId))
		Expect(e.conns["dst"].Commits()).To(Equal(1)) // the cleanup only.
		Expect(e.conns["dst"].Rollbacks()).To(Equal(1))
	})
})

var _ = Describe("Large objects", func() {
	BeforeEach(func() {
		driver.Register("mock_callable", func() driver.Driver {
			d, _ := driver.Get(constants.DriverMock)
			dl := d.(*driver.Dialect)
			dl.DriverName = "mock_callable"
			dl.Callable = true
			return dl
		})
	})

	It("stages CLOB values keyed by row before the batched load", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from docs", &shared.MockResultSet{
			Columns: []string{"ID", "DOC"},
			Types:   []string{"INTEGER", "CLOB"},
			Rows:    [][]interface{}{{1, "hello"}, {2, "world"}},
		})
		resp := e.execute(mustParse(`
name: documents
driver: mock_callable
sources:
  - {name: docs, connection: db, sql: select ID, DOC from docs}
destinations:
  - {name: docs, connection: db, object: dw.docs}
`))
		Expect(resp.Error).To(BeEmpty())
		stage := "insert into etl_lob_stage (destination_name, field_name, row_key, clob_value, blob_value) values (:1,:2,:3,:4,:5)"
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{
			"select ID, DOC from docs",
			stage,
			stage,
			"insert into dw.docs (ID,DOC) values (:1,:2),(:3,:4)",
		}))
		stmts := e.conns["db"].Statements()
		Expect(stmts[1].Args).To(Equal([]interface{}{"docs", "DOC", "1", "hello", nil}))
		Expect(stmts[2].Args).To(Equal([]interface{}{"docs", "DOC", "2", "world", nil}))
	})

	It("stages nothing when the driver has no callable statements", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from docs", &shared.MockResultSet{
			Columns: []string{"ID", "DOC"},
			Types:   []string{"INTEGER", "CLOB"},
			Rows:    [][]interface{}{{1, "hello"}},
		})
		resp := e.execute(mustParse(`
name: documents
driver: mock
sources:
  - {name: docs, connection: db, sql: select ID, DOC from docs}
destinations:
  - {name: docs, connection: db, object: dw.docs}
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(statementsLike(e.conns["db"], "insert into etl_lob_stage")).To(BeEmpty())
	})
})
