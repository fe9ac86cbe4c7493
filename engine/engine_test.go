package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

const customersYaml = `
name: customers
driver: mock
sources:
  - name: customers
    connection: src
    sql: select ID, NAME from customers
destinations:
  - name: customers
    connection: dst
    object: dw.customers
`

var _ = Describe("Executing a scenario", func() {
	It("extracts and loads in one committed transaction per connection", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from customers", &shared.MockResultSet{
			Columns: []string{"ID", "NAME"},
			Rows:    [][]interface{}{{1, "a"}, {2, "b"}, {3, "c"}},
		})
		resp := e.execute(mustParse(customersYaml))
		Expect(resp.Error).To(BeEmpty())
		Expect(resp.OK()).To(BeTrue())
		Expect(resp.Scenario).To(Equal("customers"))
		Expect(resp.ExecutionID).NotTo(BeEmpty())
		Expect(e.conns["dst"].StatementTexts()).To(Equal([]string{
			"insert into dw.customers (ID,NAME) values (:1,:2),(:3,:4),(:5,:6)",
		}))
		Expect(e.conns["src"].Commits()).To(Equal(1))
		Expect(e.conns["dst"].Commits()).To(Equal(1))
		Expect(e.conns["dst"].Rollbacks()).To(Equal(0))
		Expect(e.conns["dst"].IsClosed()).To(BeTrue())
		Expect(resp.Stats).NotTo(BeEmpty())
	})

	It("reports CONFIG_NOT_INITIALIZED before anything else", func() {
		dir, err := os.MkdirTemp("", "etl-engine-test")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		e := newTestEnv("src", "dst")
		e.proc.cfg.Settings = config.NewSettingsWithDir(dir)
		resp := e.execute(mustParse(customersYaml))
		Expect(resp.ReturnCode).To(Equal(ReturnConfigNotInitialized))
		Expect(e.conns["src"].StatementTexts()).To(BeEmpty())
	})

	It("reports NO_CONFIG for a connection that is not configured", func() {
		e := newTestEnv("src", "dst")
		e.proc.cfg.Connections = config.MapConnections{"src": shared.ConnectionDetails{Type: "mock"}}
		resp := e.execute(mustParse(customersYaml))
		Expect(resp.ReturnCode).To(Equal(ReturnNoConfig))
		Expect(resp.Error).To(ContainSubstring("dst"))
		Expect(e.conns["src"].TxCount()).To(Equal(0))
	})

	It("reports NO_CONFIG when a connection cannot be opened", func() {
		e := newTestEnv("src")
		resp := e.execute(mustParse(customersYaml))
		Expect(resp.ReturnCode).To(Equal(ReturnNoConfig))
		Expect(e.conns["src"].Commits()).To(Equal(0))
	})

	It("rolls everything back when a task halts", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from customers", idRows(1, 3))
		resp := e.execute(mustParse(`
name: halting
driver: mock
sources:
  - name: customers
    connection: db
    sql: select ID from customers
destinations:
  - name: customers
    connection: db
    object: dw.customers
    exception:
      onException: ignore
    tasks:
      - class: Halt
        scope: [pre]
        params:
          message: stop now
`))
		Expect(resp.ReturnCode).To(Equal(ReturnError))
		Expect(resp.Error).To(ContainSubstring("stop now"))
		Expect(e.conns["db"].Rollbacks()).To(Equal(1))
		Expect(statementsLike(e.conns["db"], "insert")).To(BeEmpty())
	})

	It("rolls back when the context is cancelled", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from customers", idRows(1, 3))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := e.proc.Execute(ctx, &Request{Scenario: mustParse(customersYaml)})
		Expect(resp.OK()).To(BeFalse())
		Expect(e.conns["src"].Commits()).To(Equal(0))
		Expect(e.conns["dst"].Commits()).To(Equal(0))
	})

	It("reports the code that failed", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from customers", idRows(1, 2))
		e.conns["dst"].AddExecError("insert into dw.customers", errors.New("constraint violated"))
		resp := e.execute(mustParse(customersYaml))
		Expect(resp.ReturnCode).To(Equal(ReturnError))
		Expect(resp.Error).To(ContainSubstring("constraint violated"))
		Expect(resp.LastCode).To(HavePrefix("insert into dw.customers"))
		Expect(resp.LastLine).To(Equal(1))
		Expect(resp.FileName).To(Equal("test.yaml"))
		Expect(e.conns["src"].Rollbacks()).To(Equal(1))
		Expect(e.conns["dst"].Rollbacks()).To(Equal(1))
	})

	It("undoes an ignored error back to the destination's savepoint", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from bad", idRows(1, 1))
		e.conns["db"].AddQueryResult("from good", idRows(1, 1))
		e.conns["db"].AddExecError("insert into dw.bad", errors.New("bad row"))
		resp := e.execute(mustParse(`
name: savepoints
driver: mock
sources:
  - name: bad
    connection: db
    sql: select ID from bad
  - name: good
    connection: db
    sql: select ID from good
destinations:
  - name: bad
    connection: db
    object: dw.bad
    scope: single
    exception:
      onException: ignore
      savepoint: true
  - name: good
    connection: db
    object: dw.good
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(resp.OK()).To(BeTrue())
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{
			"select ID from bad",
			"select ID from good",
			"savepoint etl_1_bad",
			"insert into dw.bad (ID) values (:1)",
			"rollback to savepoint etl_1_bad",
			"insert into dw.good (ID) values (:1)",
		}))
		Expect(e.conns["db"].Commits()).To(Equal(1))
	})

	It("clears the cache named by a destination after it loads", func() {
		e := newTestEnv("src", "dst")
		e.conns["src"].AddQueryResult("from customers", idRows(1, 2))
		c := &countingCache{}
		e.proc.RegisterCache("customers", c)
		resp := e.execute(mustParse(customersYaml + "    cache: customers\n"))
		Expect(resp.OK()).To(BeTrue())
		Expect(atomic.LoadInt32(&c.cleared)).To(Equal(int32(1)))
	})

	It("loads inner scenarios by reference and assigns the values given by the parent", func() {
		e := newTestEnv("db")
		Expect(e.repo.AddYaml([]byte(`
name: child
variables:
  - name: R
    value: default
  - name: LABEL
    value: ${R}-sales
sources:
  - name: regional
    connection: db
    sql: select ID from sales where region = '${R}' and label = '${LABEL}'
`))).To(Succeed())
		resp := e.execute(mustParse(`
name: parent
driver: mock
variables:
  - name: REGION
    value: EU
execute:
  - name: child
    variables:
      - name: R
        value: ${REGION}-1
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{
			"select ID from sales where region = 'EU-1' and label = 'EU-1-sales'",
		}))
		Expect(resp.Variables).To(HaveKeyWithValue("REGION", "EU"))
	})

	It("fails when a referenced inner scenario is unknown", func() {
		e := newTestEnv("db")
		resp := e.execute(mustParse(`
name: parent
driver: mock
execute:
  - name: missing
`))
		Expect(resp.ReturnCode).To(Equal(ReturnError))
		Expect(resp.Error).To(ContainSubstring("missing"))
	})

	It("lets request variables override scenario variables", func() {
		e := newTestEnv("db")
		s := mustParse(`
name: overrides
driver: mock
variables:
  - name: REGION
    value: EU
sources:
  - name: sales
    connection: db
    sql: select ID from sales where region = '${REGION}'
`)
		resp := e.proc.Execute(context.Background(), &Request{Scenario: s, Variables: map[string]string{"REGION": "US"}})
		Expect(resp.OK()).To(BeTrue())
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{"select ID from sales where region = 'US'"}))
	})

	It("loads a scenario that is not ready from the repository before executing it", func() {
		e := newTestEnv("db")
		Expect(e.repo.AddYaml([]byte(`
name: partial
driver: mock
sources:
  - name: parsed
    connection: db
    sql: select 2 from dual
`))).To(Succeed())
		resp := e.execute(partialScenario())
		Expect(resp.Error).To(BeEmpty())
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{"select 2 from dual"}))
	})

	It("refuses a scenario that is not ready when there is no repository", func() {
		e := newTestEnv("db")
		e.proc.cfg.Repository = nil
		resp := e.execute(partialScenario())
		Expect(resp.ReturnCode).To(Equal(ReturnError))
		Expect(resp.Error).To(ContainSubstring("not ready"))
		Expect(e.conns["db"].StatementTexts()).To(BeEmpty())
	})

	It("skips the scenario body when its condition is false", func() {
		e := newTestEnv("src", "dst")
		s := mustParse(customersYaml + `condition: {"==": [{"var": "RUN"}, "yes"]}
variables:
  - name: RUN
    value: "no"
`)
		resp := e.execute(s)
		Expect(resp.OK()).To(BeTrue())
		Expect(e.conns["src"].StatementTexts()).To(BeEmpty())
		Expect(e.conns["dst"].StatementTexts()).To(BeEmpty())
	})
})

var _ = Describe("Loops", func() {
	It("runs the body once per batch of driving rows", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from keys", idRows(1, 7))
		resp := e.execute(mustParse(`
name: looped
driver: mock
loop:
  connection: db
  code: select ID from keys
  count: 3
  variable: IDS
sources:
  - name: probe
    connection: db
    sql: select ID from t where id in (${IDS})
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(statementsLike(e.conns["db"], "select ID from t")).To(Equal([]string{
			"select ID from t where id in (1,2,3)",
			"select ID from t where id in (4,5,6)",
			"select ID from t where id in (7)",
		}))
	})

	It("runs a script loop until the sentinel is returned", func() {
		e := newTestEnv("db")
		resp := e.execute(mustParse(`
name: scripted
driver: mock
loop:
  code: {"if": [{"<": [{"var": "iteration"}, 5]}, {"var": "iteration"}, "NO_MORE_ITERATIONS"]}
  count: 2
  variable: N
sources:
  - name: probe
    connection: db
    sql: select ${N} from dual
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{
			"select 0,1 from dual",
			"select 2,3 from dual",
			"select 4 from dual",
		}))
	})

	It("stops a script loop that never ends", func() {
		e := newTestEnv("db")
		e.proc.cfg.Defaults.MaxScriptLoopIterations = 10
		resp := e.execute(mustParse(`
name: endless
driver: mock
loop:
  code: {"var": "iteration"}
  variable: N
sources:
  - name: probe
    connection: db
    sql: select ${N} from dual
`))
		Expect(resp.ReturnCode).To(Equal(ReturnError))
		Expect(resp.Error).To(ContainSubstring("exceeded 10 iterations"))
	})
})

var _ = Describe("Extraction", func() {
	It("keeps the rows added before a rejected row and carries on", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from nums", idRows(1, 5))
		ec := e.context(mustParse(`
name: filtered
driver: mock
sources:
  - name: nums
    connection: db
    sql: select ID from nums
    tasks:
      - class: JsonLogicFilter
        scope: [inline]
        code: {"!=": [{"var": "ID"}, 3]}
`))
		Expect(newExtractor(ec).Extract(context.Background())).To(Succeed())
		Expect(ids(ec.arena.dataset("nums"))).To(Equal([]string{"1", "2", "4", "5"}))
	})

	It("keeps only the rows before an inline stop", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from nums", idRows(1, 5))
		ec := e.context(mustParse(`
name: stopped
driver: mock
sources:
  - name: nums
    connection: db
    sql: select ID from nums
    tasks:
      - class: JsonLogicFilter
        scope: [inline]
        code: {"<": [{"var": "ID"}, 3]}
        params:
          onFalse: stop
`))
		Expect(newExtractor(ec).Extract(context.Background())).To(Succeed())
		Expect(ids(ec.arena.dataset("nums"))).To(Equal([]string{"1", "2"}))
	})

	It("gives the same datasets in parallel and in sequence", func() {
		const y = `
name: fanout
driver: mock
parallel:
  sources: %v
sources:
  - name: t1
    connection: db
    sql: select ID from t1
    parallel: true
  - name: t2
    connection: db
    sql: select ID from t2
    parallel: true
  - name: barrier
  - name: t3
    connection: db
    sql: select ID from t3
    parallel: true
  - name: t4
    connection: db
    sql: select ID from t4
    parallel: true
`
		extract := func(degree int) map[string][]string {
			e := newTestEnv("db")
			re := regexp.MustCompile(`from t(\d)`)
			e.conns["db"].AddQueryFunc("from t", func(q string, _ []interface{}) (*shared.MockResultSet, error) {
				var n int
				_, err := fmt.Sscanf(re.FindStringSubmatch(q)[1], "%d", &n)
				return idRows(n, n*10), err
			})
			ec := e.context(mustParse(fmt.Sprintf(y, degree)))
			Expect(newExtractor(ec).Extract(context.Background())).To(Succeed())
			retval := make(map[string][]string)
			for _, name := range []string{"t1", "t2", "t3", "t4"} {
				retval[name] = values(ec.arena.dataset(name))
			}
			return retval
		}
		parallel := extract(4)
		Expect(parallel["t4"]).To(HaveLen(37))
		Expect(parallel).To(Equal(extract(1)))
	})

	It("gives the same dataset when a source is extracted again", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from customers", &shared.MockResultSet{
			Columns: []string{"ID", "NAME"},
			Rows:    [][]interface{}{{1, "a"}, {2, "b"}},
		})
		ec := e.context(mustParse(`
name: again
driver: mock
sources:
  - name: customers
    connection: db
    sql: select ID, NAME from customers
`))
		src, _ := ec.scenario.GetSource("customers")
		x := newExtractor(ec)
		ds, err := x.extract(context.Background(), src, "", nil)
		Expect(err).NotTo(HaveOccurred())
		first := values(ds)
		ds, err = x.extract(context.Background(), src, "", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(values(ds)).To(Equal(first))
		Expect(first).To(HaveLen(4))
	})

	It("ignores a failing source when its policy says so", func() {
		e := newTestEnv("db")
		e.conns["db"].AddExecError("from broken", errors.New("no such table"))
		ec := e.context(mustParse(`
name: tolerant
driver: mock
sources:
  - name: broken
    connection: db
    sql: select ID from broken
    exception:
      onException: ignore
      masks: ["no such table"]
`))
		Expect(newExtractor(ec).Extract(context.Background())).To(Succeed())
		_, ok := ec.arena.extractedDataSet("broken")
		Expect(ok).To(BeTrue())
	})
})

const streamingYaml = `
name: streaming
driver: mock
sources:
  - name: M
    connection: db
    sql: select 1 as M
    mandatory: true
  - name: A
  - name: B
    connection: db
    sql: select ID from b
  - name: C
    connection: db
    sql: select ID from c
destinations:
  - name: D1
    source: B
    connection: db
    object: d1
  - name: D2
    source: C
    connection: db
    object: d2
    stream: true
    then: update d2_log set loaded = 1
`

var _ = Describe("Loading", func() {
	It("extracts mandatory sources first and streams rows one at a time", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("select 1 as M", &shared.MockResultSet{Columns: []string{"M"}, Rows: [][]interface{}{{1}}})
		e.conns["db"].AddQueryResult("from b", idRows(1, 3))
		e.conns["db"].AddQueryResult("from c", idRows(1, 3))
		ec := e.context(mustParse(streamingYaml))
		Expect(ec.runSelf(context.Background())).To(Succeed())
		Expect(e.conns["db"].StatementTexts()).To(Equal([]string{
			"select 1 as M",
			"select ID from b",
			"insert into d1 (ID) values (:1),(:2),(:3)",
			"select ID from c",
			"insert into d2 (ID) values (:1)",
			"insert into d2 (ID) values (:1)",
			"insert into d2 (ID) values (:1)",
			"update d2_log set loaded = 1",
		}))
		Expect(maxBuffered(ec.x.stats, "destination:D2")).To(Equal(1))
		Expect(maxBuffered(ec.x.stats, "source:C")).To(Equal(1))
		Expect(ec.arena.dataset("C").MaxBuffered()).To(Equal(0))
		Expect(ec.arena.dataset("B").MaxBuffered()).To(Equal(3))
		Expect(ec.arena.dataset("B").Len()).To(Equal(0))
	})

	It("reads a streamed source on a transaction of its own", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("select 1 as M", &shared.MockResultSet{Columns: []string{"M"}, Rows: [][]interface{}{{1}}})
		e.conns["db"].AddQueryResult("from b", idRows(1, 1))
		e.conns["db"].AddQueryResult("from c", idRows(1, 2))
		ec := e.context(mustParse(streamingYaml))
		Expect(ec.runSelf(context.Background())).To(Succeed())
		tx := map[string]int{}
		for _, s := range e.conns["db"].Statements() {
			tx[s.Query] = s.TxId
		}
		Expect(tx["select ID from c"]).NotTo(Equal(tx["insert into d2 (ID) values (:1)"]))
		Expect(tx["select ID from b"]).To(Equal(tx["insert into d2 (ID) values (:1)"]))
	})

	It("keeps GLOBAL destinations in order and never batches a SINGLE one", func() {
		e := newTestEnv("db")
		for _, n := range []string{"a", "b", "c", "d"} {
			e.conns["db"].AddQueryResult("from "+n+"$", idRows(1, 1))
		}
		ec := e.context(mustParse(`
name: ordered
driver: mock
sources:
  - {name: A, connection: db, sql: select ID from a}
  - {name: B, connection: db, sql: select ID from b}
  - {name: C, connection: db, sql: select ID from c}
  - {name: D, connection: db, sql: select ID from d}
destinations:
  - {name: A, connection: db, object: a}
  - {name: B, connection: db, object: b}
  - {name: C, connection: db, object: c, scope: single}
  - {name: D, connection: db, object: d}
`))
		Expect(ec.runSelf(context.Background())).To(Succeed())
		Expect(statementsLike(e.conns["db"], "insert")).To(Equal([]string{
			"insert into a (ID) values (:1)",
			"insert into b (ID) values (:1)",
			"insert into c (ID) values (:1)",
			"insert into d (ID) values (:1)",
		}))
	})

	It("releases a shared source only after its last destination", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from customers", idRows(1, 2))
		ec := e.context(mustParse(`
name: shared
driver: mock
sources:
  - name: customers
    connection: db
    sql: select ID from customers
destinations:
  - name: customers
    connection: db
    object: dw.customers
  - name: copy
    source: customers
    connection: db
    object: dw.customers_copy
`))
		Expect(ec.arena.usageCount("customers")).To(Equal(int64(2)))
		Expect(ec.runSelf(context.Background())).To(Succeed())
		Expect(ec.arena.usageCount("customers")).To(Equal(int64(0)))
		Expect(statementsLike(e.conns["db"], "insert")).To(Equal([]string{
			"insert into dw.customers (ID) values (:1),(:2)",
			"insert into dw.customers_copy (ID) values (:1),(:2)",
		}))
	})

	It("decrements usage counters exactly once per release under concurrency", func() {
		var dests string
		for i := 0; i < 50; i++ {
			dests += fmt.Sprintf("  - {name: d%v, source: s, connection: db, object: t%v}\n", i, i)
		}
		e := newTestEnv("db")
		ec := e.context(mustParse("name: busy\ndriver: mock\nsources:\n  - {name: s, connection: db, sql: select 1}\ndestinations:\n" + dests))
		Expect(ec.arena.usageCount("s")).To(Equal(int64(50)))
		var zeros int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ec.arena.release("s") == 0 {
					atomic.AddInt32(&zeros, 1)
				}
			}()
		}
		wg.Wait()
		Expect(ec.arena.usageCount("s")).To(Equal(int64(0)))
		Expect(zeros).To(Equal(int32(1)))
	})

	It("skips destinations with a writer when the persist policy is SKIP", func() {
		e := newTestEnv("db")
		e.conns["db"].AddQueryResult("from customers", idRows(1, 2))
		resp := e.execute(mustParse(`
name: skipped
driver: mock
onPersist: skip
sources:
  - name: customers
    connection: db
    sql: select ID from customers
destinations:
  - name: customers
    connection: db
    writer: log
`))
		Expect(resp.Error).To(BeEmpty())
		Expect(statementsLike(e.conns["db"], "insert")).To(BeEmpty())
	})
})

// partialScenario is built in code and never marked ready.
func partialScenario() *scenario.Scenario {
	s := scenario.New("partial")
	s.DriverName = "mock"
	s.AddSource(&scenario.Source{BlockCore: scenario.BlockCore{Name: "raw", ConnectionName: "db"}, SQL: "select 1 from dual"})
	return s
}

type countingCache struct {
	cleared int32
}

func (c *countingCache) Clear() {
	atomic.AddInt32(&c.cleared, 1)
}
