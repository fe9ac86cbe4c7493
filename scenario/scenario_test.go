package scenario_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/etl-engine/scenario"
)

const customersYaml = `
name: customers
driver: postgres
action: extract_load
parallel:
  sources: 2
  connections: true
variables:
  - name: REGION
    value: EU
  - name: RUN_ID
    source: function
    code: id
sources:
  - name: barrier
  - name: customers
    connection: src
    sql: select id, name from customers where region = :REGION
    parallel: true
  - name: lookup
    connection: src
    sql: select 1 as x
    mandatory: true
    exception:
      onException: ignore
      masks: ["duplicate key"]
destinations:
  - name: customers
    connection: dst
    object: dw.customers
    loadAction: merge
    loadKey: [id]
    tasks:
      - class: SqlExec
        scope: [pre, post]
        code: truncate table dw.stage
  - name: wait
    type: wait
  - name: orphan
    connection: dst
    object: dw.orphan
    source: ""
    stream: true
execute:
  - name: inner_ref
    runInParallel: true
  - name: inner_full
    sources:
      - name: s
        connection: src
        sql: select 1
`

var _ = Describe("Scenario definitions", func() {
	var s *scenario.Scenario

	BeforeEach(func() {
		var err error
		s, err = scenario.Parse([]byte(customersYaml), "customers.yaml")
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps declaration order and marks the scenario ready", func() {
		Expect(s.IsReady()).To(BeTrue())
		Expect(s.ScriptName).To(Equal("customers.yaml"))
		names := []string{}
		for _, src := range s.SourceList() {
			names = append(names, src.Name)
		}
		Expect(names).To(Equal([]string{"barrier", "customers", "lookup"}))
		Expect(s.Action).To(Equal(scenario.ActionExtractLoad))
		Expect(s.Parallel.Sources).To(Equal(2))
		Expect(s.Parallel.Connections).To(BeTrue())
	})

	It("binds destinations to sources of the same name unless told otherwise", func() {
		d, ok := s.GetDestination("customers")
		Expect(ok).To(BeTrue())
		Expect(d.SourceName).To(Equal("customers"))
		Expect(d.LoadAction).To(Equal(scenario.LoadMerge))
		o, _ := s.GetDestination("orphan")
		Expect(o.SourceName).To(Equal(""))
		Expect(o.IsSingle()).To(BeTrue())
		src, _ := s.GetSource("customers")
		Expect(s.UsageCount(src)).To(Equal(1))
		bound := s.DestinationsFor(src)
		Expect(bound).To(HaveLen(1))
		Expect(bound[0].Name).To(Equal("customers"))
	})

	It("recognises stubs, waits and mandatory sources", func() {
		b, _ := s.GetSource("barrier")
		Expect(b.IsStub()).To(BeTrue())
		c, _ := s.GetSource("customers")
		Expect(c.IsStub()).To(BeFalse())
		w, _ := s.GetDestination("wait")
		Expect(w.IsWait()).To(BeTrue())
		Expect(s.MandatorySources()).To(Equal([]string{"lookup"}))
	})

	It("parses tasks with explicit scope", func() {
		d, _ := s.GetDestination("customers")
		Expect(d.Tasks).To(HaveLen(1))
		t := d.Tasks[0]
		Expect(t.Name).To(Equal("SqlExec#1"))
		Expect(t.Scope.Has(scenario.TaskScopePre)).To(BeTrue())
		Expect(t.Scope.Has(scenario.TaskScopePost)).To(BeTrue())
		Expect(t.Scope.Has(scenario.TaskScopeInline)).To(BeFalse())
		Expect(d.TasksWithDeclaredScope(scenario.TaskScopePost)).To(HaveLen(1))
		Expect(t.Code).To(Equal("truncate table dw.stage"))
	})

	It("applies exception masks", func() {
		l, _ := s.GetSource("lookup")
		p := l.GetExceptionPolicy()
		Expect(p.Handle(errors.New("ERROR: duplicate key value"), false)).To(Equal(scenario.ExceptionIgnore))
		Expect(p.Handle(errors.New("boom"), false)).To(Equal(scenario.ExceptionIgnore))
		var none *scenario.ExceptionPolicy
		Expect(none.Handle(errors.New("boom"), true)).To(Equal(scenario.ExceptionRaise))
		strict := &scenario.ExceptionPolicy{Masks: []string{"^dup"}}
		Expect(strict.Compile()).To(Succeed())
		Expect(strict.Handle(errors.New("dup row"), false)).To(Equal(scenario.ExceptionIgnore))
		Expect(strict.Handle(errors.New("other"), false)).To(Equal(scenario.ExceptionRaise))
	})

	It("keeps name-only inner scenarios structure-only", func() {
		Expect(s.Execute).To(HaveLen(2))
		Expect(s.Execute[0].IsReady()).To(BeFalse())
		Expect(s.Execute[0].IsParallel).To(BeTrue())
		Expect(s.Execute[1].IsReady()).To(BeTrue())
	})

	It("validates without raising", func() {
		r := s.Validate()
		Expect(r.OK()).To(BeTrue(), r.Error())
		bad := scenario.New("")
		bad.AddDestination(&scenario.Destination{BlockCore: scenario.BlockCore{Name: "d"}, LoadAction: scenario.LoadUpdate})
		r = bad.Validate()
		Expect(r.Codes()).To(ContainElement(scenario.ErrMissingName))
		Expect(r.Codes()).To(ContainElement(scenario.ErrMissingObjectName))
		Expect(r.Codes()).To(ContainElement(scenario.ErrMissingLoadKey))
	})

	It("groups destinations by connection unit in first-seen order", func() {
		ds := []*scenario.Destination{
			{BlockCore: scenario.BlockCore{Name: "a", ConnectionName: "c1"}},
			{BlockCore: scenario.BlockCore{Name: "b", ConnectionName: "c2"}},
			{BlockCore: scenario.BlockCore{Name: "c", ConnectionName: "c1"}},
		}
		order, groups := scenario.GroupDestinations(ds, func(*scenario.Destination) string { return "pg" })
		Expect(order).To(Equal([]scenario.EtlUnit{{ConnectionName: "c1", DriverName: "pg"}, {ConnectionName: "c2", DriverName: "pg"}}))
		Expect(groups[order[0]]).To(HaveLen(2))
		Expect(groups[order[0]][1].Name).To(Equal("c"))
		Expect(order[0].String()).To(Equal("c1/pg"))
	})
})

var _ = Describe("Repositories", func() {
	It("loads from files and reports missing scenarios", func() {
		dir, err := os.MkdirTemp("", "scenarios")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		Expect(os.WriteFile(filepath.Join(dir, "customers.yml"), []byte(customersYaml), 0600)).To(Succeed())
		r := &scenario.FileRepository{Dir: dir}
		s1, err := r.Load("customers")
		Expect(err).NotTo(HaveOccurred())
		s2, _ := r.Load("customers")
		Expect(s1).NotTo(BeIdenticalTo(s2))
		_, err = r.Load("nope")
		Expect(err).To(MatchError(scenario.NotFoundError{Name: "nope"}))
	})

	It("builds fresh graphs from memory", func() {
		r := scenario.NewMemoryRepository()
		Expect(r.AddYaml([]byte(customersYaml))).To(Succeed())
		s, err := r.Load("customers")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Sources.Len()).To(Equal(3))
		Expect(r.AddYaml([]byte("name: x\naction: sideways\n"))).NotTo(Succeed())
	})
})

var _ = Describe("Enums", func() {
	It("parses actions and scopes", func() {
		a, err := scenario.ParseAction("extract")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Includes(scenario.ActionExtract)).To(BeTrue())
		Expect(a.Includes(scenario.ActionLoad)).To(BeFalse())
		Expect(scenario.ActionNothing.Includes(scenario.ActionNothing)).To(BeFalse())
		sc, err := scenario.ParseTaskScope([]string{"inline", "before-etl"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sc).To(Equal(scenario.TaskScopeInline | scenario.TaskScopeBeforeEtl))
		_, err = scenario.ParseTaskScope([]string{"never"})
		Expect(err).To(HaveOccurred())
		Expect(scenario.PolicyParent.Resolve(scenario.PolicySkip)).To(Equal(scenario.PolicySkip))
	})
})
