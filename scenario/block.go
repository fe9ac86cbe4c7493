package scenario

import (
	"fmt"
	"regexp"

	om "github.com/cevaris/ordered_map"
)

// Block is the behaviour shared by sources and destinations.
type Block interface {
	GetName() string
	GetConnectionName() string
	GetDriverName() string
	GetVariables() *om.OrderedMap
	GetTasks() []*Task
	IsEnabled() bool
	IsParallel() bool
	IsEncoded() bool
	GetExceptionPolicy() *ExceptionPolicy
	GetConditionPolicy() *ConditionPolicy
}

// BlockCore holds the fields common to every Block.
type BlockCore struct {
	Name           string
	ConnectionName string
	DriverName     string
	Disabled       bool
	Parallel       bool
	Empty          bool // the dataset is expected to be empty, e.g. DDL only.
	Encoded        bool
	Variables      *om.OrderedMap // name -> *Variable
	Tasks          []*Task        // declaration order.
	Exception      *ExceptionPolicy
	Condition      *ConditionPolicy
}

func (b *BlockCore) GetName() string                     { return b.Name }
func (b *BlockCore) GetConnectionName() string           { return b.ConnectionName }
func (b *BlockCore) GetDriverName() string               { return b.DriverName }
func (b *BlockCore) GetTasks() []*Task                   { return b.Tasks }
func (b *BlockCore) IsEnabled() bool                     { return !b.Disabled }
func (b *BlockCore) IsParallel() bool                    { return b.Parallel }
func (b *BlockCore) IsEncoded() bool                     { return b.Encoded }
func (b *BlockCore) GetExceptionPolicy() *ExceptionPolicy { return b.Exception }
func (b *BlockCore) GetConditionPolicy() *ConditionPolicy { return b.Condition }

func (b *BlockCore) GetVariables() *om.OrderedMap {
	if b.Variables == nil {
		b.Variables = om.NewOrderedMap()
	}
	return b.Variables
}

// TasksWithDeclaredScope returns the tasks whose declared scope includes s.
// Tasks without a declared scope are not returned; their defaults are known only to the task implementation.
func (b *BlockCore) TasksWithDeclaredScope(s TaskScope) []*Task {
	var retval []*Task
	for _, t := range b.Tasks {
		if t.Scope.Has(s) {
			retval = append(retval, t)
		}
	}
	return retval
}

// ExceptionPolicy classifies errors raised while running a block.
type ExceptionPolicy struct {
	OnException       ExceptionAction
	Masks             []string // regular expressions; an error whose text matches is ignored.
	IgnoreParseErrors bool
	Savepoint         bool // wrap the block in a savepoint so an ignored error undoes only its work.
	masks             []*regexp.Regexp
}

// Compile prepares the masks. It must be called before Handle.
func (p *ExceptionPolicy) Compile() error {
	p.masks = make([]*regexp.Regexp, 0, len(p.Masks))
	for _, m := range p.Masks {
		re, err := regexp.Compile(m)
		if err != nil {
			return fmt.Errorf("bad exception mask %q: %w", m, err)
		}
		p.masks = append(p.masks, re)
	}
	return nil
}

// Handle decides whether err is raised or ignored.
// A nil policy always raises.
func (p *ExceptionPolicy) Handle(err error, isParseError bool) ExceptionAction {
	if p == nil || err == nil {
		return ExceptionRaise
	}
	if isParseError && p.IgnoreParseErrors {
		return ExceptionIgnore
	}
	for _, re := range p.masks {
		if re.MatchString(err.Error()) {
			return ExceptionIgnore
		}
	}
	return p.OnException
}

// ConditionPolicy gates execution of a block or scenario on a script.
// An empty Code means the condition is always satisfied.
type ConditionPolicy struct {
	Code     string
	Language string
}

func (c *ConditionPolicy) IsSet() bool {
	return c != nil && c.Code != ""
}
