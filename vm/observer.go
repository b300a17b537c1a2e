package vm

import (
	"sort"

	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/op"
)

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled

	// StepOnLine calls OnStep when the source span of the current
	// instruction changes. Code without sequence points never triggers it.
	StepOnLine
)

// ObserverConfig specifies what events an observer wants to receive.
type ObserverConfig struct {
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	ObserveCalls   bool
	ObserveReturns bool
}

// NewObserverConfig creates a config that also observes calls and returns.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

// NormalizeConfig clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives execution events. Methods are called synchronously;
// returning false halts execution.
type Observer interface {
	Config() ObserverConfig
	OnStep(event StepEvent) bool
	OnCall(event CallEvent) bool
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes one instruction about to execute.
type StepEvent struct {
	Method     string
	IP         int
	Opcode     op.Code
	OpcodeName string
	// Span is the source span of the instruction, if the code has
	// sequence points.
	Span       bytecode.SourceSpan
	StackDepth int
	FrameDepth int
}

// CallEvent describes a function invocation.
type CallEvent struct {
	FunctionName string
	ArgCount     int
	FrameDepth   int
}

// ReturnEvent describes a function return.
type ReturnEvent struct {
	FunctionName string
	FrameDepth   int
}

// NoOpObserver implements Observer with no-op methods. Embed it to
// implement only the callbacks you need.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}

// OpcodeCounter counts executed instructions per opcode and calls per
// function.
type OpcodeCounter struct {
	NoOpObserver
	Opcodes map[string]int
	Calls   map[string]int
}

// NewOpcodeCounter returns an empty counter.
func NewOpcodeCounter() *OpcodeCounter {
	return &OpcodeCounter{Opcodes: map[string]int{}, Calls: map[string]int{}}
}

func (c *OpcodeCounter) OnStep(e StepEvent) bool {
	c.Opcodes[e.OpcodeName]++
	return true
}

func (c *OpcodeCounter) OnCall(e CallEvent) bool {
	c.Calls[e.FunctionName]++
	return true
}

// OpcodeCount is one row of OpcodeCounter.Top.
type OpcodeCount struct {
	Name  string
	Count int
}

// Top returns the n most executed opcodes, most frequent first.
func (c *OpcodeCounter) Top(n int) []OpcodeCount {
	rows := make([]OpcodeCount, 0, len(c.Opcodes))
	for name, count := range c.Opcodes {
		rows = append(rows, OpcodeCount{Name: name, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Name < rows[j].Name
	})
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}
