// Package engine provides the Lisp evaluation engine for threadforge scripts.
// It wraps zygomys in a sandboxed environment and produces a Program: the
// presets a script defines and the thread and calibration jobs it requests.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/thread"
	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// JobKind distinguishes single threads from calibration batches.
type JobKind int

const (
	JobThread JobKind = iota
	JobCalibrate
)

func (k JobKind) String() string {
	switch k {
	case JobThread:
		return "thread"
	case JobCalibrate:
		return "calibrate"
	}
	return fmt.Sprintf("JobKind(%d)", int(k))
}

// Job is one build requested by a script. Count and Steps are only used by
// calibration jobs.
type Job struct {
	Kind   JobKind
	Spec   thread.Spec
	Origin r3.Vec
	Count  int
	Steps  thread.Steps
}

// Program is the result of evaluating a script. Presets holds the starting
// catalog plus every preset the script defined.
type Program struct {
	Presets *thread.Catalog
	Jobs    []Job
}

// Engine wraps the zygomys interpreter for threadforge evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	catalog  *thread.Catalog
	defaults thread.Preset
	log      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatalog sets the presets visible to scripts. The engine never
// modifies c; each evaluation works on a clone.
func WithCatalog(c *thread.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithDefaults sets the dimensions used for anything a script leaves out.
func WithDefaults(p thread.Preset) Option {
	return func(e *Engine) { e.defaults = p }
}

// WithLogger sets the logger for evaluation events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{defaults: thread.DefaultPreset}
	for _, fn := range opts {
		fn(e)
	}
	if e.catalog == nil {
		e.catalog = thread.NewCatalog()
	}
	e.log = logging.OrNop(e.log)
	return e
}

// Evaluate takes Lisp source code and produces a new Program.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns program + nil errors + nil error
//   - On parse/eval failure: returns nil program + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Program, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		p, evalErrs, err := e.evaluate(source)
		ch <- evalResult{program: p, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Program, []EvalError, error) {
	prog := &Program{Presets: e.catalog.Clone()}

	// Empty source is a valid program with no jobs.
	if strings.TrimSpace(source) == "" {
		return prog, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, prog, e.defaults)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		evalErrs := parseZygomysError(err)
		e.log.Debug("script failed to parse", zap.Int("errors", len(evalErrs)))
		return nil, evalErrs, nil
	}

	if _, err := env.Run(); err != nil {
		evalErrs := parseZygomysError(err)
		e.log.Debug("script failed", zap.String("error", evalErrs[0].Message))
		return nil, evalErrs, nil
	}

	e.log.Debug("script evaluated", zap.Int("jobs", len(prog.Jobs)))
	return prog, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
