package sel

import (
	"sync"
	"sync/atomic"

	"github.com/oarkflow/sel/logger"
	"github.com/oarkflow/sel/metrics"
)

// CompilerMode controls whether and when an expression is promoted from the
// interpreter to its compiled form.
type CompilerMode int

const (
	// CompileOff never compiles; every evaluation interprets the AST.
	CompileOff CompilerMode = iota
	// CompileImmediate compiles after the first successful interpreted
	// evaluation. Runtime failures of the compiled form surface to the
	// caller.
	CompileImmediate
	// CompileMixed compiles after PromotionThreshold successful interpreted
	// evaluations. Runtime failures of the compiled form revert the
	// expression to interpretation and the same call re-interprets.
	CompileMixed
)

const (
	defaultPromotionThreshold = 100
	defaultMaxCompileAttempts = 100
)

// Config carries evaluation and compilation settings shared by all
// evaluations of an Expression.
type Config struct {
	Mode CompilerMode

	// PromotionThreshold is the number of successful interpreted evaluations
	// before CompileMixed attempts compilation. Zero means the default of 100.
	PromotionThreshold int

	// MaxCompileAttempts caps failed compilation attempts before the
	// expression is pinned to interpretation. Zero means the default of 100.
	MaxCompileAttempts int

	Logger logger.Logger
}

func (c *Config) normalized() *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	if out.PromotionThreshold <= 0 {
		out.PromotionThreshold = defaultPromotionThreshold
	}
	if out.MaxCompileAttempts <= 0 {
		out.MaxCompileAttempts = defaultMaxCompileAttempts
	}
	if out.Logger == nil {
		out.Logger = logger.NewNullLogger()
	}
	return out
}

// Expression is a parsed, reusable expression. It is safe for concurrent
// evaluation: per-call state lives in a State or Activation, and the
// promotion bookkeeping is atomic.
type Expression struct {
	source string
	root   Node
	config *Config

	compiled         atomic.Pointer[CompiledExpression]
	interpretedCount atomic.Int64
	failedAttempts   atomic.Int64
	pinned           atomic.Bool
	promoteMu        sync.Mutex
}

// Source returns the expression text this Expression was parsed from.
func (e *Expression) Source() string { return e.source }

// AST returns the root node, mainly for inspection and testing.
func (e *Expression) AST() Node { return e.root }

func (e *Expression) String() string { return e.root.String() }

// GetValue evaluates the expression against root in ctx. A compiled form is
// used when one exists; otherwise the AST is interpreted and, depending on
// the compiler mode, the expression may be promoted afterwards.
func (e *Expression) GetValue(ctx EvaluationContext, root any) (any, error) {
	reverted := false
	if ce := e.compiled.Load(); ce != nil {
		v, err := ce.GetValue(ctx, root)
		if err == nil {
			metrics.Evaluations.WithLabelValues("compiled").Inc()
			return v, nil
		}
		if e.config.Mode == CompileImmediate {
			metrics.EvaluationErrors.WithLabelValues("compiled").Inc()
			return nil, err
		}
		// Mixed mode self-heals: drop the compiled form, start counting
		// again, and serve this call from the interpreter.
		e.revert(ce, err)
		reverted = true
	}

	v, err := e.interpret(ctx, root)
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues("interpreted").Inc()
		return nil, err
	}
	metrics.Evaluations.WithLabelValues("interpreted").Inc()
	// A freshly reverted expression stays interpreted for the rest of this
	// call; counting resumes on the next one.
	if !reverted {
		e.maybePromote()
	}
	return v, nil
}

func (e *Expression) interpret(ctx EvaluationContext, root any) (any, error) {
	s := newState(ctx, NewTypedValue(root), e.config)
	v, err := e.root.GetValue(s)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

func (e *Expression) revert(ce *CompiledExpression, cause error) {
	if e.compiled.CompareAndSwap(ce, nil) {
		e.interpretedCount.Store(0)
		e.failedAttempts.Store(0)
		metrics.CompileReverts.Inc()
		e.config.Logger.Warn("compiled expression reverted to interpretation",
			logger.Field{Key: "expression", Value: e.source},
			logger.Field{Key: "routine", Value: ce.Name()},
			logger.Field{Key: "error", Value: cause.Error()},
		)
	}
}

func (e *Expression) maybePromote() {
	if e.config.Mode == CompileOff || e.pinned.Load() || e.compiled.Load() != nil {
		return
	}
	count := e.interpretedCount.Add(1)
	switch e.config.Mode {
	case CompileImmediate:
		// One successful interpreted pass is enough.
	case CompileMixed:
		if count < int64(e.config.PromotionThreshold) {
			return
		}
	default:
		return
	}

	e.promoteMu.Lock()
	defer e.promoteMu.Unlock()
	if e.pinned.Load() || e.compiled.Load() != nil {
		return
	}
	ce, err := (&Compiler{}).Compile(e.root)
	if err != nil {
		metrics.Compilations.WithLabelValues("failure").Inc()
		if e.failedAttempts.Add(1) >= int64(e.config.MaxCompileAttempts) {
			e.pinned.Store(true)
			e.config.Logger.Debug("expression pinned to interpretation",
				logger.Field{Key: "expression", Value: e.source},
			)
		}
		return
	}
	metrics.Compilations.WithLabelValues("success").Inc()
	e.config.Logger.Debug("expression promoted to compiled form",
		logger.Field{Key: "expression", Value: e.source},
		logger.Field{Key: "routine", Value: ce.Name()},
	)
	e.compiled.Store(ce)
}

// CompileNow forces a compilation attempt regardless of mode or counters
// and reports whether the expression is now compiled. At least one
// interpreted evaluation must have happened for compilation to succeed.
func (e *Expression) CompileNow() bool {
	if e.compiled.Load() != nil {
		return true
	}
	e.promoteMu.Lock()
	defer e.promoteMu.Unlock()
	if e.compiled.Load() != nil {
		return true
	}
	ce, err := (&Compiler{}).Compile(e.root)
	if err != nil {
		metrics.Compilations.WithLabelValues("failure").Inc()
		return false
	}
	metrics.Compilations.WithLabelValues("success").Inc()
	e.compiled.Store(ce)
	return true
}

// IsCompiled reports whether the expression currently runs compiled.
func (e *Expression) IsCompiled() bool {
	return e.compiled.Load() != nil
}

// SetValue assigns v to the location the expression designates. Assignment
// always interprets; read-only contexts reject the write.
func (e *Expression) SetValue(ctx EvaluationContext, root any, v any) error {
	if ro, ok := ctx.(interface{ isReadOnly() bool }); ok && ro.isReadOnly() {
		return newEvalError(0, CodeNotAssignable)
	}
	s := newState(ctx, NewTypedValue(root), e.config)
	return e.root.SetValue(s, v)
}

// IsWritable reports whether SetValue against this root could succeed.
func (e *Expression) IsWritable(ctx EvaluationContext, root any) (bool, error) {
	s := newState(ctx, NewTypedValue(root), e.config)
	return e.root.IsWritable(s)
}
