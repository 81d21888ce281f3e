package errs

import "log"

// Decision is the outcome the dispatcher returns for one classified failure.
type Decision struct {
	Recovered         bool
	PartialResult     bool
	RetryAfterSeconds float64
	ShouldRetry       bool
	ShouldAlert       bool
	Message           string
}

// Context carries the call-site information the dispatcher needs to log and
// decide a strategy: component, operation, free-form context, and the
// current retry attempt against its ceiling.
type Context struct {
	Component  string
	Operation  string
	Extra      map[string]any
	AttemptN   int
	MaxRetries int
}

// Strategy decides the recovery Decision for one Kind. Strategies are
// registered objects so new recovery behavior can be added without touching
// the Dispatcher itself.
type Strategy interface {
	Handle(err *Error, ctx Context) Decision
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(err *Error, ctx Context) Decision

func (f StrategyFunc) Handle(err *Error, ctx Context) Decision { return f(err, ctx) }

// Dispatcher classifies incoming errors and routes them to a registered
// Strategy, logging a structured record for every decision.
type Dispatcher struct {
	strategies map[Kind]Strategy
	onAlert    func(kind Kind, component, message string, extra map[string]any)
	fallback   Strategy
}

// NewDispatcher builds a dispatcher with the default strategy set wired for
// every Kind in the closed taxonomy.
func NewDispatcher(onAlert func(kind Kind, component, message string, extra map[string]any)) *Dispatcher {
	d := &Dispatcher{
		strategies: make(map[Kind]Strategy),
		onAlert:    onAlert,
		fallback:   StrategyFunc(failFast),
	}
	d.Register(KindRateLimit, StrategyFunc(rateLimitWait))
	d.Register(KindConnection, StrategyFunc(retryWithBackoff))
	d.Register(KindTimeout, StrategyFunc(retryWithBackoff))
	d.Register(KindServerError, StrategyFunc(retryWithBackoff))
	d.Register(KindAuthentication, StrategyFunc(failFast))
	d.Register(KindParsing, StrategyFunc(partialSuccess))
	d.Register(KindValidation, StrategyFunc(partialSuccess))
	d.Register(KindDatabaseConstraint, StrategyFunc(silentSkip))
	d.Register(KindDatabaseConnection, StrategyFunc(retryWithBackoff))
	d.Register(KindDatabaseTimeout, StrategyFunc(retryWithBackoff))
	d.Register(KindDatabaseLock, StrategyFunc(retryWithBackoff))
	d.Register(KindConfiguration, StrategyFunc(failFast))
	d.Register(KindSystemResource, StrategyFunc(failFast))
	d.Register(KindCircuitOpen, StrategyFunc(failFast))
	d.Register(KindUnknown, StrategyFunc(failFast))
	return d
}

// Register installs or replaces the strategy for a kind.
func (d *Dispatcher) Register(kind Kind, s Strategy) {
	d.strategies[kind] = s
}

// Dispatch classifies err, selects its strategy, logs the decision, and
// alerts when the kind or decision calls for it.
func (d *Dispatcher) Dispatch(err error, ctx Context) Decision {
	ce := As(err)
	strat, ok := d.strategies[ce.Kind]
	if !ok {
		strat = d.fallback
	}
	decision := strat.Handle(ce, ctx)
	if decision.RetryAfterSeconds == 0 && ce.RetryAfter > 0 {
		decision.RetryAfterSeconds = ce.RetryAfter
	}

	log.Printf("[errs] component=%s operation=%s kind=%s severity=%s attempt=%d/%d msg=%s",
		ctx.Component, ctx.Operation, ce.Kind, ce.Kind.Severity(), ctx.AttemptN, ctx.MaxRetries, decision.Message)

	if (ce.Kind.ShouldAlert() || decision.ShouldAlert) && d.onAlert != nil {
		d.onAlert(ce.Kind, ctx.Component, decision.Message, ctx.Extra)
	}
	return decision
}

func rateLimitWait(err *Error, ctx Context) Decision {
	return Decision{
		ShouldRetry:       true,
		RetryAfterSeconds: err.RetryAfter,
		Message:           "rate limited, waiting before retry: " + err.Message,
	}
}

func retryWithBackoff(err *Error, ctx Context) Decision {
	retry := ctx.AttemptN < ctx.MaxRetries
	return Decision{
		ShouldRetry: retry,
		ShouldAlert: !retry,
		Message:     "transient failure: " + err.Message,
	}
}

func partialSuccess(err *Error, ctx Context) Decision {
	return Decision{
		Recovered:     true,
		PartialResult: true,
		Message:       "dropping invalid row: " + err.Message,
	}
}

func silentSkip(err *Error, ctx Context) Decision {
	return Decision{Recovered: true, Message: "duplicate row skipped: " + err.Message}
}

func failFast(err *Error, ctx Context) Decision {
	return Decision{
		ShouldAlert: err.Kind.ShouldAlert(),
		Message:     "non-recoverable: " + err.Message,
	}
}
