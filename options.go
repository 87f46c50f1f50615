package stepflow

import (
	"log/slog"
	"maps"
	"time"
)

// Option configures a Workflow.
type Option func(*config)

type config struct {
	name            string
	logger          *slog.Logger
	observers       []Observer
	initial         map[string]any
	threadPoolSize  int
	processPoolSize int
}

func newConfig(opts []Option) *config {
	cfg := &config{initial: map[string]any{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *config) observer() Observer {
	obs := append([]Observer(nil), c.observers...)
	if c.logger != nil {
		obs = append([]Observer{NewLoggingObserver(c.logger)}, obs...)
	}
	return NewCompositeObserver(obs...)
}

// WithName sets the workflow name reported to observers.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger logs workflow, scope and step events to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(obs Observer) Option {
	return func(c *config) {
		if obs != nil {
			c.observers = append(c.observers, obs)
		}
	}
}

// WithInitialValues seeds the state at construction.
func WithInitialValues(values map[string]any) Option {
	return func(c *config) { maps.Copy(c.initial, values) }
}

// WithThreadPoolSize bounds the shared pool used by ModeThread parallel steps.
func WithThreadPoolSize(n int) Option {
	return func(c *config) { c.threadPoolSize = n }
}

// WithProcessPoolSize bounds the isolated pool used by ModeProcess parallel steps.
func WithProcessPoolSize(n int) Option {
	return func(c *config) { c.processPoolSize = n }
}

// StepOption configures a step at registration.
type StepOption func(*stepConfig)

type stepConfig struct {
	scope           Scope
	name            string
	timeout         time.Duration
	retries         int
	backoff         Backoff
	continueOnError bool
}

func applyStepOptions(opts []StepOption) *stepConfig {
	sc := &stepConfig{scope: ScopeNormal}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

func (sc *stepConfig) build(a Action) *Step {
	s := &Step{
		Name:            a.Name,
		Fn:              a.Fn,
		Params:          append([]string(nil), a.Params...),
		Timeout:         sc.timeout,
		Retries:         sc.retries,
		Backoff:         sc.backoff,
		ContinueOnError: sc.continueOnError,
	}
	if sc.name != "" {
		s.Name = sc.name
	}
	return s
}

// Named overrides the step name.
func Named(name string) StepOption {
	return func(sc *stepConfig) { sc.name = name }
}

// InScope selects the scope a step is registered in.
func InScope(scope Scope) StepOption {
	return func(sc *stepConfig) { sc.scope = scope }
}

// Timeout bounds each attempt of the step.
func Timeout(d time.Duration) StepOption {
	return func(sc *stepConfig) { sc.timeout = d }
}

// Retries sets the number of extra attempts after a failure.
// Negative values are treated as 0.
func Retries(n int) StepOption {
	return func(sc *stepConfig) { sc.retries = max(n, 0) }
}

// WithRetry applies a RetryBuilder: its retry count and backoff.
func WithRetry(r RetryBuilder) StepOption {
	return func(sc *stepConfig) {
		sc.retries = r.retries
		sc.backoff = r.Backoff()
	}
}

// ContinueOnError keeps the scope running when this step fails.
func ContinueOnError() StepOption {
	return func(sc *stepConfig) { sc.continueOnError = true }
}
