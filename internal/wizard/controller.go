package wizard

import (
	"context"
	"fmt"
	"sync"

	"gosegment/domain/core"
	"gosegment/internal/logging"

	"go.uber.org/zap"
)

// StepID names a wizard step
type StepID string

// State is the parameter state collected by a wizard. Clone must return a
// deep copy: actions run against a clone while the original stays editable.
type State[S any] interface {
	Clone() S
}

// Commit mutates the wizard state with the outcome of an action.
type Commit[S any] func(state *S)

// Action performs a step's asynchronous work against a settled snapshot of
// the state. The returned Commit is applied only if the wizard has not been
// closed, reset, cancelled or moved off the step since the action started.
type Action[S any] func(ctx context.Context, snapshot S) (Commit[S], error)

// Step is one entry of the ordered step list.
type Step[S any] struct {
	ID    StepID
	Title string

	// Gate decides whether Next is allowed from this step. nil allows it;
	// the last step never advances.
	Gate func(state S) bool

	// Action is triggered when the step is entered (subject to RunOnEnter)
	// and by explicit Run calls.
	Action Action[S]

	// RunOnEnter filters automatic triggering on entry. nil means always.
	RunOnEnter func(state S) bool

	// Clear discards the step's own result before each run.
	Clear func(state *S)
}

// Snapshot is a consistent copy of the controller for presentation.
type Snapshot[S any] struct {
	Step       StepID   `json:"step"`
	Index      int      `json:"index"`
	Steps      []StepID `json:"steps"`
	State      S        `json:"state"`
	Busy       bool     `json:"busy"`
	Error      string   `json:"error,omitempty"`
	CanAdvance bool     `json:"can_advance"`
	Closed     bool     `json:"closed"`
	Generation uint64   `json:"generation"`
}

// Controller is a finite-state machine over an ordered list of steps.
// It owns the step pointer and the state, runs at most one action at a
// time, and guards every action result with a generation token so that a
// late response can never mutate a state that was reset or discarded.
type Controller[S State[S]] struct {
	mu      sync.Mutex
	steps   []Step[S]
	initial func() S
	logger  *zap.Logger
	name    string

	index   int
	state   S
	gen     uint64
	closed  bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr string

	listeners  map[int]Listener
	nextSub    int
	pending    []Event
	delivering bool
}

// Option configures a Controller
type Option func(*options)

type options struct {
	logger *zap.Logger
	name   string
}

// WithLogger sets the logger used for transition and action logs.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithName labels log lines with the wizard's name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New creates an open controller positioned on the first step with a fresh state.
func New[S State[S]](steps []Step[S], initial func() S, opts ...Option) (*Controller[S], error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("wizard needs at least one step")
	}
	if initial == nil {
		return nil, fmt.Errorf("wizard needs an initial state constructor")
	}
	seen := make(map[StepID]bool, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("wizard step without an ID")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate wizard step %q", s.ID)
		}
		seen[s.ID] = true
	}

	o := options{name: "wizard"}
	for _, opt := range opts {
		opt(&o)
	}

	return &Controller[S]{
		steps:     append([]Step[S](nil), steps...),
		initial:   initial,
		logger:    logging.OrNop(o.logger).With(zap.String("wizard", o.name)),
		name:      o.name,
		state:     initial(),
		listeners: make(map[int]Listener),
	}, nil
}

// Steps returns the ordered step IDs.
func (c *Controller[S]) Steps() []StepID {
	ids := make([]StepID, len(c.steps))
	for i, s := range c.steps {
		ids[i] = s.ID
	}
	return ids
}

// Snapshot returns a consistent view of the controller.
func (c *Controller[S]) Snapshot() Snapshot[S] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[S]) snapshotLocked() Snapshot[S] {
	return Snapshot[S]{
		Step:       c.steps[c.index].ID,
		Index:      c.index,
		Steps:      c.Steps(),
		State:      c.state.Clone(),
		Busy:       c.running,
		Error:      c.lastErr,
		CanAdvance: !c.closed && !c.running && c.canAdvanceLocked(),
		Closed:     c.closed,
		Generation: c.gen,
	}
}

// Current returns the active step ID.
func (c *Controller[S]) Current() StepID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps[c.index].ID
}

// CanAdvance reports whether Next would be accepted now.
func (c *Controller[S]) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.running && c.canAdvanceLocked()
}

func (c *Controller[S]) canAdvanceLocked() bool {
	if c.index >= len(c.steps)-1 {
		return false
	}
	gate := c.steps[c.index].Gate
	if gate == nil {
		return true
	}
	return gate(c.state.Clone())
}

// Update applies a user edit to the state. Edits are rejected while an
// action is outstanding so that the action's snapshot stays authoritative.
func (c *Controller[S]) Update(fn func(state *S) error) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := fn(&c.state); err != nil {
		c.mu.Unlock()
		return err
	}
	ev := c.eventLocked(EventUpdated, nil)
	c.enqueueLocked(ev)
	c.mu.Unlock()
	c.flush()
	return nil
}

// UpdateOn is Update restricted to the given current step.
func (c *Controller[S]) UpdateOn(id StepID, fn func(state *S) error) error {
	return c.Update(func(state *S) error {
		if current := c.steps[c.index].ID; current != id {
			return fmt.Errorf("%w: %s (current step is %s)", core.ErrNotEditable, id, current)
		}
		return fn(state)
	})
}

// Next advances one step if the current step's gate holds, then triggers
// the entered step's action.
func (c *Controller[S]) Next(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.index >= len(c.steps)-1 {
		c.mu.Unlock()
		return core.ErrAtLastStep
	}
	if !c.canAdvanceLocked() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrStepBlocked, c.steps[c.index].ID)
	}

	c.index++
	c.lastErr = ""
	events := []Event{c.eventLocked(EventAdvanced, nil)}

	step := c.steps[c.index]
	if step.Action != nil && (step.RunOnEnter == nil || step.RunOnEnter(c.state.Clone())) {
		events = append(events, c.startLocked(ctx, step))
	}
	c.enqueueLocked(events...)
	c.mu.Unlock()

	c.logger.Debug("advanced", zap.String("step", string(step.ID)))
	c.flush()
	return nil
}

// Back moves one step backwards. On the first step it closes the wizard.
// Any outstanding action is discarded.
func (c *Controller[S]) Back() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrWizardClosed
	}
	if c.index == 0 {
		ev := c.closeLocked()
		c.enqueueLocked(ev...)
		c.mu.Unlock()
		c.flush()
		return nil
	}

	events := c.invalidateLocked()
	c.index--
	c.lastErr = ""
	events = append(events, c.eventLocked(EventRetreated, nil))
	c.enqueueLocked(events...)
	c.mu.Unlock()

	c.flush()
	return nil
}

// Reset discards all collected state and returns to the first step.
func (c *Controller[S]) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrWizardClosed
	}
	events := c.invalidateLocked()
	c.state = c.initial()
	c.index = 0
	c.lastErr = ""
	events = append(events, c.eventLocked(EventReset, nil))
	c.enqueueLocked(events...)
	c.mu.Unlock()

	c.flush()
	return nil
}

// Close discards the wizard. Outstanding actions are cancelled and their
// results ignored. Close is idempotent.
func (c *Controller[S]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	events := c.closeLocked()
	c.enqueueLocked(events...)
	c.mu.Unlock()
	c.flush()
}

// Open reopens the wizard from a clean state on the first step.
func (c *Controller[S]) Open() {
	c.mu.Lock()
	events := c.invalidateLocked()
	c.state = c.initial()
	c.index = 0
	c.lastErr = ""
	c.closed = false
	events = append(events, c.eventLocked(EventOpened, nil))
	c.enqueueLocked(events...)
	c.mu.Unlock()
	c.flush()
}

// Run (re)triggers the current step's action. It is the retry path after a
// failure and the explicit trigger of action steps. Run is rejected while an
// action is outstanding, which makes duplicate submission impossible.
func (c *Controller[S]) Run(ctx context.Context) error {
	return c.run(ctx, "")
}

// RunStep is Run guarded by the expected current step.
func (c *Controller[S]) RunStep(ctx context.Context, id StepID) error {
	return c.run(ctx, id)
}

func (c *Controller[S]) run(ctx context.Context, expect StepID) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	step := c.steps[c.index]
	if expect != "" && step.ID != expect {
		c.mu.Unlock()
		return fmt.Errorf("%w: current step is %s, not %s", core.ErrNoAction, step.ID, expect)
	}
	if step.Action == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrNoAction, step.ID)
	}
	ev := c.startLocked(ctx, step)
	c.enqueueLocked(ev)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Cancel abandons the outstanding action, if any. The step stays retryable.
func (c *Controller[S]) Cancel() {
	c.mu.Lock()
	events := c.invalidateLocked()
	c.enqueueLocked(events...)
	c.mu.Unlock()
	c.flush()
}

// Wait blocks until the outstanding action settles or is discarded.
func (c *Controller[S]) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller[S]) usableLocked() error {
	if c.closed {
		return core.ErrWizardClosed
	}
	if c.running {
		return core.ErrBusy
	}
	return nil
}

// startLocked launches step's action. The action runs detached from the
// caller's cancellation (a request context ends long before the remote
// call does); only invalidation cancels it.
func (c *Controller[S]) startLocked(ctx context.Context, step Step[S]) Event {
	if ctx == nil {
		ctx = context.Background()
	}
	c.gen++
	gen := c.gen
	if step.Clear != nil {
		step.Clear(&c.state)
	}
	c.lastErr = ""
	snapshot := c.state.Clone()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.running = true

	go func() {
		defer cancel()
		commit, err := c.invoke(runCtx, step.Action, snapshot)
		c.settle(gen, step.ID, commit, err)
	}()

	c.logger.Debug("action started", zap.String("step", string(step.ID)), zap.Uint64("generation", gen))
	return c.eventLocked(EventStarted, nil)
}

func (c *Controller[S]) invoke(ctx context.Context, action Action[S], snapshot S) (commit Commit[S], err error) {
	defer func() {
		if r := recover(); r != nil {
			commit = nil
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action(ctx, snapshot)
}

func (c *Controller[S]) settle(gen uint64, step StepID, commit Commit[S], err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen || !c.running {
		c.mu.Unlock()
		c.logger.Info("discarded stale action result",
			zap.String("step", string(step)), zap.Uint64("generation", gen))
		return
	}

	var ev Event
	if err != nil {
		c.lastErr = err.Error()
		ev = c.eventLocked(EventFailed, err)
	} else {
		if commit != nil {
			commit(&c.state)
		}
		c.lastErr = ""
		ev = c.eventLocked(EventSettled, nil)
		ev.Committed = c.state.Clone()
	}
	c.running = false
	c.cancel = nil
	close(c.done)
	c.done = nil
	c.enqueueLocked(ev)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("action failed", zap.String("step", string(step)), zap.Error(err))
	} else {
		c.logger.Debug("action settled", zap.String("step", string(step)), zap.Uint64("generation", gen))
	}
	c.flush()
}

// invalidateLocked bumps the generation so any outstanding result is
// discarded, and cancels the outstanding action.
func (c *Controller[S]) invalidateLocked() []Event {
	c.gen++
	if !c.running {
		return nil
	}
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	return []Event{c.eventLocked(EventDiscarded, nil)}
}

func (c *Controller[S]) closeLocked() []Event {
	events := c.invalidateLocked()
	c.closed = true
	c.lastErr = ""
	return append(events, c.eventLocked(EventClosed, nil))
}
