// Package segmentation binds the generic wizard controller to the
// segmentation flow: input selection, method configuration, cluster-count
// detection and execution.
package segmentation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/internal/wizard"
	"gosegment/ports"

	"go.uber.org/zap"
)

// Options configures a segmentation wizard.
type Options struct {
	ID              core.WizardID
	Range           segmentation.Range
	DefaultClusters int
	Logger          *zap.Logger
}

// Wizard is one open segmentation wizard instance. Instances share no state.
type Wizard struct {
	id      core.WizardID
	ctrl    *wizard.Controller[State]
	runner  *Runner
	catalog ports.VariableCatalog
	logger  *zap.Logger
}

// View is the presentation snapshot of a wizard.
type View struct {
	ID core.WizardID `json:"id"`
	wizard.Snapshot[State]
	EffectiveK     int  `json:"effective_k"`
	RecommendedRow int  `json:"recommended_row"`
	SelectedRow    int  `json:"selected_row"`
	CanExecute     bool `json:"can_execute"`
}

// New opens a segmentation wizard on its first step with a clean state.
func New(service ports.AnalyticsService, catalog ports.VariableCatalog, opts Options) (*Wizard, error) {
	if service == nil {
		return nil, errors.ConfigInvalid("segmentation wizard needs an analytics service")
	}
	if opts.ID.String() == "" {
		opts.ID = core.NewWizardID()
	}
	if opts.Range == (segmentation.Range{}) {
		opts.Range = segmentation.DefaultRange()
	}
	if err := opts.Range.Validate(); err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	logger := logging.OrNop(opts.Logger).With(zap.String("wizard_id", opts.ID.String()))

	detector := NewDetector(service, logger)
	runner := NewRunner(service, catalog, opts.DefaultClusters, logger)

	steps := []wizard.Step[State]{
		{
			ID:    StepSelectInputs,
			Title: "Select variables",
			Gate:  gateFor(StepSelectInputs),
		},
		{
			ID:    StepConfigureMethod,
			Title: "Configure method",
			Gate:  gateFor(StepConfigureMethod),
		},
		{
			ID:         StepDetectParameter,
			Title:      "Number of clusters",
			Gate:       gateFor(StepDetectParameter),
			Action:     detector.Action(),
			RunOnEnter: func(s State) bool { return s.AutoDetect },
			Clear:      func(s *State) { s.invalidateDerived() },
		},
		{
			ID:     StepExecute,
			Title:  "Run segmentation",
			Gate:   gateFor(StepExecute),
			Action: runner.Action(),
			Clear:  func(s *State) { s.Result = nil },
		},
	}

	rng := opts.Range
	ctrl, err := wizard.New(steps, func() State { return NewState(rng) },
		wizard.WithLogger(logger), wizard.WithName("segmentation"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build segmentation wizard")
	}

	return &Wizard{
		id:      opts.ID,
		ctrl:    ctrl,
		runner:  runner,
		catalog: catalog,
		logger:  logger,
	}, nil
}

// ID returns the wizard instance identifier.
func (w *Wizard) ID() core.WizardID { return w.id }

// View returns a consistent presentation snapshot.
func (w *Wizard) View() View {
	snap := w.ctrl.Snapshot()
	return View{
		ID:             w.id,
		Snapshot:       snap,
		EffectiveK:     snap.State.EffectiveK(w.runner.DefaultK()),
		RecommendedRow: snap.State.Detection.RecommendedIndex(),
		SelectedRow:    snap.State.SelectedRow(),
		CanExecute:     !snap.Closed && !snap.Busy && snap.Step == StepExecute,
	}
}

// State returns a copy of the current parameter state.
func (w *Wizard) State() State { return w.ctrl.Snapshot().State }

// SelectInputs replaces the selected inputs. Duplicates are dropped; unknown
// and categorical identifiers are rejected.
func (w *Wizard) SelectInputs(ctx context.Context, names []string) error {
	selected := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" && !slices.Contains(selected, n) {
			selected = append(selected, n)
		}
	}
	if w.catalog != nil && len(selected) > 0 {
		if err := checkClusterable(ctx, w.catalog, selected); err != nil {
			return err
		}
	}
	return w.ctrl.UpdateOn(StepSelectInputs, func(s *State) error {
		s.Variables = selected
		s.invalidateDerived()
		return nil
	})
}

// ConfigureMethod sets the clustering method and the standardize flag.
func (w *Wizard) ConfigureMethod(method segmentation.Method, standardize bool) error {
	if method == nil {
		method = segmentation.DefaultMethod()
	}
	return w.ctrl.UpdateOn(StepConfigureMethod, func(s *State) error {
		s.Method = method
		s.Standardize = standardize
		s.invalidateDerived()
		return nil
	})
}

// DetectionChange is a combined edit of the detection settings. Nil fields
// are left unchanged.
type DetectionChange struct {
	Range       *segmentation.Range
	AutoDetect  *bool
	ManualK     *int
	ClearManual bool
}

func (c DetectionChange) validate() error {
	if c.Range != nil {
		if err := c.Range.Validate(); err != nil {
			return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("%w: %v", core.ErrInvalidRange, err))
		}
	}
	if c.ManualK != nil {
		if *c.ManualK < segmentation.MinClusters {
			return errors.InvalidInput(fmt.Sprintf("cluster count must be at least %d, got %d", segmentation.MinClusters, *c.ManualK))
		}
		if c.ClearManual {
			return errors.InvalidInput("manual cluster count cannot be set and cleared at once")
		}
		if c.AutoDetect != nil && *c.AutoDetect {
			return errors.InvalidInput("manual cluster count conflicts with turning auto-detection on")
		}
	}
	return nil
}

// rangeOnly reports whether the change may also be made while configuring the method.
func (c DetectionChange) rangeOnly() bool {
	return c.AutoDetect == nil && c.ManualK == nil && !c.ClearManual
}

// ConfigureDetection applies change as a single edit: the whole change is
// validated first and either all of it is committed or none. On the detection
// step a fresh sweep is issued when auto-detection is on afterwards and the
// range changed or auto-detection was switched on.
func (w *Wizard) ConfigureDetection(ctx context.Context, change DetectionChange) error {
	if change == (DetectionChange{}) {
		return nil
	}
	if err := change.validate(); err != nil {
		return err
	}
	allowed := []wizard.StepID{StepDetectParameter}
	if change.rangeOnly() {
		allowed = append(allowed, StepConfigureMethod)
	}
	step, err := w.editableStep(allowed...)
	if err != nil {
		return err
	}

	rerun := false
	err = w.ctrl.UpdateOn(step, func(s *State) error {
		sweep := false
		if change.Range != nil {
			s.Range = *change.Range
			s.invalidateDerived()
			sweep = true
		}
		if change.AutoDetect != nil {
			s.AutoDetect = *change.AutoDetect
			s.invalidateDerived()
			if s.AutoDetect {
				s.ManualK = nil
				sweep = true
			}
		}
		switch {
		case change.ClearManual:
			s.ManualK = nil
			s.Result = nil
		case change.ManualK != nil:
			k := *change.ManualK
			s.ManualK = &k
			s.Result = nil
		}
		rerun = sweep && step == StepDetectParameter && s.AutoDetect
		return nil
	})
	if err != nil || !rerun {
		return err
	}
	return w.ctrl.RunStep(ctx, StepDetectParameter)
}

// SetRange changes the candidate range of the sweep. On the detection step
// with auto-detection on, the sweep is repeated for the new range.
func (w *Wizard) SetRange(ctx context.Context, rng segmentation.Range) error {
	return w.ConfigureDetection(ctx, DetectionChange{Range: &rng})
}

// SetAutoDetect toggles auto-detection on the detection step. Turning it on
// clears the manual value and always issues a fresh sweep.
func (w *Wizard) SetAutoDetect(ctx context.Context, on bool) error {
	return w.ConfigureDetection(ctx, DetectionChange{AutoDetect: &on})
}

// SetManualK sets the cluster count used when auto-detection is off.
func (w *Wizard) SetManualK(k int) error {
	return w.ConfigureDetection(context.Background(), DetectionChange{ManualK: &k})
}

// ClearManualK removes the manual value so the recommendation applies again.
func (w *Wizard) ClearManualK() error {
	return w.ConfigureDetection(context.Background(), DetectionChange{ClearManual: true})
}

// SelectDetectedK picks a row of the score table. The selection overrides
// the recommendation for execution.
func (w *Wizard) SelectDetectedK(k int) error {
	return w.ctrl.UpdateOn(StepDetectParameter, func(s *State) error {
		if s.Detection == nil {
			return errors.InvalidInput("no detection result to select from")
		}
		if s.Detection.IndexOf(k) < 0 {
			return errors.InvalidInput(fmt.Sprintf("%d is not a detected candidate", k))
		}
		s.ManualK = &k
		s.Result = nil
		return nil
	})
}

// SetExecutionOptions sets the persisted-segment opt-in and name prefix.
func (w *Wizard) SetExecutionOptions(persist bool, namePrefix string) error {
	step, err := w.editableStep(StepConfigureMethod, StepDetectParameter, StepExecute)
	if err != nil {
		return err
	}
	return w.ctrl.UpdateOn(step, func(s *State) error {
		s.Persist = persist
		s.NamePrefix = strings.TrimSpace(namePrefix)
		if s.NamePrefix == "" {
			s.NamePrefix = DefaultNamePrefix
		}
		return nil
	})
}

// Next advances if the current step's gate holds, triggering the entered step's action.
func (w *Wizard) Next(ctx context.Context) error { return w.ctrl.Next(ctx) }

// Back moves one step back; on the first step it closes the wizard.
func (w *Wizard) Back() error { return w.ctrl.Back() }

// Reset clears all collected state and returns to the first step.
func (w *Wizard) Reset() error { return w.ctrl.Reset() }

// Retry re-runs the current step's action after a failure.
func (w *Wizard) Retry(ctx context.Context) error { return w.ctrl.Run(ctx) }

// Execute submits the segmentation. It is rejected while a request is outstanding.
func (w *Wizard) Execute(ctx context.Context) error { return w.ctrl.RunStep(ctx, StepExecute) }

// Cancel abandons the outstanding request; the step stays retryable.
func (w *Wizard) Cancel() { w.ctrl.Cancel() }

// Close discards the wizard and ignores any outstanding result.
func (w *Wizard) Close() { w.ctrl.Close() }

// Open restarts the wizard from a clean state.
func (w *Wizard) Open() { w.ctrl.Open() }

// Wait blocks until the outstanding request settles.
func (w *Wizard) Wait(ctx context.Context) error { return w.ctrl.Wait(ctx) }

// CommittedState returns the state carried by a settled event.
func CommittedState(ev wizard.Event) (State, bool) {
	s, ok := ev.Committed.(State)
	return s, ok
}

// Subscribe registers a listener for controller events.
func (w *Wizard) Subscribe(l wizard.Listener) func() { return w.ctrl.Subscribe(l) }

func (w *Wizard) editableStep(allowed ...wizard.StepID) (wizard.StepID, error) {
	current := w.ctrl.Current()
	if !slices.Contains(allowed, current) {
		return "", fmt.Errorf("%w: current step is %s", core.ErrNotEditable, current)
	}
	return current, nil
}
