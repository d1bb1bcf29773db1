package app

import (
	"context"
	"sync"
	"time"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
	"gosegment/internal/config"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	segwiz "gosegment/internal/segmentation"
	"gosegment/internal/wizard"
	"gosegment/ports"

	"go.uber.org/zap"
)

// saveTimeout bounds the run-history write after an execution settles.
const saveTimeout = 5 * time.Second

// SegmentationService owns the open wizards and records committed executions.
type SegmentationService struct {
	analytics ports.AnalyticsService
	catalog   ports.VariableCatalog
	runs      ports.RunRepository
	config    config.WizardConfig
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	wizards map[core.WizardID]*session
}

type session struct {
	wizard      *segwiz.Wizard
	lastUsed    time.Time
	unsubscribe func()
}

// NewSegmentationService creates the wizard registry. runs may be nil, in
// which case executions are not recorded.
func NewSegmentationService(
	analytics ports.AnalyticsService,
	catalog ports.VariableCatalog,
	runs ports.RunRepository,
	cfg config.WizardConfig,
	logger *zap.Logger,
) *SegmentationService {
	return &SegmentationService{
		analytics: analytics,
		catalog:   catalog,
		runs:      runs,
		config:    cfg,
		logger:    logging.OrNop(logger).Named("wizard"),
		now:       time.Now,
		wizards:   make(map[core.WizardID]*session),
	}
}

// Open creates a wizard on its first step.
func (s *SegmentationService) Open(ctx context.Context) (*segwiz.Wizard, error) {
	w, err := segwiz.New(s.analytics, s.catalog, segwiz.Options{
		Range:           s.config.DetectRange,
		DefaultClusters: s.config.DefaultClusters,
		Logger:          s.logger,
	})
	if err != nil {
		return nil, err
	}

	sess := &session{wizard: w, lastUsed: s.now()}
	sess.unsubscribe = w.Subscribe(func(ev wizard.Event) {
		s.logger.Debug("wizard event",
			zap.String("wizard_id", w.ID().String()),
			zap.String("kind", string(ev.Kind)),
			zap.String("step", string(ev.Step)))
		if ev.Kind != wizard.EventSettled || ev.Step != segwiz.StepExecute {
			return
		}
		if state, ok := segwiz.CommittedState(ev); ok {
			s.recordRun(w.ID(), state)
		}
	})

	s.mu.Lock()
	s.wizards[w.ID()] = sess
	s.mu.Unlock()

	s.logger.Info("wizard opened", zap.String("wizard_id", w.ID().String()))
	return w, nil
}

// Get returns an open wizard and marks it as used.
func (s *SegmentationService) Get(id core.WizardID) (*segwiz.Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.wizards[id]
	if !ok {
		return nil, errors.WithCode(errors.CodeNotFound, core.ErrWizardNotFound)
	}
	sess.lastUsed = s.now()
	return sess.wizard, nil
}

// Close closes a wizard and forgets it. Any outstanding request is discarded.
func (s *SegmentationService) Close(id core.WizardID) error {
	s.mu.Lock()
	sess, ok := s.wizards[id]
	delete(s.wizards, id)
	s.mu.Unlock()
	if !ok {
		return errors.WithCode(errors.CodeNotFound, core.ErrWizardNotFound)
	}
	s.closeSession(sess)
	s.logger.Info("wizard closed", zap.String("wizard_id", id.String()))
	return nil
}

// Count returns the number of open wizards.
func (s *SegmentationService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wizards)
}

// CloseIdle closes every wizard unused for longer than the idle TTL.
func (s *SegmentationService) CloseIdle() int {
	if s.config.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.config.IdleTTL)

	s.mu.Lock()
	var idle []*session
	for id, sess := range s.wizards {
		if sess.lastUsed.Before(cutoff) {
			idle = append(idle, sess)
			delete(s.wizards, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.closeSession(sess)
		s.logger.Info("idle wizard closed", zap.String("wizard_id", sess.wizard.ID().String()))
	}
	return len(idle)
}

// RunJanitor closes idle wizards every interval until ctx is done.
func (s *SegmentationService) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CloseIdle()
		}
	}
}

// Shutdown closes all wizards.
func (s *SegmentationService) Shutdown() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.wizards))
	for id, sess := range s.wizards {
		sessions = append(sessions, sess)
		delete(s.wizards, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.closeSession(sess)
	}
}

// Variables lists the numeric-compatible candidate inputs.
func (s *SegmentationService) Variables(ctx context.Context) ([]segmentation.Variable, error) {
	if s.catalog == nil {
		return nil, errors.ConfigInvalid("no variable catalog configured")
	}
	vars, err := ports.ClusterableVariables(ctx, s.catalog)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list variables")
	}
	return vars, nil
}

// Runs returns the most recent recorded executions.
func (s *SegmentationService) Runs(ctx context.Context, limit int) ([]*ports.SegmentationRun, error) {
	if s.runs == nil {
		return []*ports.SegmentationRun{}, nil
	}
	return s.runs.List(ctx, limit)
}

// Run returns one recorded execution.
func (s *SegmentationService) Run(ctx context.Context, id core.RunID) (*ports.SegmentationRun, error) {
	if s.runs == nil {
		return nil, errors.WithCode(errors.CodeNotFound, core.ErrRunNotFound)
	}
	return s.runs.Get(ctx, id)
}

func (s *SegmentationService) closeSession(sess *session) {
	sess.unsubscribe()
	sess.wizard.Close()
}

// recordRun saves the result committed by an execution of wizard id. state is
// the copy carried by the settled event, so later edits cannot race it.
func (s *SegmentationService) recordRun(id core.WizardID, state segwiz.State) {
	if s.runs == nil {
		return
	}
	if state.Result == nil {
		return
	}

	run := &ports.SegmentationRun{
		WizardID:        id,
		Variables:       state.DistinctVariables(),
		Method:          string(state.Method.Kind()),
		Clusters:        state.Result.NClusters,
		Standardize:     state.Standardize,
		TotalClassified: state.Result.TotalClassified,
		Silhouette:      state.Result.Silhouette,
		SegmentIDs:      state.Result.SegmentIDs,
	}
	if linkage, ok := segmentation.LinkageOf(state.Method); ok {
		run.Linkage = string(linkage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.runs.Save(ctx, run); err != nil {
		s.logger.Error("failed to record run", zap.String("wizard_id", id.String()), zap.Error(err))
		return
	}
	s.logger.Info("run recorded",
		zap.String("run_id", run.ID.String()),
		zap.String("wizard_id", id.String()),
		zap.Int("clusters", run.Clusters))
}
