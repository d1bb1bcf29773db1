package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gosegment/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type toyState struct {
	Items  []string
	Auto   bool
	Result string
}

func (s toyState) Clone() toyState {
	s.Items = append([]string(nil), s.Items...)
	return s
}

// gatedAction blocks until released (or cancelled when honorCtx is set).
type gatedAction struct {
	mu       sync.Mutex
	release  chan struct{}
	calls    int
	err      error
	result   string
	honorCtx bool
}

func newGatedAction(result string) *gatedAction {
	return &gatedAction{release: make(chan struct{}), result: result}
}

func (g *gatedAction) action(ctx context.Context, snap toyState) (Commit[toyState], error) {
	g.mu.Lock()
	g.calls++
	release := g.release
	err := g.err
	g.mu.Unlock()

	if g.honorCtx {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		<-release
	}
	if err != nil {
		return nil, err
	}
	result := g.result + ":" + snap.Items[0]
	return func(s *toyState) { s.Result = result }, nil
}

func (g *gatedAction) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newToyController(t *testing.T, act Action[toyState]) *Controller[toyState] {
	t.Helper()
	steps := []Step[toyState]{
		{ID: "pick", Gate: func(s toyState) bool { return len(s.Items) > 0 }},
		{ID: "compute", Action: act,
			RunOnEnter: func(s toyState) bool { return s.Auto },
			Gate:       func(s toyState) bool { return s.Result != "" },
			Clear:      func(s *toyState) { s.Result = "" }},
		{ID: "done"},
	}
	c, err := New(steps, func() toyState { return toyState{Auto: true} })
	require.NoError(t, err)
	return c
}

func addItem(c *Controller[toyState], item string) error {
	return c.Update(func(s *toyState) error {
		s.Items = append(s.Items, item)
		return nil
	})
}

func TestNewValidatesSteps(t *testing.T) {
	_, err := New([]Step[toyState]{}, func() toyState { return toyState{} })
	assert.Error(t, err)

	_, err = New([]Step[toyState]{{ID: "a"}, {ID: "a"}}, func() toyState { return toyState{} })
	assert.Error(t, err)

	_, err = New([]Step[toyState]{{ID: "a"}}, nil)
	assert.Error(t, err)
}

func TestNextRequiresGate(t *testing.T) {
	c := newToyController(t, nil)

	err := c.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrStepBlocked)
	assert.Equal(t, StepID("pick"), c.Current())

	require.NoError(t, addItem(c, "x"))
	assert.True(t, c.CanAdvance())
}

func TestActionCommitsOnEnter(t *testing.T) {
	act := newGatedAction("ok")
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))

	require.NoError(t, c.Next(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, StepID("compute"), snap.Step)
	assert.True(t, snap.Busy)
	assert.False(t, snap.CanAdvance)

	close(act.release)
	require.NoError(t, c.Wait(context.Background()))

	snap = c.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, "ok:x", snap.State.Result)
	assert.True(t, snap.CanAdvance)
	assert.Equal(t, 1, act.Calls())
}

func TestRunOnEnterSkipsAction(t *testing.T) {
	act := newGatedAction("ok")
	c := newToyController(t, act.action)
	require.NoError(t, c.Update(func(s *toyState) error {
		s.Items = []string{"x"}
		s.Auto = false
		return nil
	}))

	require.NoError(t, c.Next(context.Background()))
	assert.False(t, c.Snapshot().Busy)
	assert.Equal(t, 0, act.Calls())
}

func TestBusyRejectsDuplicateSubmission(t *testing.T) {
	act := newGatedAction("ok")
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))

	assert.ErrorIs(t, c.Run(context.Background()), core.ErrBusy)
	assert.ErrorIs(t, c.Next(context.Background()), core.ErrBusy)
	assert.ErrorIs(t, addItem(c, "y"), core.ErrBusy)

	close(act.release)
	require.NoError(t, c.Wait(context.Background()))
	assert.Equal(t, 1, act.Calls())
}

func TestFailureIsRetryable(t *testing.T) {
	act := newGatedAction("ok")
	act.err = errors.New("service unavailable")
	close(act.release)
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))

	require.NoError(t, c.Next(context.Background()))
	require.NoError(t, c.Wait(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StepID("compute"), snap.Step)
	assert.Equal(t, "service unavailable", snap.Error)
	assert.Empty(t, snap.State.Result)
	assert.False(t, snap.CanAdvance)

	act.mu.Lock()
	act.err = nil
	act.mu.Unlock()

	require.NoError(t, c.RunStep(context.Background(), "compute"))
	require.NoError(t, c.Wait(context.Background()))
	snap = c.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Equal(t, "ok:x", snap.State.Result)
}

func TestRunStepRejectsWrongStep(t *testing.T) {
	c := newToyController(t, nil)
	assert.ErrorIs(t, c.RunStep(context.Background(), "compute"), core.ErrNoAction)
	assert.ErrorIs(t, c.Run(context.Background()), core.ErrNoAction)
}

func TestReenteringRepeatsAction(t *testing.T) {
	act := newGatedAction("ok")
	close(act.release)
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))

	require.NoError(t, c.Next(context.Background()))
	require.NoError(t, c.Wait(context.Background()))
	require.NoError(t, c.Back())
	require.NoError(t, c.Next(context.Background()))
	require.NoError(t, c.Wait(context.Background()))

	assert.Equal(t, 2, act.Calls())
}

func TestBackOnFirstStepCloses(t *testing.T) {
	c := newToyController(t, nil)
	require.NoError(t, c.Back())
	assert.True(t, c.Snapshot().Closed)
	assert.ErrorIs(t, c.Next(context.Background()), core.ErrWizardClosed)
	assert.ErrorIs(t, c.Back(), core.ErrWizardClosed)
}

func TestNextOnLastStep(t *testing.T) {
	c, err := New([]Step[toyState]{{ID: "only"}}, func() toyState { return toyState{} })
	require.NoError(t, err)
	assert.ErrorIs(t, c.Next(context.Background()), core.ErrAtLastStep)
}

func TestCloseDiscardsLateResult(t *testing.T) {
	act := newGatedAction("late")
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))

	c.Close()
	close(act.release)

	assert.Never(t, func() bool {
		return c.Snapshot().State.Result != ""
	}, 100*time.Millisecond, 5*time.Millisecond)

	c.Open()
	snap := c.Snapshot()
	assert.False(t, snap.Closed)
	assert.Equal(t, StepID("pick"), snap.Step)
	assert.Empty(t, snap.State.Items)
	assert.Empty(t, snap.State.Result)
	assert.False(t, snap.Busy)
}

func TestResetDiscardsInFlight(t *testing.T) {
	act := newGatedAction("late")
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))

	require.NoError(t, c.Reset())
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.False(t, snap.Busy)
	assert.Empty(t, snap.State.Items)

	close(act.release)
	assert.Never(t, func() bool {
		return c.Snapshot().State.Result != ""
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestCancelLeavesStepRetryable(t *testing.T) {
	act := newGatedAction("ok")
	act.honorCtx = true
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))

	c.Cancel()
	snap := c.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, StepID("compute"), snap.Step)

	close(act.release)
	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Wait(context.Background()))
	assert.Equal(t, "ok:x", c.Snapshot().State.Result)
}

func TestPanickingActionFails(t *testing.T) {
	c := newToyController(t, func(ctx context.Context, s toyState) (Commit[toyState], error) {
		panic("boom")
	})
	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))
	require.NoError(t, c.Wait(context.Background()))
	assert.Contains(t, c.Snapshot().Error, "boom")
}

func TestEventsAreEmitted(t *testing.T) {
	act := newGatedAction("ok")
	close(act.release)
	c := newToyController(t, act.action)

	var mu sync.Mutex
	var kinds []EventKind
	unsubscribe := c.Subscribe(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))
	require.NoError(t, c.Wait(context.Background()))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []EventKind{EventUpdated, EventAdvanced, EventStarted, EventSettled}, kinds)
	mu.Unlock()

	unsubscribe()
	c.Close()
	mu.Lock()
	assert.Len(t, kinds, 4)
	mu.Unlock()
}

func TestEventsKeepChangeOrder(t *testing.T) {
	act := newGatedAction("ok")
	close(act.release)
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))

	var mu sync.Mutex
	var events []Event
	c.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		if ev.Kind == EventStarted {
			// the action settles and the wizard closes before this listener returns
			assert.NoError(t, c.Wait(context.Background()))
			c.Close()
		}
	})

	require.NoError(t, c.Next(context.Background()))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []EventKind{EventAdvanced, EventStarted, EventSettled, EventClosed}, kinds)

	committed, ok := events[2].Committed.(toyState)
	require.True(t, ok)
	assert.Equal(t, "ok:x", committed.Result)
	assert.Nil(t, events[3].Committed)
}

func TestPanickingListenerDoesNotStopDelivery(t *testing.T) {
	c := newToyController(t, nil)

	var got []EventKind
	c.Subscribe(func(ev Event) { panic("listener bug") })
	c.Subscribe(func(ev Event) { got = append(got, ev.Kind) })

	require.NoError(t, addItem(c, "x"))
	c.Close()
	assert.ElementsMatch(t, []EventKind{EventUpdated, EventClosed}, got)
}

func TestCloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	act := newGatedAction("ok")
	act.honorCtx = true
	c := newToyController(t, act.action)
	require.NoError(t, addItem(c, "x"))
	require.NoError(t, c.Next(context.Background()))
	c.Close()
}
