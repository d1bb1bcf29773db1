package wizard

import "go.uber.org/zap"

// EventKind classifies controller notifications
type EventKind string

const (
	EventOpened    EventKind = "opened"
	EventUpdated   EventKind = "updated"
	EventAdvanced  EventKind = "advanced"
	EventRetreated EventKind = "retreated"
	EventStarted   EventKind = "started"
	EventSettled   EventKind = "settled"
	EventFailed    EventKind = "failed"
	EventDiscarded EventKind = "discarded"
	EventReset     EventKind = "reset"
	EventClosed    EventKind = "closed"
)

// Event is emitted after every state change. Step is the step that was
// current when the change happened.
type Event struct {
	Kind       EventKind
	Step       StepID
	Generation uint64
	Err        error

	// Committed is a copy of the state right after a settled action's
	// commit. It is nil for every other kind.
	Committed any
}

// Listener receives controller events. Events reach listeners in the order
// the changes were made, one at a time and outside the controller lock, so
// listeners may call back into the controller. Delivery happens on one of
// the goroutines that caused a change; a change made from inside a
// listener is delivered after the listener returns.
type Listener func(Event)

// Subscribe registers a listener and returns its cancel function.
func (c *Controller[S]) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller[S]) eventLocked(kind EventKind, err error) Event {
	return Event{Kind: kind, Step: c.steps[c.index].ID, Generation: c.gen, Err: err}
}

func (c *Controller[S]) enqueueLocked(events ...Event) {
	c.pending = append(c.pending, events...)
}

// flush delivers queued events in queue order. Only one goroutine delivers
// at a time; it also drains whatever is queued while it delivers.
func (c *Controller[S]) flush() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	defer func() {
		c.delivering = false
		c.mu.Unlock()
	}()

	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		listeners := make([]Listener, 0, len(c.listeners))
		for _, l := range c.listeners {
			listeners = append(listeners, l)
		}

		c.mu.Unlock()
		for _, l := range listeners {
			c.notify(l, ev)
		}
		c.mu.Lock()
	}
	c.pending = nil
}

func (c *Controller[S]) notify(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event listener panicked", zap.String("kind", string(ev.Kind)), zap.Any("panic", r))
		}
	}()
	l(ev)
}
