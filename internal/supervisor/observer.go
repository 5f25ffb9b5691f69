package supervisor

import "time"

// Observer receives supervisor events synchronously on the control
// loop. Implementations must not block for long.
type Observer interface {
	// OnTransition is called after every state change.
	OnTransition(from, to State)
	// OnPublish is called after every publish attempt. err is nil on
	// success, in which case seq is the new success count.
	OnPublish(seq uint64, elapsed time.Duration, err error)
}

// Observers fans events out to each non-nil element in order.
type Observers []Observer

// OnTransition implements [Observer].
func (o Observers) OnTransition(from, to State) {
	for _, obs := range o {
		if obs != nil {
			obs.OnTransition(from, to)
		}
	}
}

// OnPublish implements [Observer].
func (o Observers) OnPublish(seq uint64, elapsed time.Duration, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.OnPublish(seq, elapsed, err)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnTransition(State, State)              {}
func (nopObserver) OnPublish(uint64, time.Duration, error) {}
