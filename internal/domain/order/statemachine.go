package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Pipeline is the fixed forward-only sequence of fulfillment statuses. Only
// the immediate successor of the current status is a legal target: no skips,
// no reverts.
var Pipeline = [...]Status{
	StatusPending,
	StatusPacked,
	StatusReadyToDeliver,
	StatusDelivered,
}

// Valid reports whether s is one of the pipeline statuses.
func (s Status) Valid() bool {
	for _, p := range Pipeline {
		if s == p {
			return true
		}
	}
	return false
}

// Next returns the immediate successor of s in the pipeline. ok is false for
// the terminal status and for unknown statuses.
func (s Status) Next() (next Status, ok bool) {
	for i, p := range Pipeline[:len(Pipeline)-1] {
		if s == p {
			return Pipeline[i+1], true
		}
	}
	return "", false
}

// CanTransition reports whether to is the immediate successor of from.
func CanTransition(from, to Status) bool {
	next, ok := from.Next()
	return ok && next == to
}

// InvalidTransitionError reports a rejected status change. Skips, reverts,
// and transitions out of the terminal status all land here.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// StateMachine advances orders along the fulfillment pipeline. It never
// touches pricing or line items.
type StateMachine struct {
	orders Repository
	now    func() time.Time
}

// NewStateMachine creates a StateMachine over the given repository.
func NewStateMachine(orders Repository) *StateMachine {
	return &StateMachine{orders: orders, now: time.Now}
}

// Advance moves the order with the given id to target. The transition is
// validated before any write, then applied as a compare-and-swap against the
// stored status so a racing admin operation cannot cause a lost update. On
// success the returned order reflects the new status and appended history.
func (m *StateMachine) Advance(ctx context.Context, id string, target Status) (*Order, error) {
	if !target.Valid() {
		return nil, &InvalidTransitionError{To: target}
	}

	o, err := m.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.AwaitingConfirmation {
		return nil, ErrPaymentUnconfirmed
	}
	if !CanTransition(o.Status, target) {
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}

	at := m.now()
	if err := m.orders.UpdateStatus(ctx, id, o.Status, target, at); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, &InvalidTransitionError{From: o.Status, To: target}
		}
		return nil, errors.Wrap(err, "update status")
	}

	o.Status = target
	o.History = append(o.History, StatusChange{Status: target, At: at})
	return o, nil
}
