package models

// Transition is the outcome of a mutation: the state before and after.
// Services return a Transition alongside a non-nil error when the previous
// state was known, with Current equal to Previous, so a client that applied
// an optimistic update can revert to Previous.
type Transition[T any] struct {
	Previous T `json:"previous"`
	Current  T `json:"current"`
}

// Changed builds a successful transition.
func Changed[T any](previous, current T) Transition[T] {
	return Transition[T]{Previous: previous, Current: current}
}

// Unchanged builds the transition reported with a failure.
func Unchanged[T any](previous T) Transition[T] {
	return Transition[T]{Previous: previous, Current: previous}
}
