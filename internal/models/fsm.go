package models

import "errors"

// ErrTransitionNotAllowed is returned when an event's source-state
// precondition is not met, or when a concurrent transition won the
// compare-and-set on the state column. Repositories and services return
// it as-is so HTTP handlers can map it to a status code.
var ErrTransitionNotAllowed = errors.New("transition not allowed from current state")
