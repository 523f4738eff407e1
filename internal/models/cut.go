package models

import (
	"time"

	"github.com/google/uuid"
)

// CutState is the lifecycle state of a scheduled programming interruption.
type CutState string

const (
	CutScheduled CutState = "scheduled"
	CutExecuting CutState = "executing"
	CutPerformed CutState = "performed"
)

// CutEvent is a named transition on a LiveVideoCut.
type CutEvent string

const (
	CutEventExecute CutEvent = "execute"
	CutEventPerform CutEvent = "perform"
)

type cutEdge struct {
	sources []CutState
	target  CutState
}

var cutEdges = map[CutEvent]cutEdge{
	CutEventExecute: {sources: []CutState{CutScheduled}, target: CutExecuting},
	CutEventPerform: {sources: []CutState{CutExecuting}, target: CutPerformed},
}

// ApplyCut returns the target state for event from current, or
// ErrTransitionNotAllowed if current is not a valid source for event.
func ApplyCut(current CutState, event CutEvent) (CutState, error) {
	edge, ok := cutEdges[event]
	if !ok {
		return current, ErrTransitionNotAllowed
	}
	for _, s := range edge.sources {
		if s == current {
			return edge.target, nil
		}
	}
	return current, ErrTransitionNotAllowed
}

// CutEdge exposes an event's source set and target for the repository CAS.
func CutEdge(event CutEvent) (sources []CutState, target CutState, ok bool) {
	edge, ok := cutEdges[event]
	return edge.sources, edge.target, ok
}

// LiveVideoCut is a scheduled interval during which a live channel's
// normal programming is interrupted. Times are minute-granular.
type LiveVideoCut struct {
	ID          uuid.UUID  `json:"id"`
	LiveID      uuid.UUID  `json:"live_id"`
	InitialTime time.Time  `json:"initial_time"`
	FinalTime   time.Time  `json:"final_time"`
	Description string     `json:"description"`
	State       CutState   `json:"state"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
