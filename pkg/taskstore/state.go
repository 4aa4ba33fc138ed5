package taskstore

import "github.com/imagesmith/imagesmith/pkg/a2a"

// CanTransition reports whether moving a task from one state to another is
// legal. Terminal states are immutable. A same-state update on a live task
// is legal and covers progress and artifact appends while work is in
// flight.
func CanTransition(from, to a2a.TaskState) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case a2a.TaskStateSubmitted:
		return to == a2a.TaskStateWorking || to == a2a.TaskStateCanceled
	case a2a.TaskStateWorking:
		return to == a2a.TaskStateCompleted ||
			to == a2a.TaskStateFailed ||
			to == a2a.TaskStateCanceled
	}
	return false
}
