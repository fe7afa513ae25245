package update

import "github.com/GriffinCanCode/webboot/internal/host"

// Phase is the lifecycle phase of an installing worker.
type Phase string

const (
	PhaseNone       Phase = "none"
	PhaseInstalling Phase = "installing"
	PhaseInstalled  Phase = "installed"
	PhaseActivated  Phase = "activated"
	PhaseRedundant  Phase = "redundant" // error terminus
)

// rank orders the forward phases; redundant is handled separately.
var rank = map[Phase]int{
	PhaseNone:       0,
	PhaseInstalling: 1,
	PhaseInstalled:  2,
	PhaseActivated:  3,
}

// Tracker follows one installing worker and decides when its lifecycle
// amounts to an update worth announcing.
type Tracker struct {
	hadController bool
	phase         Phase
	notified      bool
}

// NewTracker returns a tracker in PhaseNone. hadController is the snapshot
// taken when the owning registration succeeded.
func NewTracker(hadController bool) *Tracker {
	return &Tracker{hadController: hadController, phase: PhaseNone}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	return t.phase
}

// Notified reports whether the tracker has already announced its update.
func (t *Tracker) Notified() bool {
	return t.notified
}

// Transition applies a worker state change and reports whether an update
// notification is due. Backward and repeated states are ignored, redundant
// is terminal, and a notification is due at most once: on the first entry
// into PhaseInstalled while a controller was active at registration.
func (t *Tracker) Transition(state host.WorkerState) bool {
	if t.phase == PhaseRedundant {
		return false
	}

	next, ok := phaseOf(state)
	if !ok {
		return false
	}
	if next == PhaseRedundant {
		t.phase = PhaseRedundant
		return false
	}
	if rank[next] <= rank[t.phase] {
		return false
	}

	t.phase = next

	if next == PhaseInstalled && t.hadController && !t.notified {
		t.notified = true
		return true
	}
	return false
}

func phaseOf(state host.WorkerState) (Phase, bool) {
	switch state {
	case host.WorkerInstalling:
		return PhaseInstalling, true
	case host.WorkerInstalled:
		return PhaseInstalled, true
	case host.WorkerActivated:
		return PhaseActivated, true
	case host.WorkerRedundant:
		return PhaseRedundant, true
	default:
		// activating is the tail of installed and does not change phase
		return "", false
	}
}
