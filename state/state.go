package state

import (
	"errors"
	"fmt"

	"github.com/wfunc/poisonheart/models"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Guard reports whether a registered transition may fire right now.
type Guard func() bool

// StateMachine 状态机接口
type StateMachine interface {
	ChangeState(to models.Phase) error
	GetCurrentState() models.Phase
	AddTransition(from, to models.Phase, guard Guard)
	CanTransition(to models.Phase) bool
}

// BaseStateMachine only moves along registered transitions. It has no lock
// of its own: the owning room serializes every call.
type BaseStateMachine struct {
	currentState models.Phase
	transitions  map[models.Phase]map[models.Phase]Guard // from -> to -> guard
	onEnter      map[models.Phase]func(from models.Phase)
}

func NewBaseStateMachine(initial models.Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[models.Phase]map[models.Phase]Guard),
		onEnter:      make(map[models.Phase]func(models.Phase)),
	}
}

func (sm *BaseStateMachine) AddTransition(from, to models.Phase, guard Guard) {
	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Phase]Guard)
	}
	sm.transitions[from][to] = guard
}

// OnEnter registers fn to run after every successful change into phase.
func (sm *BaseStateMachine) OnEnter(phase models.Phase, fn func(from models.Phase)) {
	sm.onEnter[phase] = fn
}

func (sm *BaseStateMachine) GetCurrentState() models.Phase {
	return sm.currentState
}

// CanTransition reports whether ChangeState(to) would succeed.
func (sm *BaseStateMachine) CanTransition(to models.Phase) bool {
	if to == sm.currentState {
		return true
	}
	guard, exists := sm.transitions[sm.currentState][to]
	if !exists {
		return false
	}
	return guard == nil || guard()
}

// ChangeState moves to the given phase. Changing to the current phase is a
// no-op.
func (sm *BaseStateMachine) ChangeState(to models.Phase) error {
	from := sm.currentState
	if to == from {
		return nil
	}
	if !sm.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}

	sm.currentState = to
	if fn := sm.onEnter[to]; fn != nil {
		fn(from)
	}
	return nil
}

// NewGameMachine builds the poison game's phase machine for room:
//
//	waiting -> selecting -> playing -> finished
//	selecting|playing|finished -> selecting (reset)
func NewGameMachine(room RoomContext) *BaseStateMachine {
	sm := NewBaseStateMachine(models.PhaseWaiting)

	full := func() bool { return room.PlayerCount() == 2 }

	sm.AddTransition(models.PhaseWaiting, models.PhaseSelecting, full)
	sm.AddTransition(models.PhaseSelecting, models.PhasePlaying, func() bool {
		return full() && room.AllSecretsChosen()
	})
	sm.AddTransition(models.PhasePlaying, models.PhaseFinished, room.HasWinner)
	sm.AddTransition(models.PhasePlaying, models.PhaseSelecting, full)
	sm.AddTransition(models.PhaseFinished, models.PhaseSelecting, full)

	return sm
}
