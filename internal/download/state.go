package download

import "fmt"

type State int

const (
	StateHandshaken State = iota
	StateWaitUnchoke
	StateUnchoked
	StateWaitBlock
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateHandshaken:
		return "handshaken"
	case StateWaitUnchoke:
		return "wait-unchoke"
	case StateUnchoked:
		return "unchoked"
	case StateWaitBlock:
		return "wait-block"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type event int

const (
	// Internal events raised by the engine itself.
	eventStart event = iota
	eventAlreadyUnchoked
	eventBlocksPending
	eventBlocksDone

	// Events raised by a message from the peer.
	eventKeepAlive
	eventChoke
	eventUnchoke
	eventBitfield
	eventHave
	eventExpectedBlock
	eventUnexpectedBlock
	eventOtherMessage
)

func (e event) String() string {
	return [...]string{
		"start",
		"already-unchoked",
		"blocks-pending",
		"blocks-done",
		"keep-alive",
		"choke",
		"unchoke",
		"bitfield",
		"have",
		"expected-block",
		"unexpected-block",
		"other-message",
	}[e]
}

type action int

const (
	actionNone action = iota
	actionSendInterested
	actionRequestBlock
	actionStoreBlock
	actionVerify
	actionReject
)

type stateEvent struct {
	state State
	event event
}

type transitionResult struct {
	next   State
	action action
}

// transitions lists every meaningful (state, event) pair. Pairs missing from
// the table are handled by transition.
var transitions = map[stateEvent]transitionResult{
	{StateHandshaken, eventStart}:           {StateWaitUnchoke, actionSendInterested},
	{StateHandshaken, eventAlreadyUnchoked}: {StateUnchoked, actionNone},

	{StateWaitUnchoke, eventUnchoke}: {StateUnchoked, actionNone},

	{StateUnchoked, eventBlocksPending}: {StateWaitBlock, actionRequestBlock},
	{StateUnchoked, eventBlocksDone}:    {StateComplete, actionVerify},

	{StateWaitBlock, eventExpectedBlock}: {StateUnchoked, actionStoreBlock},
	{StateWaitBlock, eventChoke}:         {StateWaitUnchoke, actionNone},
}

func isPeerEvent(e event) bool {
	return e >= eventKeepAlive
}

/*
transition returns the next state and the action to run for an event.

While waiting for an unchoke or a block, any peer message without an entry in
the table is noise: the state is kept and nothing is done. Anything else
without an entry is rejected and moves the engine to StateFailed.
*/
func transition(state State, e event) (State, action) {
	if result, ok := transitions[stateEvent{state, e}]; ok {
		return result.next, result.action
	}

	if (state == StateWaitUnchoke || state == StateWaitBlock) && isPeerEvent(e) {
		return state, actionNone
	}

	return StateFailed, actionReject
}
