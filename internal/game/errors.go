package game

import "errors"

// ErrorKind classifies a rejected request so transports can map it without string matching.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindNotFound          ErrorKind = "not_found"
	KindInternal          ErrorKind = "internal"
)

// Error is a request-local failure. None of them are fatal and none mutate session state.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrGameNotFound = newError(KindNotFound, "game not found")
	ErrNotInGame    = newError(KindNotFound, "player is not in this game")

	ErrRoomFull               = newError(KindValidation, "room is full")
	ErrAlreadyInGame          = newError(KindValidation, "player has already joined this game")
	ErrNotYourTurn            = newError(KindValidation, "it is not your turn")
	ErrDrawAlreadyPending     = newError(KindValidation, "you have already drawn a card")
	ErrReactionInProgress     = newError(KindValidation, "wait for the reaction window to close")
	ErrInvalidSource          = newError(KindValidation, "invalid draw source")
	ErrDiscardEmpty           = newError(KindValidation, "discard pile is empty")
	ErrNoPendingDraw          = newError(KindValidation, "no drawn card to play")
	ErrInvalidSwapIndex       = newError(KindValidation, "invalid swap index")
	ErrNoActiveReaction       = newError(KindValidation, "no active reaction")
	ErrInitiatorCannotRespond = newError(KindValidation, "you cannot react to your own discard")
	ErrAlreadyResponded       = newError(KindValidation, "you have already responded")
	ErrInvalidHandIndex       = newError(KindValidation, "invalid hand index")

	ErrDeckExhausted = newError(KindResourceExhausted, "deck and discard pile are exhausted")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}
