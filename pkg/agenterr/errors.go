package agenterr

import "fmt"

// TurnError is the terminal failure of a coaching turn. Error() is safe to
// show to end users; the underlying cause is only reachable through Unwrap.
type TurnError struct {
	Kind     Kind
	Response Response
	TurnID   string
	Err      error
}

// NewTurnError classifies err and wraps it as a TurnError.
func NewTurnError(turnID string, err error) *TurnError {
	kind := Classify(err)
	return &TurnError{
		Kind:     kind,
		Response: kind.Response(),
		TurnID:   turnID,
		Err:      err,
	}
}

// NewTurnErrorWithKind wraps err as a TurnError of a kind the caller has
// already decided on.
func NewTurnErrorWithKind(turnID string, kind Kind, err error) *TurnError {
	return &TurnError{
		Kind:     kind,
		Response: kind.Response(),
		TurnID:   turnID,
		Err:      err,
	}
}

func (e *TurnError) Error() string {
	return e.Response.UserMessage
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Detail returns the internal description of the failure, for logs only.
func (e *TurnError) Detail() string {
	return fmt.Sprintf("turn %s failed (%s): %v", e.TurnID, e.Kind, e.Err)
}
