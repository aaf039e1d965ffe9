package rtagent

import "errors"

// ErrNotConnected is returned by send operations when no connection is up.
var ErrNotConnected = errors.New("transport is not connected")

// ModelBehaviorError signals that the model produced something the protocol
// cannot act on, e.g. a call to a tool that does not exist. It originates
// from async event dispatch and surfaces via the session's error event.
type ModelBehaviorError struct {
	Message string
}

func (e *ModelBehaviorError) Error() string { return e.Message }
