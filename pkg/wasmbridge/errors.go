// Copyright 2025 Ditto Network

package wasmbridge

import "errors"

// ErrNothingToDo is returned by Process when the request file does not
// exist — there is no pending guest RPC call this poll.
var ErrNothingToDo = errors.New("wasmbridge: nothing to do")
