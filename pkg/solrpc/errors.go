package solrpc

import "errors"

// ErrFakeRPCFailure is returned by Fake when a configured failure is
// consumed, simulating a transient RPC error for tests.
var ErrFakeRPCFailure = errors.New("simulated rpc failure")
