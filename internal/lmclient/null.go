package lmclient

import "context"

// NullProvider is a deterministic test double: it returns a fixed
// response (or error) rather than calling out to any provider,
// mirroring the teacher's deterministic-fallback posture for "no API
// key configured" but promoted here to a first-class, explicitly
// selected test implementation instead of a silent fallback path.
type NullProvider struct {
	Responses []Response
	Err       error
	calls     int
}

// Chat returns the next queued Response in order, repeating the last
// one once the queue is exhausted. If Err is set, it is returned
// instead (and the queue is not consulted).
func (n *NullProvider) Chat(_ context.Context, _ []Message, _ int) (Response, error) {
	n.calls++
	if n.Err != nil {
		return Response{}, n.Err
	}
	if len(n.Responses) == 0 {
		return Response{}, nil
	}
	idx := n.calls - 1
	if idx >= len(n.Responses) {
		idx = len(n.Responses) - 1
	}
	return n.Responses[idx], nil
}

// Health returns Err, or nil if unset.
func (n *NullProvider) Health(_ context.Context) error {
	return n.Err
}

// Calls reports how many times Chat has been invoked.
func (n *NullProvider) Calls() int {
	return n.calls
}
