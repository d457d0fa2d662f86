// Package failure defines the typed failures delivered to error callbacks.
//
// A refused call always reaches the caller as a *Error carrying one of three
// kinds:
//   - Base: a generic failure, usually an application refusal
//   - Disconnected: the destination was not reachable (not connected, gate
//     unlinked, or a pending gate entry evicted under load)
//   - Timeout: the call was not resolved within its deadline
//
// Errors serialize to the plain wire triple {kind, message, data} so they can
// cross gates. Decoding an unknown or absent kind yields a Base failure.
//
// Example usage:
//
//	node.Send(network.Node("sum"), "sum", []int{1, 2, 3},
//		network.WithError(func(err *failure.Error) {
//			if errors.Is(err, failure.ErrTimeout) {
//				// retry later
//			}
//		}))
package failure
