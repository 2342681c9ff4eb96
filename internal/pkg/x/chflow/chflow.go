// Package chflow holds small helpers for signalling over Go channels.
package chflow

// TrySend sends data only if ch can accept it immediately.
// Paired with a channel of capacity one it coalesces bursts of notifications.
func TrySend[T any](ch chan<- T, data T) bool {
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}
