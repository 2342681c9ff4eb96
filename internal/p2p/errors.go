package p2p

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is the root of every peer and wire failure.
	ErrNetwork = errors.New("network error")

	ErrMalformedMessage = fmt.Errorf("%w: malformed message", ErrNetwork)
	ErrPeerLimit        = fmt.Errorf("%w: peer limit reached", ErrNetwork)
	ErrAlreadyConnected = fmt.Errorf("%w: peer already connected", ErrNetwork)
	ErrPeerClosed       = fmt.Errorf("%w: peer connection closed", ErrNetwork)
	ErrSendQueueFull    = fmt.Errorf("%w: peer send queue full", ErrNetwork)

	ErrServiceAlreadyStarted = errors.New("service already started")
	ErrServiceNotStarted     = errors.New("service not started")
)
