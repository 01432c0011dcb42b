package network

import "errors"

var (
	// ErrInvalidParameter is wrapped by every constructor-argument validation failure.
	ErrInvalidParameter = errors.New("invalid layer parameter")
	// ErrUnknownLayer is returned when no builder exists for a layer type.
	ErrUnknownLayer = errors.New("unknown layer type")
	// ErrEmptyNetwork is returned by tail operations on a network without nodes.
	ErrEmptyNetwork = errors.New("network is empty")
	// ErrDuplicateNode is returned when appending a node whose id is already present.
	ErrDuplicateNode = errors.New("duplicate node id")
	// ErrShapeMismatch is returned when a node's input shape does not follow its predecessor.
	ErrShapeMismatch = errors.New("shape mismatch")
)
