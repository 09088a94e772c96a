package bagel

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrRoundTagMismatch = errors.New("round tag mismatch")
	ErrKernel           = errors.New("kernel error")
	ErrDeadlock         = errors.New("deadlock: no PE made progress")
	ErrUnknownVertex    = errors.New("unknown vertex")
	ErrAlreadyStarted   = errors.New("engine already started")
	ErrBadConfig        = errors.New("invalid engine config")
)

// CapacityError reports a PE whose partition does not fit its provisioned
// vertex or edge capacity.
type CapacityError struct {
	PE       PEID
	Resource string // "vertices" or "edges"
	Count    int
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf(
		"%v: PE %d holds %d %s, limit %d",
		ErrCapacityExceeded, e.PE, e.Count, e.Resource, e.Limit,
	)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// KernelError is the first error a kernel returned on a PE. It is sticky
// and never stops the other PEs.
type KernelError struct {
	PE     PEID
	Vertex VertexID
	Round  uint64
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf(
		"%v on PE %d, vertex %d, round %d: %v",
		ErrKernel, e.PE, e.Vertex, e.Round, e.Err,
	)
}

func (e *KernelError) Unwrap() error {
	return e.Err
}

func (e *KernelError) Is(target error) bool {
	return target == ErrKernel
}
