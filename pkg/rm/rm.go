package rm

import (
	"context"
	"fmt"

	"github.com/wilkinson/radical.entk/pkg/types"
)

// RTSReservation is the narrow surface the concrete RTS exposes for
// reservation lifecycle management; the RTS itself is out of scope, so
// ResourceManager depends only on this contract, mirroring the
// worker/executor boundary pkg/taskmanager draws against its own RTS
// interface.
type RTSReservation interface {
	Submit(ctx context.Context, desc *types.ResourceDescriptor) (handle string, err error)
	Cancel(ctx context.Context, handle string) error
	State(ctx context.Context, handle string) (types.AllocationState, error)
	StageSharedData(ctx context.Context, handle string, files []types.SharedDataDescriptor) error
}

// ResourceManager validates a resource descriptor and drives one
// reservation's lifecycle against the RTS. It is instantiated once
// per AppManager session.
type ResourceManager struct {
	rts        RTSReservation
	desc       *types.ResourceDescriptor
	sharedData []types.SharedDataDescriptor
	handle     string
}

// New constructs a ResourceManager bound to rts. Validate must be called
// before Populate/SubmitReservation.
func New(rts RTSReservation, desc *types.ResourceDescriptor) *ResourceManager {
	return &ResourceManager{rts: rts, desc: desc}
}

// Validate checks the descriptor's mandatory keys.
func (m *ResourceManager) Validate() error {
	if m.desc == nil {
		return &types.MissingError{What: "resource descriptor"}
	}
	return m.desc.Validate()
}

// AddSharedData registers a file to be staged once, when the reservation
// is submitted.
func (m *ResourceManager) AddSharedData(d types.SharedDataDescriptor) {
	m.sharedData = append(m.sharedData, d)
}

// Populate resolves any descriptor defaults the RTS needs filled in
// before submission (queue/access-schema autodetection, etc). The
// abstract contract leaves the concrete behavior to the RTS; here it is
// a no-op extension point a concrete RTS implementation may hook.
func (m *ResourceManager) Populate() error {
	return nil
}

// SubmitReservation submits the reservation. Synchronous with respect to
// the RTS accepting the request; actual provisioning completes
// asynchronously and is observed via AllocationState. Shared data is
// staged once, immediately after the RTS accepts the reservation.
func (m *ResourceManager) SubmitReservation(ctx context.Context) error {
	if m.handle != "" {
		return fmt.Errorf("rm: reservation already submitted (handle %s)", m.handle)
	}
	handle, err := m.rts.Submit(ctx, m.desc)
	if err != nil {
		return fmt.Errorf("rm: submit reservation: %w", err)
	}
	m.handle = handle

	if len(m.sharedData) > 0 {
		if err := m.rts.StageSharedData(ctx, handle, m.sharedData); err != nil {
			return fmt.Errorf("rm: stage shared data: %w", err)
		}
	}
	return nil
}

// CancelReservation cancels the reservation. A no-op if none was ever
// submitted.
func (m *ResourceManager) CancelReservation(ctx context.Context) error {
	if m.handle == "" {
		return nil
	}
	if err := m.rts.Cancel(ctx, m.handle); err != nil {
		return fmt.Errorf("rm: cancel reservation %s: %w", m.handle, err)
	}
	return nil
}

// AllocationState reports the RTS-observed state of the reservation.
func (m *ResourceManager) AllocationState(ctx context.Context) (types.AllocationState, error) {
	if m.handle == "" {
		return "", fmt.Errorf("rm: no reservation submitted")
	}
	return m.rts.State(ctx, m.handle)
}

// CompletedStates lists the terminal allocation states.
func (m *ResourceManager) CompletedStates() []types.AllocationState {
	return types.CompletedAllocationStates()
}

// Handle returns the RTS-assigned reservation handle, or "" if none has
// been submitted yet.
func (m *ResourceManager) Handle() string {
	return m.handle
}
