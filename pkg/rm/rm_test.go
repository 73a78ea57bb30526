package rm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilkinson/radical.entk/pkg/types"
)

type fakeRTS struct {
	submitted bool
	cancelled bool
	staged    []types.SharedDataDescriptor
	state     types.AllocationState
}

func (f *fakeRTS) Submit(ctx context.Context, desc *types.ResourceDescriptor) (string, error) {
	f.submitted = true
	f.state = types.AllocationActive
	return "handle-1", nil
}

func (f *fakeRTS) Cancel(ctx context.Context, handle string) error {
	f.cancelled = true
	f.state = types.AllocationCanceled
	return nil
}

func (f *fakeRTS) State(ctx context.Context, handle string) (types.AllocationState, error) {
	return f.state, nil
}

func (f *fakeRTS) StageSharedData(ctx context.Context, handle string, files []types.SharedDataDescriptor) error {
	f.staged = files
	return nil
}

func TestValidateRejectsMissingFields(t *testing.T) {
	m := New(&fakeRTS{}, &types.ResourceDescriptor{})
	assert.Error(t, m.Validate())
}

func TestValidateAcceptsCompleteDescriptor(t *testing.T) {
	m := New(&fakeRTS{}, &types.ResourceDescriptor{Resource: "local.localhost", Walltime: 30, Cores: 4})
	assert.NoError(t, m.Validate())
}

func TestSubmitReservationStagesSharedDataAndSetsHandle(t *testing.T) {
	fake := &fakeRTS{}
	m := New(fake, &types.ResourceDescriptor{Resource: "local.localhost", Walltime: 30, Cores: 4})
	m.AddSharedData(types.SharedDataDescriptor{Source: "input.dat", Target: "input.dat"})

	require.NoError(t, m.SubmitReservation(context.Background()))
	assert.True(t, fake.submitted)
	assert.Equal(t, "handle-1", m.Handle())
	assert.Len(t, fake.staged, 1)

	state, err := m.AllocationState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.AllocationActive, state)
}

func TestSubmitReservationTwiceFails(t *testing.T) {
	fake := &fakeRTS{}
	m := New(fake, &types.ResourceDescriptor{Resource: "local.localhost", Walltime: 30, Cores: 4})
	require.NoError(t, m.SubmitReservation(context.Background()))
	assert.Error(t, m.SubmitReservation(context.Background()))
}

func TestCancelReservationWithoutSubmitIsNoop(t *testing.T) {
	fake := &fakeRTS{}
	m := New(fake, &types.ResourceDescriptor{Resource: "local.localhost", Walltime: 30, Cores: 4})
	require.NoError(t, m.CancelReservation(context.Background()))
	assert.False(t, fake.cancelled)
}

func TestCancelReservationAfterSubmit(t *testing.T) {
	fake := &fakeRTS{}
	m := New(fake, &types.ResourceDescriptor{Resource: "local.localhost", Walltime: 30, Cores: 4})
	require.NoError(t, m.SubmitReservation(context.Background()))
	require.NoError(t, m.CancelReservation(context.Background()))
	assert.True(t, fake.cancelled)
}

func TestCompletedStates(t *testing.T) {
	m := New(&fakeRTS{}, &types.ResourceDescriptor{Resource: "x", Walltime: 1, Cores: 1})
	assert.ElementsMatch(t, []types.AllocationState{
		types.AllocationDone, types.AllocationFailed, types.AllocationCanceled,
	}, m.CompletedStates())
}
