package local

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// Reservation implements pkg/rm's RTSReservation contract for LocalRTS.
// A local run has no real scheduler to reserve resources from, so the
// reservation is a formality that goes ACTIVE immediately on submit and
// stages shared data by copying it into the task working directory.
type Reservation struct {
	workDir string
	state   types.AllocationState
}

// NewReservation returns a Reservation that stages shared data under
// workDir (the same directory LocalRTS writes task output to).
func NewReservation(workDir string) *Reservation {
	return &Reservation{workDir: workDir}
}

func (r *Reservation) Submit(ctx context.Context, desc *types.ResourceDescriptor) (string, error) {
	r.state = types.AllocationActive
	return uuid.NewString(), nil
}

func (r *Reservation) Cancel(ctx context.Context, handle string) error {
	r.state = types.AllocationCanceled
	return nil
}

func (r *Reservation) State(ctx context.Context, handle string) (types.AllocationState, error) {
	return r.state, nil
}

// StageSharedData copies each descriptor's source file into workDir
// under its target name. The engine never interprets task data itself
// (data-plane I/O is the RTS's job); this is the minimal "copy" action a
// real RTS would perform before any task starts.
func (r *Reservation) StageSharedData(ctx context.Context, handle string, files []types.SharedDataDescriptor) error {
	for _, f := range files {
		if err := copyFile(f.Source, r.workDir+"/"+f.Target); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
