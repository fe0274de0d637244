package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local) // baseline
	t1 = t0.Add(-time.Hour)                             // before baseline
	t2 = t0.Add(time.Hour)                              // after baseline
)

func side(modTime time.Time) SideState {
	return SideState{Exists: true, Size: 42, ModTime: modTime}
}

func TestReconcile_TableDriven(t *testing.T) {
	r := &Reconciler{Baseline: t0}

	cases := []struct {
		name          string
		diff          Difference
		wantOp        OpType
		wantAnomalous bool
	}{
		{
			name:   "local only, modified after baseline, is a new file",
			diff:   Difference{Path: "a.txt", Kind: DiffLocalOnly, Local: side(t2)},
			wantOp: OpUpload,
		},
		{
			name:   "local only, unchanged since baseline, was deleted remotely",
			diff:   Difference{Path: "a.txt", Kind: DiffLocalOnly, Local: side(t1)},
			wantOp: OpDeleteLocal,
		},
		{
			name:   "local only, modified exactly at baseline, counts as synced",
			diff:   Difference{Path: "a.txt", Kind: DiffLocalOnly, Local: side(t0)},
			wantOp: OpDeleteLocal,
		},
		{
			name:   "remote only, modified after baseline, is a new file",
			diff:   Difference{Path: "b.txt", Kind: DiffRemoteOnly, Remote: side(t2)},
			wantOp: OpDownload,
		},
		{
			name:   "remote only, unchanged since baseline, was deleted locally",
			diff:   Difference{Path: "b.txt", Kind: DiffRemoteOnly, Remote: side(t1)},
			wantOp: OpDeleteRemote,
		},
		{
			name:   "remote only, modified exactly at baseline, counts as synced",
			diff:   Difference{Path: "b.txt", Kind: DiffRemoteOnly, Remote: side(t0)},
			wantOp: OpDeleteRemote,
		},
		{
			name:   "both differ, only local changed",
			diff:   Difference{Path: "c.txt", Kind: DiffBoth, Local: side(t2), Remote: side(t1)},
			wantOp: OpUpload,
		},
		{
			name:   "both differ, only remote changed",
			diff:   Difference{Path: "c.txt", Kind: DiffBoth, Local: side(t1), Remote: side(t2)},
			wantOp: OpDownload,
		},
		{
			name:   "both differ, both changed, is a conflict",
			diff:   Difference{Path: "c.txt", Kind: DiffBoth, Local: side(t2), Remote: side(t2.Add(time.Minute))},
			wantOp: OpConflict,
		},
		{
			name:          "both differ, neither changed, anomalous conflict fallback",
			diff:          Difference{Path: "c.txt", Kind: DiffBoth, Local: side(t1), Remote: side(t1)},
			wantOp:        OpConflict,
			wantAnomalous: true,
		},
		{
			name:          "both differ, both exactly at baseline, anomalous",
			diff:          Difference{Path: "c.txt", Kind: DiffBoth, Local: side(t0), Remote: side(t0)},
			wantOp:        OpConflict,
			wantAnomalous: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action := r.Reconcile(tc.diff)
			assert.Equal(t, tc.wantOp, action.Op)
			assert.Equal(t, tc.wantAnomalous, action.Anomalous)
			assert.Equal(t, tc.diff.Path, action.Path)
			assert.Equal(t, tc.diff.Local, action.Local)
			assert.Equal(t, tc.diff.Remote, action.Remote)
		})
	}
}

func TestReconcile_EpochBaselineTreatsEverythingAsNew(t *testing.T) {
	// first contact: nothing has ever been synced, so one-sided paths are
	// copies, never deletes, and two-sided differences are conflicts
	r := &Reconciler{Baseline: time.Unix(0, 0)}

	assert.Equal(t, OpUpload, r.Reconcile(Difference{Path: "a", Kind: DiffLocalOnly, Local: side(t1)}).Op)
	assert.Equal(t, OpDownload, r.Reconcile(Difference{Path: "b", Kind: DiffRemoteOnly, Remote: side(t1)}).Op)
	assert.Equal(t, OpConflict, r.Reconcile(Difference{Path: "c", Kind: DiffBoth, Local: side(t1), Remote: side(t1)}).Op)
}

func TestReconcile_DeleteNeverChosenWhenSideChanged(t *testing.T) {
	// a changed side is always copied, regardless of how the other looks
	r := &Reconciler{Baseline: t0}

	for _, mod := range []time.Time{t0.Add(time.Nanosecond), t2, t2.Add(24 * time.Hour)} {
		local := r.Reconcile(Difference{Path: "x", Kind: DiffLocalOnly, Local: side(mod)})
		assert.Equal(t, OpUpload, local.Op, "local modified at %v", mod)

		remote := r.Reconcile(Difference{Path: "x", Kind: DiffRemoteOnly, Remote: side(mod)})
		assert.Equal(t, OpDownload, remote.Op, "remote modified at %v", mod)
	}
}

func TestActionTransferBytes(t *testing.T) {
	local := SideState{Exists: true, Size: 100}
	remote := SideState{Exists: true, Size: 30}

	assert.Equal(t, int64(100), Action{Op: OpUpload, Local: local, Remote: remote}.TransferBytes())
	assert.Equal(t, int64(30), Action{Op: OpDownload, Local: local, Remote: remote}.TransferBytes())
	assert.Equal(t, int64(130), Action{Op: OpConflict, Local: local, Remote: remote}.TransferBytes())
	assert.Equal(t, int64(0), Action{Op: OpDeleteLocal, Local: local}.TransferBytes())
	assert.Equal(t, int64(0), Action{Op: OpDeleteRemote, Remote: remote}.TransferBytes())
}
