package sync

import (
	"time"
)

// DiffKind classifies how a path differs between the two sides.
type DiffKind uint8

const (
	DiffLocalOnly DiffKind = iota
	DiffRemoteOnly
	DiffBoth
)

var diffKindNames = []string{
	"LocalOnly",
	"RemoteOnly",
	"BothDiffer",
}

func (k DiffKind) String() string {
	return diffKindNames[k]
}

// SideState is what the scanner observed for one side of a path.
type SideState struct {
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Difference is one path the comparison tool reported as out of sync,
// normalized with both sides' metadata. Produced fresh each cycle and
// discarded after reconciliation.
type Difference struct {
	Path   string // slash separated, relative to the sync root
	Kind   DiffKind
	Local  SideState
	Remote SideState
}

// OpType identifies the corrective action chosen for a difference.
type OpType uint8

const (
	OpUpload OpType = iota
	OpDownload
	OpDeleteLocal
	OpDeleteRemote
	OpConflict
)

var opTypeNames = []string{
	"Upload",
	"Download",
	"DeleteLocal",
	"DeleteRemote",
	"Conflict",
}

func (op OpType) String() string {
	return opTypeNames[op]
}

// Action is the reconciler's decision for one path. The side states are
// carried along so the executor knows which destinations it is overwriting.
type Action struct {
	Op     OpType
	Path   string
	Local  SideState
	Remote SideState

	// Anomalous marks a difference where neither side's timestamp moved
	// past the baseline, which contradicts the comparison tool reporting a
	// difference at all. Such paths get the conflict treatment so nothing
	// is lost, but are logged separately.
	Anomalous bool
}

// TransferBytes estimates how much data applying the action will move.
func (a Action) TransferBytes() int64 {
	switch a.Op {
	case OpUpload:
		return a.Local.Size
	case OpDownload:
		return a.Remote.Size
	case OpConflict:
		// download the remote version plus upload the renamed local copy
		return a.Remote.Size + a.Local.Size
	default:
		return 0
	}
}

// ActionFailure records one action that could not be applied this cycle.
// The underlying difference persists, so the next cycle retries it.
type ActionFailure struct {
	Op   OpType
	Path string
	Err  error
}

// CycleResult summarizes one completed sync cycle.
type CycleResult struct {
	ID       string
	Started  time.Time
	Finished time.Time
	DryRun   bool

	Uploads       int
	Downloads     int
	LocalDeletes  int
	RemoteDeletes int
	Conflicts     int
	Anomalies     int
	TransferBytes int64

	Failed []ActionFailure
}

// Planned returns the total number of actions the cycle attempted.
func (r *CycleResult) Planned() int {
	return r.Uploads + r.Downloads + r.LocalDeletes + r.RemoteDeletes + r.Conflicts
}

// Clean reports whether every attempted action succeeded.
func (r *CycleResult) Clean() bool {
	return len(r.Failed) == 0
}
