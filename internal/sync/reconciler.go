package sync

import (
	"time"
)

// Reconciler decides, per differing path, which side is authoritative and
// what corrective action restores agreement. The baseline timestamp acts as
// a logical clock: a side whose modification time is strictly after the
// baseline has changed since the last successful sync. Pure and
// deterministic; all I/O happens in the scanner before and the executor
// after.
type Reconciler struct {
	// Baseline is the recorded time of the last successful sync. The epoch
	// baseline (never synced) makes every present file count as changed,
	// so first contact copies instead of deleting.
	Baseline time.Time
}

// Reconcile maps one difference to exactly one action.
//
// A path present on a single side either appeared there since the baseline
// (copy it over) or was deleted from the other side after having been
// synced (delete it here too). A path differing on both sides follows
// whichever side changed since the baseline; if both changed there is no
// way to determine intent, so the remote wins and the local version is
// preserved under a renamed path.
func (r *Reconciler) Reconcile(d Difference) Action {
	action := Action{Path: d.Path, Local: d.Local, Remote: d.Remote}

	switch d.Kind {
	case DiffLocalOnly:
		if r.changedSince(d.Local) {
			action.Op = OpUpload
		} else {
			action.Op = OpDeleteLocal
		}

	case DiffRemoteOnly:
		if r.changedSince(d.Remote) {
			action.Op = OpDownload
		} else {
			action.Op = OpDeleteRemote
		}

	case DiffBoth:
		localChanged := r.changedSince(d.Local)
		remoteChanged := r.changedSince(d.Remote)

		switch {
		case localChanged && !remoteChanged:
			action.Op = OpUpload
		case !localChanged && remoteChanged:
			action.Op = OpDownload
		case localChanged && remoteChanged:
			action.Op = OpConflict
		default:
			// The comparison tool says the contents differ, yet neither
			// timestamp moved past the baseline. Clock skew or an upstream
			// defect; resolving either side blindly could lose data, so
			// the conflict path keeps both versions.
			action.Op = OpConflict
			action.Anomalous = true
		}
	}

	return action
}

// changedSince reports whether a side was modified after the baseline.
// A modification time equal to the baseline counts as already synced.
func (r *Reconciler) changedSince(s SideState) bool {
	return s.Exists && s.ModTime.After(r.Baseline)
}
