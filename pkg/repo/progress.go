package repo

// Phase names the operation reporting progress.
type Phase string

const (
	PhaseCheckout Phase = "checkout"
	PhaseMerge    Phase = "merge"
	PhaseResolve  Phase = "resolve"
	PhaseWalk     Phase = "walk"
)

// Progress is one (current, total) report. Total is 0 when unknown.
type Progress struct {
	Phase   Phase
	Current int
	Total   int
}

// ProgressFunc receives progress reports synchronously on the calling
// goroutine. It must not call back into the repository.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(phase Phase, current, total int) {
	if f != nil {
		f(Progress{Phase: phase, Current: current, Total: total})
	}
}
