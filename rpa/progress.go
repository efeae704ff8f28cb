package rpa

// Stage identifies which phase of a long-running operation a Progress
// event describes. Stages are emitted strictly in this order; a caller
// that only cares about overall completion can ignore everything but
// StageComplete.
type Stage string

// The stages ExtractAll reports through a ProgressFunc.
const (
	StageExtract   Stage = "extract"
	StageDecompile Stage = "decompile"
	StageComplete  Stage = "complete"
)

// Progress is one progress event. Current is monotonically increasing
// within a Stage; Total is fixed for the duration of that Stage. The
// callback is one-way: it cannot influence control flow or cancel the
// operation it's reporting on.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// ProgressFunc receives Progress events. A nil ProgressFunc is valid
// everywhere one is accepted and simply means "don't report."
type ProgressFunc func(Progress)

func (f ProgressFunc) report(p Progress) {
	if f != nil {
		f(p)
	}
}
