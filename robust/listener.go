package robust

// Listener receives estimation progress events. All callbacks run
// synchronously on the goroutine that called Estimate, in iteration order:
// exactly one EstimateStart before the first sample is drawn, zero or more
// NextIteration/ProgressChanged during the loop, exactly one EstimateEnd on
// every exit path. Callbacks observe IsLocked() == true and have mutator
// calls rejected with ErrLocked.
type Listener interface {
	EstimateStart()
	EstimateEnd()
	// NextIteration is delivered after each completed iteration with its
	// 1-based index.
	NextIteration(iter int)
	// ProgressChanged reports the fraction min(1, i/N) in [0, 1]. Emission
	// is throttled: it fires only when progress has advanced by at least
	// ProgressDelta since the previous emission.
	ProgressChanged(progress float64)
}

// ListenerFuncs adapts plain functions to the Listener interface. Nil
// fields are skipped.
type ListenerFuncs struct {
	OnStart     func()
	OnEnd       func()
	OnIteration func(iter int)
	OnProgress  func(progress float64)
}

func (l *ListenerFuncs) EstimateStart() {
	if l.OnStart != nil {
		l.OnStart()
	}
}

func (l *ListenerFuncs) EstimateEnd() {
	if l.OnEnd != nil {
		l.OnEnd()
	}
}

func (l *ListenerFuncs) NextIteration(iter int) {
	if l.OnIteration != nil {
		l.OnIteration(iter)
	}
}

func (l *ListenerFuncs) ProgressChanged(progress float64) {
	if l.OnProgress != nil {
		l.OnProgress(progress)
	}
}
