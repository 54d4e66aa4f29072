package loop

// ProgressObserver receives lifecycle callbacks as the loop runs. Callbacks
// fire on the controller goroutine; observers that need to do slow work
// should hand off internally.
type ProgressObserver interface {
	// OnLoopStart fires once before the first iteration.
	OnLoopStart(maxIterations int)

	// OnIterationStart fires before each agent invocation.
	OnIterationStart(iteration, maxIterations int)

	// OnIterationComplete fires after an iteration's record is persisted.
	// Cancelled in-flight iterations never reach this callback.
	OnIterationComplete(result IterationResult)

	// OnLoopEnd fires once with the final summary.
	OnLoopEnd(summary *RunSummary)
}

// NoopObserver implements ProgressObserver with no-ops. Embed it to pick up
// only the callbacks you care about.
type NoopObserver struct{}

func (NoopObserver) OnLoopStart(int)                   {}
func (NoopObserver) OnIterationStart(int, int)         {}
func (NoopObserver) OnIterationComplete(IterationResult) {}
func (NoopObserver) OnLoopEnd(*RunSummary)             {}

var _ ProgressObserver = NoopObserver{}

// MultiObserver fans out callbacks to several observers. Nil entries are
// filtered at construction and a panicking observer never blocks the rest.
type MultiObserver struct {
	observers []ProgressObserver
}

var _ ProgressObserver = (*MultiObserver)(nil)

// NewMultiObserver builds a fan-out over the non-nil observers.
func NewMultiObserver(observers ...ProgressObserver) *MultiObserver {
	filtered := make([]ProgressObserver, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

// safeCall invokes fn with panic recovery so one observer failing cannot
// take down the loop or its sibling observers.
func safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

func (m *MultiObserver) OnLoopStart(maxIterations int) {
	for _, obs := range m.observers {
		obs := obs
		safeCall(func() { obs.OnLoopStart(maxIterations) })
	}
}

func (m *MultiObserver) OnIterationStart(iteration, maxIterations int) {
	for _, obs := range m.observers {
		obs := obs
		safeCall(func() { obs.OnIterationStart(iteration, maxIterations) })
	}
}

func (m *MultiObserver) OnIterationComplete(result IterationResult) {
	for _, obs := range m.observers {
		obs := obs
		safeCall(func() { obs.OnIterationComplete(result) })
	}
}

func (m *MultiObserver) OnLoopEnd(summary *RunSummary) {
	for _, obs := range m.observers {
		obs := obs
		safeCall(func() { obs.OnLoopEnd(summary) })
	}
}
