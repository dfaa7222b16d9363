package studio

// ProgressObserver receives the completed share of a run as an integer percent.
// It is called synchronously between chunks and must return promptly.
type ProgressObserver interface {
	Progress(percent int)
}

// ProgressFunc adapts a plain function to ProgressObserver.
type ProgressFunc func(percent int)

func (f ProgressFunc) Progress(percent int) { f(percent) }

func percentDone(done, total int) int {
	// round half up, matching integer percent display
	return (200*done + total) / (2 * total)
}
