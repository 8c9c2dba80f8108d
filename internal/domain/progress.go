package domain

// SyncProgress reports progress during a full schedule sync.
type SyncProgress struct {
	Stage     string
	Done      int
	Total     int
	Errors    int
	Message   string
	Finished  bool
	Cancelled bool
}

// Fraction returns completion in [0, 1].
func (p SyncProgress) Fraction() float64 {
	if p.Total <= 0 {
		if p.Finished {
			return 1
		}
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// SyncObserver receives progress updates during sync operations.
type SyncObserver interface {
	OnProgress(progress SyncProgress)
}

// ObserverFunc adapts a function to SyncObserver.
type ObserverFunc func(SyncProgress)

func (f ObserverFunc) OnProgress(p SyncProgress) { f(p) }

// NoOpObserver discards progress updates (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnProgress(SyncProgress) {}
