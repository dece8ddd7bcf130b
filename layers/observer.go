package layers

// ChangeKind names what a store mutation did.
type ChangeKind string

const (
	ChangeAdded      ChangeKind = "added"
	ChangeRemoved    ChangeKind = "removed"
	ChangeMoved      ChangeKind = "moved"
	ChangeUpdated    ChangeKind = "updated"
	ChangeSelected   ChangeKind = "selected"
	ChangeBackground ChangeKind = "background"
	ChangeReset      ChangeKind = "reset"
)

// Change describes one applied mutation. LayerID is empty for store-wide
// changes.
type Change struct {
	Kind    ChangeKind
	LayerID string
}

// Observer is told about every mutation after it has been applied.
type Observer interface {
	OnLayersChanged(c Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(c Change)

func (f ObserverFunc) OnLayersChanged(c Change) { f(c) }

// Observe registers o. Observers run outside the store lock and may read
// the store.
func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Store) emit(c Change) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.OnLayersChanged(c)
	}
}
