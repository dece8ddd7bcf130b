package scene

import "sync"

// Override applies temporary changes to nodes. Each change records how to
// undo itself at the moment it is made; Restore replays the undo steps in
// reverse order. An undo step only reverses its own change: a class or
// style that was changed again after the override is left alone. Restore
// is safe to call more than once.
type Override struct {
	mu   sync.Mutex
	undo []func()
}

func (o *Override) push(fn func()) {
	o.mu.Lock()
	o.undo = append(o.undo, fn)
	o.mu.Unlock()
}

// SetStyle overrides an inline property. An empty value removes it. The
// previous value comes back on Restore unless the property no longer holds
// the override value.
func (o *Override) SetStyle(n *Node, prop, value string) {
	prev, had := n.StyleValue(prop)
	o.push(func() {
		if cur, ok := n.StyleValue(prop); cur != value || ok != (value != "") {
			return
		}
		if had {
			n.SetStyle(prop, prev)
		} else {
			delete(n.Style, prop)
		}
	})
	n.SetStyle(prop, value)
}

func (o *Override) AddClass(n *Node, c string) {
	if n.AddClass(c) {
		o.push(func() { n.RemoveClass(c) })
	}
}

// RemoveClass drops c. Restore puts it back at its old position.
func (o *Override) RemoveClass(n *Node, c string) {
	at := n.classIndex(c)
	if n.RemoveClass(c) {
		o.push(func() { n.insertClass(c, at) })
	}
}

// Defer registers an arbitrary undo step.
func (o *Override) Defer(fn func()) {
	o.push(fn)
}

// Len is the number of pending undo steps.
func (o *Override) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.undo)
}

func (o *Override) Restore() {
	o.mu.Lock()
	undo := o.undo
	o.undo = nil
	o.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}
