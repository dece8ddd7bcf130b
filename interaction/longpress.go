package interaction

import (
	"sync"
	"time"
)

// LongPressDelay is how long a touch on the empty canvas must be held to
// trigger an export.
const LongPressDelay = 800 * time.Millisecond

// LongPress fires once a touch has been held for its delay. Any movement or
// release before then cancels it.
type LongPress struct {
	Delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Start arms the timer. fire runs on its own goroutine. onChange is told
// when the pending indicator should be shown or hidden and may be nil.
func (lp *LongPress) Start(fire func(), onChange func(pending bool)) {
	delay := lp.Delay
	if delay <= 0 {
		delay = LongPressDelay
	}

	if onChange != nil {
		onChange(true)
	}

	lp.mu.Lock()
	if lp.timer != nil {
		lp.timer.Stop()
	}
	lp.gen++
	gen := lp.gen
	lp.timer = time.AfterFunc(delay, func() {
		lp.mu.Lock()
		if lp.gen != gen {
			lp.mu.Unlock()
			return
		}
		lp.timer = nil
		lp.mu.Unlock()

		if onChange != nil {
			onChange(false)
		}
		fire()
	})
	lp.mu.Unlock()
}

// Cancel disarms a pending long press. It reports whether one was pending.
func (lp *LongPress) Cancel() bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	lp.gen++
	if lp.timer == nil {
		return false
	}
	lp.timer.Stop()
	lp.timer = nil
	return true
}

func (lp *LongPress) Pending() bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.timer != nil
}
