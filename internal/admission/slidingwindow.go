package admission

import "time"

// SlidingWindow counts requests over a moving interval approximated by a ring
// of fixed-duration sub-windows. Slots whose start time has aged past the
// window are logically zero; the write cursor advances circularly once the
// current slot is older than one sub-window duration.
//
// SlidingWindow is not safe for concurrent use; callers serialize access
// through the owning limiter entry.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests uint32
	slots       []windowSlot
	slotSize    time.Duration
	cursor      int
	now         func() time.Time
}

type windowSlot struct {
	start time.Time
	count uint32
}

// NewSlidingWindow constructs a window from a configuration.
func NewSlidingWindow(cfg SlidingWindowConfig) *SlidingWindow {
	now := time.Now
	sub := cfg.SubWindows
	if sub == 0 {
		sub = 1
	}
	windowSize := time.Duration(cfg.WindowSize) * time.Second
	slots := make([]windowSlot, sub)
	start := now()
	for i := range slots {
		slots[i] = windowSlot{start: start}
	}
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: cfg.MaxRequests,
		slots:       slots,
		slotSize:    windowSize / time.Duration(sub),
		now:         now,
	}
}

// TryRequest admits exactly one request if the window has room. The ceiling
// is inclusive: a window already holding maxRequests denies.
func (w *SlidingWindow) TryRequest() bool {
	now := w.now()
	w.expireSlots(now)

	if w.totalRequests(now) >= w.maxRequests {
		return false
	}
	w.record(now)
	return true
}

// MaxRequests returns the window ceiling.
func (w *SlidingWindow) MaxRequests() uint32 {
	return w.maxRequests
}

// UpdateConfig replaces the window size and ceiling. Changing the sub-window
// count resizes the ring and resets the cursor, which drops partial window
// history.
func (w *SlidingWindow) UpdateConfig(cfg SlidingWindowConfig) {
	w.windowSize = time.Duration(cfg.WindowSize) * time.Second
	w.maxRequests = cfg.MaxRequests

	sub := cfg.SubWindows
	if sub == 0 {
		sub = 1
	}
	if len(w.slots) != int(sub) {
		start := w.now()
		slots := make([]windowSlot, sub)
		copied := copy(slots, w.slots)
		for i := copied; i < len(slots); i++ {
			slots[i] = windowSlot{start: start}
		}
		w.slots = slots
		w.slotSize = w.windowSize / time.Duration(sub)
		w.cursor = 0
	}
}

func (w *SlidingWindow) record(now time.Time) {
	current := &w.slots[w.cursor]
	if now.Sub(current.start) >= w.slotSize {
		w.cursor = (w.cursor + 1) % len(w.slots)
		w.slots[w.cursor] = windowSlot{start: now, count: 1}
		return
	}
	current.count++
}

func (w *SlidingWindow) totalRequests(now time.Time) uint32 {
	var total uint32
	for i := range w.slots {
		if now.Sub(w.slots[i].start) < w.windowSize {
			total += w.slots[i].count
		}
	}
	return total
}

func (w *SlidingWindow) expireSlots(now time.Time) {
	for i := range w.slots {
		if now.Sub(w.slots[i].start) >= w.windowSize {
			w.slots[i] = windowSlot{start: now}
		}
	}
}
