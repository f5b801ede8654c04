package gpio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultButtonDebounce is the minimum spacing between counted presses.
const DefaultButtonDebounce = 200 * time.Millisecond

// ButtonCounter counts debounced presses of the user button. Press is called
// from the GPIO event goroutine, Count from anywhere.
type ButtonCounter struct {
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	count   uint32
	last    time.Duration
	pressed bool
}

// NewButtonCounter creates a counter. A non-positive debounce selects
// DefaultButtonDebounce.
func NewButtonCounter(debounce time.Duration, log *zap.Logger) *ButtonCounter {
	if debounce <= 0 {
		debounce = DefaultButtonDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ButtonCounter{debounce: debounce, log: log}
}

// Press records a falling edge at the monotonic offset at. Edges closer
// than the debounce period to the last counted press are ignored. It
// reports whether the press was counted.
func (b *ButtonCounter) Press(at time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pressed && at-b.last < b.debounce {
		return false
	}
	b.pressed = true
	b.last = at
	b.count++
	b.log.Info("button pressed", zap.Uint32("count", b.count))
	return true
}

// Count returns the number of counted presses.
func (b *ButtonCounter) Count() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
