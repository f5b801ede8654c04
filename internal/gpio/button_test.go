package gpio

import (
	"testing"
	"time"
)

func TestButtonCounterDebounces(t *testing.T) {
	b := NewButtonCounter(200*time.Millisecond, nil)

	edges := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{5 * time.Millisecond, false},   // contact bounce
		{199 * time.Millisecond, false}, // still inside the window
		{200 * time.Millisecond, true},
		{250 * time.Millisecond, false},
		{time.Second, true},
	}
	for _, e := range edges {
		if got := b.Press(e.at); got != e.want {
			t.Errorf("Press(%v): got %v, want %v", e.at, got, e.want)
		}
	}
	if b.Count() != 3 {
		t.Errorf("Count: got %d, want 3", b.Count())
	}
}

func TestButtonCounterDefaultDebounce(t *testing.T) {
	b := NewButtonCounter(0, nil)
	b.Press(time.Second)
	if b.Press(time.Second + DefaultButtonDebounce - time.Millisecond) {
		t.Error("press inside the default window should be ignored")
	}
	if b.Count() != 1 {
		t.Errorf("Count: got %d, want 1", b.Count())
	}
}
