package watch

import (
	"sync"
	"time"
)

// Marker records the instant of the most recent internal write. Save
// paths stamp it and the watcher consults it to tell our own writes
// apart from external ones. One marker is shared per process and passed
// by handle to everything that needs it.
type Marker struct {
	mu   sync.Mutex
	last time.Time
}

// Mark stamps the current time as the latest internal write.
func (m *Marker) Mark() {
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}

// Within reports whether the latest internal write happened less than
// window ago. A marker that was never stamped is never within a window.
func (m *Marker) Within(window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.last.IsZero() && time.Since(m.last) < window
}
