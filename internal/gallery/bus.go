package gallery

import "sync"

// Change notifications. Payload-less: listeners re-read the whole collection.
const (
	EventImagesUpdated   = "generatedImagesUpdated"
	EventProjectsUpdated = "generationProjectsUpdated"
	EventSavedUpdated    = "savedImagesUpdated"
)

type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string]map[int]func()
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string]map[int]func())}
}

// Subscribe registers fn for event and returns a func that removes it.
func (b *Bus) Subscribe(event string, fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.listeners[event] == nil {
		b.listeners[event] = make(map[int]func())
	}
	b.listeners[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners[event], id)
		})
	}
}

// Publish calls every listener of event synchronously. Listeners may
// subscribe or unsubscribe from inside the callback.
func (b *Bus) Publish(event string) {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.listeners[event]))
	for _, fn := range b.listeners[event] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
