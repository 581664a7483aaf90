package client

import "sync"

// ActivityKind is a user interaction that counts as activity.
type ActivityKind int

const (
	PointerDown ActivityKind = iota + 1
	PointerMove
	KeyPress
	Scroll
	TouchStart
)

func (k ActivityKind) String() string {
	switch k {
	case PointerDown:
		return "pointerdown"
	case PointerMove:
		return "pointermove"
	case KeyPress:
		return "keypress"
	case Scroll:
		return "scroll"
	case TouchStart:
		return "touchstart"
	default:
		return "unknown"
	}
}

// Tracked reports whether k resets the idle timer. Anything outside the
// fixed set is ignored.
func (k ActivityKind) Tracked() bool {
	return k >= PointerDown && k <= TouchStart
}

// ActivitySource delivers interaction events until unsubscribed.
type ActivitySource interface {
	Subscribe(fn func(ActivityKind)) (unsubscribe func())
}

// Emitter fans activity out to subscribers. The zero value is ready to use.
type Emitter struct {
	mu     sync.Mutex
	subs   map[int]func(ActivityKind)
	nextID int
}

var _ ActivitySource = (*Emitter)(nil)

func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) Subscribe(fn func(ActivityKind)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[int]func(ActivityKind))
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers kind synchronously to every subscriber.
func (e *Emitter) Emit(kind ActivityKind) {
	e.mu.Lock()
	subs := make([]func(ActivityKind), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(kind)
	}
}

func (e *Emitter) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
