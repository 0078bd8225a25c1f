package events

import (
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable    = errors.New("hub_unavailable")
	ErrInvalidActionKind = errors.New("invalid_action_kind")
)

// Event announces a finished authorization attempt. It carries no target so
// streams can be shared without leaking what a principal acted on.
type Event struct {
	ActionKind    string `json:"actionKind"`
	Principal     string `json:"principal"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	PaymentMode   string `json:"paymentMode,omitempty"`
	AmountCharged int64  `json:"amountCharged"`
	LedgerEntryID string `json:"ledgerEntryId,omitempty"`
	OccurredAt    string `json:"occurredAt"`
}

// Hub fans authorization events out to subscribers per action kind. Slow
// subscribers drop events rather than block the publisher.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub        *Hub
	actionKind string
	stream     *stream
	id         uint64
	ch         chan Event
	once       sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers event to current subscribers of its action kind and keeps
// it in the replay buffer. Kinds nobody watches are dropped.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	kind := strings.TrimSpace(event.ActionKind)
	if kind == "" {
		return
	}
	h.mu.RLock()
	current := h.streams[kind]
	h.mu.RUnlock()
	if current == nil {
		return
	}

	current.mu.Lock()
	current.buffer = append(current.buffer, event)
	if len(current.buffer) > h.bufferSize {
		current.buffer = current.buffer[len(current.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(current.subs))
	for _, ch := range current.subs {
		subs = append(subs, ch)
	}
	current.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers for events of actionKind and returns the buffered
// backlog. Registration holds the hub lock so a concurrent unsubscribe cannot
// drop the stream in between.
func (h *Hub) Subscribe(actionKind string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	kind := strings.TrimSpace(actionKind)
	if kind == "" {
		return nil, nil, ErrInvalidActionKind
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.streams[kind]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[kind] = current
	}

	current.mu.Lock()
	id := current.nextID
	current.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	current.subs[id] = ch
	backlog := append([]Event(nil), current.buffer...)
	current.mu.Unlock()

	return &Subscription{
		hub:        h,
		actionKind: kind,
		stream:     current,
		id:         id,
		ch:         ch,
	}, backlog, nil
}

// unsubscribe drops the stream once its last subscriber leaves, which also
// discards the backlog.
func (h *Hub) unsubscribe(kind string, current *stream, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current.mu.Lock()
	delete(current.subs, id)
	empty := len(current.subs) == 0
	current.mu.Unlock()

	if empty && h.streams[kind] == current {
		delete(h.streams, kind)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.actionKind, s.stream, s.id)
	})
}
