package cache

import (
	"sync"

	"event-chat-service/internal/models"
)

// Change describes one applied mutation. EventID is 0 for list-only changes.
type Change struct {
	Type    string
	EventID int
}

type shard struct {
	mu    sync.Mutex
	state EventState

	// fetches counts message fetches in flight; pushes are recorded while
	// it is positive.
	fetches int
	pushed  Pushed
}

func (sh *shard) record(frame models.Frame) {
	if sh.fetches == 0 {
		return
	}
	switch frame.Type {
	case models.FrameNewMessage:
		if msg, err := frame.Message(); err == nil {
			sh.pushed.Added[msg.ID] = struct{}{}
		}
	case models.FrameMessageDeleted:
		if id, err := frame.ID(); err == nil {
			delete(sh.pushed.Added, id)
			sh.pushed.Removed[id] = struct{}{}
		}
	}
}

func (sh *shard) endFetch() {
	if sh.fetches > 0 {
		sh.fetches--
	}
	if sh.fetches == 0 {
		sh.pushed = Pushed{}
	}
}

// Store is the client cache. Merges for one event are serialized by that
// event's shard lock; different events never contend.
type Store struct {
	mu     sync.Mutex
	shards map[int]*shard

	listMu sync.Mutex
	lists  Lists

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// NewStore creates an empty cache.
func NewStore() *Store {
	return &Store{
		shards: make(map[int]*shard),
		lists:  make(Lists),
		subs:   make(map[int]func(Change)),
	}
}

func (s *Store) shard(eventID int) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[eventID]
	if !ok {
		sh = &shard{}
		s.shards[eventID] = sh
	}
	return sh
}

func (s *Store) lookup(eventID int) (*shard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[eventID]
	return sh, ok
}

func (s *Store) existing() []*shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*shard, 0, len(s.shards))
	for _, sh := range s.shards {
		out = append(out, sh)
	}
	return out
}

func (s *Store) evict(eventID int, sh *shard) {
	s.mu.Lock()
	if s.shards[eventID] == sh {
		delete(s.shards, eventID)
	}
	s.mu.Unlock()
}

// BeginSeed marks the start of a message fetch for an event. Pushes that
// arrive before the matching SeedMessages or CancelSeed survive the seed.
func (s *Store) BeginSeed(eventID int) {
	sh := s.shard(eventID)
	sh.mu.Lock()
	if sh.fetches == 0 {
		sh.pushed = Pushed{Added: map[int]struct{}{}, Removed: map[int]struct{}{}}
	}
	sh.fetches++
	sh.mu.Unlock()
}

// CancelSeed ends a fetch started with BeginSeed that produced no list.
func (s *Store) CancelSeed(eventID int) {
	if sh, ok := s.lookup(eventID); ok {
		sh.mu.Lock()
		sh.endFetch()
		sh.mu.Unlock()
	}
}

// SeedMessages replaces an event's chat with a fetched list. Only pushes
// recorded since BeginSeed are merged on top.
func (s *Store) SeedMessages(eventID int, fetched []models.Message) {
	sh := s.shard(eventID)
	sh.mu.Lock()
	sh.state.Messages = ReconcileMessages(fetched, sh.state.Messages, sh.pushed)
	sh.endFetch()
	sh.mu.Unlock()
	s.notify(Change{Type: "messages-seeded", EventID: eventID})
}

// SeedEvent caches a fetched event object.
func (s *Store) SeedEvent(ev models.Event) {
	sh := s.shard(ev.ID)
	sh.mu.Lock()
	sh.state.Event = &ev
	sh.mu.Unlock()
	s.notify(Change{Type: "event-seeded", EventID: ev.ID})
}

// SeedList caches a fetched event list and clears its stale flag.
func (s *Store) SeedList(key ListKey, events []models.Event) {
	s.listMu.Lock()
	next := make(Lists, len(s.lists)+1)
	for k, v := range s.lists {
		next[k] = v
	}
	next[key] = List{Events: append([]models.Event(nil), events...)}
	s.lists = next
	s.listMu.Unlock()
	s.notify(Change{Type: "list-seeded"})
}

// MergeMessage merges the response of the user's own send. The broadcast
// echo of the same message is suppressed by id.
func (s *Store) MergeMessage(msg models.Message) {
	sh := s.shard(msg.EventID)
	sh.mu.Lock()
	sh.state.Messages = AppendMessage(sh.state.Messages, msg)
	if sh.fetches > 0 {
		sh.pushed.Added[msg.ID] = struct{}{}
	}
	sh.mu.Unlock()
	s.notify(Change{Type: models.FrameNewMessage, EventID: msg.EventID})
}

// Apply merges one push frame. Malformed frames return ErrMalformedFrame and
// leave the cache untouched. Frames for events that are not cached only
// touch the list caches.
func (s *Store) Apply(frame models.Frame) error {
	eventID, err := frameEventID(frame)
	if err != nil {
		return err
	}

	if eventID == 0 {
		// message-deleted: the payload has no event id, so try every cached chat
		for _, sh := range s.existing() {
			sh.mu.Lock()
			next, err := ReduceEvent(sh.state, frame)
			if err == nil {
				sh.state = next
				sh.record(frame)
			}
			sh.mu.Unlock()
			if err != nil {
				return err
			}
		}
		s.notify(Change{Type: frame.Type})
		return nil
	}

	if sh, ok := s.lookup(eventID); ok {
		sh.mu.Lock()
		next, err := ReduceEvent(sh.state, frame)
		if err != nil {
			sh.mu.Unlock()
			return err
		}
		sh.state = next
		sh.record(frame)
		if frame.Type == models.FrameEventDeleted {
			s.evict(eventID, sh)
		}
		sh.mu.Unlock()
	}

	if err := s.applyLists(frame); err != nil {
		return err
	}
	s.notify(Change{Type: frame.Type, EventID: eventID})
	return nil
}

// Len returns the number of events with cached state.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shards)
}

func (s *Store) applyLists(frame models.Frame) error {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	next, err := ReduceLists(s.lists, frame)
	if err != nil {
		return err
	}
	s.lists = next
	return nil
}

// Messages returns a copy of the cached chat for an event.
func (s *Store) Messages(eventID int) []models.Message {
	s.mu.Lock()
	sh, ok := s.shards[eventID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return append([]models.Message(nil), sh.state.Messages...)
}

// Event returns the cached event object.
func (s *Store) Event(eventID int) (models.Event, bool) {
	s.mu.Lock()
	sh, ok := s.shards[eventID]
	s.mu.Unlock()
	if !ok {
		return models.Event{}, false
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.state.Event == nil {
		return models.Event{}, false
	}
	return *sh.state.Event, true
}

// List returns a cached event list and whether it must be re-fetched.
func (s *Store) List(key ListKey) (events []models.Event, stale, ok bool) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	list, ok := s.lists[key]
	if !ok {
		return nil, false, false
	}
	return append([]models.Event(nil), list.Events...), list.Stale, true
}

// Subscribe registers fn for every applied change. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.subMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ch)
	}
}
