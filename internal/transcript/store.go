package transcript

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"chat-sync/internal/models"
)

var (
	ErrDuplicateMessage = errors.New("transcript: temporary id already present")
	ErrUnknownMessage   = errors.New("transcript: unknown temporary id")
	ErrAlreadyResolved  = errors.New("transcript: message already resolved")
	ErrInvalidOutcome   = errors.New("transcript: invalid outcome")
)

// Outcome is the result of a persistence call for an optimistic entry.
type Outcome string

const (
	Confirmed Outcome = "confirmed"
	Failed    Outcome = "failed"
)

type entry struct {
	msg models.Message
	seq uint64
}

// Store is the ordered transcript of one conversation. Snapshot entries form the historical
// prefix; optimistic and live entries follow in insertion order. Entries are never removed.
type Store struct {
	conversationID string

	mu       sync.Mutex
	seq      uint64
	snapshot []entry
	live     []entry
	byTempID map[string]int
	subs     map[*subscriber]struct{}
	closed   bool
}

// NewStore creates an empty transcript for a conversation.
func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		byTempID:       make(map[string]int),
		subs:           make(map[*subscriber]struct{}),
	}
}

// ConversationID returns the conversation this transcript belongs to.
func (s *Store) ConversationID() string {
	return s.conversationID
}

// AppendSnapshot replaces the historical prefix. Messages whose persisted id is already in the
// transcript are skipped so repeated opens never render a message twice.
func (s *Store) AppendSnapshot(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.live))
	for _, e := range s.live {
		if e.msg.ID != "" && e.msg.State == models.StateReceived {
			seen[e.msg.ID] = struct{}{}
		}
	}

	prefix := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		if m.State == "" {
			m.State = models.StateReceived
		}
		m.ConversationID = s.conversationID
		s.seq++
		prefix = append(prefix, entry{msg: m, seq: s.seq})
	}
	s.snapshot = prefix
	s.publishLocked(KindSnapshot, nil)
}

// AppendLive inserts a message delivered by the transport. No deduplication is attempted.
func (s *Store) AppendLive(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ConversationID = s.conversationID
	msg.State = models.StateReceived
	s.seq++
	s.live = append(s.live, entry{msg: msg, seq: s.seq})
	s.publishLocked(KindLive, &msg)
}

// BeginOptimistic inserts a locally authored message in the sending state.
func (s *Store) BeginOptimistic(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTempID[msg.ID]; exists || msg.ID == "" {
		return fmt.Errorf("%w: %q", ErrDuplicateMessage, msg.ID)
	}
	msg.ConversationID = s.conversationID
	msg.State = models.StateSending
	s.seq++
	s.live = append(s.live, entry{msg: msg, seq: s.seq})
	s.byTempID[msg.ID] = len(s.live) - 1
	s.publishLocked(KindOptimistic, &msg)
	return nil
}

// Resolve moves the entry with tempID out of the sending state. Only that entry changes.
func (s *Store) Resolve(tempID string, outcome Outcome) error {
	var next models.DeliveryState
	switch outcome {
	case Confirmed:
		next = models.StateSent
	case Failed:
		next = models.StateFailed
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byTempID[tempID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, tempID)
	}
	e := &s.live[idx]
	if e.msg.State.Terminal() {
		return fmt.Errorf("%w: %q is %s", ErrAlreadyResolved, tempID, e.msg.State)
	}
	e.msg.State = next
	s.seq++
	msg := e.msg
	s.publishLocked(KindResolved, &msg)
	return nil
}

// Get returns the entry with the given id, searching optimistic ids first.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byTempID[id]; ok {
		return s.live[idx].msg, true
	}
	for _, e := range s.snapshot {
		if e.msg.ID == id {
			return e.msg, true
		}
	}
	for _, e := range s.live {
		if e.msg.ID == id {
			return e.msg, true
		}
	}
	return models.Message{}, false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshot) + len(s.live)
}

// Messages returns the transcript in render order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedLocked()
}

// orderedLocked sorts by created_at; equal timestamps keep insertion order with the snapshot
// prefix first.
func (s *Store) orderedLocked() []models.Message {
	all := make([]entry, 0, len(s.snapshot)+len(s.live))
	all = append(all, s.snapshot...)
	all = append(all, s.live...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].msg.CreatedAt.Before(all[j].msg.CreatedAt)
	})
	out := make([]models.Message, len(all))
	for i, e := range all {
		out[i] = e.msg
	}
	return out
}

// Close ends every subscription. The transcript stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		sub.finish()
	}
}
