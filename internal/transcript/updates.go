package transcript

import (
	"context"
	"sync"

	"chat-sync/internal/models"
)

// UpdateKind names the mutation that produced an Update.
type UpdateKind string

const (
	KindCurrent    UpdateKind = "current"
	KindSnapshot   UpdateKind = "snapshot"
	KindLive       UpdateKind = "live"
	KindOptimistic UpdateKind = "optimistic"
	KindResolved   UpdateKind = "resolved"
)

// Update is one transcript change together with the full transcript in render order after it
// was applied. Message is nil for snapshot and current updates.
type Update struct {
	Seq        uint64
	Kind       UpdateKind
	Message    *models.Message
	Transcript []models.Message
}

type subscriber struct {
	mu     sync.Mutex
	queue  []Update
	done   bool
	signal chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{signal: make(chan struct{}, 1)}
}

func (sub *subscriber) push(u Update) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, u)
	sub.mu.Unlock()
	sub.notify()
}

func (sub *subscriber) finish() {
	sub.mu.Lock()
	sub.done = true
	sub.mu.Unlock()
	sub.notify()
}

func (sub *subscriber) notify() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscriber) drain() ([]Update, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	batch := sub.queue
	sub.queue = nil
	return batch, sub.done
}

// Subscribe streams transcript updates in mutation order. The first update is the current
// transcript. Mutators never block on slow readers. The channel closes when ctx ends or the
// store is closed, after queued updates have been delivered.
func (s *Store) Subscribe(ctx context.Context) <-chan Update {
	out := make(chan Update)
	sub := newSubscriber()

	s.mu.Lock()
	sub.queue = append(sub.queue, Update{Seq: s.seq, Kind: KindCurrent, Transcript: s.orderedLocked()})
	if s.closed {
		sub.done = true
	} else {
		s.subs[sub] = struct{}{}
	}
	s.mu.Unlock()
	sub.notify()

	go func() {
		defer close(out)
		defer s.unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
			}
			batch, done := sub.drain()
			for _, u := range batch {
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
			if done {
				rest, _ := sub.drain()
				for _, u := range rest {
					select {
					case out <- u:
					case <-ctx.Done():
						return
					}
				}
				return
			}
		}
	}()
	return out
}

func (s *Store) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

func (s *Store) publishLocked(kind UpdateKind, msg *models.Message) {
	if s.closed || len(s.subs) == 0 {
		return
	}
	u := Update{Seq: s.seq, Kind: kind, Message: msg, Transcript: s.orderedLocked()}
	for sub := range s.subs {
		sub.push(u)
	}
}
