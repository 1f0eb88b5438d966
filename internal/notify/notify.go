// Package notify implements the per-user new-post channels. Delivery is
// synchronous and in registration order; nothing is persisted.
package notify

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"

	"feed-engine/internal/domain"
)

// Observer receives posts published by the user it is registered on.
type Observer interface {
	OnNewPost(p domain.Post)
}

// Listener delivers a post and reports false once its target is gone, at which
// point the subject drops it.
type Listener func(p domain.Post) bool

// Weak wraps obs without keeping it alive. The caller owns the observer; once it
// is collected the registration lapses on the next delivery.
func Weak[T any, P interface {
	*T
	Observer
}](obs P) Listener {
	ref := weak.Make((*T)(obs))
	return func(p domain.Post) bool {
		target := ref.Value()
		if target == nil {
			return false
		}
		P(target).OnNewPost(p)
		return true
	}
}

// Strong wraps obs and keeps it reachable for as long as it stays registered.
func Strong(obs Observer) Listener {
	return func(p domain.Post) bool {
		obs.OnNewPost(p)
		return true
	}
}

// Subscription is the handle returned by Register. Cancel removes it.
type Subscription struct {
	ID string

	subject  *Subject
	listener Listener
}

func (s *Subscription) Cancel() bool {
	if s == nil || s.subject == nil {
		return false
	}
	return s.subject.remove(s)
}

// Subject is the channel for one user's posts.
type Subject struct {
	mu      sync.Mutex
	entries []*Subscription
}

func NewSubject() *Subject {
	return &Subject{}
}

// Register appends l. Registering the same observer twice delivers twice.
func (s *Subject) Register(l Listener) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		subject:  s,
		listener: l,
	}
	s.mu.Lock()
	s.entries = append(s.entries, sub)
	s.mu.Unlock()
	return sub
}

func (s *Subject) remove(sub *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e == sub {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Notify delivers p to every live registration and returns how many received it.
func (s *Subject) Notify(p domain.Post) int {
	s.mu.Lock()
	entries := append([]*Subscription(nil), s.entries...)
	s.mu.Unlock()

	delivered := 0
	for _, e := range entries {
		if e.listener(p) {
			delivered++
			continue
		}
		s.remove(e)
	}
	return delivered
}

func (s *Subject) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Hub maps user ids to subjects. It is not synchronized; the store guards it.
type Hub struct {
	subjects map[string]*Subject
}

func NewHub() *Hub {
	return &Hub{subjects: make(map[string]*Subject)}
}

// Ensure returns the subject for userID, creating it if needed.
func (h *Hub) Ensure(userID string) *Subject {
	s, ok := h.subjects[userID]
	if !ok {
		s = NewSubject()
		h.subjects[userID] = s
	}
	return s
}

func (h *Hub) Subject(userID string) (*Subject, bool) {
	s, ok := h.subjects[userID]
	return s, ok
}

// Retain drops the subjects of users for which keep reports false.
func (h *Hub) Retain(keep func(userID string) bool) {
	for id := range h.subjects {
		if !keep(id) {
			delete(h.subjects, id)
		}
	}
}

func (h *Hub) Reset() {
	h.subjects = make(map[string]*Subject)
}

// Counter counts the posts it has been notified about.
type Counter struct {
	count atomic.Int64
}

func (c *Counter) OnNewPost(domain.Post) {
	c.count.Add(1)
}

func (c *Counter) Count() int {
	return int(c.count.Load())
}

func (c *Counter) Reset() {
	c.count.Store(0)
}
