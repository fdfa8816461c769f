package memorystore

import "time"

// NotificationStore retains the most recent MaxNotifications toasts.
type NotificationStore struct {
	ring *Ring[Notification]
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{ring: NewRing[Notification](MaxNotifications)}
}

func (s *NotificationStore) Add(n Notification) {
	s.ring.Push(n)
}

// All returns every retained notification, newest first.
func (s *NotificationStore) All() []Notification {
	return s.ring.Snapshot()
}

// Active returns the notifications still inside their display lifetime.
func (s *NotificationStore) Active(now time.Time) []Notification {
	all := s.ring.Snapshot()
	out := all[:0]
	for _, n := range all {
		if !n.Expired(now) {
			out = append(out, n)
		}
	}
	return out
}

// Dismiss removes one toast by id.
func (s *NotificationStore) Dismiss(id string) bool {
	return s.ring.RemoveFunc(func(n Notification) bool { return n.ID == id }) > 0
}

// Prune drops expired toasts and returns how many were removed.
func (s *NotificationStore) Prune(now time.Time) int {
	return s.ring.RemoveFunc(func(n Notification) bool { return n.Expired(now) })
}

func (s *NotificationStore) Clear() { s.ring.Clear() }

func (s *NotificationStore) Len() int { return s.ring.Len() }
