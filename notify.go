package siteauth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultNotificationTimeout is how long a notification stays up when no
// explicit timeout is given.
const DefaultNotificationTimeout = 10 * time.Second

// DefaultVisibleNotifications caps how many entries are surfaced at once.
// Older entries stay queued and become visible as the front ones go away.
const DefaultVisibleNotifications = 3

// Notification is one ephemeral user-facing message.
type Notification struct {
	ID        string
	Message   string
	Timeout   time.Duration
	CreatedAt time.Time
}

type notifEntry struct {
	Notification
	timer *time.Timer
}

// Notifier is an ordered queue of transient notifications, newest first.
// Each entry owns its own dismiss timer; dismissing is idempotent and a
// timer firing for an already-removed entry is a no-op.
type Notifier struct {
	mu         sync.Mutex
	entries    []*notifEntry
	visibleMax int
	timeout    time.Duration
	closed     bool

	listeners    map[int]func([]Notification)
	nextListener int
}

// NewNotifier creates a Notifier with the default timeout and visible cap.
func NewNotifier() *Notifier {
	return &Notifier{
		visibleMax: DefaultVisibleNotifications,
		timeout:    DefaultNotificationTimeout,
		listeners:  make(map[int]func([]Notification)),
	}
}

// Show enqueues a message with the default timeout and returns its id.
func (n *Notifier) Show(message string) string {
	return n.ShowFor(message, n.timeout)
}

// ShowFor enqueues a message that auto-dismisses after d.
func (n *Notifier) ShowFor(message string, d time.Duration) string {
	if d <= 0 {
		d = n.timeout
	}

	entry := &notifEntry{Notification: Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Timeout:   d,
		CreatedAt: time.Now(),
	}}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ""
	}
	n.entries = append([]*notifEntry{entry}, n.entries...)
	id := entry.ID
	entry.timer = time.AfterFunc(d, func() { n.Dismiss(id) })
	n.mu.Unlock()

	n.publish()
	return id
}

// Dismiss removes an entry and cancels its timer. Unknown ids are ignored,
// so a timer firing after a manual dismissal is harmless.
func (n *Notifier) Dismiss(id string) {
	n.mu.Lock()
	removed := false
	for i, entry := range n.entries {
		if entry.ID == id {
			entry.timer.Stop()
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			removed = true
			break
		}
	}
	n.mu.Unlock()

	if removed {
		n.publish()
	}
}

// Visible returns the newest entries up to the visible cap.
func (n *Notifier) Visible() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visibleLocked()
}

func (n *Notifier) visibleLocked() []Notification {
	count := len(n.entries)
	if count > n.visibleMax {
		count = n.visibleMax
	}
	out := make([]Notification, count)
	for i := 0; i < count; i++ {
		out[i] = n.entries[i].Notification
	}
	return out
}

// Pending returns the total number of queued entries, visible or not.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// Subscribe registers a listener called with the visible entries after every
// change. The returned cancel releases the registration.
func (n *Notifier) Subscribe(fn func([]Notification)) (cancel func()) {
	n.mu.Lock()
	id := n.nextListener
	n.nextListener++
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) publish() {
	n.mu.Lock()
	visible := n.visibleLocked()
	listeners := make([]func([]Notification), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(visible)
	}
}

// Close cancels every pending timer and drops all entries. Show after Close
// is a no-op.
func (n *Notifier) Close() {
	n.mu.Lock()
	for _, entry := range n.entries {
		entry.timer.Stop()
	}
	n.entries = nil
	n.closed = true
	n.mu.Unlock()
}
