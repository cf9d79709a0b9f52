// Package notify is the Notifier: in-process fan-out of change events to
// subscribers, grounded on the teacher's buffered result/event channel
// pattern in pkg/diff/diff.go.
package notify

import (
	"log/slog"
	"sync"
)

// Signature describes the shape of an Event's Payload.
type Signature string

const (
	// SigNone carries no payload.
	SigNone Signature = ""
	// SigAU carries a slice of unsigned 32-bit database ids.
	SigAU Signature = "au"
	// SigUU carries an (old, new) pair of unsigned 32-bit database ids.
	SigUU Signature = "uu"
)

// Name is one of the fixed set of events the Notifier ever publishes.
type Name string

const (
	ContactsAdded             Name = "contactsAdded"
	ContactsChanged           Name = "contactsChanged"
	ContactsPresenceChanged   Name = "contactsPresenceChanged"
	ContactsRemoved           Name = "contactsRemoved"
	CollectionsAdded          Name = "collectionsAdded"
	CollectionsChanged        Name = "collectionsChanged"
	CollectionsRemoved        Name = "collectionsRemoved"
	CollectionContactsChanged Name = "collectionContactsChanged"
	RelationshipsAdded        Name = "relationshipsAdded"
	RelationshipsRemoved      Name = "relationshipsRemoved"
	SelfContactIDChanged      Name = "selfContactIdChanged"
	DisplayLabelGroupsChanged Name = "displayLabelGroupsChanged"

	// overflow is not published by any producer; it is synthesized by
	// Publish itself when a subscriber's buffer is still full after its
	// oldest event was dropped.
	overflow Name = "overflow"
)

// signatures maps each published Name to its wire-level payload shape.
var signatures = map[Name]Signature{
	ContactsAdded:             SigAU,
	ContactsChanged:           SigAU,
	ContactsPresenceChanged:   SigAU,
	ContactsRemoved:           SigAU,
	CollectionsAdded:          SigAU,
	CollectionsChanged:        SigAU,
	CollectionsRemoved:        SigAU,
	CollectionContactsChanged: SigAU,
	RelationshipsAdded:        SigAU,
	RelationshipsRemoved:      SigAU,
	SelfContactIDChanged:      SigUU,
	DisplayLabelGroupsChanged: SigNone,
}

// Event is one published notification.
type Event struct {
	Name      Name
	Signature Signature
	// IDs carries the "au" payload: a vector of database-internal ids.
	IDs []uint32
	// Old/New carry the "uu" payload (selfContactIdChanged).
	Old uint32
	New uint32
}

const subscriberBuffer = 64

// Notifier fans a stream of Events out to any number of subscriber
// channels. Publish never blocks past a subscriber's own buffer: a full
// channel has its oldest event dropped (logged at Warn) to make room for
// the new one. An overflow marker is sent only if the buffer is still
// full after that.
type Notifier struct {
	mu          sync.Mutex
	subscribers []chan Event

	// mergePresenceChanges folds ContactsPresenceChanged into
	// ContactsChanged on the outbound side, per spec §4.B.
	mergePresenceChanges bool

	log *slog.Logger
}

// New constructs a Notifier. log may be nil, in which case slog.Default()
// is used.
func New(mergePresenceChanges bool, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{mergePresenceChanges: mergePresenceChanges, log: log}
}

// Subscribe registers a new buffered subscriber channel. The returned
// unsubscribe function removes it; callers should defer it.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	n.mu.Lock()
	n.subscribers = append(n.subscribers, ch)
	n.mu.Unlock()

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subscribers {
			if s == ch {
				n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// Publish fans ev out to every current subscriber. If ev.Name is
// ContactsPresenceChanged and mergePresenceChanges is set, it is
// republished as ContactsChanged instead.
func (n *Notifier) Publish(ev Event) {
	ev.Signature = signatures[ev.Name]

	if n.mergePresenceChanges && ev.Name == ContactsPresenceChanged {
		ev.Name = ContactsChanged
		ev.Signature = signatures[ContactsChanged]
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		n.deliver(ch, ev)
	}
}

func (n *Notifier) deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest queued event and retry once.
	select {
	case dropped := <-ch:
		n.log.Warn("notify: subscriber buffer full, dropping oldest event",
			slog.String("dropped_event", string(dropped.Name)))
	default:
	}
	select {
	case ch <- ev:
	default:
		select {
		case ch <- Event{Name: overflow}:
		default:
		}
	}
}
