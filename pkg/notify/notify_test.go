package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	n := New(false, nil)
	ch, unsubscribe := n.Subscribe()
	defer unsubscribe()

	n.Publish(Event{Name: ContactsAdded, IDs: []uint32{1, 2}})

	ev := <-ch
	require.Equal(t, ContactsAdded, ev.Name)
	require.Equal(t, SigAU, ev.Signature)
	require.Equal(t, []uint32{1, 2}, ev.IDs)
}

func TestMergePresenceChangesFoldsIntoContactsChanged(t *testing.T) {
	n := New(true, nil)
	ch, unsubscribe := n.Subscribe()
	defer unsubscribe()

	n.Publish(Event{Name: ContactsPresenceChanged, IDs: []uint32{7}})

	ev := <-ch
	require.Equal(t, ContactsChanged, ev.Name)
}

func TestPublishWithoutMergeKeepsPresenceEventDistinct(t *testing.T) {
	n := New(false, nil)
	ch, unsubscribe := n.Subscribe()
	defer unsubscribe()

	n.Publish(Event{Name: ContactsPresenceChanged, IDs: []uint32{7}})

	ev := <-ch
	require.Equal(t, ContactsPresenceChanged, ev.Name)
}

func TestOverflowDropsOldestEvent(t *testing.T) {
	n := New(false, nil)
	ch, unsubscribe := n.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		n.Publish(Event{Name: ContactsChanged, IDs: []uint32{uint32(i)}})
	}

	require.Len(t, ch, subscriberBuffer)
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	n := New(false, nil)
	ch, unsubscribe := n.Subscribe()
	unsubscribe()

	n.Publish(Event{Name: ContactsAdded})

	_, ok := <-ch
	require.False(t, ok)
}
