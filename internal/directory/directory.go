// Package directory tracks the contacts and groups the local user can talk
// to, their presence, per-conversation unread state and the focused
// conversation.
package directory

import (
	"slices"
	"sync"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
)

// Directory is an ordered contact list with at most one entry per
// conversation identity.
type Directory struct {
	mu       sync.Mutex
	contacts []chat.Contact
	index    map[chat.ID]int
	focused  chat.ID
	bus      *bus.Bus
}

// New creates an empty directory.
func New(b *bus.Bus) *Directory {
	return &Directory{index: make(map[chat.ID]int), bus: b}
}

func clone(c chat.Contact) chat.Contact {
	if c.Online != nil {
		c.Online = chat.Bool(*c.Online)
	}
	c.Members = slices.Clone(c.Members)
	return c
}

func (d *Directory) publish(c chat.Contact) {
	d.bus.Publish(bus.Event{Kind: bus.KindContactUpdated, Payload: c})
}

// List returns a snapshot of every contact in directory order.
func (d *Directory) List() []chat.Contact {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]chat.Contact, len(d.contacts))
	for i, c := range d.contacts {
		out[i] = clone(c)
	}
	return out
}

// Get returns the contact owning conversation id.
func (d *Directory) Get(id chat.ID) (chat.Contact, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[id]
	if !ok {
		return chat.Contact{}, false
	}
	return clone(d.contacts[i]), true
}

// Upsert inserts c, or merges it into the existing entry with the same
// identity. Empty fields of c do not overwrite known values, and unread
// state is kept.
func (d *Directory) Upsert(c chat.Contact) chat.Contact {
	d.mu.Lock()
	id := c.Conversation()
	i, ok := d.index[id]
	if !ok {
		d.index[id] = len(d.contacts)
		d.contacts = append(d.contacts, clone(c))
		i = len(d.contacts) - 1
	} else {
		cur := &d.contacts[i]
		if c.Name != "" {
			cur.Name = c.Name
		}
		if c.Avatar != "" {
			cur.Avatar = c.Avatar
		}
		if c.Online != nil {
			cur.Online = chat.Bool(*c.Online)
		}
		if len(c.Members) > 0 {
			cur.Members = slices.Clone(c.Members)
		}
	}
	out := clone(d.contacts[i])
	d.mu.Unlock()

	d.publish(out)
	return out
}

// Replace installs contacts as the whole directory. Duplicate identities
// collapse to the last occurrence at the position of the first. Members
// already loaded for a group survive when the new entry carries none.
func (d *Directory) Replace(contacts []chat.Contact) {
	d.mu.Lock()
	prevMembers := make(map[chat.ID][]chat.Member)
	for _, c := range d.contacts {
		if len(c.Members) > 0 {
			prevMembers[c.Conversation()] = c.Members
		}
	}

	list := make([]chat.Contact, 0, len(contacts))
	index := make(map[chat.ID]int, len(contacts))
	for _, c := range contacts {
		c = clone(c)
		id := c.Conversation()
		if len(c.Members) == 0 {
			c.Members = prevMembers[id]
		}
		if i, ok := index[id]; ok {
			list[i] = c
			continue
		}
		index[id] = len(list)
		list = append(list, c)
	}
	d.contacts = list
	d.index = index
	count := len(list)
	d.mu.Unlock()

	d.bus.Publish(bus.Event{Kind: bus.KindContactsReplaced, Payload: count})
}

// SetOnline updates the presence of personal contact userID. It reports
// whether the contact exists, whether its presence changed, and its display
// name.
func (d *Directory) SetOnline(userID int64, online bool) (changed bool, name string, ok bool) {
	d.mu.Lock()
	i, ok := d.index[chat.PersonalID(userID)]
	if !ok {
		d.mu.Unlock()
		return false, "", false
	}
	c := &d.contacts[i]
	name = c.DisplayName()
	if c.Online != nil && *c.Online == online {
		d.mu.Unlock()
		return false, name, true
	}
	c.Online = chat.Bool(online)
	out := clone(*c)
	d.mu.Unlock()

	d.publish(out)
	return true, name, true
}

// SetHasNewMessage sets the new-message flag of conversation id.
func (d *Directory) SetHasNewMessage(id chat.ID, flag bool) bool {
	return d.mutate(id, func(c *chat.Contact) bool {
		if c.HasNewMessage == flag {
			return false
		}
		c.HasNewMessage = flag
		return true
	})
}

// MarkUnread flags conversation id as having a new message and increments
// its unread count.
func (d *Directory) MarkUnread(id chat.ID) bool {
	return d.mutate(id, func(c *chat.Contact) bool {
		c.HasNewMessage = true
		c.Unread++
		return true
	})
}

// SetMembers records the member list of group groupID.
func (d *Directory) SetMembers(groupID int64, members []chat.Member) bool {
	return d.mutate(chat.GroupID(groupID), func(c *chat.Contact) bool {
		c.Members = slices.Clone(members)
		return true
	})
}

// mutate applies fn to the contact owning id and publishes the result when
// fn reports a change. It returns false for unknown ids.
func (d *Directory) mutate(id chat.ID, fn func(*chat.Contact) bool) bool {
	d.mu.Lock()
	i, ok := d.index[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	changed := fn(&d.contacts[i])
	out := clone(d.contacts[i])
	d.mu.Unlock()

	if changed {
		d.publish(out)
	}
	return true
}

// Remove deletes the contact owning id.
func (d *Directory) Remove(id chat.ID) bool {
	d.mu.Lock()
	i, ok := d.index[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	d.contacts = slices.Delete(d.contacts, i, i+1)
	delete(d.index, id)
	for j := i; j < len(d.contacts); j++ {
		d.index[d.contacts[j].Conversation()] = j
	}
	if d.focused == id {
		d.focused = chat.ID{}
	}
	d.mu.Unlock()

	d.bus.Publish(bus.Event{Kind: bus.KindContactRemoved, Payload: id})
	return true
}

// Focus makes id the conversation the user is looking at and clears its
// new-message flag and unread count. Focusing an id without a contact is
// allowed.
func (d *Directory) Focus(id chat.ID) {
	d.mu.Lock()
	d.focused = id
	i, ok := d.index[id]
	var out chat.Contact
	changed := false
	if ok {
		c := &d.contacts[i]
		changed = c.HasNewMessage || c.Unread != 0
		c.HasNewMessage = false
		c.Unread = 0
		out = clone(*c)
	}
	d.mu.Unlock()

	if changed {
		d.publish(out)
	}
}

// Focused returns the focused conversation, or the zero ID.
func (d *Directory) Focused() chat.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focused
}

// IsFocused reports whether id is the focused conversation.
func (d *Directory) IsFocused(id chat.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !id.IsZero() && d.focused == id
}

// Reset empties the directory and clears focus.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.contacts = nil
	d.index = make(map[chat.ID]int)
	d.focused = chat.ID{}
	d.mu.Unlock()

	d.bus.Publish(bus.Event{Kind: bus.KindContactsReplaced, Payload: 0})
}
