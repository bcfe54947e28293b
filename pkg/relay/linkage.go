// Copyright 2024-2026 Aiku AI

package relay

import "sync"

const linkageLimit = 4096

// LinkedMessage is one member of a link group: a message id and the
// container (thread or channel) it lives in.
type LinkedMessage struct {
	ContainerID string
	MessageID   string
}

type linkGroup struct {
	members []LinkedMessage
}

// LinkageTable records which mirrored copies belong to which origin
// message so reactions can be fanned out to every sibling. Groups are
// kept in insertion order and the oldest is dropped once the table is
// full; reactions on messages older than the window are simply not
// mirrored.
type LinkageTable struct {
	mu     sync.Mutex
	groups map[*linkGroup]struct{}
	byMsg  map[string]*linkGroup
	order  []*linkGroup
}

func NewLinkageTable() *LinkageTable {
	return &LinkageTable{
		groups: make(map[*linkGroup]struct{}),
		byMsg:  make(map[string]*linkGroup),
	}
}

// Commit records a new link group. Groups with fewer than two members
// carry no mirroring information and are discarded.
func (t *LinkageTable) Commit(members []LinkedMessage) {
	if len(members) < 2 {
		return
	}
	g := &linkGroup{members: append([]LinkedMessage(nil), members...)}

	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.order) >= linkageLimit {
		t.evictOldestLocked()
	}
	t.groups[g] = struct{}{}
	t.order = append(t.order, g)
	for _, m := range members {
		t.byMsg[m.MessageID] = g
	}
}

// Siblings returns every other member of the link group containing the
// given message, or nil when the message is unknown.
func (t *LinkageTable) Siblings(messageID string) []LinkedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.byMsg[messageID]
	if !ok {
		return nil
	}
	out := make([]LinkedMessage, 0, len(g.members)-1)
	for _, m := range g.members {
		if m.MessageID != messageID {
			out = append(out, m)
		}
	}
	return out
}

// Len reports the number of live link groups.
func (t *LinkageTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

func (t *LinkageTable) evictOldestLocked() {
	g := t.order[0]
	t.order = t.order[1:]
	delete(t.groups, g)
	for _, m := range g.members {
		if t.byMsg[m.MessageID] == g {
			delete(t.byMsg, m.MessageID)
		}
	}
}
