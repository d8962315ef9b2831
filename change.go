package vstore

import (
	"fmt"
	"slices"
	"sync"
)

type Action int

const (
	ActionNone Action = iota
	ActionCreateUpdate
	ActionBatchCreateUpdate
	ActionDelete
	ActionBatchDelete
	ActionDeleteAll
	ActionSet
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreateUpdate:
		return "createUpdate"
	case ActionBatchCreateUpdate:
		return "batchCreateUpdate"
	case ActionDelete:
		return "delete"
	case ActionBatchDelete:
		return "batchDelete"
	case ActionDeleteAll:
		return "deleteAll"
	case ActionSet:
		return "set"
	default:
		return fmt.Sprintf("invalid action %d", int(a))
	}
}

// ChangeEvent describes one mutating call on a store.
//
// Data depends on Action: the caller's input Record for ActionCreateUpdate
// and ActionSet (not the merged record), the input []Record for ActionBatchCreateUpdate, the id string
// for ActionDelete, the input []string for ActionBatchDelete and nil for
// ActionDeleteAll.
type ChangeEvent struct {
	ListenerID string
	Store      string
	Action     Action
	Data       any
}

type Listener func(ev ChangeEvent)

// Subscription is a registered change listener.
type Subscription struct {
	ID    string
	Store string

	set *listenerSet
}

// Remove unregisters the listener. Removing twice is a no-op.
func (sub *Subscription) Remove() {
	sub.set.remove(sub.Store, sub.ID)
}

type listenerEntry struct {
	id string
	fn Listener
}

// listenerSet keeps in-memory listeners per store name.
type listenerSet struct {
	mu    sync.Mutex
	byKey map[string][]listenerEntry
}

func newListenerSet() *listenerSet {
	return &listenerSet{byKey: make(map[string][]listenerEntry)}
}

func (ls *listenerSet) add(store, id string, fn Listener) *Subscription {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.byKey[store] = append(ls.byKey[store], listenerEntry{id, fn})
	return &Subscription{ID: id, Store: store, set: ls}
}

func (ls *listenerSet) remove(store, id string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	entries := ls.byKey[store]
	i := slices.IndexFunc(entries, func(e listenerEntry) bool { return e.id == id })
	if i < 0 {
		return
	}
	ls.byKey[store] = slices.Delete(slices.Clone(entries), i, i+1)
}

func (ls *listenerSet) count(store string) int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.byKey[store])
}

// fire calls every listener of store in registration order. Listeners run
// outside the lock and may add or remove listeners.
func (ls *listenerSet) fire(store string, action Action, data any) {
	ls.mu.Lock()
	entries := ls.byKey[store]
	ls.mu.Unlock()

	for _, e := range entries {
		e.fn(ChangeEvent{
			ListenerID: e.id,
			Store:      store,
			Action:     action,
			Data:       data,
		})
	}
}
