package realms

import (
	"sort"
	"sync"
)

// Sender pushes one correlated request frame to a connected realm.
type Sender interface {
	SendRequest(corrID uint32, payload []byte) error
}

type realmEntry struct {
	name         string
	rewardItemID int
	sender       Sender
}

// Registry tracks the set of currently connected realms. A realm is
// "online" exactly while its connection is registered here.
type Registry struct {
	mu       sync.RWMutex
	realms   map[int]*realmEntry
	onChange func(online []int)
}

func NewRegistry() *Registry {
	return &Registry{realms: map[int]*realmEntry{}}
}

// SetOnChange installs a callback invoked with the fresh online id list
// after every register and unregister. Must be set before serving.
func (g *Registry) SetOnChange(fn func(online []int)) {
	g.onChange = fn
}

func (g *Registry) Register(id int, name string, rewardItemID int, s Sender) {
	g.mu.Lock()
	g.realms[id] = &realmEntry{name: name, rewardItemID: rewardItemID, sender: s}
	online := g.onlineLocked()
	g.mu.Unlock()

	if g.onChange != nil {
		g.onChange(online)
	}
}

func (g *Registry) Unregister(id int) {
	g.mu.Lock()
	delete(g.realms, id)
	online := g.onlineLocked()
	g.mu.Unlock()

	if g.onChange != nil {
		g.onChange(online)
	}
}

func (g *Registry) IsOnline(id int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.realms[id]

	return ok
}

// Online returns the connected realm ids in ascending order.
func (g *Registry) Online() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.onlineLocked()
}

func (g *Registry) onlineLocked() []int {
	ids := make([]int, 0, len(g.realms))
	for id := range g.realms {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

func (g *Registry) Name(id int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.realms[id]
	if !ok {
		return "", false
	}

	return e.name, true
}

// RewardItemID reports the reward unit item id of a connected realm.
func (g *Registry) RewardItemID(id int) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.realms[id]
	if !ok {
		return 0, false
	}

	return e.rewardItemID, true
}

func (g *Registry) sender(id int) (Sender, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.realms[id]
	if !ok {
		return nil, false
	}

	return e.sender, true
}
