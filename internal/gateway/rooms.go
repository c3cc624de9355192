package gateway

import "sync"

// roomTable maps chat room IDs to the clients subscribed to them. It only
// fans out; authorization happens before a client is subscribed.
type roomTable struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{rooms: make(map[string]map[*client]struct{})}
}

func (t *roomTable) Subscribe(roomID string, c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.rooms[roomID]
	if !ok {
		set = make(map[*client]struct{})
		t.rooms[roomID] = set
	}
	set[c] = struct{}{}
}

func (t *roomTable) Unsubscribe(roomID string, c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(t.rooms, roomID)
	}
}

// Drop removes the client from every room it is subscribed to.
func (t *roomTable) Drop(c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for roomID, set := range t.rooms {
		delete(set, c)
		if len(set) == 0 {
			delete(t.rooms, roomID)
		}
	}
}

// Broadcast queues the payload on every subscriber of the room. Clients
// whose send buffer is full are disconnected rather than blocked on.
func (t *roomTable) Broadcast(roomID string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.rooms[roomID] {
		if !c.trySend(payload) {
			c.closeSend()
		}
	}
}
