package store

import (
	"sort"
	"sync"
	"time"

	"orderchat/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local runs
// without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	emails    map[string]string // email -> user ID
	orders    map[string]domain.Order
	orderSeq  []string
	rooms     map[string]domain.ChatRoom
	roomSeq   []string
	roomByOrd map[string]string // order ID -> room ID
	messages  map[string][]domain.Message
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		emails:    make(map[string]string),
		orders:    make(map[string]domain.Order),
		rooms:     make(map[string]domain.ChatRoom),
		roomByOrd: make(map[string]string),
		messages:  make(map[string][]domain.Message),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateOrderWithChatRoom(order domain.Order, room domain.ChatRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	m.orderSeq = append(m.orderSeq, order.ID)
	m.rooms[room.ID] = room
	m.roomSeq = append(m.roomSeq, room.ID)
	m.roomByOrd[order.ID] = room.ID
	return nil
}

func (m *MemoryStore) GetOrder(id string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return domain.Order{}, false, nil
	}
	return m.withRoom(order), true, nil
}

func (m *MemoryStore) ListOrders() ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Order, 0, len(m.orderSeq))
	for _, id := range m.orderSeq {
		if order, ok := m.orders[id]; ok {
			res = append(res, m.withRoom(order))
		}
	}
	return res, nil
}

// withRoom attaches a copy of the order's chat room; callers hold the lock.
func (m *MemoryStore) withRoom(order domain.Order) domain.Order {
	if roomID, ok := m.roomByOrd[order.ID]; ok {
		if room, ok := m.rooms[roomID]; ok {
			order.ChatRoom = &room
		}
	}
	return order
}

func (m *MemoryStore) SetOrderStatus(id string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	m.orders[id] = order
	return nil
}

func (m *MemoryStore) GetChatRoom(id string) (domain.ChatRoom, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok, nil
}

func (m *MemoryStore) GetChatRoomWithOrder(id string) (domain.ChatRoom, domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return domain.ChatRoom{}, domain.Order{}, false, nil
	}
	order, ok := m.orders[room.OrderID]
	if !ok {
		return domain.ChatRoom{}, domain.Order{}, false, nil
	}
	return room, order, true, nil
}

func (m *MemoryStore) ListChatRoomIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.roomSeq))
	copy(ids, m.roomSeq)
	return ids, nil
}

func (m *MemoryStore) ListChatRoomIDsByOwner(userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0)
	for _, roomID := range m.roomSeq {
		room, ok := m.rooms[roomID]
		if !ok {
			continue
		}
		if order, ok := m.orders[room.OrderID]; ok && order.UserID == userID {
			ids = append(ids, roomID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) CloseChatRoom(id, summary string, orderStatus domain.OrderStatus) (domain.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok || room.IsClosed {
		return domain.ChatRoom{}, ErrRoomAlreadyClosed
	}
	now := time.Now().UTC()
	room.IsClosed = true
	room.Summary = summary
	room.UpdatedAt = now
	m.rooms[id] = room
	if order, ok := m.orders[room.OrderID]; ok {
		order.Status = orderStatus
		order.UpdatedAt = now
		m.orders[room.OrderID] = order
	}
	return room, nil
}

func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ChatRoomID] = append(m.messages[msg.ChatRoomID], msg)
	return nil
}

func (m *MemoryStore) ListMessages(chatRoomID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]domain.Message, len(m.messages[chatRoomID]))
	copy(msgs, m.messages[chatRoomID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}
