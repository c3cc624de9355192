package store

import "orderchat/pkg/domain"

// Store defines persistence operations for users, orders, chat rooms,
// and messages.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// orders
	// CreateOrderWithChatRoom persists the order and its chat room as one
	// atomic unit; neither survives a failure of the other.
	CreateOrderWithChatRoom(order domain.Order, room domain.ChatRoom) error
	GetOrder(id string) (domain.Order, bool, error)
	ListOrders() ([]domain.Order, error)
	SetOrderStatus(id string, status domain.OrderStatus) error

	// chat rooms
	GetChatRoom(id string) (domain.ChatRoom, bool, error)
	GetChatRoomWithOrder(id string) (domain.ChatRoom, domain.Order, bool, error)
	ListChatRoomIDs() ([]string, error)
	ListChatRoomIDsByOwner(userID string) ([]string, error)
	// CloseChatRoom marks the room closed with the summary and advances the
	// backing order to the given status in the same atomic unit.
	CloseChatRoom(id, summary string, orderStatus domain.OrderStatus) (domain.ChatRoom, error)

	// messages
	AppendMessage(domain.Message) error
	ListMessages(chatRoomID string) ([]domain.Message, error)
}
