package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"orderchat/pkg/domain"
	"orderchat/pkg/events"
	"orderchat/pkg/storage"
	"orderchat/pkg/store"
)

// ValidateAccess reports whether the user may read or write the chat room.
// Admins may access any room; regular users only the room of their own order.
func (a *App) ValidateAccess(userID, chatRoomID string, role domain.UserRole) error {
	_, order, ok, err := a.store.GetChatRoomWithOrder(chatRoomID)
	if err != nil {
		return fmt.Errorf("get chat room: %w", err)
	}
	if !ok {
		return ErrChatRoomNotFound
	}
	if role == domain.RoleAdmin {
		return nil
	}
	if order.UserID != userID {
		return ErrChatAccessDenied
	}
	return nil
}

// ChatHistory returns the room's messages in ascending creation order.
func (a *App) ChatHistory(userID, chatRoomID string) ([]domain.Message, error) {
	user, err := a.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if err := a.ValidateAccess(user.ID, chatRoomID, user.Role); err != nil {
		return nil, err
	}
	messages, err := a.store.ListMessages(chatRoomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// CreateMessage persists a chat message after authorization and closed-room
// checks. The sender identity comes from the authenticated session, never
// from the payload.
func (a *App) CreateMessage(senderID, chatRoomID, content string) (domain.Message, error) {
	user, err := a.GetUserByID(senderID)
	if err != nil {
		return domain.Message{}, err
	}
	if chatRoomID == "" || strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrMessageFieldsRequired
	}
	room, order, ok, err := a.store.GetChatRoomWithOrder(chatRoomID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("get chat room: %w", err)
	}
	if !ok {
		return domain.Message{}, ErrChatRoomNotFound
	}
	if user.Role != domain.RoleAdmin && order.UserID != user.ID {
		return domain.Message{}, ErrChatAccessDenied
	}
	if room.IsClosed {
		return domain.Message{}, ErrChatRoomClosed
	}
	msg := domain.Message{
		ID:         uuid.NewString(),
		ChatRoomID: chatRoomID,
		SenderID:   user.ID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.AppendMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// CloseChat closes the room with a summary and advances its order to
// PROCESSING, as one atomic unit. Closing twice fails.
func (a *App) CloseChat(chatRoomID, summary string) (domain.ChatRoom, error) {
	room, order, ok, err := a.store.GetChatRoomWithOrder(chatRoomID)
	if err != nil {
		return domain.ChatRoom{}, fmt.Errorf("get chat room: %w", err)
	}
	if !ok {
		return domain.ChatRoom{}, ErrChatRoomNotFound
	}
	if room.IsClosed {
		return domain.ChatRoom{}, ErrChatAlreadyClosed
	}
	closed, err := a.store.CloseChatRoom(chatRoomID, summary, domain.StatusProcessing)
	if err != nil {
		if errors.Is(err, store.ErrRoomAlreadyClosed) {
			return domain.ChatRoom{}, ErrChatAlreadyClosed
		}
		return domain.ChatRoom{}, fmt.Errorf("close chat room: %w", err)
	}
	a.archiveTranscript(closed, order.ID)
	a.publishOrderEvent(events.TypeOrderProcessing, order.ID, order.UserID, domain.StatusProcessing)
	return closed, nil
}

// JoinableRoomIDs lists the chat rooms the user may be subscribed to:
// every room for admins, their own orders' rooms for regular users.
func (a *App) JoinableRoomIDs(userID string, role domain.UserRole) ([]string, error) {
	if role == domain.RoleAdmin {
		ids, err := a.store.ListChatRoomIDs()
		if err != nil {
			return nil, fmt.Errorf("list chat rooms: %w", err)
		}
		return ids, nil
	}
	ids, err := a.store.ListChatRoomIDsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("list chat rooms: %w", err)
	}
	return ids, nil
}

// archiveTranscript uploads the closed room's transcript; failures are
// logged, never surfaced to the caller.
func (a *App) archiveTranscript(room domain.ChatRoom, orderID string) {
	if a.archive == nil {
		return
	}
	messages, err := a.store.ListMessages(room.ID)
	if err != nil {
		slog.Warn("load transcript messages failed", "chat_room_id", room.ID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = storage.ArchiveTranscript(ctx, a.archive, storage.Transcript{
		ChatRoomID: room.ID,
		OrderID:    orderID,
		Summary:    room.Summary,
		ClosedAt:   room.UpdatedAt,
		Messages:   messages,
	})
	if err != nil {
		slog.Warn("archive transcript failed", "chat_room_id", room.ID, "err", err)
	}
}
