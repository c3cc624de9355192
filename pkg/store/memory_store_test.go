package store

import (
	"errors"
	"testing"
	"time"

	"orderchat/pkg/domain"
)

func seedOrderWithRoom(t *testing.T, s *MemoryStore, orderID, roomID, userID string) {
	t.Helper()
	now := time.Now().UTC()
	err := s.CreateOrderWithChatRoom(
		domain.Order{ID: orderID, UserID: userID, Description: "d", Quantity: 1, Status: domain.StatusReview, CreatedAt: now, UpdatedAt: now},
		domain.ChatRoom{ID: roomID, OrderID: orderID, CreatedAt: now, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("create order with room: %v", err)
	}
}

func TestMemoryStoreOrderCarriesChatRoom(t *testing.T) {
	s := NewMemoryStore()
	seedOrderWithRoom(t, s, "order-1", "room-1", "user-1")

	order, ok, err := s.GetOrder("order-1")
	if err != nil || !ok {
		t.Fatalf("get order: ok=%v err=%v", ok, err)
	}
	if order.ChatRoom == nil || order.ChatRoom.ID != "room-1" {
		t.Fatalf("expected attached chat room, got %+v", order.ChatRoom)
	}

	orders, err := s.ListOrders()
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ChatRoom == nil {
		t.Fatalf("expected one order with room, got %+v", orders)
	}
}

func TestMemoryStoreCloseChatRoomAdvancesOrder(t *testing.T) {
	s := NewMemoryStore()
	seedOrderWithRoom(t, s, "order-1", "room-1", "user-1")

	room, err := s.CloseChatRoom("room-1", "done", domain.StatusProcessing)
	if err != nil {
		t.Fatalf("close room: %v", err)
	}
	if !room.IsClosed || room.Summary != "done" {
		t.Fatalf("unexpected closed room: %+v", room)
	}
	order, _, _ := s.GetOrder("order-1")
	if order.Status != domain.StatusProcessing {
		t.Fatalf("expected order advanced to PROCESSING, got %s", order.Status)
	}

	if _, err := s.CloseChatRoom("room-1", "again", domain.StatusProcessing); !errors.Is(err, ErrRoomAlreadyClosed) {
		t.Fatalf("expected ErrRoomAlreadyClosed on second close, got %v", err)
	}
}

func TestMemoryStoreRoomIDsByOwner(t *testing.T) {
	s := NewMemoryStore()
	seedOrderWithRoom(t, s, "order-1", "room-1", "alice")
	seedOrderWithRoom(t, s, "order-2", "room-2", "bob")
	seedOrderWithRoom(t, s, "order-3", "room-3", "alice")

	ids, err := s.ListChatRoomIDsByOwner("alice")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(ids) != 2 || ids[0] != "room-1" || ids[1] != "room-3" {
		t.Fatalf("unexpected room ids for alice: %v", ids)
	}
	all, err := s.ListChatRoomIDs()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rooms, got %v", all)
	}
}

func TestMemoryStoreListMessagesAscending(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		_ = s.AppendMessage(domain.Message{
			ID:         string(rune('a' + i)),
			ChatRoomID: "room-1",
			SenderID:   "user-1",
			Content:    "hi",
			CreatedAt:  base.Add(offset),
		})
	}
	msgs, err := s.ListMessages("room-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("messages not in ascending order: %+v", msgs)
		}
	}
}
