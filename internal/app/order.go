package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"orderchat/pkg/domain"
	"orderchat/pkg/events"
)

// CreateOrderInput carries the order fields accepted from clients.
type CreateOrderInput struct {
	Description    string         `json:"description"`
	Specifications map[string]any `json:"specifications"`
	Quantity       int            `json:"quantity"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CreateOrder creates an order and its chat room as one atomic unit.
func (a *App) CreateOrder(userID string, in CreateOrderInput) (domain.Order, domain.ChatRoom, error) {
	if _, err := a.GetUserByID(userID); err != nil {
		return domain.Order{}, domain.ChatRoom{}, err
	}
	if in.Description == "" || in.Quantity <= 0 {
		return domain.Order{}, domain.ChatRoom{}, ErrOrderFieldsRequired
	}
	now := time.Now().UTC()
	order := domain.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		Description:    in.Description,
		Specifications: in.Specifications,
		Quantity:       in.Quantity,
		Metadata:       in.Metadata,
		Status:         domain.StatusReview,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	room := domain.ChatRoom{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateOrderWithChatRoom(order, room); err != nil {
		return domain.Order{}, domain.ChatRoom{}, fmt.Errorf("create order: %w", err)
	}
	a.publishOrderEvent(events.TypeOrderCreated, order.ID, order.UserID, order.Status)
	order.ChatRoom = &room
	return order, room, nil
}

// ListOrders returns every order with its chat room attached.
func (a *App) ListOrders() ([]domain.Order, error) {
	orders, err := a.store.ListOrders()
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// MarkCompleted advances an order from PROCESSING to COMPLETED. Any other
// source state is rejected with the current state named in the error.
func (a *App) MarkCompleted(userID, orderID string) (domain.Order, error) {
	if _, err := a.GetUserByID(userID); err != nil {
		return domain.Order{}, err
	}
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !ok {
		return domain.Order{}, ErrOrderNotFound
	}
	if order.Status != domain.StatusProcessing {
		return domain.Order{}, &InvalidTransitionError{
			Current:  order.Status,
			Required: domain.StatusProcessing,
			Target:   domain.StatusCompleted,
		}
	}
	if err := a.store.SetOrderStatus(orderID, domain.StatusCompleted); err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	order.Status = domain.StatusCompleted
	a.publishOrderEvent(events.TypeOrderCompleted, order.ID, order.UserID, order.Status)
	return order, nil
}

// publishOrderEvent emits a lifecycle event; failures are logged, never
// surfaced to the caller.
func (a *App) publishOrderEvent(eventType, orderID, userID string, status domain.OrderStatus) {
	if a.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.events.Publish(ctx, events.OrderEvent{
		Type:       eventType,
		OrderID:    orderID,
		UserID:     userID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("publish order event failed", "type", eventType, "order_id", orderID, "err", err)
	}
}
