package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"orderchat/pkg/domain"
)

const migrateLockID int64 = 52415241

// ErrRoomAlreadyClosed is returned by CloseChatRoom when the room was
// closed by a concurrent caller between the service's check and the write.
var ErrRoomAlreadyClosed = errors.New("chat room already closed")

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &OrderModel{}, &ChatRoomModel{}, &MessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_room_models'
					AND constraint_name = 'chat_room_models_order_id_fkey'
				) THEN
					ALTER TABLE chat_room_models
					ADD CONSTRAINT chat_room_models_order_id_fkey
					FOREIGN KEY (order_id) REFERENCES order_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_chat_room_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_chat_room_id_fkey
					FOREIGN KEY (chat_room_id) REFERENCES chat_room_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateOrderWithChatRoom persists order and room inside one transaction.
func (s *GormStore) CreateOrderWithChatRoom(order domain.Order, room domain.ChatRoom) error {
	orderModel := orderToModel(order)
	roomModel := chatRoomToModel(room)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&orderModel).Error; err != nil {
			return err
		}
		return tx.Create(&roomModel).Error
	})
}

// GetOrder returns an order with its chat room attached.
func (s *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	order := orderFromModel(model)
	var roomModel ChatRoomModel
	if err := s.db.First(&roomModel, "order_id = ?", id).Error; err == nil {
		room := chatRoomFromModel(roomModel)
		order.ChatRoom = &room
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Order{}, false, err
	}
	return order, true, nil
}

// ListOrders returns all orders with their chat rooms, oldest first.
func (s *GormStore) ListOrders() ([]domain.Order, error) {
	var models []OrderModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	var roomModels []ChatRoomModel
	if err := s.db.Find(&roomModels).Error; err != nil {
		return nil, err
	}
	roomsByOrder := make(map[string]domain.ChatRoom, len(roomModels))
	for _, rm := range roomModels {
		roomsByOrder[rm.OrderID] = chatRoomFromModel(rm)
	}
	orders := make([]domain.Order, 0, len(models))
	for _, m := range models {
		order := orderFromModel(m)
		if room, ok := roomsByOrder[m.ID]; ok {
			order.ChatRoom = &room
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// SetOrderStatus updates the lifecycle status.
func (s *GormStore) SetOrderStatus(id string, status domain.OrderStatus) error {
	return s.db.Model(&OrderModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// GetChatRoom returns a room by ID.
func (s *GormStore) GetChatRoom(id string) (domain.ChatRoom, bool, error) {
	var model ChatRoomModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatRoom{}, false, nil
		}
		return domain.ChatRoom{}, false, err
	}
	return chatRoomFromModel(model), true, nil
}

// GetChatRoomWithOrder returns a room together with its backing order.
func (s *GormStore) GetChatRoomWithOrder(id string) (domain.ChatRoom, domain.Order, bool, error) {
	var roomModel ChatRoomModel
	if err := s.db.First(&roomModel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatRoom{}, domain.Order{}, false, nil
		}
		return domain.ChatRoom{}, domain.Order{}, false, err
	}
	var orderModel OrderModel
	if err := s.db.First(&orderModel, "id = ?", roomModel.OrderID).Error; err != nil {
		return domain.ChatRoom{}, domain.Order{}, false, err
	}
	return chatRoomFromModel(roomModel), orderFromModel(orderModel), true, nil
}

// ListChatRoomIDs returns every room id in the system.
func (s *GormStore) ListChatRoomIDs() ([]string, error) {
	var ids []string
	if err := s.db.Model(&ChatRoomModel{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListChatRoomIDsByOwner returns room ids backing the user's orders.
func (s *GormStore) ListChatRoomIDsByOwner(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&ChatRoomModel{}).
		Joins("JOIN order_models ON order_models.id = chat_room_models.order_id").
		Where("order_models.user_id = ?", userID).
		Order("chat_room_models.created_at ASC").
		Pluck("chat_room_models.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CloseChatRoom closes the room and advances its order in one transaction.
// The room update is conditional on is_closed=false so a concurrent close
// cannot re-apply the order side effect.
func (s *GormStore) CloseChatRoom(id, summary string, orderStatus domain.OrderStatus) (domain.ChatRoom, error) {
	var closed domain.ChatRoom
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model ChatRoomModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		closedAt := time.Now().UTC()
		res := tx.Model(&ChatRoomModel{}).
			Where("id = ? AND is_closed = ?", id, false).
			Updates(map[string]any{
				"is_closed":  true,
				"summary":    summary,
				"updated_at": closedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomAlreadyClosed
		}
		if err := tx.Model(&OrderModel{}).
			Where("id = ?", model.OrderID).
			Updates(map[string]any{
				"status":     string(orderStatus),
				"updated_at": closedAt,
			}).Error; err != nil {
			return err
		}
		model.IsClosed = true
		model.Summary = summary
		model.UpdatedAt = closedAt
		closed = chatRoomFromModel(model)
		return nil
	})
	if err != nil {
		return domain.ChatRoom{}, err
	}
	return closed, nil
}

// AppendMessage records a message.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// ListMessages returns a room's messages in ascending creation order.
func (s *GormStore) ListMessages(chatRoomID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.Where("chat_room_id = ?", chatRoomID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func orderToModel(o domain.Order) OrderModel {
	return OrderModel{
		ID:             o.ID,
		UserID:         o.UserID,
		Description:    o.Description,
		Specifications: datatypes.JSONMap(o.Specifications),
		Quantity:       o.Quantity,
		Metadata:       datatypes.JSONMap(o.Metadata),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) domain.Order {
	return domain.Order{
		ID:             m.ID,
		UserID:         m.UserID,
		Description:    m.Description,
		Specifications: map[string]any(m.Specifications),
		Quantity:       m.Quantity,
		Metadata:       map[string]any(m.Metadata),
		Status:         domain.OrderStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func chatRoomToModel(r domain.ChatRoom) ChatRoomModel {
	return ChatRoomModel{
		ID:        r.ID,
		OrderID:   r.OrderID,
		IsClosed:  r.IsClosed,
		Summary:   r.Summary,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func chatRoomFromModel(m ChatRoomModel) domain.ChatRoom {
	return domain.ChatRoom{
		ID:        m.ID,
		OrderID:   m.OrderID,
		IsClosed:  m.IsClosed,
		Summary:   m.Summary,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:         msg.ID,
		ChatRoomID: msg.ChatRoomID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		SenderID:   m.SenderID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}
