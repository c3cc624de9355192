package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type OrderModel struct {
	ID             string            `gorm:"primaryKey"`
	UserID         string            `gorm:"not null;index"`
	Description    string            `gorm:"not null"`
	Specifications datatypes.JSONMap `gorm:"type:jsonb"`
	Quantity       int               `gorm:"not null"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	Status         string            `gorm:"not null"`
	CreatedAt      time.Time         `gorm:"not null"`
	UpdatedAt      time.Time         `gorm:"not null"`
}

type ChatRoomModel struct {
	ID        string `gorm:"primaryKey"`
	OrderID   string `gorm:"uniqueIndex;not null"`
	IsClosed  bool   `gorm:"not null;default:false"`
	Summary   string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID         string    `gorm:"primaryKey"`
	ChatRoomID string    `gorm:"not null;index"`
	SenderID   string    `gorm:"not null"`
	Content    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}
