package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartItem is one server cart line. (user, product, variant) is unique.
type CartItem struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_line" json:"-"`
	ProductID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_cart_line" json:"productId"`
	SelectedVariant string    `gorm:"not null;default:'';uniqueIndex:idx_cart_line" json:"selectedVariant"`
	Quantity        int       `gorm:"not null;default:1" json:"quantity"`
	DeliveryDate    string    `json:"deliveryDate"`
	DeliveryTime    string    `json:"deliveryTime"`
	CardMessage     string    `gorm:"type:text" json:"cardMessage"`
	SenderInfo      string    `json:"senderInfo"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `gorm:"index" json:"updatedAt"`

	User    User    `gorm:"foreignKey:UserID" json:"-"`
	Product Product `gorm:"foreignKey:ProductID" json:"product"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
