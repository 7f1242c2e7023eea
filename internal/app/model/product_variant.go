package model

import (
	"time"

	"gorm.io/gorm"
)

// ProductVariant is a selectable size or color of a product, e.g. "Large" or
// "Red". Cart lines refer to it by Name.
type ProductVariant struct {
	ID              uint           `gorm:"primarykey" json:"-"`
	ProductID       string         `gorm:"type:varchar(64);uniqueIndex:idx_product_variant;not null" json:"-"`
	Name            string         `gorm:"uniqueIndex:idx_product_variant;not null" json:"name"`
	AdditionalPrice float64        `gorm:"default:0" json:"additionalPrice"`
	IsDefault       bool           `gorm:"default:false" json:"isDefault"`
	CreatedAt       time.Time      `json:"-"`
	UpdatedAt       time.Time      `json:"-"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}
