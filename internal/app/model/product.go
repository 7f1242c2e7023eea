package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductCategory string

const (
	CategoryBouquet ProductCategory = "bouquet"
	CategoryBox     ProductCategory = "box"
	CategoryPlant   ProductCategory = "plant"
	CategoryGift    ProductCategory = "gift"
)

// Product is a catalog entry. SalePrice is 0 when the product is not on
// sale; FinalPrice is derived after load and never stored.
type Product struct {
	ID            string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	NameEn        string          `gorm:"not null" json:"nameEn"`
	NameAr        string          `json:"nameAr"`
	Description   string          `gorm:"type:text" json:"description"`
	Price         float64         `gorm:"not null" json:"price"`
	SalePrice     float64         `gorm:"default:0" json:"salePrice"`
	FinalPrice    float64         `gorm:"-" json:"finalPrice"`
	Category      ProductCategory `gorm:"type:varchar(50);index" json:"category"`
	StockQuantity int             `gorm:"default:0" json:"stockQuantity"`
	Image         string          `json:"image"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	Variants  []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	CartItems []CartItem       `gorm:"foreignKey:ProductID" json:"-"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Product) AfterFind(tx *gorm.DB) error {
	p.FinalPrice = p.EffectivePrice()
	return nil
}

// EffectivePrice is the sale price when one is set below the list price.
func (p *Product) EffectivePrice() float64 {
	if p.SalePrice > 0 && p.SalePrice < p.Price {
		return p.SalePrice
	}
	return p.Price
}

// Variant returns the variant with the given name. Products without variants
// accept only the empty name.
func (p *Product) Variant(name string) (*ProductVariant, bool) {
	if name == "" {
		return nil, len(p.Variants) == 0 || p.hasDefaultVariant()
	}
	for i := range p.Variants {
		if p.Variants[i].Name == name {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

func (p *Product) hasDefaultVariant() bool {
	for _, v := range p.Variants {
		if v.IsDefault {
			return true
		}
	}
	return false
}
