package service

import (
	"math"

	"github.com/bloomhouse/cartsync/internal/app/model"
)

// ProductSummary is the product as embedded in a cart line.
type ProductSummary struct {
	ID         string  `json:"id"`
	NameEn     string  `json:"nameEn"`
	NameAr     string  `json:"nameAr"`
	Price      float64 `json:"price"`
	SalePrice  float64 `json:"salePrice"`
	FinalPrice float64 `json:"finalPrice"`
	Image      string  `json:"image"`
}

// CartLineView is one line of the canonical cart. Prices include the
// variant surcharge.
type CartLineView struct {
	ID              string         `json:"id"`
	ProductID       string         `json:"productId"`
	Product         ProductSummary `json:"product"`
	Quantity        int            `json:"quantity"`
	SelectedVariant string         `json:"selectedVariant"`
	Price           float64        `json:"price"`
	OriginalPrice   float64        `json:"originalPrice"`
	SalePrice       float64        `json:"salePrice"`
	DeliveryDate    string         `json:"deliveryDate"`
	DeliveryTime    string         `json:"deliveryTime"`
	CardMessage     string         `json:"cardMessage"`
	SenderInfo      string         `json:"senderInfo"`
}

// CartView is the canonical cart returned by every cart endpoint.
type CartView struct {
	Items []CartLineView `json:"items"`
	Count int            `json:"count"`
	Total float64        `json:"total"`
}

func newCartView(items []model.CartItem) *CartView {
	view := &CartView{Items: make([]CartLineView, 0, len(items))}
	for i := range items {
		// product was deleted from the catalog
		if items[i].Product.ID == "" {
			continue
		}
		line := newCartLineView(&items[i])
		view.Items = append(view.Items, line)
		view.Count += line.Quantity
		view.Total += line.Price * float64(line.Quantity)
	}
	view.Total = roundMoney(view.Total)
	return view
}

func newCartLineView(item *model.CartItem) CartLineView {
	product := &item.Product
	var surcharge float64
	if variant, ok := product.Variant(item.SelectedVariant); ok && variant != nil {
		surcharge = variant.AdditionalPrice
	}
	final := product.EffectivePrice()

	return CartLineView{
		ID:        item.ID,
		ProductID: item.ProductID,
		Product: ProductSummary{
			ID:         product.ID,
			NameEn:     product.NameEn,
			NameAr:     product.NameAr,
			Price:      product.Price,
			SalePrice:  product.SalePrice,
			FinalPrice: final,
			Image:      product.Image,
		},
		Quantity:        item.Quantity,
		SelectedVariant: item.SelectedVariant,
		Price:           roundMoney(final + surcharge),
		OriginalPrice:   roundMoney(product.Price + surcharge),
		SalePrice:       roundMoney(final + surcharge),
		DeliveryDate:    item.DeliveryDate,
		DeliveryTime:    item.DeliveryTime,
		CardMessage:     item.CardMessage,
		SenderInfo:      item.SenderInfo,
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
