package gateway

import (
	"github.com/bloomhouse/cartsync/internal/cart"
)

// RemoteCart is the canonical cart returned by the API.
type RemoteCart struct {
	Items []RemoteItem `json:"items"`
	Count int          `json:"count"`
	Total float64      `json:"total"`
}

// RemoteItem is one server line. Any field may be missing.
type RemoteItem struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"productId"`
	Product         *cart.RawProduct `json:"product"`
	Quantity        int              `json:"quantity"`
	SelectedVariant string           `json:"selectedVariant"`
	Price           cart.LooseFloat  `json:"price"`
	OriginalPrice   cart.LooseFloat  `json:"originalPrice"`
	SalePrice       cart.LooseFloat  `json:"salePrice"`
	DeliveryDate    string           `json:"deliveryDate"`
	DeliveryTime    string           `json:"deliveryTime"`
	CardMessage     string           `json:"cardMessage"`
	SenderInfo      string           `json:"senderInfo"`
	Customization   string           `json:"customization"`
	Colors          []string         `json:"colors"`
	Selections      []string         `json:"selections"`
}

// AddOptions are the personalization fields sent with an add.
type AddOptions struct {
	SelectedVariant string
	DeliveryDate    string
	DeliveryTime    string
	CardMessage     string
	SenderInfo      string
}

type addRequest struct {
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	SelectedVariant string `json:"selectedVariant"`
	DeliveryDate    string `json:"deliveryDate"`
	DeliveryTime    string `json:"deliveryTime"`
	CardMessage     string `json:"cardMessage"`
	SenderInfo      string `json:"senderInfo"`
}

type updateRequest struct {
	CartItemID string `json:"cartItemId"`
	Quantity   int    `json:"quantity"`
}

type syncItem struct {
	ProductID       string  `json:"productId"`
	Quantity        int     `json:"quantity"`
	SelectedVariant string  `json:"selectedVariant"`
	Price           float64 `json:"price"`
	DeliveryDate    string  `json:"deliveryDate"`
	DeliveryTime    string  `json:"deliveryTime"`
	CardMessage     string  `json:"cardMessage"`
	SenderInfo      string  `json:"senderInfo"`
}

type syncRequest struct {
	Items []syncItem `json:"items"`
}

type countResponse struct {
	Count int `json:"count"`
}
