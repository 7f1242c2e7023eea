// Package cart holds the storefront cart types shared by the local store, the
// remote gateway and the reconciler.
package cart

// LineItem is one product + variant + personalization combination with a
// quantity. JSON tags match the layout kept in durable storage.
type LineItem struct {
	ProductID       string   `json:"id"`
	NameEn          string   `json:"nameEn"`
	NameAr          string   `json:"nameAr"`
	Price           float64  `json:"price"`
	OriginalPrice   float64  `json:"originalPrice"`
	SalePrice       float64  `json:"salePrice"`
	Image           string   `json:"image"`
	Quantity        int      `json:"quantity"`
	SelectedVariant string   `json:"selectedVariant,omitempty"`
	DeliveryDate    string   `json:"deliveryDate,omitempty"`
	DeliveryTime    string   `json:"deliveryTime,omitempty"`
	CardMessage     string   `json:"cardMessage,omitempty"`
	SenderInfo      string   `json:"senderInfo,omitempty"`
	Customization   string   `json:"customization,omitempty"`
	Colors          []string `json:"colors,omitempty"`
	Selections      []string `json:"selections,omitempty"`
	CartItemID      string   `json:"cartItemId,omitempty"`
}

// Key identifies "the same line" for deduplication.
type Key struct {
	ProductID       string
	SelectedVariant string
	Customization   string
}

// KeyOf returns the dedup key of a line.
func KeyOf(item LineItem) Key {
	return Key{
		ProductID:       item.ProductID,
		SelectedVariant: item.SelectedVariant,
		Customization:   item.Customization,
	}
}

// Synced reports whether the server has assigned a line id.
func (i LineItem) Synced() bool {
	return i.CartItemID != ""
}

func (i LineItem) clone() LineItem {
	if i.Colors != nil {
		i.Colors = append([]string(nil), i.Colors...)
	}
	if i.Selections != nil {
		i.Selections = append([]string(nil), i.Selections...)
	}
	return i
}

// Options carries the per-line choices made when adding a product.
type Options struct {
	SelectedVariant string
	Customization   string
	// OverridePrice, when set, wins over the catalog prices.
	OverridePrice *float64
	DeliveryDate  string
	DeliveryTime  string
	CardMessage   string
	SenderInfo    string
	Colors        []string
	Selections    []string
}

// NewLineItem builds a line for product p. Unit price precedence is
// override > final/sale > base.
func NewLineItem(p Product, quantity int, opts Options) LineItem {
	price := p.BasePrice
	if p.FinalPrice > 0 {
		price = p.FinalPrice
	}
	if opts.OverridePrice != nil {
		price = *opts.OverridePrice
	}

	original := p.BasePrice
	if original <= 0 {
		original = price
	}

	item := LineItem{
		ProductID:       p.ID,
		NameEn:          p.NameEn,
		NameAr:          p.NameAr,
		Price:           price,
		OriginalPrice:   original,
		SalePrice:       p.FinalPrice,
		Image:           p.Image,
		Quantity:        quantity,
		SelectedVariant: opts.SelectedVariant,
		DeliveryDate:    opts.DeliveryDate,
		DeliveryTime:    opts.DeliveryTime,
		CardMessage:     opts.CardMessage,
		SenderInfo:      opts.SenderInfo,
		Customization:   opts.Customization,
	}
	if len(opts.Colors) > 0 {
		item.Colors = append([]string(nil), opts.Colors...)
	}
	if len(opts.Selections) > 0 {
		item.Selections = append([]string(nil), opts.Selections...)
	}
	return item
}
