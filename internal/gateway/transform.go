package gateway

import (
	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

// Transform maps the API cart to a snapshot. It does no I/O and never fails:
// absent prices become 0, absent strings "". Lines without a product id are
// dropped and quantities below 1 are raised to 1.
func Transform(rc *RemoteCart) cart.Snapshot {
	if rc == nil {
		return cart.Snapshot{}
	}

	out := make(cart.Snapshot, 0, len(rc.Items))
	for _, item := range rc.Items {
		var product cart.Product
		if item.Product != nil {
			product = cart.NormalizeProduct(*item.Product)
		}

		productID := item.ProductID
		if productID == "" {
			productID = product.ID
		}
		if productID == "" {
			logger.Warn("Dropping remote cart line without product id", map[string]interface{}{
				"cart_item_id": item.ID,
			})
			continue
		}

		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}

		line := cart.LineItem{
			ProductID:       productID,
			NameEn:          product.NameEn,
			NameAr:          product.NameAr,
			Price:           pick(item.Price, product.FinalPrice),
			OriginalPrice:   pick(item.OriginalPrice, product.BasePrice),
			SalePrice:       pick(item.SalePrice, product.FinalPrice),
			Image:           product.Image,
			Quantity:        quantity,
			SelectedVariant: item.SelectedVariant,
			DeliveryDate:    item.DeliveryDate,
			DeliveryTime:    item.DeliveryTime,
			CardMessage:     item.CardMessage,
			SenderInfo:      item.SenderInfo,
			Customization:   item.Customization,
			CartItemID:      item.ID,
		}
		if len(item.Colors) > 0 {
			line.Colors = append([]string(nil), item.Colors...)
		}
		if len(item.Selections) > 0 {
			line.Selections = append([]string(nil), item.Selections...)
		}
		out = append(out, line)
	}
	return out
}

func pick(own cart.LooseFloat, fallback float64) float64 {
	if own > 0 {
		return float64(own)
	}
	return fallback
}
