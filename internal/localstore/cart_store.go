package localstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

const CartKey = "cart"

// CartStore persists the cart snapshot as a JSON array. Failures are logged
// and swallowed: the in-memory snapshot stays authoritative until the next
// restart.
type CartStore struct {
	storage Storage
}

func NewCartStore(storage Storage) *CartStore {
	return &CartStore{storage: storage}
}

// Load returns the stored snapshot, or an empty one when the key is absent,
// unreadable or not a JSON array of line items.
func (s *CartStore) Load(ctx context.Context) cart.Snapshot {
	raw, err := s.storage.Get(ctx, CartKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("Failed to read stored cart, starting empty", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return cart.Snapshot{}
	}

	var snapshot cart.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		logger.Warn("Stored cart is malformed, starting empty", map[string]interface{}{
			"error": err.Error(),
		})
		return cart.Snapshot{}
	}
	if snapshot == nil {
		return cart.Snapshot{}
	}

	kept := snapshot[:0]
	for _, item := range snapshot {
		if item.ProductID == "" || item.Quantity < 1 {
			logger.Warn("Dropping invalid stored cart line", map[string]interface{}{
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
			})
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// Save writes the snapshot.
func (s *CartStore) Save(ctx context.Context, snapshot cart.Snapshot) {
	if snapshot == nil {
		snapshot = cart.Snapshot{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error("Failed to encode cart for storage", err)
		return
	}
	if err := s.storage.Set(ctx, CartKey, string(data)); err != nil {
		logger.Error("Failed to persist cart", err, map[string]interface{}{
			"lines": len(snapshot),
		})
	}
}

// Clear removes the stored snapshot.
func (s *CartStore) Clear(ctx context.Context) {
	if err := s.storage.Delete(ctx, CartKey); err != nil {
		logger.Error("Failed to clear stored cart", err)
	}
}
