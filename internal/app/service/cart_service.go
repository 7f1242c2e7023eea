package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bloomhouse/cartsync/internal/app/model"
	"github.com/bloomhouse/cartsync/internal/app/repository"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"gorm.io/gorm"
)

const (
	MaxSyncLines       = 100
	MaxCardMessageLen  = 250
	cacheRequestBudget = 500 * time.Millisecond
)

var (
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidVariant   = errors.New("invalid product variant")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrTooManyLines     = errors.New("too many cart lines")
)

// CartCountCache caches the per-user unit count. Implementations may be
// absent; every miss or failure falls back to the database.
type CartCountCache interface {
	Get(ctx context.Context, userID string) (int, bool, error)
	Set(ctx context.Context, userID string, count int) error
	Invalidate(ctx context.Context, userID string) error
}

// AddInput is one add-to-cart request.
type AddInput struct {
	ProductID       string
	Quantity        int
	SelectedVariant string
	DeliveryDate    string
	DeliveryTime    string
	CardMessage     string
	SenderInfo      string
}

// SyncLine is one line pushed by a storefront client. Client prices are
// informational; the catalog price always wins.
type SyncLine struct {
	ProductID       string
	Quantity        int
	SelectedVariant string
	Price           float64
	DeliveryDate    string
	DeliveryTime    string
	CardMessage     string
	SenderInfo      string
}

// CartNotifier is told about every committed cart change, e.g. to push it to
// the user's other devices.
type CartNotifier interface {
	NotifyCartChanged(userID string, cart interface{})
}

type CartService interface {
	GetCart(userID string) (*CartView, error)
	AddToCart(userID string, in AddInput) (*CartView, error)
	UpdateCartItem(userID, cartItemID string, quantity int) (*CartView, error)
	RemoveFromCart(userID, cartItemID string) (*CartView, error)
	RemoveProduct(userID, productID string, variant *string) (*CartView, error)
	ClearCart(userID string) (*CartView, error)
	SyncCart(userID string, lines []SyncLine) (*CartView, error)
	CountItems(ctx context.Context, userID string) (int, error)
	PurgeAbandoned(olderThan time.Duration) (int64, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	countCache  CartCountCache
	notifiers   []CartNotifier
}

func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	countCache CartCountCache,
	notifiers ...CartNotifier,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		countCache:  countCache,
		notifiers:   notifiers,
	}
}

func (s *cartService) GetCart(userID string) (*CartView, error) {
	items, err := s.cartRepo.FindByUserID(userID)
	if err != nil {
		logger.Error("Failed to fetch user cart", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}
	return newCartView(items), nil
}

func (s *cartService) AddToCart(userID string, in AddInput) (*CartView, error) {
	logger.Info("Adding item to cart", map[string]interface{}{
		"user_id":    userID,
		"product_id": in.ProductID,
		"variant":    in.SelectedVariant,
		"quantity":   in.Quantity,
	})

	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.productRepo.FindByID(in.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Cannot add to cart: product not found", map[string]interface{}{
				"user_id":    userID,
				"product_id": in.ProductID,
			})
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	if _, ok := product.Variant(in.SelectedVariant); !ok {
		logger.Warn("Cannot add to cart: unknown variant", map[string]interface{}{
			"product_id": in.ProductID,
			"variant":    in.SelectedVariant,
		})
		return nil, ErrInvalidVariant
	}

	existing, err := s.cartRepo.FindByUserProductVariant(userID, in.ProductID, in.SelectedVariant)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	requested := in.Quantity
	if existing != nil {
		requested += existing.Quantity
	}
	if product.StockQuantity < requested {
		logger.Warn("Cannot add to cart: insufficient stock", map[string]interface{}{
			"user_id":    userID,
			"product_id": in.ProductID,
			"requested":  requested,
			"available":  product.StockQuantity,
		})
		return nil, ErrInsufficientStock
	}

	if existing != nil {
		existing.Quantity = requested
		mergePersonalization(existing, in.DeliveryDate, in.DeliveryTime, in.CardMessage, in.SenderInfo)
		if err := s.cartRepo.Update(existing); err != nil {
			return nil, err
		}
	} else {
		item := &model.CartItem{
			UserID:          userID,
			ProductID:       in.ProductID,
			SelectedVariant: in.SelectedVariant,
			Quantity:        in.Quantity,
			DeliveryDate:    in.DeliveryDate,
			DeliveryTime:    in.DeliveryTime,
			CardMessage:     clampMessage(in.CardMessage),
			SenderInfo:      in.SenderInfo,
		}
		if err := s.cartRepo.Create(item); err != nil {
			return nil, err
		}
	}

	return s.changed(userID)
}

// UpdateCartItem sets the quantity of an owned line. A quantity below 1
// removes the line.
func (s *cartService) UpdateCartItem(userID, cartItemID string, quantity int) (*CartView, error) {
	logger.Info("Updating cart item", map[string]interface{}{
		"user_id":      userID,
		"cart_item_id": cartItemID,
		"quantity":     quantity,
	})

	item, err := s.ownedItem(userID, cartItemID)
	if err != nil {
		return nil, err
	}

	if quantity < 1 {
		if err := s.cartRepo.Delete(item.ID); err != nil {
			return nil, err
		}
		return s.changed(userID)
	}

	if item.Product.StockQuantity < quantity {
		logger.Warn("Cannot update cart item: insufficient stock", map[string]interface{}{
			"cart_item_id": cartItemID,
			"requested":    quantity,
			"available":    item.Product.StockQuantity,
		})
		return nil, ErrInsufficientStock
	}

	item.Quantity = quantity
	if err := s.cartRepo.Update(item); err != nil {
		return nil, err
	}

	return s.changed(userID)
}

func (s *cartService) RemoveFromCart(userID, cartItemID string) (*CartView, error) {
	logger.Info("Removing cart item", map[string]interface{}{
		"user_id":      userID,
		"cart_item_id": cartItemID,
	})

	item, err := s.ownedItem(userID, cartItemID)
	if err != nil {
		return nil, err
	}
	if err := s.cartRepo.Delete(item.ID); err != nil {
		return nil, err
	}

	return s.changed(userID)
}

// RemoveProduct deletes the user's lines of productID, restricted to one
// variant when variant is non-nil. Removing nothing is not an error.
func (s *cartService) RemoveProduct(userID, productID string, variant *string) (*CartView, error) {
	deleted, err := s.cartRepo.DeleteByUserProduct(userID, productID, variant)
	if err != nil {
		return nil, err
	}

	logger.Info("Removed cart lines by product", map[string]interface{}{
		"user_id":    userID,
		"product_id": productID,
		"deleted":    deleted,
	})

	return s.changed(userID)
}

func (s *cartService) ClearCart(userID string) (*CartView, error) {
	logger.Info("Clearing user cart", map[string]interface{}{
		"user_id": userID,
	})

	if err := s.cartRepo.DeleteByUserID(userID); err != nil {
		return nil, err
	}

	s.invalidateCount(userID)
	view := &CartView{Items: []CartLineView{}}
	s.notify(userID, view)
	return view, nil
}

// SyncCart upserts the pushed lines by (product, variant). Pushed lines that
// share a key, e.g. client lines that differ only in customization, add up
// and the last one's personalization is kept. The merged quantity and
// personalization overwrite the stored line, so replaying the same push is
// harmless. Lines for unknown products or variants are skipped and
// quantities are capped at the available stock.
func (s *cartService) SyncCart(userID string, lines []SyncLine) (*CartView, error) {
	if len(lines) > MaxSyncLines {
		return nil, ErrTooManyLines
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.productRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}

	merged := make(map[[2]string]int)
	pushed := make([]model.CartItem, 0, len(lines))
	skipped := 0
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			skipped++
			continue
		}
		if _, ok := product.Variant(line.SelectedVariant); !ok {
			skipped++
			continue
		}
		if line.Quantity < 1 {
			skipped++
			continue
		}

		item := model.CartItem{
			ProductID:       line.ProductID,
			SelectedVariant: line.SelectedVariant,
			Quantity:        line.Quantity,
			DeliveryDate:    line.DeliveryDate,
			DeliveryTime:    line.DeliveryTime,
			CardMessage:     clampMessage(line.CardMessage),
			SenderInfo:      line.SenderInfo,
		}
		key := [2]string{line.ProductID, line.SelectedVariant}
		if idx, seen := merged[key]; seen {
			item.Quantity += pushed[idx].Quantity
			pushed[idx] = item
			continue
		}
		merged[key] = len(pushed)
		pushed = append(pushed, item)
	}

	upserts := make([]model.CartItem, 0, len(pushed))
	for _, item := range pushed {
		if stock := products[item.ProductID].StockQuantity; item.Quantity > stock {
			item.Quantity = stock
		}
		if item.Quantity < 1 {
			skipped++
			continue
		}
		upserts = append(upserts, item)
	}

	if err := s.cartRepo.UpsertLines(userID, upserts); err != nil {
		return nil, err
	}

	logger.Info("Cart synced", map[string]interface{}{
		"user_id":  userID,
		"received": len(lines),
		"upserted": len(upserts),
		"skipped":  skipped,
	})

	return s.changed(userID)
}

// CountItems returns the number of units in the user's cart, served from the
// cache when possible.
func (s *cartService) CountItems(ctx context.Context, userID string) (int, error) {
	if s.countCache != nil {
		cached, ok, err := s.countCache.Get(ctx, userID)
		if err != nil {
			logger.Warn("Cart count cache read failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		} else if ok {
			return cached, nil
		}
	}

	count, err := s.cartRepo.SumQuantity(userID)
	if err != nil {
		return 0, err
	}

	if s.countCache != nil {
		if err := s.countCache.Set(ctx, userID, count); err != nil {
			logger.Warn("Cart count cache write failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
	return count, nil
}

// PurgeAbandoned deletes every line untouched for olderThan.
func (s *cartService) PurgeAbandoned(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	deleted, err := s.cartRepo.DeleteUpdatedBefore(cutoff)
	if err != nil {
		return 0, err
	}

	logger.Info("Abandoned cart lines purged", map[string]interface{}{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	})
	return deleted, nil
}

func (s *cartService) ownedItem(userID, cartItemID string) (*model.CartItem, error) {
	item, err := s.cartRepo.FindByID(cartItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}

	if item.UserID != userID {
		logger.Warn("Cart item access denied: ownership mismatch", map[string]interface{}{
			"user_id":      userID,
			"cart_item_id": cartItemID,
		})
		return nil, ErrCartItemNotFound
	}
	return item, nil
}

// changed runs after a committed mutation and returns the new cart.
func (s *cartService) changed(userID string) (*CartView, error) {
	s.invalidateCount(userID)
	view, err := s.GetCart(userID)
	if err != nil {
		return nil, err
	}
	s.notify(userID, view)
	return view, nil
}

func (s *cartService) notify(userID string, view *CartView) {
	for _, n := range s.notifiers {
		n.NotifyCartChanged(userID, view)
	}
}

func (s *cartService) invalidateCount(userID string) {
	if s.countCache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheRequestBudget)
	defer cancel()
	if err := s.countCache.Invalidate(ctx, userID); err != nil {
		logger.Warn("Cart count cache invalidation failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// mergePersonalization keeps stored values unless new ones are given.
func mergePersonalization(item *model.CartItem, date, slot, message, sender string) {
	if date != "" {
		item.DeliveryDate = date
	}
	if slot != "" {
		item.DeliveryTime = slot
	}
	if message != "" {
		item.CardMessage = clampMessage(message)
	}
	if sender != "" {
		item.SenderInfo = sender
	}
}

func clampMessage(message string) string {
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) > MaxCardMessageLen {
		return string(runes[:MaxCardMessageLen])
	}
	return message
}
