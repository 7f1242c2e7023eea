package repository

import (
	"errors"
	"time"

	"github.com/bloomhouse/cartsync/internal/app/model"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"gorm.io/gorm"
)

type CartRepository interface {
	Create(cartItem *model.CartItem) error
	FindByUserID(userID string) ([]model.CartItem, error)
	FindByID(id string) (*model.CartItem, error)
	FindByUserProductVariant(userID, productID, variant string) (*model.CartItem, error)
	Update(cartItem *model.CartItem) error
	UpsertLines(userID string, lines []model.CartItem) error
	Delete(id string) error
	DeleteByUserProduct(userID, productID string, variant *string) (int64, error)
	DeleteByUserID(userID string) error
	DeleteUpdatedBefore(cutoff time.Time) (int64, error)
	SumQuantity(userID string) (int, error)
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) Create(cartItem *model.CartItem) error {
	logger.Debug("Creating cart item in database", map[string]interface{}{
		"user_id":    cartItem.UserID,
		"product_id": cartItem.ProductID,
		"variant":    cartItem.SelectedVariant,
		"quantity":   cartItem.Quantity,
	})

	if err := r.db.Create(cartItem).Error; err != nil {
		logger.Error("Failed to create cart item in database", err, map[string]interface{}{
			"user_id":    cartItem.UserID,
			"product_id": cartItem.ProductID,
		})
		return err
	}

	logger.Debug("Cart item created in database", map[string]interface{}{
		"cart_item_id": cartItem.ID,
		"user_id":      cartItem.UserID,
	})
	return nil
}

func (r *cartRepository) FindByUserID(userID string) ([]model.CartItem, error) {
	logger.Debug("Finding cart items by user ID in database", map[string]interface{}{
		"user_id": userID,
	})

	var cartItems []model.CartItem
	err := r.db.Where("user_id = ?", userID).
		Preload("Product").
		Preload("Product.Variants").
		Order("created_at ASC").
		Order("id ASC").
		Find(&cartItems).Error
	if err != nil {
		logger.Error("Failed to find cart items by user ID in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	logger.Debug("Cart items found by user ID in database", map[string]interface{}{
		"user_id": userID,
		"count":   len(cartItems),
	})
	return cartItems, nil
}

func (r *cartRepository) FindByID(id string) (*model.CartItem, error) {
	logger.Debug("Finding cart item by ID in database", map[string]interface{}{
		"cart_item_id": id,
	})

	var cartItem model.CartItem
	err := r.db.Preload("Product").Preload("Product.Variants").
		Where("id = ?", id).
		First(&cartItem).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart item by ID in database", err, map[string]interface{}{
				"cart_item_id": id,
			})
		}
		return nil, err
	}
	return &cartItem, nil
}

func (r *cartRepository) FindByUserProductVariant(userID, productID, variant string) (*model.CartItem, error) {
	var cartItem model.CartItem
	err := r.db.Where("user_id = ? AND product_id = ? AND selected_variant = ?", userID, productID, variant).
		First(&cartItem).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart item by user, product and variant", err, map[string]interface{}{
				"user_id":    userID,
				"product_id": productID,
				"variant":    variant,
			})
		}
		return nil, err
	}
	return &cartItem, nil
}

func (r *cartRepository) Update(cartItem *model.CartItem) error {
	logger.Debug("Updating cart item in database", map[string]interface{}{
		"cart_item_id": cartItem.ID,
		"quantity":     cartItem.Quantity,
	})

	if err := r.db.Omit("User", "Product").Save(cartItem).Error; err != nil {
		logger.Error("Failed to update cart item in database", err, map[string]interface{}{
			"cart_item_id": cartItem.ID,
		})
		return err
	}
	return nil
}

// UpsertLines writes every line in one transaction. A line that matches an
// existing (user, product, variant) row overwrites its quantity and
// personalization; anything else is inserted.
func (r *cartRepository) UpsertLines(userID string, lines []model.CartItem) error {
	logger.Debug("Upserting cart lines in database", map[string]interface{}{
		"user_id": userID,
		"lines":   len(lines),
	})

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			var existing model.CartItem
			err := tx.Where("user_id = ? AND product_id = ? AND selected_variant = ?", userID, line.ProductID, line.SelectedVariant).
				First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				line.ID = ""
				line.UserID = userID
				if err := tx.Omit("User", "Product").Create(&line).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				existing.Quantity = line.Quantity
				existing.DeliveryDate = line.DeliveryDate
				existing.DeliveryTime = line.DeliveryTime
				existing.CardMessage = line.CardMessage
				existing.SenderInfo = line.SenderInfo
				if err := tx.Omit("User", "Product").Save(&existing).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to upsert cart lines in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) Delete(id string) error {
	logger.Debug("Deleting cart item from database", map[string]interface{}{
		"cart_item_id": id,
	})

	if err := r.db.Where("id = ?", id).Delete(&model.CartItem{}).Error; err != nil {
		logger.Error("Failed to delete cart item from database", err, map[string]interface{}{
			"cart_item_id": id,
		})
		return err
	}
	return nil
}

// DeleteByUserProduct removes the user's lines of productID. A nil variant
// matches every variant.
func (r *cartRepository) DeleteByUserProduct(userID, productID string, variant *string) (int64, error) {
	query := r.db.Where("user_id = ? AND product_id = ?", userID, productID)
	if variant != nil {
		query = query.Where("selected_variant = ?", *variant)
	}

	result := query.Delete(&model.CartItem{})
	if result.Error != nil {
		logger.Error("Failed to delete cart items by product from database", result.Error, map[string]interface{}{
			"user_id":    userID,
			"product_id": productID,
		})
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *cartRepository) DeleteByUserID(userID string) error {
	logger.Debug("Deleting cart items by user ID from database", map[string]interface{}{
		"user_id": userID,
	})

	if err := r.db.Where("user_id = ?", userID).Delete(&model.CartItem{}).Error; err != nil {
		logger.Error("Failed to delete cart items by user ID from database", err, map[string]interface{}{
			"user_id": userID,
		})
		return err
	}
	return nil
}

// DeleteUpdatedBefore purges lines nobody touched since cutoff.
func (r *cartRepository) DeleteUpdatedBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("updated_at < ?", cutoff).Delete(&model.CartItem{})
	if result.Error != nil {
		logger.Error("Failed to purge abandoned cart items", result.Error, map[string]interface{}{
			"cutoff": cutoff,
		})
		return 0, result.Error
	}

	logger.Debug("Abandoned cart items purged", map[string]interface{}{
		"cutoff":  cutoff,
		"deleted": result.RowsAffected,
	})
	return result.RowsAffected, nil
}

func (r *cartRepository) SumQuantity(userID string) (int, error) {
	var total int64
	err := r.db.Model(&model.CartItem{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		logger.Error("Failed to sum cart quantity", err, map[string]interface{}{
			"user_id": userID,
		})
		return 0, err
	}
	return int(total), nil
}
