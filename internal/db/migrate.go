package db

import (
	"github.com/bloomhouse/cartsync/internal/app/model"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every table owned by the server, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Product{},
		&model.ProductVariant{},
		&model.CartItem{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	return MigrateDB(DB)
}

func MigrateDB(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := db.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}

// Seed inserts a small demo catalog when the products table is empty.
func Seed() error {
	return SeedDB(DB)
}

func SeedDB(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Info("Products already seeded, skipping...", map[string]interface{}{
			"existing_count": count,
		})
		return nil
	}

	products := demoCatalog()
	if err := db.Create(&products).Error; err != nil {
		logger.Error("Failed to seed demo catalog", err)
		return err
	}

	logger.Info("Demo catalog seeded", map[string]interface{}{
		"products": len(products),
	})
	return nil
}

func demoCatalog() []model.Product {
	return []model.Product{
		{
			ID:            "red-roses",
			NameEn:        "Red Roses Bouquet",
			NameAr:        "باقة ورد أحمر",
			Price:         250,
			SalePrice:     199,
			Category:      model.CategoryBouquet,
			StockQuantity: 40,
			Image:         "/images/red-roses.jpg",
			Variants: []model.ProductVariant{
				{Name: "Standard", IsDefault: true},
				{Name: "Large", AdditionalPrice: 80},
			},
		},
		{
			ID:            "white-lilies",
			NameEn:        "White Lilies",
			NameAr:        "زنابق بيضاء",
			Price:         180,
			Category:      model.CategoryBouquet,
			StockQuantity: 25,
			Image:         "/images/white-lilies.jpg",
		},
		{
			ID:            "orchid-pot",
			NameEn:        "Phalaenopsis Orchid",
			NameAr:        "أوركيد",
			Price:         320,
			SalePrice:     290,
			Category:      model.CategoryPlant,
			StockQuantity: 12,
			Image:         "/images/orchid.jpg",
		},
		{
			ID:            "rose-box",
			NameEn:        "Rose Box",
			NameAr:        "صندوق ورد",
			Price:         410,
			Category:      model.CategoryBox,
			StockQuantity: 15,
			Image:         "/images/rose-box.jpg",
			Variants: []model.ProductVariant{
				{Name: "Red"},
				{Name: "Pink"},
				{Name: "White"},
			},
		},
	}
}
