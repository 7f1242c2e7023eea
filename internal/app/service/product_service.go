package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bloomhouse/cartsync/internal/app/model"
	"github.com/bloomhouse/cartsync/internal/app/repository"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidProduct    = errors.New("invalid product")
)

const (
	defaultProductPageSize = 20
	maxProductPageSize     = 100
)

type ProductListOptions struct {
	Category      *model.ProductCategory
	Search        string
	OnSale        bool
	Sort          repository.ProductSort
	SortAscending bool
	Limit         int
	Offset        int
}

type ProductPage struct {
	Products []model.Product `json:"products"`
	Total    int64           `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

type ProductService interface {
	ListProducts(opts ProductListOptions) (*ProductPage, error)
	GetProductByID(id string) (*model.Product, error)
	UpsertProduct(product *model.Product) error
	DeleteProduct(id string) error
}

type productService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

func (s *productService) ListProducts(opts ProductListOptions) (*ProductPage, error) {
	logger.Debug("Listing products", map[string]interface{}{
		"category": opts.Category,
		"search":   opts.Search,
		"on_sale":  opts.OnSale,
		"sort":     opts.Sort,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultProductPageSize
	}
	if limit > maxProductPageSize {
		limit = maxProductPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	sortBy := opts.Sort
	switch sortBy {
	case repository.ProductSortPrice, repository.ProductSortName, repository.ProductSortCreatedAt:
	default:
		sortBy = repository.ProductSortCreatedAt
	}

	products, total, err := s.productRepo.FindWithFilter(repository.ProductFilter{
		Category:      opts.Category,
		Search:        strings.TrimSpace(opts.Search),
		OnSale:        opts.OnSale,
		SortBy:        sortBy,
		SortAscending: opts.SortAscending,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		logger.Error("Failed to list products", err)
		return nil, err
	}

	logger.Info("Products listed", map[string]interface{}{
		"count": len(products),
		"total": total,
	})
	return &ProductPage{Products: products, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *productService) GetProductByID(id string) (*model.Product, error) {
	product, err := s.productRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Product not found", map[string]interface{}{
				"product_id": id,
			})
			return nil, ErrProductNotFound
		}
		logger.Error("Failed to fetch product", err, map[string]interface{}{
			"product_id": id,
		})
		return nil, err
	}
	return product, nil
}

// UpsertProduct creates the product, or replaces the catalog entry with the
// same id.
func (s *productService) UpsertProduct(product *model.Product) error {
	if err := validateProduct(product); err != nil {
		logger.Warn("Rejected product", map[string]interface{}{
			"product_id": product.ID,
			"error":      err.Error(),
		})
		return err
	}

	if err := s.productRepo.Upsert(product); err != nil {
		logger.Error("Failed to upsert product", err, map[string]interface{}{
			"product_id": product.ID,
		})
		return err
	}

	logger.Info("Product saved", map[string]interface{}{
		"product_id": product.ID,
		"name":       product.NameEn,
	})
	return nil
}

func (s *productService) DeleteProduct(id string) error {
	if _, err := s.GetProductByID(id); err != nil {
		return err
	}
	if err := s.productRepo.Delete(id); err != nil {
		logger.Error("Failed to delete product", err, map[string]interface{}{
			"product_id": id,
		})
		return err
	}

	logger.Info("Product deleted", map[string]interface{}{
		"product_id": id,
	})
	return nil
}

func validateProduct(p *model.Product) error {
	p.NameEn = strings.TrimSpace(p.NameEn)
	p.NameAr = strings.TrimSpace(p.NameAr)
	switch {
	case p.NameEn == "":
		return fmt.Errorf("%w: nameEn is required", ErrInvalidProduct)
	case p.Price < 0 || p.SalePrice < 0:
		return fmt.Errorf("%w: prices cannot be negative", ErrInvalidProduct)
	case p.StockQuantity < 0:
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}

	seen := make(map[string]bool, len(p.Variants))
	for _, v := range p.Variants {
		if v.Name == "" || seen[v.Name] {
			return fmt.Errorf("%w: variant names must be unique and non-empty", ErrInvalidProduct)
		}
		seen[v.Name] = true
	}
	return nil
}
