package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bloomhouse/cartsync/internal/app/model"
	"github.com/bloomhouse/cartsync/internal/app/repository"
	"github.com/bloomhouse/cartsync/internal/app/service"
	apperrors "github.com/bloomhouse/cartsync/internal/errors"
	"github.com/bloomhouse/cartsync/internal/middleware"
	"github.com/gin-gonic/gin"
)

type ProductController struct {
	productService service.ProductService
}

func NewProductController(productService service.ProductService) *ProductController {
	return &ProductController{
		productService: productService,
	}
}

type ProductVariantRequest struct {
	Name            string  `json:"name" binding:"required"`
	AdditionalPrice float64 `json:"additionalPrice" binding:"gte=0"`
	IsDefault       bool    `json:"isDefault"`
}

type ProductRequest struct {
	NameEn        string                  `json:"nameEn" binding:"required"`
	NameAr        string                  `json:"nameAr"`
	Description   string                  `json:"description"`
	Price         float64                 `json:"price" binding:"gte=0"`
	SalePrice     float64                 `json:"salePrice" binding:"gte=0"`
	Category      model.ProductCategory   `json:"category" binding:"required,oneof=bouquet box plant gift"`
	StockQuantity int                     `json:"stockQuantity" binding:"gte=0"`
	Image         string                  `json:"image"`
	Variants      []ProductVariantRequest `json:"variants" binding:"dive"`
}

func (r ProductRequest) toModel(id string) *model.Product {
	product := &model.Product{
		ID:            id,
		NameEn:        r.NameEn,
		NameAr:        r.NameAr,
		Description:   r.Description,
		Price:         r.Price,
		SalePrice:     r.SalePrice,
		Category:      r.Category,
		StockQuantity: r.StockQuantity,
		Image:         r.Image,
	}
	for _, v := range r.Variants {
		product.Variants = append(product.Variants, model.ProductVariant{
			Name:            v.Name,
			AdditionalPrice: v.AdditionalPrice,
			IsDefault:       v.IsDefault,
		})
	}
	return product
}

// ListProducts returns a page of the catalog
// GET /api/v1/products?category=&search=&on_sale=&sort=&order=&limit=&offset=
func (ctrl *ProductController) ListProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	opts := service.ProductListOptions{
		Search:        c.Query("search"),
		OnSale:        c.Query("on_sale") == "true",
		Sort:          repository.ProductSort(c.Query("sort")),
		SortAscending: c.Query("order") == "asc",
	}
	if category := c.Query("category"); category != "" {
		cat := model.ProductCategory(category)
		opts.Category = &cat
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		opts.Offset = offset
	}

	page, err := ctrl.productService.ListProducts(opts)
	if err != nil {
		log.Error("Failed to fetch products", err, nil)
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "list products")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": page})
}

// GetProductByID returns a product by ID
// GET /api/v1/products/:id
func (ctrl *ProductController) GetProductByID(c *gin.Context) {
	product, err := ctrl.productService.GetProductByID(c.Param("id"))
	if err != nil {
		ctrl.respondError(c, err, "fetch product")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// CreateProduct adds a catalog entry (admin only)
// POST /api/v1/products
func (ctrl *ProductController) CreateProduct(c *gin.Context) {
	ctrl.save(c, "", http.StatusCreated)
}

// UpdateProduct replaces a catalog entry (admin only)
// PUT /api/v1/products/:id
func (ctrl *ProductController) UpdateProduct(c *gin.Context) {
	if _, err := ctrl.productService.GetProductByID(c.Param("id")); err != nil {
		ctrl.respondError(c, err, "update product")
		return
	}
	ctrl.save(c, c.Param("id"), http.StatusOK)
}

// DeleteProduct removes a catalog entry (admin only)
// DELETE /api/v1/products/:id
func (ctrl *ProductController) DeleteProduct(c *gin.Context) {
	if err := ctrl.productService.DeleteProduct(c.Param("id")); err != nil {
		ctrl.respondError(c, err, "delete product")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

func (ctrl *ProductController) save(c *gin.Context, id string, status int) {
	log := middleware.GetLoggerFromContext(c)

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid product request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Please check the product fields")
		return
	}

	product := req.toModel(id)
	if err := ctrl.productService.UpsertProduct(product); err != nil {
		ctrl.respondError(c, err, "save product")
		return
	}

	saved, err := ctrl.productService.GetProductByID(product.ID)
	if err != nil {
		ctrl.respondError(c, err, "save product")
		return
	}
	c.JSON(status, gin.H{"data": saved})
}

func (ctrl *ProductController) respondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.ResourceNotFound, "Product not found")
	case errors.Is(err, service.ErrInvalidProduct):
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
	default:
		middleware.GetLoggerFromContext(c).Error("Failed to "+action, err, nil)
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, action)
	}
}
