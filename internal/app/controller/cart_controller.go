package controller

import (
	"errors"
	"net/http"

	"github.com/bloomhouse/cartsync/internal/app/service"
	apperrors "github.com/bloomhouse/cartsync/internal/errors"
	"github.com/bloomhouse/cartsync/internal/middleware"
	"github.com/gin-gonic/gin"
)

type CartController struct {
	cartService service.CartService
}

func NewCartController(cartService service.CartService) *CartController {
	return &CartController{
		cartService: cartService,
	}
}

type AddToCartRequest struct {
	ProductID       string `json:"productId" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required,gt=0"`
	SelectedVariant string `json:"selectedVariant"`
	DeliveryDate    string `json:"deliveryDate"`
	DeliveryTime    string `json:"deliveryTime"`
	CardMessage     string `json:"cardMessage"`
	SenderInfo      string `json:"senderInfo"`
}

type UpdateCartRequest struct {
	CartItemID string `json:"cartItemId" binding:"required"`
	Quantity   *int   `json:"quantity" binding:"required"`
}

type SyncCartItem struct {
	ProductID       string  `json:"productId" binding:"required"`
	Quantity        int     `json:"quantity"`
	SelectedVariant string  `json:"selectedVariant"`
	Price           float64 `json:"price"`
	DeliveryDate    string  `json:"deliveryDate"`
	DeliveryTime    string  `json:"deliveryTime"`
	CardMessage     string  `json:"cardMessage"`
	SenderInfo      string  `json:"senderInfo"`
}

type SyncCartRequest struct {
	Items []SyncCartItem `json:"items" binding:"dive"`
}

// GetCart returns the canonical cart
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	view, err := ctrl.cartService.GetCart(userID)
	if err != nil {
		ctrl.respondError(c, err, "fetch cart")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// AddToCart adds units of a product, merging with an existing line of the
// same variant
// POST /api/v1/cart/add
func (ctrl *CartController) AddToCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "productId and a positive quantity are required")
		return
	}

	view, err := ctrl.cartService.AddToCart(userID, service.AddInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		SelectedVariant: req.SelectedVariant,
		DeliveryDate:    req.DeliveryDate,
		DeliveryTime:    req.DeliveryTime,
		CardMessage:     req.CardMessage,
		SenderInfo:      req.SenderInfo,
	})
	if err != nil {
		ctrl.respondError(c, err, "add to cart")
		return
	}

	log.Info("Item added to cart", map[string]interface{}{
		"user_id":    userID,
		"product_id": req.ProductID,
		"quantity":   req.Quantity,
	})
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// UpdateCartItem sets a line's quantity; zero removes the line
// PUT /api/v1/cart/update
func (ctrl *CartController) UpdateCartItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	var req UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid update cart request", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "cartItemId and quantity are required")
		return
	}

	view, err := ctrl.cartService.UpdateCartItem(userID, req.CartItemID, *req.Quantity)
	if err != nil {
		ctrl.respondError(c, err, "update cart item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// RemoveFromCart deletes one line by id
// DELETE /api/v1/cart/remove/:cartItemId
func (ctrl *CartController) RemoveFromCart(c *gin.Context) {
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	view, err := ctrl.cartService.RemoveFromCart(userID, c.Param("cartItemId"))
	if err != nil {
		ctrl.respondError(c, err, "remove cart item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// RemoveProduct deletes every line of a product, or only one variant when
// the variant query parameter is present
// DELETE /api/v1/cart/remove-product/:productId
func (ctrl *CartController) RemoveProduct(c *gin.Context) {
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	var variant *string
	if v, present := c.GetQuery("variant"); present {
		variant = &v
	}

	view, err := ctrl.cartService.RemoveProduct(userID, c.Param("productId"), variant)
	if err != nil {
		ctrl.respondError(c, err, "remove product from cart")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// ClearCart deletes every line
// DELETE /api/v1/cart/clear
func (ctrl *CartController) ClearCart(c *gin.Context) {
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	view, err := ctrl.cartService.ClearCart(userID)
	if err != nil {
		ctrl.respondError(c, err, "clear cart")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// SyncCart upserts a client cart into the server cart
// POST /api/v1/cart/sync
func (ctrl *CartController) SyncCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	var req SyncCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid cart sync request", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "items must be a list of cart lines")
		return
	}

	lines := make([]service.SyncLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, service.SyncLine{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			SelectedVariant: item.SelectedVariant,
			Price:           item.Price,
			DeliveryDate:    item.DeliveryDate,
			DeliveryTime:    item.DeliveryTime,
			CardMessage:     item.CardMessage,
			SenderInfo:      item.SenderInfo,
		})
	}

	view, err := ctrl.cartService.SyncCart(userID, lines)
	if err != nil {
		ctrl.respondError(c, err, "sync cart")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// CountItems returns the number of units in the cart
// GET /api/v1/cart/count
func (ctrl *CartController) CountItems(c *gin.Context) {
	userID, ok := ctrl.requireUser(c)
	if !ok {
		return
	}

	count, err := ctrl.cartService.CountItems(c.Request.Context(), userID)
	if err != nil {
		ctrl.respondError(c, err, "count cart")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"count": count}})
}

func (ctrl *CartController) requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.GetLoggerFromContext(c).Warn("Unauthorized cart access", map[string]interface{}{
			"path": c.FullPath(),
		})
		apperrors.Unauthorized(c, "")
	}
	return userID, ok
}

func (ctrl *CartController) respondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, service.ErrCartItemNotFound):
		apperrors.NotFound(c, apperrors.CartItemNotFound, "Cart item not found")
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.CartProductNotFound, "This product is no longer available")
	case errors.Is(err, service.ErrInvalidVariant):
		apperrors.BadRequest(c, apperrors.CartInvalidVariant, "This option is not available for the product")
	case errors.Is(err, service.ErrInsufficientStock):
		apperrors.BadRequest(c, apperrors.CartInsufficientStock, "Not enough stock for the requested quantity")
	case errors.Is(err, service.ErrInvalidQuantity):
		apperrors.BadRequest(c, apperrors.ValidationInvalidRange, "Quantity must be at least 1")
	case errors.Is(err, service.ErrTooManyLines):
		apperrors.BadRequest(c, apperrors.CartTooManyLines, "Your cart has too many lines")
	default:
		middleware.GetLoggerFromContext(c).Error("Failed to "+action, err, nil)
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, action)
	}
}
