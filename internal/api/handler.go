package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	cartService  *service.CartService
	orderService *service.OrderService
}

// NewHandler creates a new HTTP handler
func NewHandler(cartService *service.CartService, orderService *service.OrderService) *Handler {
	return &Handler{
		cartService:  cartService,
		orderService: orderService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(userIdentity())
	{
		v1.POST("/carts", h.addToNewCart)
		v1.GET("/carts", h.getCarts)
		v1.GET("/carts/count", h.getCartsCount)
		v1.GET("/carts/:id", h.getCartDetails)
		v1.GET("/carts/:id/count", h.getCartItemsCount)
		v1.GET("/carts/:id/total", h.checkCartTotal)
		v1.DELETE("/carts/:id", h.deleteCart)
		v1.POST("/carts/:id/items", h.addToCart)
		v1.PUT("/carts/:id/items/:productID", h.updateCartItemQuantity)
		v1.DELETE("/carts/:id/items/:productID", h.removeCartItem)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.getUserOrders)
		v1.GET("/orders/count", h.getUserOrdersCount)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
		v1.POST("/orders/:id/paid", h.markAsPaid)
		v1.POST("/orders/:id/delivered", h.markAsDelivered)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// AddToCartInput is the body for both add-to-cart endpoints
type AddToCartInput struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// UpdateQuantityInput sets a line item's quantity directly
type UpdateQuantityInput struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// CreateOrderInput is the checkout body
type CreateOrderInput struct {
	CartID  int64  `json:"cart_id" binding:"required"`
	Address string `json:"address" binding:"required"`
	Message string `json:"message"`
}

// UpdateStatusInput carries a fulfillment status advance
type UpdateStatusInput struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) addToNewCart(c *gin.Context) {
	var input AddToCartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.cartService.AddToNewCart(c.Request.Context(), userID(c), input.ProductID, input.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

func (h *Handler) addToCart(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input AddToCartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.cartService.AddToCart(c.Request.Context(), userID(c), cartID, input.ProductID, input.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart"})
}

func (h *Handler) updateCartItemQuantity(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productID")
	if !ok {
		return
	}

	var input UpdateQuantityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.cartService.UpdateCartItemQuantity(c.Request.Context(), userID(c), cartID, productID, input.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quantity updated"})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productID")
	if !ok {
		return
	}

	if err := h.cartService.RemoveCartItem(c.Request.Context(), userID(c), cartID, productID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}

func (h *Handler) getCarts(c *gin.Context) {
	carts, err := h.cartService.GetCarts(c.Request.Context(), userID(c), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"carts": carts})
}

func (h *Handler) getCartsCount(c *gin.Context) {
	count, err := h.cartService.GetCartsCount(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) getCartDetails(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}

	details, err := h.cartService.GetCartDetails(c.Request.Context(), userID(c), cartID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": details})
}

func (h *Handler) getCartItemsCount(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}

	count, err := h.cartService.GetCartItemsCount(c.Request.Context(), userID(c), cartID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) checkCartTotal(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}

	total, err := h.cartService.CheckCartTotal(c.Request.Context(), userID(c), cartID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}

func (h *Handler) deleteCart(c *gin.Context) {
	cartID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.cartService.DeleteCart(c.Request.Context(), userID(c), cartID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart deleted"})
}

func (h *Handler) createOrder(c *gin.Context) {
	var input CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	req := &service.CreateOrderRequest{
		UserID:         userID(c),
		CartID:         input.CartID,
		Address:        input.Address,
		Message:        input.Message,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getUserOrders(c *gin.Context) {
	orders, err := h.orderService.GetUserOrders(c.Request.Context(), userID(c), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getUserOrdersCount(c *gin.Context) {
	count, err := h.orderService.GetUserOrdersCount(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.CancelOrder(c.Request.Context(), orderID, userID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled"})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.orderService.UpdateOrderStatus(c.Request.Context(), orderID, input.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

func (h *Handler) markAsPaid(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.MarkAsPaid(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order marked as paid"})
}

func (h *Handler) markAsDelivered(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.MarkAsDelivered(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order marked as delivered"})
}

// userIdentity extracts the authenticated user from the X-User-ID header.
// Authentication itself happens upstream of this service.
func userIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid X-User-ID header"})
			return
		}
		c.Set("userID", id)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

func pageFromQuery(c *gin.Context) store.Page {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return store.Page{
		Limit:   limit,
		Offset:  offset,
		OrderBy: c.Query("order_by"),
		Dir:     c.Query("dir"),
	}
}

// statusForError maps the named error taxonomy to HTTP status codes. Only
// this layer assigns codes; the services below raise the named conditions.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrProductDoesNotExist),
		errors.Is(err, models.ErrCartDoesNotExist),
		errors.Is(err, models.ErrOrderDoesNotExist),
		errors.Is(err, models.ErrProductIsNotInCart):
		return http.StatusNotFound
	case errors.Is(err, models.ErrProductOutOfStock),
		errors.Is(err, models.ErrCartLimitReached),
		errors.Is(err, models.ErrOrderAlreadyCancelled),
		errors.Is(err, models.ErrOrderCannotBeCancelled),
		errors.Is(err, models.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrCartIsEmpty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrValidation):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusForError(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		body = gin.H{"error": "Internal server error"}
	}
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
