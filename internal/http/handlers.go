package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// Order handlers
type createOrderReq struct {
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   domain.PaymentMethod   `json:"paymentMethod"`
}

// @Summary Place order from cart
// @Description Validates the cart, reserves stock and creates a pending order.
// @Tags orders
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body createOrderReq true "Checkout"
// @Success 201 {object} service.Checkout
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": "validation"})
		return
	}
	res, err := s.orders.CreateFromCart(c, actorFrom(c).UserID, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary List my orders
// @Tags orders
// @Security BearerAuth
// @Produce json
// @Param status query string false "Status filter"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} service.OrderPage
// @Router /orders [get]
func (s *Server) listMyOrders(c *gin.Context) {
	page, limit := pagination(c)
	res, err := s.orders.ListForUser(c, actorFrom(c), c.Query("status"), page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Get order by id
// @Tags orders
// @Security BearerAuth
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	o, err := s.orders.Get(c, c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Cancel order
// @Description Cancels an order that has not shipped yet and returns its stock.
// @Tags orders
// @Security BearerAuth
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/cancel [put]
func (s *Server) cancelOrder(c *gin.Context) {
	o, err := s.orders.Cancel(c, c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Track order
// @Description Public lookup by order number.
// @Tags orders
// @Produce json
// @Param orderNumber path string true "Order number"
// @Success 200 {object} service.TrackingProjection
// @Failure 404 {object} map[string]string
// @Router /track/{orderNumber} [get]
func (s *Server) trackOrder(c *gin.Context) {
	res, err := s.orders.Track(c, c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary List all orders
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "Status filter"
// @Param userId query string false "Owner filter"
// @Param sortBy query string false "createdAt, updatedAt, totalAmount or status"
// @Param sortOrder query string false "asc or desc"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} service.OrderPage
// @Failure 400 {object} map[string]string
// @Router /admin/orders [get]
func (s *Server) listAllOrders(c *gin.Context) {
	page, limit := pagination(c)
	res, err := s.orders.ListAll(c, actorFrom(c), service.ListQuery{
		UserID:    c.Query("userId"),
		Status:    c.Query("status"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type updateStatusReq struct {
	Status   string                  `json:"status" binding:"required"`
	Tracking *service.TrackingUpdate `json:"tracking"`
}

// @Summary Update order status
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param input body updateStatusReq true "New status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /admin/orders/{id}/status [put]
func (s *Server) updateOrderStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": "validation"})
		return
	}
	o, err := s.orders.UpdateStatus(c, c.Param("id"), actorFrom(c), req.Status, req.Tracking)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// Payment handlers
type createIntentReq struct {
	OrderID string `json:"orderId" binding:"required"`
}

// @Summary Create payment intent
// @Description Registers the order amount with the gateway and returns what the client checkout needs.
// @Tags payments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body createIntentReq true "Order"
// @Success 200 {object} service.PaymentIntent
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /payments/create-order [post]
func (s *Server) createPaymentIntent(c *gin.Context) {
	var req createIntentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required", "kind": "validation"})
		return
	}
	res, err := s.payments.CreateIntent(c, req.OrderID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Verify payment
// @Tags payments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body service.VerifyRequest true "Gateway callback fields"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /payments/verify-payment [post]
func (s *Server) verifyPayment(c *gin.Context) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payment verification fields", "kind": "validation"})
		return
	}
	o, err := s.payments.Verify(c, req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment verified successfully", "order": o})
}

// @Summary Payment status
// @Tags payments
// @Security BearerAuth
// @Produce json
// @Param orderId path string true "Order ID"
// @Success 200 {object} service.PaymentSnapshot
// @Failure 404 {object} map[string]string
// @Router /payments/status/{orderId} [get]
func (s *Server) paymentStatus(c *gin.Context) {
	res, err := s.payments.Status(c, c.Param("orderId"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// pagination reads page and limit; bad values fall back to the service defaults.
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return page, limit
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
