package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"storefront/internal/metrics"
	"storefront/internal/service"
)

// Services сервисы, обслуживаемые HTTP-слоем
type Services struct {
	Products *service.ProductService
	Orders   *service.OrderService
	Payments *service.PaymentService
	Carts    *service.CartService
}

// Options параметры сервера
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	Metrics     *metrics.Metrics
	Hub         *Hub
	// Health reports storage readiness for /health.
	Health      func(ctx context.Context) error
}

type Server struct {
	engine   *gin.Engine
	products *service.ProductService
	orders   *service.OrderService
	payments *service.PaymentService
	carts    *service.CartService
	auth     *Authenticator
	enforcer *casbin.Enforcer
	metrics  *metrics.Metrics
	hub      *Hub
	health   func(ctx context.Context) error
}

func NewServer(svc Services, opts Options) (*Server, error) {
	enforcer, err := NewEnforcer()
	if err != nil {
		return nil, err
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), opts.Metrics.Middleware())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	s := &Server{
		engine:   r,
		products: svc.Products,
		orders:   svc.Orders,
		payments: svc.Payments,
		carts:    svc.Carts,
		auth:     NewAuthenticator(opts.JWTSecret),
		enforcer: enforcer,
		metrics:  opts.Metrics,
		hub:      opts.Hub,
		health:   opts.Health,
	}
	s.registerRoutes()
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowCredentials = false
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) Auth() *Authenticator { return s.auth }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/track/:orderNumber", s.trackOrder)

		products := v1.Group("/products")
		products.GET("", s.listProducts)
		products.GET(":id", s.getProduct)

		authed := v1.Group("", s.authenticate())

		orders := authed.Group("/orders")
		orders.POST("", s.authorize(resOrders, actWrite), s.createOrder)
		orders.GET("", s.authorize(resOrders, actRead), s.listMyOrders)
		orders.GET(":id", s.authorize(resOrders, actRead), s.getOrder)
		orders.PUT(":id/cancel", s.authorize(resOrders, actWrite), s.cancelOrder)

		payments := authed.Group("/payments")
		payments.POST("/create-order", s.authorize(resPayments, actWrite), s.createPaymentIntent)
		payments.POST("/verify-payment", s.authorize(resPayments, actWrite), s.verifyPayment)
		payments.GET("/status/:orderId", s.authorize(resPayments, actRead), s.paymentStatus)

		cart := authed.Group("/cart")
		cart.GET("", s.authorize(resCart, actRead), s.getCart)
		cart.PUT("/items/:productId", s.authorize(resCart, actWrite), s.setCartItem)
		cart.DELETE("", s.authorize(resCart, actWrite), s.clearCart)

		admin := authed.Group("/admin")
		admin.GET("/orders", s.authorize(resAdminOrders, actRead), s.listAllOrders)
		admin.GET("/orders/export", s.authorize(resAdminOrders, actRead), s.exportOrders)
		admin.GET("/orders/ws", s.authorize(resAdminOrders, actRead), s.orderFeed)
		admin.PUT("/orders/:id/status", s.authorize(resAdminOrders, actWrite), s.updateOrderStatus)
		admin.POST("/products", s.authorize(resAdminProducts, actWrite), s.createProduct)
		admin.PUT("/products/:id/active", s.authorize(resAdminProducts, actWrite), s.setProductActive)
	}
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c, 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
