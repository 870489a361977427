package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// Product handlers
type createProductReq struct {
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	CategoryID int64           `json:"category_id"`
	Price      decimal.Decimal `json:"price"`
	Stock      int64           `json:"stock"`
}

// @Summary Create product
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body createProductReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Router /admin/products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": "validation"})
		return
	}
	p, err := s.products.Create(c, domain.Product{
		Name:       req.Name,
		SKU:        req.SKU,
		CategoryID: req.CategoryID,
		Price:      req.Price,
		Stock:      req.Stock,
		Active:     true,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type setActiveReq struct {
	Active *bool `json:"active" binding:"required"`
}

// @Summary Activate or deactivate product
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body setActiveReq true "Availability"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/products/{id}/active [put]
func (s *Server) setProductActive(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "kind": "validation"})
		return
	}
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": "validation"})
		return
	}
	p, err := s.products.SetActive(c, id, *req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "kind": "validation"})
		return
	}
	p, err := s.products.GetByID(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name contains"
// @Param category query int false "Category ID"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Success 200 {array} domain.Product
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	f := repository.ProductFilter{OnlyActive: true}
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	if v := c.Query("category"); v != "" {
		if x, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.CategoryID = &x
		}
	}
	if v := c.Query("min_price"); v != "" {
		if x, err := decimal.NewFromString(v); err == nil {
			f.MinPrice = &x
		}
	}
	if v := c.Query("max_price"); v != "" {
		if x, err := decimal.NewFromString(v); err == nil {
			f.MaxPrice = &x
		}
	}
	list, err := s.products.List(c, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Cart handlers

// @Summary Get my cart
// @Tags cart
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.CartView
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	view, err := s.carts.Get(c, actorFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type setCartItemReq struct {
	Quantity int64 `json:"quantity"`
}

// @Summary Set cart line quantity
// @Description Zero removes the line.
// @Tags cart
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param productId path int true "Product ID"
// @Param input body setCartItemReq true "Quantity"
// @Success 200 {object} service.CartView
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /cart/items/{productId} [put]
func (s *Server) setCartItem(c *gin.Context) {
	id, err := parseID(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "kind": "validation"})
		return
	}
	var req setCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": "validation"})
		return
	}
	view, err := s.carts.SetItem(c, actorFrom(c).UserID, id, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Clear my cart
// @Tags cart
// @Security BearerAuth
// @Success 204
// @Router /cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	if err := s.carts.Clear(c, actorFrom(c).UserID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
