package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/logging"
	"storefront/internal/service"
)

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSignatureMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrExternalService):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	body := gin.H{"error": err.Error(), "kind": service.Kind(err)}
	if status == http.StatusInternalServerError {
		logging.Error(logging.Fields{Component: "http", Step: c.FullPath(), Err: err})
		body["error"] = "internal error"
	}
	var se *service.StockError
	if errors.As(err, &se) {
		body["product_id"] = se.ProductID
		body["product"] = se.Name
		body["available"] = se.Available
		body["requested"] = se.Requested
	}
	var ue *service.UnavailableError
	if errors.As(err, &ue) {
		body["product_id"] = ue.ProductID
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "5")
	}
	c.JSON(status, body)
}
