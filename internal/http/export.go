package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tealeg/xlsx"

	"storefront/internal/domain"
	"storefront/internal/service"
)

const exportPageSize = 100

// @Summary Export orders to Excel
// @Tags admin
// @Security BearerAuth
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Status filter"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Router /admin/orders/export [get]
func (s *Server) exportOrders(c *gin.Context) {
	actor := actorFrom(c)
	var orders []domain.Order
	for page := 1; ; page++ {
		res, err := s.orders.ListAll(c, actor, service.ListQuery{Status: c.Query("status"), Page: page, Limit: exportPageSize})
		if err != nil {
			writeError(c, err)
			return
		}
		orders = append(orders, res.Orders...)
		if !res.HasNextPage {
			break
		}
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create sheet", "kind": "internal"})
		return
	}
	headers := []string{
		"OrderNumber", "OrderID", "UserID", "Status", "PaymentMethod", "PaymentStatus",
		"TotalAmount", "Currency", "Items", "City", "Country", "CreatedAt", "UpdatedAt",
	}
	headerRow := sheet.AddRow()
	for _, h := range headers {
		headerRow.AddCell().SetValue(h)
	}
	for _, o := range orders {
		row := sheet.AddRow()
		row.AddCell().SetValue(o.OrderNumber)
		row.AddCell().SetValue(o.ID)
		row.AddCell().SetValue(o.UserID)
		row.AddCell().SetValue(string(o.Status))
		row.AddCell().SetValue(string(o.Payment.Method))
		row.AddCell().SetValue(string(o.Payment.Status))
		row.AddCell().SetValue(o.TotalAmount.StringFixed(2))
		row.AddCell().SetValue(o.Currency)
		items := make([]string, 0, len(o.Items))
		for _, l := range o.Items {
			items = append(items, l.Name+" x"+strconv.FormatInt(l.Quantity, 10))
		}
		row.AddCell().SetValue(strings.Join(items, ", "))
		row.AddCell().SetValue(o.ShippingAddress.City)
		row.AddCell().SetValue(o.ShippingAddress.Country)
		row.AddCell().SetValue(o.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetValue(o.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	c.Header("Content-Disposition", "attachment; filename=orders.xlsx")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Expires", "0")
	if err := file.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write Excel file", "kind": "internal"})
		return
	}
}
