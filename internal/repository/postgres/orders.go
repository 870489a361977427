package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// Orders implements repository.OrderRepository. Lines are written once, in the
// same transaction as the order row, and never updated.
type Orders struct{ pool *pgxpool.Pool }

func NewOrders(pool *pgxpool.Pool) *Orders { return &Orders{pool: pool} }

const orderColumns = `id, order_number, user_id, total_amount::text, currency, status,
	payment_method, gateway_order_id, gateway_payment_id, signature, payment_status,
	ship_street, ship_city, ship_state, ship_zip_code, ship_country,
	carrier, tracking_number, estimated_delivery, version, created_at, updated_at`

var sortColumns = map[string]string{
	repository.SortByCreatedAt:   "created_at",
	repository.SortByUpdatedAt:   "updated_at",
	repository.SortByTotalAmount: "total_amount",
	repository.SortByStatus:      "status",
}

func (r *Orders) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	carrier, number, eta := trackingColumns(o.Tracking)
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, user_id, total_amount, currency, status,
			payment_method, gateway_order_id, gateway_payment_id, signature, payment_status,
			ship_street, ship_city, ship_state, ship_zip_code, ship_country,
			carrier, tracking_number, estimated_delivery, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, 1, now(), now())
		RETURNING created_at, updated_at
	`, o.ID, o.OrderNumber, o.UserID, o.TotalAmount.String(), o.Currency, string(o.Status),
		string(o.Payment.Method), o.Payment.GatewayOrderID, o.Payment.GatewayPaymentID, o.Payment.Signature, string(o.Payment.Status),
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State, o.ShippingAddress.ZipCode, o.ShippingAddress.Country,
		carrier, number, eta,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, l := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)
		`, o.ID, i, l.ProductID, l.Name, l.Quantity, l.Price.String())
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	o.Version = 1
	return nil
}

func (r *Orders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Orders) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (r *Orders) getOne(ctx context.Context, q string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if err := r.loadLines(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Orders) Update(ctx context.Context, o *domain.Order) error {
	carrier, number, eta := trackingColumns(o.Tracking)
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE orders SET status = $3, gateway_order_id = $4, gateway_payment_id = $5,
			signature = $6, payment_status = $7, carrier = $8, tracking_number = $9,
			estimated_delivery = $10, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING updated_at
	`, o.ID, o.Version, string(o.Status), o.Payment.GatewayOrderID, o.Payment.GatewayPaymentID,
		o.Payment.Signature, string(o.Payment.Status), carrier, number, eta,
	).Scan(&updatedAt)
	if err == nil {
		o.Version++
		o.UpdatedAt = updatedAt
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update order: %w", err)
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *Orders) List(ctx context.Context, f repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	q := `SELECT ` + orderColumns + ` FROM orders` + cond + ` ORDER BY ` + col + ` ` + dir + `, order_number ` + dir
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadLines(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, total, nil
}

func (r *Orders) loadLines(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, name, quantity, price::text
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			l       domain.OrderLine
			price   string
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Name, &l.Quantity, &price); err != nil {
			return fmt.Errorf("failed to scan order line: %w", err)
		}
		if l.Price, err = decimal.NewFromString(price); err != nil {
			return err
		}
		o := byID[orderID]
		o.Items = append(o.Items, l)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                         domain.Order
		total                     string
		status, method, payStatus string
		carrier, number           string
		eta                       *time.Time
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &total, &o.Currency, &status,
		&method, &o.Payment.GatewayOrderID, &o.Payment.GatewayPaymentID, &o.Payment.Signature, &payStatus,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State, &o.ShippingAddress.ZipCode, &o.ShippingAddress.Country,
		&carrier, &number, &eta, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.Payment.Method = domain.PaymentMethod(method)
	o.Payment.Status = domain.PaymentStatus(payStatus)
	if carrier != "" || number != "" || eta != nil {
		o.Tracking = &domain.TrackingInfo{Carrier: carrier, TrackingNumber: number, EstimatedDelivery: eta}
	}
	return &o, nil
}

func trackingColumns(t *domain.TrackingInfo) (string, string, *time.Time) {
	if t == nil {
		return "", "", nil
	}
	return t.Carrier, t.TrackingNumber, t.EstimatedDelivery
}
