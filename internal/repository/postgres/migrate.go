package postgres

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Table definitions used only for schema migration. Reads and writes go
// through pgx in this package.

type productRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"not null"`
	SKU        string    `gorm:"column:sku;uniqueIndex;not null"`
	CategoryID int64     `gorm:"index;not null;default:0"`
	Price      string    `gorm:"type:numeric(12,2);not null"`
	Stock      int64     `gorm:"not null;check:stock_non_negative,stock >= 0"`
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (productRow) TableName() string { return "products" }

type orderRow struct {
	ID                string `gorm:"primaryKey"`
	OrderNumber       string `gorm:"uniqueIndex;not null"`
	UserID            string `gorm:"index;not null"`
	TotalAmount       string `gorm:"type:numeric(14,2);not null"`
	Currency          string `gorm:"not null"`
	Status            string `gorm:"index;not null"`
	PaymentMethod     string `gorm:"not null"`
	GatewayOrderID    string `gorm:"not null;default:''"`
	GatewayPaymentID  string `gorm:"not null;default:''"`
	Signature         string `gorm:"not null;default:''"`
	PaymentStatus     string `gorm:"not null"`
	ShipStreet        string `gorm:"not null"`
	ShipCity          string `gorm:"not null"`
	ShipState         string `gorm:"not null;default:''"`
	ShipZipCode       string `gorm:"not null"`
	ShipCountry       string `gorm:"not null"`
	Carrier           string `gorm:"not null;default:''"`
	TrackingNumber    string `gorm:"not null;default:''"`
	EstimatedDelivery *time.Time
	Version           int64     `gorm:"not null;default:1"`
	CreatedAt         time.Time `gorm:"index;not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (orderRow) TableName() string { return "orders" }

type orderLineRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"index;not null"`
	Position  int    `gorm:"not null"`
	ProductID int64  `gorm:"not null"`
	Name      string `gorm:"not null"`
	Quantity  int64  `gorm:"not null;check:quantity_positive,quantity > 0"`
	Price     string `gorm:"type:numeric(12,2);not null"`
}

func (orderLineRow) TableName() string { return "order_lines" }

type cartLineRow struct {
	UserID    string    `gorm:"primaryKey"`
	ProductID int64     `gorm:"primaryKey"`
	Quantity  int64     `gorm:"not null"`
	AddedAt   time.Time `gorm:"not null"`
}

func (cartLineRow) TableName() string { return "cart_lines" }

// Migrate creates or updates the schema.
func Migrate(databaseURL string, verbose bool) error {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(&productRow{}, &orderRow{}, &orderLineRow{}, &cartLineRow{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
