package service

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberGenerator выдаёт человекочитаемый номер заказа
type NumberGenerator func(now time.Time) string

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXXXXXXXX with 48 random bits.
// Uniqueness is still enforced by storage; callers retry on conflict.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(id[:6]))
}
