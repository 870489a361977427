package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HTTPGateway клиент REST API шлюза (orders endpoint, basic auth ключом)
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

type gatewayError struct {
	Error *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

func NewHTTPGateway(baseURL, keyID, keySecret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, in IntentRequest) (*Intent, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ge gatewayError
		if json.Unmarshal(raw, &ge) == nil && ge.Error != nil {
			return nil, fmt.Errorf("gateway error (%d): %s", resp.StatusCode, ge.Error.Description)
		}
		return nil, fmt.Errorf("gateway error (%d)", resp.StatusCode)
	}

	var out Intent
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("gateway returned empty order id")
	}
	return &out, nil
}

// Sandbox выдаёт намерения локально, без сети
type Sandbox struct {
	seq atomic.Int64
}

func NewSandbox() *Sandbox { return &Sandbox{} }

func (s *Sandbox) CreateIntent(ctx context.Context, in IntentRequest) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.seq.Add(1)
	id := fmt.Sprintf("order_sbx%d%s", n, strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return &Intent{ID: id, Amount: in.Amount, Currency: in.Currency}, nil
}
