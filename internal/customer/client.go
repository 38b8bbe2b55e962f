// Package customer предоставляет клиент внутреннего справочника пользователей.
package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"market-system/internal/config"
	"market-system/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "market-system/customer"

// Client ходит в справочник по HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient создаёт клиент по настройкам справочника
func NewClient(cfg *config.UserDirectoryConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer(tracerName),
	}
}

// FindByID возвращает пользователя по id. Неизвестный пользователь даёт (nil, nil).
func (c *Client) FindByID(ctx context.Context, userID int64) (*models.User, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("user directory client not configured")
	}

	ctx, span := c.tracer.Start(ctx, "customer.FindByID",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	url := fmt.Sprintf("%s/inner/customer/%s", c.baseURL, strconv.FormatInt(userID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}
