// Package remote is the HTTP accessor for the restaurant store that every
// terminal polls. It owns no state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

const (
	defaultReadRetries = 1
	defaultRetryDelay  = 250 * time.Millisecond
)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithReadRetries sets how many times a failed read is retried. Writes are
// never retried here.
func WithReadRetries(n int) Option {
	return func(c *Client) {
		c.readRetries = n
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	readRetries int
	retryDelay  time.Duration
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:      logger,
		readRetries: defaultReadRetries,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListOrders(ctx context.Context) ([]domain.TableOrder, error) {
	var orders []domain.TableOrder
	if err := c.read(ctx, "list orders", "/api/menuOrder", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// FindOrderByReference returns the order carrying the given correlation
// reference, or nil when the store has none.
func (c *Client) FindOrderByReference(ctx context.Context, reference string) (*domain.TableOrder, error) {
	var orders []domain.TableOrder
	path := "/api/menuOrder?" + url.Values{"reference": {reference}}.Encode()
	if err := c.read(ctx, "find order", path, &orders); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Reference == reference {
			return &o, nil
		}
	}
	return nil, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (*domain.TableOrder, error) {
	var order domain.TableOrder
	body := map[string]domain.OrderStatus{"status": status}
	path := "/api/menuOrder/" + strconv.FormatInt(id, 10) + "/"
	if err := c.write(ctx, "update order status", http.MethodPatch, path, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

type createOrderResponse struct {
	ID int64 `json:"id"`
}

// CreateOrder submits a new order and returns the id the store assigned.
func (c *Client) CreateOrder(ctx context.Context, sub domain.OrderSubmission) (int64, error) {
	var resp createOrderResponse
	if err := c.write(ctx, "create order", http.MethodPost, "/api/cart", sub, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, &TransientError{Op: "create order", Err: fmt.Errorf("store response carried no order id")}
	}
	return resp.ID, nil
}

func (c *Client) ListWaiterRequests(ctx context.Context) ([]domain.WaiterRequest, error) {
	var requests []domain.WaiterRequest
	if err := c.read(ctx, "list waiter requests", "/api/waiter-request", &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (c *Client) UpdateWaiterRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) (*domain.WaiterRequest, error) {
	var req domain.WaiterRequest
	body := map[string]domain.RequestStatus{"status": status}
	path := "/api/waiter-request/" + strconv.FormatInt(id, 10) + "/"
	if err := c.write(ctx, "update waiter request", http.MethodPatch, path, body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) CreateWaiterRequest(ctx context.Context, r domain.NewWaiterRequest) (*domain.WaiterRequest, error) {
	var created domain.WaiterRequest
	if err := c.write(ctx, "create waiter request", http.MethodPost, "/api/waiter-request", r, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

type waitersResponse struct {
	Data []domain.Waiter `json:"data"`
}

// ListWaiters returns the waiting staff. The store wraps the list in a data
// envelope, unlike the other collections.
func (c *Client) ListWaiters(ctx context.Context) ([]domain.Waiter, error) {
	var resp waitersResponse
	if err := c.read(ctx, "list waiters", "/api/waiters/", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

type waiterStatusUpdate struct {
	WaiterID int64               `json:"waiter_id"`
	Status   domain.WaiterStatus `json:"status"`
}

type waiterResponse struct {
	Data *domain.Waiter `json:"data"`
}

// UpdateWaiterStatus sets a waiter's availability. The waiter comes back nil
// when the store does not echo it.
func (c *Client) UpdateWaiterStatus(ctx context.Context, id int64, status domain.WaiterStatus) (*domain.Waiter, error) {
	var resp waiterResponse
	body := waiterStatusUpdate{WaiterID: id, Status: status}
	if err := c.write(ctx, "update waiter status", http.MethodPost, "/api/waiters/", body, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ListMenu(ctx context.Context) ([]domain.MenuItem, error) {
	var items []domain.MenuItem
	if err := c.read(ctx, "list menu", "/api/menu/", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) read(ctx context.Context, op, path string, out any) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(max(c.readRetries, 0))),
		ctx,
	)

	return backoff.RetryNotify(func() error {
		err := c.do(ctx, op, http.MethodGet, path, nil, out)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Debug("retrying store read", "op", op, "error", err, "wait", wait)
	})
}

func (c *Client) write(ctx context.Context, op, method, path string, body, out any) error {
	return c.do(ctx, op, method, path, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return &TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", errorMessage(resp))}
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func errorMessage(resp *http.Response) string {
	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
}
