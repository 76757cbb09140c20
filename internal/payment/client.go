package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

// HTTPGateway is a Gateway backed by a remote payment Handler.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGateway builds a client for the simulator at baseURL. A nil client
// gets an instrumented one with a timeout long enough for the slowest
// provider.
func NewHTTPGateway(baseURL string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (g *HTTPGateway) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return domain.PaymentResponse{}, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(data))
	if err != nil {
		return domain.PaymentResponse{}, fmt.Errorf("create payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return domain.PaymentResponse{}, fmt.Errorf("call payment gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return domain.PaymentResponse{}, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, body.Error)
	}

	var out domain.PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.PaymentResponse{}, fmt.Errorf("decode payment response: %w", err)
	}
	return out, nil
}
