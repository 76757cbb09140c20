package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/tableflow/internal/checkout"
	"github.com/joao-fontenele/tableflow/internal/config"
	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/poller"
	"github.com/joao-fontenele/tableflow/internal/remote"
	"github.com/joao-fontenele/tableflow/internal/testutil"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu           sync.Mutex
	orders       []domain.TableOrder
	requests     []domain.WaiterRequest
	updates      []domain.OrderStatus
	requestCalls []domain.RequestStatus
	created      []domain.NewWaiterRequest
	waiters      []domain.Waiter
	waiterCalls  []domain.WaiterStatus
	err          error
}

func (s *fakeStore) ListOrders(ctx context.Context) ([]domain.TableOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.TableOrder(nil), s.orders...), nil
}

func (s *fakeStore) ListWaiterRequests(ctx context.Context) ([]domain.WaiterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.WaiterRequest(nil), s.requests...), nil
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (*domain.TableOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.updates = append(s.updates, status)
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			o := s.orders[i]
			return &o, nil
		}
	}
	return nil, &remote.StatusError{Op: "update order", StatusCode: http.StatusNotFound}
}

func (s *fakeStore) UpdateWaiterRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) (*domain.WaiterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCalls = append(s.requestCalls, status)
	for i := range s.requests {
		if s.requests[i].ID == id {
			s.requests[i].Status = status
			r := s.requests[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateWaiterRequest(ctx context.Context, r domain.NewWaiterRequest) (*domain.WaiterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, r)
	return &domain.WaiterRequest{ID: int64(len(s.created)), TableNumber: r.TableNumber, Message: r.Message, Status: r.Status}, nil
}

func (s *fakeStore) ListWaiters(ctx context.Context) ([]domain.Waiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Waiter(nil), s.waiters...), nil
}

func (s *fakeStore) UpdateWaiterStatus(ctx context.Context, id int64, status domain.WaiterStatus) (*domain.Waiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.waiterCalls = append(s.waiterCalls, status)
	for i := range s.waiters {
		if s.waiters[i].ID == id {
			s.waiters[i].Status = status
			w := s.waiters[i]
			return &w, nil
		}
	}
	return nil, &remote.StatusError{Op: "update waiter status", StatusCode: http.StatusNotFound}
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type staffFixture struct {
	store    *fakeStore
	bus      *notify.Bus
	orders   *poller.Poller[domain.TableOrder]
	requests *poller.Poller[domain.WaiterRequest]
	waiters  *poller.Poller[domain.Waiter]
	server   *httptest.Server
}

func newStaffFixture(t *testing.T) *staffFixture {
	t.Helper()
	logger := testutil.DiscardLogger()

	store := &fakeStore{
		orders: []domain.TableOrder{
			{ID: 1, Table: "3", Status: domain.OrderStatusPending, Total: decimal.NewFromInt(15000), CreatedAt: now.Add(-35 * time.Minute)},
			{ID: 2, Table: "4", Status: domain.OrderStatusReady, Total: decimal.NewFromInt(8000), CreatedAt: now.Add(-2 * time.Minute)},
			{ID: 3, Table: "5", Status: domain.OrderStatusDelivered, Total: decimal.NewFromInt(5000), CreatedAt: now.Add(-60 * time.Minute)},
		},
		requests: []domain.WaiterRequest{
			{ID: 10, TableNumber: "3", Message: "Bill please", Status: domain.RequestStatusPending, CreatedAt: now.Add(-7 * time.Minute)},
			{ID: 11, TableNumber: "4", Message: "Water", Status: domain.RequestStatusCompleted, CreatedAt: now.Add(-20 * time.Minute)},
		},
		waiters: []domain.Waiter{
			{ID: 20, Name: "Amina", Username: "amina", Status: domain.WaiterAvailable, LastActive: now.Add(-30 * time.Second)},
			{ID: 21, Username: "okello", Status: domain.WaiterOnBreak, LastActive: now.Add(-12 * time.Minute)},
			{ID: 22, Name: "Grace", Username: "grace", Status: domain.WaiterAvailable, LastActive: now.Add(-3 * time.Minute)},
		},
	}
	bus := notify.NewBus(logger, notify.WithTTL(0))

	orders := poller.New("orders", time.Hour, store.ListOrders, logger)
	requests := poller.New("waiter-requests", time.Hour, store.ListWaiterRequests, logger)
	waiters := poller.New("waiters", time.Hour, store.ListWaiters, logger)

	ctx, cancel := context.WithCancel(context.Background())
	orders.Start(ctx)
	requests.Start(ctx)
	waiters.Start(ctx)
	testutil.Eventually(t, "initial load", time.Second, func() bool {
		return orders.Snapshot().Loaded && requests.Snapshot().Loaded && waiters.Snapshot().Loaded
	})

	h := NewHandler(bus, store, logger,
		WithOrders(orders),
		WithRequests(requests),
		WithWaiters(waiters),
		WithClock(func() time.Time { return now }),
	)
	mux := http.NewServeMux()
	h.Register(mux, config.RoleKitchen)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
		orders.Wait()
		requests.Wait()
		waiters.Wait()
		bus.Close()
	})
	return &staffFixture{store: store, bus: bus, orders: orders, requests: requests, waiters: waiters, server: server}
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHandleOrders(t *testing.T) {
	f := newStaffFixture(t)

	resp, body := do(t, http.MethodGet, f.server.URL+"/orders", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if body["loaded"] != true || body["stale"] != false {
		t.Errorf("unexpected feed flags: %v", body)
	}

	items := body["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["urgency"] != "urgent" {
		t.Errorf("expected 35 minute old order to be urgent, got %v", first["urgency"])
	}
	if first["next_status"] != "confirmed" {
		t.Errorf("expected next status confirmed, got %v", first["next_status"])
	}
	if first["estimated_minutes"] != float64(25) {
		t.Errorf("expected 25 minutes remaining, got %v", first["estimated_minutes"])
	}
	if _, ok := items[2].(map[string]any)["next_status"]; ok {
		t.Error("expected delivered order to have no next status")
	}

	t.Run("status filter", func(t *testing.T) {
		_, body := do(t, http.MethodGet, f.server.URL+"/orders?status=ready", "")
		if got := len(body["items"].([]any)); got != 1 {
			t.Errorf("expected 1 ready order, got %d", got)
		}
	})
}

func TestHandleKitchen(t *testing.T) {
	f := newStaffFixture(t)

	resp, body := do(t, http.MethodGet, f.server.URL+"/kitchen", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	queue := body["queue"].([]any)
	if len(queue) != 2 {
		t.Fatalf("expected delivered orders to be left out, got %d", len(queue))
	}
	if id := queue[0].(map[string]any)["id"]; id != float64(1) {
		t.Errorf("expected oldest urgent order first, got %v", id)
	}
	columns := body["columns"].(map[string]any)
	if got := len(columns["ready"].([]any)); got != 1 {
		t.Errorf("expected 1 ready order, got %d", got)
	}
}

func TestHandleOrderActions(t *testing.T) {
	t.Run("advance notifies and refreshes", func(t *testing.T) {
		f := newStaffFixture(t)

		resp, body := do(t, http.MethodPost, f.server.URL+"/orders/1/advance", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %v", resp.StatusCode, body)
		}
		if body["status"] != "confirmed" {
			t.Errorf("expected confirmed, got %v", body["status"])
		}

		notes := f.bus.ByType(domain.NotificationOrderStatus)
		if len(notes) != 1 || notes[0].OrderID != 1 || notes[0].Priority != domain.PriorityMedium {
			t.Fatalf("expected one status notification, got %+v", notes)
		}
		if notes[0].Message != "Order #1 for Table 3 moved from pending to confirmed" {
			t.Errorf("unexpected message %q", notes[0].Message)
		}

		testutil.Eventually(t, "snapshot refreshed", time.Second, func() bool {
			item := poller.Find(f.orders.Snapshot(), func(o domain.TableOrder) bool { return o.ID == 1 })
			return item.Value.Status == domain.OrderStatusConfirmed
		})
	})

	t.Run("illegal transitions answer 409 without calling the store", func(t *testing.T) {
		f := newStaffFixture(t)

		cases := []struct {
			method, path, body string
		}{
			{http.MethodPost, "/orders/3/advance", ""},
			{http.MethodPost, "/orders/3/cancel", ""},
			{http.MethodPatch, "/orders/1/status", `{"status":"ready"}`},
			{http.MethodPatch, "/orders/2/status", `{"status":"pending"}`},
		}
		for _, c := range cases {
			resp, _ := do(t, c.method, f.server.URL+c.path, c.body)
			if resp.StatusCode != http.StatusConflict {
				t.Errorf("%s %s: expected status 409, got %d", c.method, c.path, resp.StatusCode)
			}
		}
		if n := f.store.updateCount(); n != 0 {
			t.Errorf("expected no store writes, got %d", n)
		}
		if n := len(f.bus.Notifications()); n != 0 {
			t.Errorf("expected no notifications, got %d", n)
		}
	})

	t.Run("cancel and explicit status", func(t *testing.T) {
		f := newStaffFixture(t)

		resp, body := do(t, http.MethodPost, f.server.URL+"/orders/2/cancel", "")
		if resp.StatusCode != http.StatusOK || body["status"] != "cancelled" {
			t.Errorf("expected cancelled order, got %d %v", resp.StatusCode, body)
		}

		resp, body = do(t, http.MethodPatch, f.server.URL+"/orders/1/status", `{"status":"confirmed"}`)
		if resp.StatusCode != http.StatusOK || body["status"] != "confirmed" {
			t.Errorf("expected confirmed order, got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("unknown order and bad id", func(t *testing.T) {
		f := newStaffFixture(t)

		if resp, _ := do(t, http.MethodPost, f.server.URL+"/orders/99/advance", ""); resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", resp.StatusCode)
		}
		if resp, _ := do(t, http.MethodPost, f.server.URL+"/orders/abc/advance", ""); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", resp.StatusCode)
		}
	})

	t.Run("store failure answers 502", func(t *testing.T) {
		f := newStaffFixture(t)
		f.store.mu.Lock()
		f.store.err = &remote.TransientError{Op: "update order", StatusCode: http.StatusServiceUnavailable}
		f.store.mu.Unlock()

		if resp, _ := do(t, http.MethodPost, f.server.URL+"/orders/1/advance", ""); resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", resp.StatusCode)
		}
		if n := len(f.bus.Notifications()); n != 0 {
			t.Errorf("expected no notifications, got %d", n)
		}
	})
}

func TestHandleWaiterRequests(t *testing.T) {
	f := newStaffFixture(t)

	_, body := do(t, http.MethodGet, f.server.URL+"/waiter-requests?status=pending", "")
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(items))
	}
	if got := items[0].(map[string]any)["urgency"]; got != "medium" {
		t.Errorf("expected medium urgency after 7 minutes, got %v", got)
	}

	resp, body := do(t, http.MethodPost, f.server.URL+"/waiter-requests/10/advance", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "acknowledged" {
		t.Errorf("expected acknowledged, got %d %v", resp.StatusCode, body)
	}

	if resp, _ := do(t, http.MethodPost, f.server.URL+"/waiter-requests/11/advance", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409 for a completed request, got %d", resp.StatusCode)
	}
}

func TestHandleWaiters(t *testing.T) {
	f := newStaffFixture(t)

	resp, body := do(t, http.MethodGet, f.server.URL+"/waiters", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	counts := body["counts"].(map[string]any)
	want := map[string]float64{"available": 2, "busy": 0, "break": 1, "offline": 0}
	for status, n := range want {
		if counts[status] != n {
			t.Errorf("expected %v %s waiters, got %v", n, status, counts[status])
		}
	}
	items := body["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected 3 waiters, got %d", len(items))
	}
	second := items[1].(map[string]any)
	if second["display_name"] != "okello" || second["idle_minutes"] != float64(12) {
		t.Errorf("unexpected waiter view %v", second)
	}

	t.Run("status filter", func(t *testing.T) {
		_, body := do(t, http.MethodGet, f.server.URL+"/waiters?status=break", "")
		if got := len(body["items"].([]any)); got != 1 {
			t.Errorf("expected 1 waiter on break, got %d", got)
		}
		if body["counts"].(map[string]any)["available"] != float64(2) {
			t.Error("expected counts to cover every waiter regardless of the filter")
		}
	})
}

func TestHandleSetWaiterStatus(t *testing.T) {
	t.Run("updates the store and refreshes", func(t *testing.T) {
		f := newStaffFixture(t)

		resp, body := do(t, http.MethodPost, f.server.URL+"/waiters/21/status", `{"status":"available"}`)
		if resp.StatusCode != http.StatusOK || body["status"] != "available" {
			t.Fatalf("expected available, got %d %v", resp.StatusCode, body)
		}
		testutil.Eventually(t, "board refreshed", time.Second, func() bool {
			item := poller.Find(f.waiters.Snapshot(), func(w domain.Waiter) bool { return w.ID == 21 })
			return item.Value.Status == domain.WaiterAvailable
		})
	})

	t.Run("same status skips the store", func(t *testing.T) {
		f := newStaffFixture(t)

		resp, _ := do(t, http.MethodPost, f.server.URL+"/waiters/20/status", `{"status":"available"}`)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		if len(f.store.waiterCalls) != 0 {
			t.Errorf("expected no store write, got %v", f.store.waiterCalls)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		f := newStaffFixture(t)

		tests := []struct {
			name string
			path string
			body string
			want int
		}{
			{"unknown status", "/waiters/20/status", `{"status":"asleep"}`, http.StatusBadRequest},
			{"bad id", "/waiters/x/status", `{"status":"busy"}`, http.StatusBadRequest},
			{"unknown waiter", "/waiters/99/status", `{"status":"busy"}`, http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, _ := do(t, http.MethodPost, f.server.URL+tt.path, tt.body)
				if resp.StatusCode != tt.want {
					t.Errorf("expected status %d, got %d", tt.want, resp.StatusCode)
				}
			})
		}
	})

	t.Run("store failure", func(t *testing.T) {
		f := newStaffFixture(t)
		f.store.mu.Lock()
		f.store.err = errors.New("connection refused")
		f.store.mu.Unlock()

		resp, _ := do(t, http.MethodPost, f.server.URL+"/waiters/20/status", `{"status":"busy"}`)
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", resp.StatusCode)
		}
	})
}

func TestHandleOrdersBeforeFirstLoad(t *testing.T) {
	logger := testutil.DiscardLogger()
	bus := notify.NewBus(logger)
	defer bus.Close()
	store := &fakeStore{}

	orders := poller.New("orders", time.Hour, store.ListOrders, logger)
	h := NewHandler(bus, store, logger, WithOrders(orders))
	mux := http.NewServeMux()
	h.Register(mux, config.RoleManagement)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["loaded"] != false {
		t.Errorf("expected an unloaded feed, got %v", body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/1/advance", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestHandleNotifications(t *testing.T) {
	f := newStaffFixture(t)
	a := f.bus.NotifyWaiterRequest("3", "Bill please")
	f.bus.NotifyNewOrder("4", 2, decimal.NewFromInt(8000))

	_, body := do(t, http.MethodGet, f.server.URL+"/notifications", "")
	if body["count"] != float64(2) {
		t.Errorf("expected 2 notifications, got %v", body["count"])
	}
	_, body = do(t, http.MethodGet, f.server.URL+"/notifications?type=new_order", "")
	if body["count"] != float64(1) {
		t.Errorf("expected 1 new order notification, got %v", body["count"])
	}

	if resp, _ := do(t, http.MethodDelete, f.server.URL+"/notifications/"+a.ID, ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodDelete, f.server.URL+"/notifications/"+a.ID, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodDelete, f.server.URL+"/notifications", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", resp.StatusCode)
	}
	if n := len(f.bus.Notifications()); n != 0 {
		t.Errorf("expected an empty log, got %d", n)
	}
}

func TestStaffRoutesNotOnCustomer(t *testing.T) {
	logger := testutil.DiscardLogger()
	bus := notify.NewBus(logger)
	defer bus.Close()

	mux := http.NewServeMux()
	NewHandler(bus, &fakeStore{}, logger).Register(mux, config.RoleCustomer)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kitchen", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

type fakeCheckout struct {
	receipt *checkout.Receipt
	err     error
	carts   []checkout.Cart
	infos   []checkout.PaymentInfo
}

func (c *fakeCheckout) SubmitOrderWithPayment(ctx context.Context, cart checkout.Cart, info checkout.PaymentInfo) (*checkout.Receipt, error) {
	c.carts = append(c.carts, cart)
	c.infos = append(c.infos, info)
	return c.receipt, c.err
}

type customerFixture struct {
	store    *fakeStore
	bus      *notify.Bus
	checkout *fakeCheckout
	trackers *Trackers
	mux      *http.ServeMux
}

func newCustomerFixture(t *testing.T, co *fakeCheckout) *customerFixture {
	t.Helper()
	logger := testutil.DiscardLogger()

	store := &fakeStore{
		orders: []domain.TableOrder{
			{ID: 5, Table: "7", Status: domain.OrderStatusPreparing, CreatedAt: now.Add(-5 * time.Minute)},
			{ID: 6, Table: "8", Status: domain.OrderStatusDelivered, CreatedAt: now.Add(-50 * time.Minute)},
		},
	}
	bus := notify.NewBus(logger, notify.WithTTL(0))

	menuItems := []domain.MenuItem{
		{ID: 1, Name: "Rolex", Price: decimal.NewFromInt(5000), Category: "mains", Available: true},
		{ID: 2, Name: "Passion Juice", Price: decimal.NewFromInt(3000), Category: "drinks", Available: true},
		{ID: 3, Name: "Luwombo", Price: decimal.NewFromInt(25000), Category: "mains", Available: false},
	}
	menu := poller.New("menu", time.Hour, func(ctx context.Context) ([]domain.MenuItem, error) {
		return menuItems, nil
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	menu.Start(ctx)
	testutil.Eventually(t, "menu loaded", time.Second, func() bool { return menu.Snapshot().Loaded })

	trackers := NewTrackers(ctx, time.Hour, store.ListOrders, logger)

	h := NewHandler(bus, store, logger,
		WithMenu(menu),
		WithCheckout(co),
		WithTrackers(trackers),
		WithClock(func() time.Time { return now }),
	)
	mux := http.NewServeMux()
	h.Register(mux, config.RoleCustomer)

	t.Cleanup(func() {
		trackers.Close()
		cancel()
		menu.Wait()
		bus.Close()
	})
	return &customerFixture{store: store, bus: bus, checkout: co, trackers: trackers, mux: mux}
}

func serve(t *testing.T, mux *http.ServeMux, method, path, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rec.Code, out
}

func TestHandleMenu(t *testing.T) {
	f := newCustomerFixture(t, &fakeCheckout{})

	_, body := serve(t, f.mux, http.MethodGet, "/menu", "")
	if got := len(body["items"].([]any)); got != 2 {
		t.Errorf("expected unavailable items hidden, got %d", got)
	}
	_, body = serve(t, f.mux, http.MethodGet, "/menu?category=Drinks", "")
	if got := len(body["items"].([]any)); got != 1 {
		t.Errorf("expected 1 drink, got %d", got)
	}
}

func TestHandleCheckout(t *testing.T) {
	const cart = `{"table_id":"7","items":[{"menu_item_id":1,"name":"Rolex","quantity":3,"price":"5000"}],"payment":{"payment_method":"cash"}}`

	t.Run("created", func(t *testing.T) {
		co := &fakeCheckout{receipt: &checkout.Receipt{OrderID: 5, Reference: "TABLE_7_1", TableID: "7", Total: decimal.NewFromInt(15000)}}
		f := newCustomerFixture(t, co)

		code, body := serve(t, f.mux, http.MethodPost, "/checkout", cart)
		if code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %v", code, body)
		}
		if body["order_id"] != float64(5) {
			t.Errorf("unexpected receipt %v", body)
		}
		if len(co.carts) != 1 || co.carts[0].TableID != "7" || co.carts[0].Lines[0].Quantity != 3 {
			t.Errorf("unexpected cart %+v", co.carts)
		}
		if !co.carts[0].Lines[0].Price.Equal(decimal.NewFromInt(5000)) {
			t.Errorf("unexpected price %s", co.carts[0].Lines[0].Price)
		}
		if co.infos[0].Method != domain.PaymentCash {
			t.Errorf("unexpected payment info %+v", co.infos[0])
		}
		if f.trackers.Len() != 1 {
			t.Error("expected the new order to be tracked")
		}
	})

	tests := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "validation",
			err:    &checkout.ValidationError{Field: "phone", Reason: "is required"},
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				if body["field"] != "phone" {
					t.Errorf("expected field phone, got %v", body["field"])
				}
			},
		},
		{
			name:   "declined",
			err:    &checkout.GatewayError{Response: &domain.PaymentResponse{Message: "Insufficient funds"}},
			status: http.StatusPaymentRequired,
		},
		{
			name:   "submission",
			err:    &checkout.SubmissionError{Reference: "TABLE_7_1", Payment: domain.PaymentResponse{TransactionID: "MTN_1"}, Escalated: true, Err: errors.New("store down")},
			status: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				if body["escalated"] != true || body["transaction_id"] != "MTN_1" {
					t.Errorf("unexpected body %v", body)
				}
			},
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCustomerFixture(t, &fakeCheckout{err: tt.err})

			code, body := serve(t, f.mux, http.MethodPost, "/checkout", cart)
			if code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, code)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
			if f.trackers.Len() != 0 {
				t.Error("expected nothing to be tracked")
			}
		})
	}

	t.Run("bad body", func(t *testing.T) {
		f := newCustomerFixture(t, &fakeCheckout{})
		if code, _ := serve(t, f.mux, http.MethodPost, "/checkout", "{"); code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", code)
		}
	})
}

func TestHandleCallWaiter(t *testing.T) {
	t.Run("without an active order", func(t *testing.T) {
		f := newCustomerFixture(t, &fakeCheckout{})

		code, body := serve(t, f.mux, http.MethodPost, "/tables/7/waiter", "")
		if code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", code)
		}
		if body["message"] != defaultWaiterMessage {
			t.Errorf("expected default message, got %v", body["message"])
		}
		notes := f.bus.ByType(domain.NotificationWaiterRequest)
		if len(notes) != 1 || notes[0].Title != "Table 7 Needs Assistance" {
			t.Errorf("expected one waiter notification, got %+v", notes)
		}
	})

	t.Run("with an active order alerts the kitchen", func(t *testing.T) {
		f := newCustomerFixture(t, &fakeCheckout{})
		f.trackers.Track(5)
		testutil.Eventually(t, "tracker loaded", time.Second, func() bool {
			item, _ := f.trackers.Get(5)
			return item.State == poller.ItemFound
		})

		code, _ := serve(t, f.mux, http.MethodPost, "/tables/7/waiter", `{"message":"More napkins"}`)
		if code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", code)
		}
		if f.store.created[0].Message != "More napkins" {
			t.Errorf("unexpected request %+v", f.store.created[0])
		}

		var alerted bool
		for _, n := range f.bus.ByType(domain.NotificationWaiterRequest) {
			if n.Title == "Service Alert - Table 7" {
				alerted = true
			}
		}
		if !alerted {
			t.Error("expected a service alert")
		}
	})

	t.Run("store failure", func(t *testing.T) {
		f := newCustomerFixture(t, &fakeCheckout{})
		f.store.err = errors.New("connection refused")

		if code, _ := serve(t, f.mux, http.MethodPost, "/tables/7/waiter", ""); code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", code)
		}
		if n := len(f.bus.Notifications()); n != 0 {
			t.Errorf("expected no notifications, got %d", n)
		}
	})
}

func TestHandleTracking(t *testing.T) {
	f := newCustomerFixture(t, &fakeCheckout{})

	code, body := serve(t, f.mux, http.MethodPut, "/tracking/5", "")
	if code != http.StatusCreated || body["state"] != "loading" {
		t.Errorf("expected a new tracker, got %d %v", code, body)
	}

	testutil.Eventually(t, "order found", time.Second, func() bool {
		_, body := serve(t, f.mux, http.MethodGet, "/tracking/5", "")
		return body["state"] == "found"
	})
	_, body = serve(t, f.mux, http.MethodGet, "/tracking/5", "")
	if body["estimated_minutes"] != float64(15) {
		t.Errorf("expected 15 minutes for a preparing order, got %v", body["estimated_minutes"])
	}

	if code, _ := serve(t, f.mux, http.MethodPut, "/tracking/404", ""); code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", code)
	}
	testutil.Eventually(t, "order not found", time.Second, func() bool {
		_, body := serve(t, f.mux, http.MethodGet, "/tracking/404", "")
		return body["state"] == "not_found"
	})

	t.Run("delivered orders carry no estimate", func(t *testing.T) {
		serve(t, f.mux, http.MethodPut, "/tracking/6", "")
		testutil.Eventually(t, "delivered order found", time.Second, func() bool {
			_, body := serve(t, f.mux, http.MethodGet, "/tracking/6", "")
			return body["state"] == "found"
		})
		_, body := serve(t, f.mux, http.MethodGet, "/tracking/6", "")
		if _, ok := body["estimated_minutes"]; ok {
			t.Errorf("expected no estimate, got %v", body["estimated_minutes"])
		}
	})

	if code, _ := serve(t, f.mux, http.MethodDelete, "/tracking/5", ""); code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", code)
	}
	if code, _ := serve(t, f.mux, http.MethodGet, "/tracking/5", ""); code != http.StatusNotFound {
		t.Errorf("expected status 404 after untracking, got %d", code)
	}
	if code, _ := serve(t, f.mux, http.MethodDelete, "/tracking/5", ""); code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", code)
	}
}
