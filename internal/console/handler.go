// Package console serves a terminal's HTTP surface. Which routes exist depends
// on the terminal's role.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joao-fontenele/tableflow/internal/checkout"
	"github.com/joao-fontenele/tableflow/internal/config"
	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/lifecycle"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/poller"
	"github.com/joao-fontenele/tableflow/internal/remote"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

const defaultWaiterMessage = "Customer needs assistance"

// Store is the part of the remote store the console writes to.
type Store interface {
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (*domain.TableOrder, error)
	UpdateWaiterRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) (*domain.WaiterRequest, error)
	CreateWaiterRequest(ctx context.Context, r domain.NewWaiterRequest) (*domain.WaiterRequest, error)
	UpdateWaiterStatus(ctx context.Context, id int64, status domain.WaiterStatus) (*domain.Waiter, error)
}

type Checkout interface {
	SubmitOrderWithPayment(ctx context.Context, cart checkout.Cart, info checkout.PaymentInfo) (*checkout.Receipt, error)
}

type Option func(*Handler)

func WithOrders(p *poller.Poller[domain.TableOrder]) Option {
	return func(h *Handler) { h.orders = p }
}

func WithRequests(p *poller.Poller[domain.WaiterRequest]) Option {
	return func(h *Handler) { h.requests = p }
}

func WithWaiters(p *poller.Poller[domain.Waiter]) Option {
	return func(h *Handler) { h.waiters = p }
}

func WithMenu(p *poller.Poller[domain.MenuItem]) Option {
	return func(h *Handler) { h.menu = p }
}

func WithCheckout(c Checkout) Option {
	return func(h *Handler) { h.checkout = c }
}

func WithTrackers(t *Trackers) Option {
	return func(h *Handler) { h.trackers = t }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

type Handler struct {
	bus    *notify.Bus
	store  Store
	logger *slog.Logger
	now    func() time.Time

	orders   *poller.Poller[domain.TableOrder]
	requests *poller.Poller[domain.WaiterRequest]
	waiters  *poller.Poller[domain.Waiter]
	menu     *poller.Poller[domain.MenuItem]
	checkout Checkout
	trackers *Trackers
}

func NewHandler(bus *notify.Bus, store Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		bus:    bus,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the routes of role to mux.
func (h *Handler) Register(mux *http.ServeMux, role config.Role) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(fn))
	}

	route("GET /notifications", h.HandleNotifications)
	route("DELETE /notifications/{id}", h.HandleDismissNotification)
	route("DELETE /notifications", h.HandleClearNotifications)

	if role.Staff() {
		route("GET /orders", h.HandleOrders)
		route("GET /kitchen", h.HandleKitchen)
		route("POST /orders/{id}/advance", h.HandleAdvanceOrder)
		route("POST /orders/{id}/cancel", h.HandleCancelOrder)
		route("PATCH /orders/{id}/status", h.HandleSetOrderStatus)
		route("GET /waiter-requests", h.HandleWaiterRequests)
		route("POST /waiter-requests/{id}/advance", h.HandleAdvanceWaiterRequest)
		route("GET /waiters", h.HandleWaiters)
		route("POST /waiters/{id}/status", h.HandleSetWaiterStatus)
	}

	if role == config.RoleCustomer {
		route("GET /menu", h.HandleMenu)
		route("POST /checkout", h.HandleCheckout)
		route("POST /tables/{table}/waiter", h.HandleCallWaiter)
		route("PUT /tracking/{id}", h.HandleTrack)
		route("GET /tracking/{id}", h.HandleTracking)
		route("DELETE /tracking/{id}", h.HandleUntrack)
	}
}

func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	var list []domain.Notification
	if t := r.URL.Query().Get("type"); t != "" {
		list = h.bus.ByType(domain.NotificationType(t))
	} else {
		list = h.bus.Notifications()
	}
	if list == nil {
		list = []domain.Notification{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"notifications": list, "count": len(list)})
}

func (h *Handler) HandleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !h.bus.Remove(r.PathValue("id")) {
		h.writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleClearNotifications(w http.ResponseWriter, r *http.Request) {
	h.bus.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	s := h.orders.Snapshot()
	items := s.Items
	if status := r.URL.Query().Get("status"); status != "" {
		items = nil
		for _, o := range s.Items {
			if string(o.Status) == status {
				items = append(items, o)
			}
		}
	}
	h.writeJSON(w, http.StatusOK, newFeed(s, orderViews(items, h.now())))
}

func (h *Handler) HandleKitchen(w http.ResponseWriter, r *http.Request) {
	s := h.orders.Snapshot()
	now := h.now()

	queue := lifecycle.KitchenQueue(s.Items, now)
	board := kitchenBoard{
		Queue:   orderViews(queue, now),
		Columns: make(map[domain.OrderStatus][]orderView),
		Loaded:  s.Loaded,
		Stale:   s.Stale(),
	}
	for status, orders := range lifecycle.GroupByStatus(queue) {
		board.Columns[status] = orderViews(orders, now)
	}
	h.writeJSON(w, http.StatusOK, board)
}

func (h *Handler) HandleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	h.applyOrderAction(w, r, lifecycle.ActionAdvance)
}

func (h *Handler) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	h.applyOrderAction(w, r, lifecycle.ActionCancel)
}

func (h *Handler) applyOrderAction(w http.ResponseWriter, r *http.Request, action lifecycle.Action) {
	order, ok := h.lookupOrder(w, r)
	if !ok {
		return
	}
	next, err := lifecycle.ApplyOrder(order.Status, action)
	if err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.changeOrderStatus(w, r, order, next)
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleSetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, ok := h.lookupOrder(w, r)
	if !ok {
		return
	}
	if err := lifecycle.CheckOrderTransition(order.Status, req.Status); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.changeOrderStatus(w, r, order, req.Status)
}

// lookupOrder resolves {id} against the current snapshot. The transition is
// checked against what this terminal last saw.
func (h *Handler) lookupOrder(w http.ResponseWriter, r *http.Request) (domain.TableOrder, bool) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return domain.TableOrder{}, false
	}

	item := poller.Find(h.orders.Snapshot(), func(o domain.TableOrder) bool { return o.ID == id })
	switch item.State {
	case poller.ItemLoading:
		h.writeError(w, http.StatusServiceUnavailable, "orders not loaded yet")
		return domain.TableOrder{}, false
	case poller.ItemNotFound:
		h.writeError(w, http.StatusNotFound, "order not found")
		return domain.TableOrder{}, false
	}
	return item.Value, true
}

func (h *Handler) changeOrderStatus(w http.ResponseWriter, r *http.Request, order domain.TableOrder, next domain.OrderStatus) {
	updated, err := h.store.UpdateOrderStatus(r.Context(), order.ID, next)
	if err != nil {
		h.writeStoreError(w, err, "failed to update order status", "order_id", order.ID)
		return
	}
	if updated == nil {
		updated = &order
		updated.Status = next
	}

	h.bus.NotifyOrderStatus(order.Table, order.ID, next,
		notify.StatusChangeMessage(order.ID, order.Table, order.Status, next))
	h.orders.Refresh()

	h.logger.Info("order status changed", "order_id", order.ID, "from", order.Status, "to", next)
	h.writeJSON(w, http.StatusOK, newOrderView(*updated, h.now()))
}

func (h *Handler) HandleWaiterRequests(w http.ResponseWriter, r *http.Request) {
	s := h.requests.Snapshot()
	now := h.now()
	status := r.URL.Query().Get("status")

	views := make([]requestView, 0, len(s.Items))
	for _, req := range s.Items {
		if status == "" || string(req.Status) == status {
			views = append(views, newRequestView(req, now))
		}
	}
	h.writeJSON(w, http.StatusOK, newFeed(s, views))
}

func (h *Handler) HandleAdvanceWaiterRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid waiter request id")
		return
	}

	item := poller.Find(h.requests.Snapshot(), func(wr domain.WaiterRequest) bool { return wr.ID == id })
	switch item.State {
	case poller.ItemLoading:
		h.writeError(w, http.StatusServiceUnavailable, "waiter requests not loaded yet")
		return
	case poller.ItemNotFound:
		h.writeError(w, http.StatusNotFound, "waiter request not found")
		return
	}

	next, err := lifecycle.ApplyRequest(item.Value.Status)
	if err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	updated, err := h.store.UpdateWaiterRequestStatus(r.Context(), id, next)
	if err != nil {
		h.writeStoreError(w, err, "failed to update waiter request", "request_id", id)
		return
	}
	if updated == nil {
		updated = &item.Value
		updated.Status = next
	}
	h.requests.Refresh()

	h.logger.Info("waiter request advanced", "request_id", id, "table_id", item.Value.TableNumber, "to", next)
	h.writeJSON(w, http.StatusOK, newRequestView(*updated, h.now()))
}

func (h *Handler) HandleWaiters(w http.ResponseWriter, r *http.Request) {
	s := h.waiters.Snapshot()
	now := h.now()
	status := r.URL.Query().Get("status")

	counts := make(map[domain.WaiterStatus]int, len(domain.WaiterStatuses))
	for _, st := range domain.WaiterStatuses {
		counts[st] = 0
	}
	views := make([]waiterView, 0, len(s.Items))
	for _, wt := range s.Items {
		counts[wt.Status]++
		if status == "" || string(wt.Status) == status {
			views = append(views, newWaiterView(wt, now))
		}
	}
	h.writeJSON(w, http.StatusOK, waiterBoard{feed: newFeed(s, views), Counts: counts})
}

type waiterStatusRequest struct {
	Status domain.WaiterStatus `json:"status"`
}

// HandleSetWaiterStatus changes a waiter's availability. Setting the status a
// waiter already has is answered from the snapshot without a store write.
func (h *Handler) HandleSetWaiterStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid waiter id")
		return
	}
	var req waiterStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "status must be available, busy, break or offline")
		return
	}

	item := poller.Find(h.waiters.Snapshot(), func(wt domain.Waiter) bool { return wt.ID == id })
	switch item.State {
	case poller.ItemLoading:
		h.writeError(w, http.StatusServiceUnavailable, "waiters not loaded yet")
		return
	case poller.ItemNotFound:
		h.writeError(w, http.StatusNotFound, "waiter not found")
		return
	}
	if item.Value.Status == req.Status {
		h.writeJSON(w, http.StatusOK, newWaiterView(item.Value, h.now()))
		return
	}

	updated, err := h.store.UpdateWaiterStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeStoreError(w, err, "failed to update waiter status", "waiter_id", id)
		return
	}
	if updated == nil {
		updated = &item.Value
		updated.Status = req.Status
	}
	h.waiters.Refresh()

	h.logger.Info("waiter status changed", "waiter_id", id, "from", item.Value.Status, "to", req.Status)
	h.writeJSON(w, http.StatusOK, newWaiterView(*updated, h.now()))
}

func (h *Handler) HandleMenu(w http.ResponseWriter, r *http.Request) {
	s := h.menu.Snapshot()
	category := r.URL.Query().Get("category")

	items := make([]domain.MenuItem, 0, len(s.Items))
	for _, m := range s.Items {
		if !m.Available {
			continue
		}
		if category != "" && !strings.EqualFold(m.Category, category) {
			continue
		}
		items = append(items, m)
	}
	h.writeJSON(w, http.StatusOK, newFeed(s, items))
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.checkout.SubmitOrderWithPayment(r.Context(), req.Cart, req.Payment)
	if err != nil {
		var (
			verr *checkout.ValidationError
			gerr *checkout.GatewayError
			serr *checkout.SubmissionError
		)
		switch {
		case errors.As(err, &verr):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Error(), "field": verr.Field})
		case errors.As(err, &gerr):
			h.writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": gerr.Error(), "payment": gerr.Response})
		case errors.As(err, &serr):
			h.writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":          "payment received but the order could not be placed, staff have been alerted",
				"reference":      serr.Reference,
				"transaction_id": serr.Payment.TransactionID,
				"escalated":      serr.Escalated,
			})
		default:
			h.logger.Error("checkout failed", "error", err, "table_id", req.TableID)
			h.writeError(w, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	if h.trackers != nil {
		h.trackers.Track(receipt.OrderID)
	}
	h.writeJSON(w, http.StatusCreated, receipt)
}

type waiterCallRequest struct {
	Message string `json:"message"`
}

func (h *Handler) HandleCallWaiter(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	var req waiterCallRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		req.Message = defaultWaiterMessage
	}

	created, err := h.store.CreateWaiterRequest(r.Context(), domain.NewWaiterRequest{
		TableNumber: table,
		Message:     req.Message,
		Status:      domain.RequestStatusPending,
	})
	if err != nil {
		h.writeStoreError(w, err, "failed to call waiter", "table_id", table)
		return
	}

	h.bus.NotifyWaiterRequest(table, req.Message)
	if h.trackers != nil && h.trackers.ActiveForTable(table) {
		h.bus.NotifyServiceAlert(table)
	}

	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if h.trackers.Track(id) {
		h.writeJSON(w, http.StatusCreated, trackingView{State: poller.ItemLoading})
		return
	}
	h.HandleTracking(w, r)
}

func (h *Handler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	item, ok := h.trackers.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "order is not being tracked")
		return
	}

	view := trackingView{State: item.State, Stale: item.Stale}
	if item.State == poller.ItemFound {
		ov := newOrderView(item.Value, h.now())
		view.Order = &ov
		if !lifecycle.IsTerminalOrder(item.Value.Status) {
			view.EstimatedMinutes = &ov.EstimatedMinutes
		}
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleUntrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if !h.trackers.Untrack(id) {
		h.writeError(w, http.StatusNotFound, "order is not being tracked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, msg string, args ...any) {
	if remote.IsNotFound(err) {
		h.writeError(w, http.StatusNotFound, "not found in store")
		return
	}
	h.logger.Error(msg, append([]any{"error", err}, args...)...)
	h.writeError(w, http.StatusBadGateway, "store unavailable")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
