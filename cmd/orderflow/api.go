package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow-go/contracts"
	"github.com/orderflow/orderflow-go/health"
	"github.com/orderflow/orderflow-go/messaging"
)

// statusEvents maps a target order status to the event type published
// for it; the event type doubles as the routing key.
var statusEvents = map[contracts.OrderStatus]string{
	contracts.StatusProcessing:      contracts.EventOrderProcessing,
	contracts.StatusPaymentVerified: contracts.EventPaymentVerified,
	contracts.StatusShipped:         contracts.EventOrderShipped,
	contracts.StatusDelivered:       contracts.EventOrderDelivered,
	contracts.StatusCancelled:       contracts.EventOrderCancelled,
}

type api struct {
	publisher *messaging.EventPublisher
	checker   *health.BrokerChecker
	logger    *slog.Logger
}

func newAPI(publisher *messaging.EventPublisher, checker *health.BrokerChecker, logger *slog.Logger) *api {
	return &api{publisher: publisher, checker: checker, logger: logger}
}

type createOrderRequest struct {
	CustomerName string `json:"customerName"`
	ProductName  string `json:"productName"`
	Quantity     int    `json:"quantity"`
	TotalAmount  string `json:"totalAmount"`
}

func (a *api) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CustomerName == "" || req.ProductName == "" || req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "customerName, productName and a non-negative quantity are required")
		return
	}
	amount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "totalAmount must be a non-negative decimal")
		return
	}

	order := &contracts.Order{
		ID:           uuid.New(),
		CustomerName: req.CustomerName,
		ProductName:  req.ProductName,
		Quantity:     req.Quantity,
		TotalAmount:  amount,
		Status:       contracts.StatusCreated,
		CreatedAt:    time.Now().UTC(),
	}
	event := contracts.NewOrderEvent(order.ID, contracts.EventOrderCreated, order, "order created")

	if err := a.publisher.Publish(r.Context(), event, contracts.EventOrderCreated); err != nil {
		writeError(w, http.StatusBadGateway, "failed to publish order event")
		return
	}

	writeJSON(w, http.StatusAccepted, order)
}

type changeStatusRequest struct {
	From contracts.OrderStatus `json:"from"`
	To   contracts.OrderStatus `json:"to"`
}

func (a *api) changeStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.From.CanTransitionTo(req.To) {
		writeError(w, http.StatusBadRequest, "invalid status transition")
		return
	}

	eventType, ok := statusEvents[req.To]
	if !ok {
		writeError(w, http.StatusBadRequest, "no event defined for target status")
		return
	}

	event := contracts.NewOrderEvent(orderID, eventType, nil, "order status changed to "+string(req.To))
	if err := a.publisher.Publish(r.Context(), event, eventType); err != nil {
		writeError(w, http.StatusBadGateway, "failed to publish order event")
		return
	}

	writeJSON(w, http.StatusAccepted, event)
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	result := a.checker.Check()
	code := http.StatusOK
	if result.Status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
