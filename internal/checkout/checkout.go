// Package checkout places an order and empties the cart as one unit of work,
// either through a Temporal workflow or inline.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
)

// Input is what the workflow needs to place one order. It carries the
// browser id, never credentials: activities resolve the API client themselves.
type Input struct {
	BrowserID       string                `json:"browser_id"`
	FarmID          int64                 `json:"farm_id,omitempty"`
	DeliveryAddress string                `json:"delivery_address"`
	PaymentMethod   string                `json:"payment_method"`
	Items           []marketapi.OrderItem `json:"items"`
	Total           float64               `json:"total"`
}

// Validate rejects inputs the marketplace would refuse anyway.
func (in Input) Validate() error {
	switch {
	case in.BrowserID == "":
		return errors.New("browser_id required")
	case in.DeliveryAddress == "":
		return ErrAddressRequired
	case len(in.Items) == 0:
		return ErrEmptyCart
	}
	return nil
}

func (in Input) order() marketapi.NewOrder {
	return marketapi.NewOrder{
		FarmID:          in.FarmID,
		DeliveryAddress: in.DeliveryAddress,
		PaymentMethod:   in.PaymentMethod,
		TotalAmount:     in.Total,
		Items:           in.Items,
	}
}

// Result describes a finished checkout.
type Result struct {
	WorkflowID  string    `json:"workflow_id,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	OrderID     int64     `json:"order_id"`
	CartCleared bool      `json:"cart_cleared"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrAddressRequired = errors.New("delivery address required")
)

// Orchestrator runs a checkout to completion.
type Orchestrator interface {
	PlaceOrder(ctx context.Context, input Input) (Result, error)
}

// OrderAPI is the slice of the marketplace client a checkout uses.
type OrderAPI interface {
	CreateOrder(ctx context.Context, order marketapi.NewOrder) (*marketapi.Order, error)
	ClearCart(ctx context.Context) error
}

// Resolver finds the API client acting for a browser.
type Resolver interface {
	OrderAPI(ctx context.Context, browserID string) (OrderAPI, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, browserID string) (OrderAPI, error)

func (f ResolverFunc) OrderAPI(ctx context.Context, browserID string) (OrderAPI, error) {
	return f(ctx, browserID)
}

// InlineOrchestrator runs both steps in the calling goroutine. It is used
// when no Temporal frontend is configured.
type InlineOrchestrator struct {
	activities *Activities
	logger     *slog.Logger
}

func NewInlineOrchestrator(resolver Resolver, logger *slog.Logger) *InlineOrchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &InlineOrchestrator{
		activities: NewActivities(resolver, logger),
		logger:     logger.With("component", "checkout.inline"),
	}
}

func (o *InlineOrchestrator) PlaceOrder(ctx context.Context, input Input) (Result, error) {
	result := Result{StartedAt: time.Now().UTC()}
	if err := input.Validate(); err != nil {
		return result, err
	}
	orderID, err := o.activities.PlaceOrderActivity(ctx, input)
	if err != nil {
		return result, unwrapActivityError(err)
	}
	result.OrderID = orderID
	if err := o.activities.ClearCartActivity(ctx, input); err != nil {
		o.logger.Warn("order placed but cart not cleared", "browser_id", input.BrowserID, "order_id", orderID, "error", err)
	} else {
		result.CartCleared = true
	}
	result.CompletedAt = time.Now().UTC()
	return result, nil
}

// unwrapActivityError restores the client error hidden behind a
// non-retryable application error so callers can use errors.Is/As.
func unwrapActivityError(err error) error {
	var rejected *orderRejected
	if errors.As(err, &rejected) {
		return rejected.cause
	}
	return err
}

type orderRejected struct {
	cause error
}

func (e *orderRejected) Error() string { return marketapi.Message(e.cause) }
func (e *orderRejected) Unwrap() error { return e.cause }

// retryable reports whether a failed API call is worth another attempt.
func retryable(err error) bool {
	if marketapi.Surfaced(err) && !errors.Is(err, marketapi.ErrUnreachable) {
		return false
	}
	var apiErr *marketapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

func describe(input Input) string {
	return fmt.Sprintf("browser %s, %d items", input.BrowserID, len(input.Items))
}
