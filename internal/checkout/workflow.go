package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
)

const (
	TaskQueue                 = "farmstand-checkout"
	workflowName              = "farmstand.checkout"
	placeOrderActivityName    = "farmstand.checkout.place_order"
	clearCartActivityName     = "farmstand.checkout.clear_cart"
	errTypeOrderRejected      = "OrderRejected"
	errTypeBrowserUnavailable = "BrowserUnavailable"
	errTypeSessionExpired     = "SessionExpired"
	errTypeAccessDenied       = "AccessDenied"
	errTypeUnreachable        = "Unreachable"
)

// surfacedTypes maps the error types of failures the client hooks already
// reported back to the client sentinels.
var surfacedTypes = map[string]error{
	errTypeSessionExpired: marketapi.ErrSessionExpired,
	errTypeAccessDenied:   marketapi.ErrForbidden,
	errTypeUnreachable:    marketapi.ErrUnreachable,
}

// Activities perform the marketplace calls of a checkout.
type Activities struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewActivities(resolver Resolver, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Activities{resolver: resolver, logger: logger.With("component", "checkout.activities")}
}

// PlaceOrderActivity posts the order and returns its id (0 when the API did
// not echo one).
func (a *Activities) PlaceOrderActivity(ctx context.Context, input Input) (int64, error) {
	api, err := a.resolver.OrderAPI(ctx, input.BrowserID)
	if err != nil {
		return 0, temporal.NewNonRetryableApplicationError(err.Error(), errTypeBrowserUnavailable, err)
	}
	order, err := api.CreateOrder(ctx, input.order())
	if err != nil {
		a.logger.Error("place order failed", "input", describe(input), "error", err)
		return 0, activityError(err)
	}
	var id int64
	if order != nil {
		id = order.ID
	}
	a.logger.Info("order placed", "input", describe(input), "order_id", id)
	return id, nil
}

// ClearCartActivity empties the server-side cart after a placed order.
func (a *Activities) ClearCartActivity(ctx context.Context, input Input) error {
	api, err := a.resolver.OrderAPI(ctx, input.BrowserID)
	if err != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeBrowserUnavailable, err)
	}
	if err := api.ClearCart(ctx); err != nil {
		a.logger.Warn("clear cart failed", "browser_id", input.BrowserID, "error", err)
		return activityError(err)
	}
	return nil
}

// activityError classifies a failed marketplace call. Failures the client
// hooks already surfaced get a type of their own so workflowError can restore
// the sentinel; other client errors are rejections; server errors stay plain
// and retryable.
func activityError(err error) error {
	cause := &orderRejected{cause: err}
	msg := marketapi.Message(err)
	switch {
	case errors.Is(err, marketapi.ErrSessionExpired):
		return temporal.NewNonRetryableApplicationError(msg, errTypeSessionExpired, cause)
	case errors.Is(err, marketapi.ErrForbidden):
		return temporal.NewNonRetryableApplicationError(msg, errTypeAccessDenied, cause)
	case errors.Is(err, marketapi.ErrUnreachable):
		return temporal.NewApplicationErrorWithCause(msg, errTypeUnreachable, cause)
	case !retryable(err):
		return temporal.NewNonRetryableApplicationError(msg, errTypeOrderRejected, cause)
	}
	return err
}

// Workflow places the order and then clears the cart. A failed clear does
// not undo the order; the result reports it instead.
func Workflow(ctx workflow.Context, input Input) (Result, error) {
	logger := workflow.GetLogger(ctx)
	result := Result{StartedAt: workflow.Now(ctx)}
	if err := input.Validate(); err != nil {
		return result, temporal.NewNonRetryableApplicationError(err.Error(), errTypeOrderRejected, err)
	}

	// POST /orders is not idempotent: one attempt only.
	placeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	if err := workflow.ExecuteActivity(placeCtx, placeOrderActivityName, input).Get(ctx, &result.OrderID); err != nil {
		logger.Error("place order activity failed", "browser_id", input.BrowserID, "error", err)
		return result, err
	}

	clearCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        10 * time.Second,
			NonRetryableErrorTypes: []string{errTypeOrderRejected, errTypeBrowserUnavailable, errTypeSessionExpired, errTypeAccessDenied},
		},
	})
	if err := workflow.ExecuteActivity(clearCtx, clearCartActivityName, input).Get(ctx, nil); err != nil {
		logger.Warn("clear cart activity failed", "browser_id", input.BrowserID, "error", err)
	} else {
		result.CartCleared = true
	}

	result.CompletedAt = workflow.Now(ctx)
	logger.Info("checkout workflow finished", "browser_id", input.BrowserID, "order_id", result.OrderID, "cart_cleared", result.CartCleared)
	return result, nil
}

// RegisterWorker wires the checkout workflow and activities onto the task queue.
func RegisterWorker(c client.Client, resolver Resolver, logger *slog.Logger) temporalworker.Worker {
	w := temporalworker.New(c, TaskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: workflowName})
	activities := NewActivities(resolver, logger)
	w.RegisterActivityWithOptions(activities.PlaceOrderActivity, activity.RegisterOptions{Name: placeOrderActivityName})
	w.RegisterActivityWithOptions(activities.ClearCartActivity, activity.RegisterOptions{Name: clearCartActivityName})
	return w
}

// TemporalOrchestrator starts the checkout workflow and waits for it.
type TemporalOrchestrator struct {
	client client.Client
	logger *slog.Logger
}

func NewTemporalOrchestrator(c client.Client, logger *slog.Logger) *TemporalOrchestrator {
	return &TemporalOrchestrator{client: c, logger: logger.With("component", "checkout.orchestrator")}
}

func (o *TemporalOrchestrator) PlaceOrder(ctx context.Context, input Input) (Result, error) {
	if err := input.Validate(); err != nil {
		return Result{}, err
	}
	options := client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("checkout-%s-%s", input.BrowserID, uuid.NewString()),
		TaskQueue:                TaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionTimeout: 5 * time.Minute,
	}
	we, err := o.client.ExecuteWorkflow(ctx, options, workflowName, input)
	if err != nil {
		o.logger.Error("start checkout workflow failed", "browser_id", input.BrowserID, "error", err)
		return Result{}, err
	}
	var result Result
	err = we.Get(ctx, &result)
	result.WorkflowID = we.GetID()
	result.RunID = we.GetRunID()
	if err != nil {
		o.logger.Error("checkout workflow failed", "workflow_id", result.WorkflowID, "error", err)
		return result, workflowError(err)
	}
	o.logger.Info("checkout workflow completed", "workflow_id", result.WorkflowID, "order_id", result.OrderID)
	return result, nil
}

// workflowError reduces a workflow failure to what the shopper should see:
// the client sentinel when the hooks already reported it, otherwise the
// message the marketplace gave.
func workflowError(err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}
	if sentinel, ok := surfacedTypes[appErr.Type()]; ok {
		return fmt.Errorf("%w: %s", sentinel, appErr.Message())
	}
	if appErr.Message() != "" {
		return errors.New(appErr.Message())
	}
	return err
}
