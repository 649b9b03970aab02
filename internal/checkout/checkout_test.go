package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"example.com/farmstand/internal/marketapi"
)

type fakeOrderAPI struct {
	mu        sync.Mutex
	orders    []marketapi.NewOrder
	clears    int
	createErr error
	clearErr  error
}

func (f *fakeOrderAPI) CreateOrder(_ context.Context, order marketapi.NewOrder) (*marketapi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.orders = append(f.orders, order)
	return &marketapi.Order{ID: int64(len(f.orders))}, nil
}

func (f *fakeOrderAPI) ClearCart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return f.clearErr
}

func resolverFor(api *fakeOrderAPI) Resolver {
	return ResolverFunc(func(_ context.Context, browserID string) (OrderAPI, error) {
		if browserID != "b1" {
			return nil, fmt.Errorf("unknown browser %s", browserID)
		}
		return api, nil
	})
}

func validInput() Input {
	return Input{
		BrowserID:       "b1",
		DeliveryAddress: "Main 1",
		PaymentMethod:   "card",
		Items:           []marketapi.OrderItem{{ProductID: 1, Quantity: 2, UnitPrice: 3}},
		Total:           6,
	}
}

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
	api *fakeOrderAPI
}

func (s *WorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.api = &fakeOrderAPI{}
	a := NewActivities(resolverFor(s.api), nil)
	s.env.RegisterActivityWithOptions(a.PlaceOrderActivity, activity.RegisterOptions{Name: placeOrderActivityName})
	s.env.RegisterActivityWithOptions(a.ClearCartActivity, activity.RegisterOptions{Name: clearCartActivityName})
}

func (s *WorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *WorkflowSuite) TestPlacesOrderThenClearsCart() {
	s.env.ExecuteWorkflow(Workflow, validInput())

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var result Result
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(int64(1), result.OrderID)
	s.True(result.CartCleared)
	s.Len(s.api.orders, 1)
	s.Equal("Main 1", s.api.orders[0].DeliveryAddress)
	s.Equal(1, s.api.clears)
}

func (s *WorkflowSuite) TestRejectedOrderSkipsClear() {
	s.api.createErr = &marketapi.APIError{Status: 422, Message: "out of stock"}
	s.env.ExecuteWorkflow(Workflow, validInput())

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "out of stock")
	s.Zero(s.api.clears)

	shown := workflowError(err)
	s.Equal("out of stock", shown.Error())
	s.False(marketapi.Surfaced(shown))
}

func (s *WorkflowSuite) TestClearFailureKeepsOrder() {
	s.api.clearErr = &marketapi.APIError{Status: 400, Message: "nope"}
	s.env.ExecuteWorkflow(Workflow, validInput())

	s.NoError(s.env.GetWorkflowError())
	var result Result
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(int64(1), result.OrderID)
	s.False(result.CartCleared)
}

func (s *WorkflowSuite) TestEmptyCartNeverCallsAPI() {
	in := validInput()
	in.Items = nil
	s.env.ExecuteWorkflow(Workflow, in)

	s.Error(s.env.GetWorkflowError())
	s.Empty(s.api.orders)
}

func TestWorkflowError_RestoresSurfacedSentinels(t *testing.T) {
	for _, sentinel := range []error{marketapi.ErrSessionExpired, marketapi.ErrForbidden, marketapi.ErrUnreachable} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			var ts testsuite.WorkflowTestSuite
			env := ts.NewTestWorkflowEnvironment()
			api := &fakeOrderAPI{createErr: fmt.Errorf("%w: POST /orders", sentinel)}
			a := NewActivities(resolverFor(api), nil)
			env.RegisterActivityWithOptions(a.PlaceOrderActivity, activity.RegisterOptions{Name: placeOrderActivityName})
			env.RegisterActivityWithOptions(a.ClearCartActivity, activity.RegisterOptions{Name: clearCartActivityName})

			env.ExecuteWorkflow(Workflow, validInput())

			require.True(t, env.IsWorkflowCompleted())
			err := workflowError(env.GetWorkflowError())
			assert.ErrorIs(t, err, sentinel)
			assert.True(t, marketapi.Surfaced(err), "the hooks already reported it")
			assert.Empty(t, api.orders)
			assert.Zero(t, api.clears)
		})
	}
}

func TestActivityError_Types(t *testing.T) {
	cases := []struct {
		err       error
		errType   string
		retryable bool
	}{
		{marketapi.ErrSessionExpired, errTypeSessionExpired, false},
		{marketapi.ErrForbidden, errTypeAccessDenied, false},
		{fmt.Errorf("%w: GET /cart", marketapi.ErrUnreachable), errTypeUnreachable, true},
		{&marketapi.APIError{Status: 422, Message: "out of stock"}, errTypeOrderRejected, false},
	}
	for _, tc := range cases {
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, activityError(tc.err), &appErr)
		assert.Equal(t, tc.errType, appErr.Type())
		assert.Equal(t, !tc.retryable, appErr.NonRetryable())
		assert.ErrorIs(t, unwrapActivityError(appErr), tc.err)
	}

	plain := &marketapi.APIError{Status: 503, Message: "busy"}
	assert.Same(t, plain, activityError(plain))
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func TestInlineOrchestrator(t *testing.T) {
	api := &fakeOrderAPI{}
	o := NewInlineOrchestrator(resolverFor(api), nil)

	result, err := o.PlaceOrder(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.OrderID)
	assert.True(t, result.CartCleared)
}

func TestInlineOrchestrator_Validation(t *testing.T) {
	api := &fakeOrderAPI{}
	o := NewInlineOrchestrator(resolverFor(api), nil)

	in := validInput()
	in.Items = nil
	_, err := o.PlaceOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmptyCart)

	in = validInput()
	in.DeliveryAddress = ""
	_, err = o.PlaceOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrAddressRequired)
	assert.Empty(t, api.orders)
}

func TestInlineOrchestrator_PreservesClientErrors(t *testing.T) {
	api := &fakeOrderAPI{createErr: &marketapi.APIError{Status: 400, Message: "bad address"}}
	o := NewInlineOrchestrator(resolverFor(api), nil)

	_, err := o.PlaceOrder(context.Background(), validInput())
	var apiErr *marketapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad address", marketapi.Message(err))

	api.createErr = fmt.Errorf("%w: POST /orders", marketapi.ErrUnreachable)
	_, err = o.PlaceOrder(context.Background(), validInput())
	assert.True(t, errors.Is(err, marketapi.ErrUnreachable))
	assert.Zero(t, api.clears)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(fmt.Errorf("%w: x", marketapi.ErrUnreachable)))
	assert.True(t, retryable(&marketapi.APIError{Status: 503}))
	assert.False(t, retryable(&marketapi.APIError{Status: 409}))
	assert.False(t, retryable(marketapi.ErrSessionExpired))
}
