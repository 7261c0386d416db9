package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/sim/internal/testutil"
)

func TestOrder_Transition(t *testing.T) {
	tests := []struct {
		from, to OrderState
		legal    bool
	}{
		{OrderNew, OrderPending, true},
		{OrderPending, OrderAcknowledged, true},
		{OrderPending, OrderRejected, true},
		{OrderAcknowledged, OrderPartiallyFilled, true},
		{OrderPartiallyFilled, OrderPartiallyFilled, true},
		{OrderPartiallyFilled, OrderAcknowledged, true},
		{OrderPartiallyFilled, OrderFilled, true},
		{OrderAcknowledged, OrderCancelled, true},
		{OrderNew, OrderAcknowledged, false},
		{OrderNew, OrderFilled, false},
		{OrderPending, OrderFilled, false},
		{OrderAcknowledged, OrderRejected, false},
		{OrderFilled, OrderCancelled, false},
		{OrderCancelled, OrderAcknowledged, false},
		{OrderRejected, OrderPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			o := &Order{ID: "o-1", State: tt.from, Quantity: testutil.D("1")}
			err := o.Transition(tt.to)
			if tt.legal {
				require.NoError(t, err)
				assert.Equal(t, tt.to, o.State)
				return
			}
			var te *TransitionError
			require.True(t, errors.As(err, &te), "want *TransitionError, got %v", err)
			assert.Equal(t, tt.from, te.From)
			assert.Equal(t, tt.from, o.State, "illegal transition must not mutate")
		})
	}
}

func TestOrderState_TerminalStatesHaveNoExits(t *testing.T) {
	all := []OrderState{OrderNew, OrderPending, OrderAcknowledged, OrderPartiallyFilled, OrderFilled, OrderCancelled, OrderRejected}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestOrder_RemainingAndView(t *testing.T) {
	o := &Order{ID: "o-7", Tag: "bid", Quantity: testutil.D("3"), Filled: testutil.D("1.25"), State: OrderPartiallyFilled}
	assert.True(t, o.Remaining().Equal(testutil.D("1.75")))
	v := o.View()
	o.Filled = testutil.D("3")
	assert.True(t, v.Remaining().Equal(testutil.D("1.75")), "view is a copy")
	assert.Equal(t, "bid", v.Tag)
	assert.False(t, v.Terminal())
}
