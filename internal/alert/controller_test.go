package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"binwatch/internal/fill"
	"binwatch/internal/types"
)

// --- Mock implementations ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, fill int) error {
	args := m.Called(ctx, fill)
	return args.Error(0)
}

type fakeOutput struct {
	on     bool
	writes int
	err    error
}

func (f *fakeOutput) Set(on bool) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	f.on = on
	return nil
}

func (f *fakeOutput) Level() bool { return f.on }

// --- Helper ---

func newTestController(n Notifier) (*Controller, *fakeOutput, *fakeOutput) {
	green, red := &fakeOutput{}, &fakeOutput{}
	c := NewController(ControllerConfig{
		Threshold: 80,
		Normal:    green,
		Full:      red,
		Notifier:  n,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return c, green, red
}

// --- Tests ---

func TestController_Init(t *testing.T) {
	c, green, red := newTestController(new(mockNotifier))

	require.NoError(t, c.Init(context.Background()))

	assert.True(t, green.on)
	assert.False(t, red.on)
	assert.Equal(t, Initial(), c.Snapshot())
}

func TestController_DefaultThreshold(t *testing.T) {
	c := NewController(ControllerConfig{})
	assert.Equal(t, DefaultThreshold, c.Threshold())
}

func TestController_EpisodeSequence(t *testing.T) {
	ctx := context.Background()
	notifier := new(mockNotifier)
	c, green, red := newTestController(notifier)
	est := fill.Estimator{HeightCM: 26}

	percent := func(distance int) int {
		return est.Estimate(types.Reading{DistanceCM: distance}).Percent
	}

	notifier.On("Notify", ctx, percent(5)).Return(nil).Twice()

	// Distance 5: crosses the threshold, one notification.
	tr, err := c.Apply(ctx, percent(5))
	require.NoError(t, err)
	assert.Equal(t, types.BinStateNormal, tr.From)
	assert.Equal(t, types.BinStateFull, tr.To)
	assert.True(t, tr.Changed())
	assert.True(t, tr.Notified)
	assert.NoError(t, tr.NotifyErr)
	assert.True(t, tr.AlertSent)
	assert.True(t, red.on)
	assert.False(t, green.on)

	// Distance 4: still full, no second notification.
	tr, err = c.Apply(ctx, percent(4))
	require.NoError(t, err)
	assert.False(t, tr.Changed())
	assert.False(t, tr.Notified)
	assert.True(t, c.Snapshot().AlertSent)

	// Distance 26: empty, the episode ends.
	tr, err = c.Apply(ctx, percent(26))
	require.NoError(t, err)
	assert.Equal(t, types.BinStateNormal, tr.To)
	assert.Equal(t, 0, tr.Fill)
	assert.False(t, tr.Notified)
	assert.False(t, c.Snapshot().AlertSent)
	assert.True(t, green.on)
	assert.False(t, red.on)

	// Distance 5 again: a new episode, a new notification.
	tr, err = c.Apply(ctx, percent(5))
	require.NoError(t, err)
	assert.True(t, tr.Notified)

	notifier.AssertNumberOfCalls(t, "Notify", 2)
	notifier.AssertExpectations(t)
}

func TestController_FailedNotificationIsNotRetried(t *testing.T) {
	ctx := context.Background()
	notifier := new(mockNotifier)
	c, _, _ := newTestController(notifier)

	sendErr := errors.New("upstream down")
	notifier.On("Notify", ctx, 90).Return(sendErr).Once()

	tr, err := c.Apply(ctx, 90)
	require.NoError(t, err)
	assert.True(t, tr.Notified)
	assert.ErrorIs(t, tr.NotifyErr, sendErr)
	assert.True(t, tr.AlertSent)

	for range 5 {
		tr, err = c.Apply(ctx, 95)
		require.NoError(t, err)
		assert.False(t, tr.Notified)
	}

	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestController_IndicatorsRewrittenEveryCycle(t *testing.T) {
	ctx := context.Background()
	c, green, red := newTestController(new(mockNotifier))

	for range 3 {
		_, err := c.Apply(ctx, 10)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, green.writes)
	assert.Equal(t, 3, red.writes)
}

func TestController_IndicatorFailureStillAdvances(t *testing.T) {
	ctx := context.Background()
	notifier := new(mockNotifier)
	c, _, red := newTestController(notifier)
	red.err = errors.New("pin busy")
	notifier.On("Notify", ctx, 85).Return(nil).Once()

	tr, err := c.Apply(ctx, 85)

	require.Error(t, err)
	assert.Equal(t, types.ErrCodeIndicatorWriteFailed, types.CodeOf(err))
	assert.True(t, tr.Notified)
	assert.Equal(t, types.BinStateFull, c.Snapshot().State)
	notifier.AssertExpectations(t)
}

func TestController_NilNotifier(t *testing.T) {
	c, _, _ := newTestController(nil)

	tr, err := c.Apply(context.Background(), 100)

	require.NoError(t, err)
	assert.True(t, tr.Notified)
	assert.Error(t, tr.NotifyErr)
	assert.True(t, c.Snapshot().AlertSent)
}
