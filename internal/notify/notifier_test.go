package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"binwatch/internal/external"
	"binwatch/internal/types"
)

// --- Mock implementations ---

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, recipient string, vars external.TemplateVars) (*external.SendResult, error) {
	args := m.Called(ctx, recipient, vars)
	if r := args.Get(0); r != nil {
		return r.(*external.SendResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeConnector reports a fixed link state and can block EnsureConnected
// until released.
type fakeConnector struct {
	connected atomic.Bool
	ensures   atomic.Int32
	release   chan struct{}
	err       error
}

func (f *fakeConnector) Connected(context.Context) bool { return f.connected.Load() }

func (f *fakeConnector) EnsureConnected(ctx context.Context) error {
	f.ensures.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.connected.Store(true)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Tests ---

func TestNotify_SendsLabelAndFill(t *testing.T) {
	sender := new(mockSender)
	conn := &fakeConnector{}
	conn.connected.Store(true)

	n := New(Config{Recipient: "+919876543210", Label: "Smart Bin", Sender: sender, Connector: conn, Logger: discardLogger()})

	sender.On("Send",
		mock.MatchedBy(func(ctx context.Context) bool { return types.GetRequestID(ctx) != "" }),
		"+919876543210",
		external.TemplateVars{Var1: "Smart Bin", Var2: "85"},
	).Return(&external.SendResult{StatusCode: 200}, nil).Once()

	require.NoError(t, n.Notify(context.Background(), 85))
	sender.AssertExpectations(t)
}

func TestNotify_FreshRequestIDPerAttempt(t *testing.T) {
	sender := new(mockSender)
	var ids []string
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ids = append(ids, types.GetRequestID(args.Get(0).(context.Context)))
		}).
		Return(&external.SendResult{StatusCode: 200}, nil)

	n := New(Config{Sender: sender, Logger: discardLogger()})
	require.NoError(t, n.Notify(context.Background(), 80))
	require.NoError(t, n.Notify(context.Background(), 90))

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestNotify_SendErrorReturnedWithoutRetry(t *testing.T) {
	sender := new(mockSender)
	sendErr := types.NewAppErrorWithDetails(types.ErrCodeUpstreamSMSRejected, "rejected", nil, map[string]any{"status": 400})
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, sendErr).Once()

	n := New(Config{Sender: sender, Logger: discardLogger()})
	ctx := types.WithCycleID(context.Background(), "cycle-7")
	err := n.Notify(ctx, 99)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamSMSRejected, appErr.Code)
	assert.Equal(t, 400, appErr.Details["status"])
	assert.Equal(t, "cycle-7", appErr.Details["cycle_id"])
	assert.Equal(t, 99, appErr.Details["fill_percent"])
	assert.NotEmpty(t, appErr.Details["request_id"])
	assert.Len(t, sendErr.Details, 1, "original error left untouched")
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestNotify_PlainSendErrorPassedThrough(t *testing.T) {
	sender := new(mockSender)
	sendErr := errors.New("boom")
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, sendErr).Once()

	n := New(Config{Sender: sender, Logger: discardLogger()})

	assert.ErrorIs(t, n.Notify(context.Background(), 90), sendErr)
}

func TestNotify_OfflineStartsOneBackgroundReconnect(t *testing.T) {
	sender := new(mockSender)
	conn := &fakeConnector{release: make(chan struct{})}
	n := New(Config{Sender: sender, Connector: conn, Logger: discardLogger()})

	err := n.Notify(context.Background(), 81)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, types.ErrCodeNetworkNotConnected, types.CodeOf(err))

	// A second offline attempt while the first reconnect is pending must not
	// start another one.
	err = n.Notify(context.Background(), 82)
	assert.ErrorIs(t, err, ErrNotConnected)

	close(conn.release)
	n.Wait()

	assert.Equal(t, int32(1), conn.ensures.Load())
	assert.True(t, conn.connected.Load())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotify_ReconnectCanRunAgainAfterFailure(t *testing.T) {
	conn := &fakeConnector{err: errors.New("association failed")}
	n := New(Config{Sender: new(mockSender), Connector: conn, Logger: discardLogger()})

	_ = n.Notify(context.Background(), 90)
	n.Wait()
	_ = n.Notify(context.Background(), 90)
	n.Wait()

	assert.Equal(t, int32(2), conn.ensures.Load())
}

func TestNotify_ReconnectStopsWithContext(t *testing.T) {
	conn := &fakeConnector{release: make(chan struct{})}
	n := New(Config{Sender: new(mockSender), Connector: conn, Logger: discardLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	_ = n.Notify(ctx, 90)
	cancel()
	n.Wait()

	assert.False(t, conn.connected.Load())
}
