package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/domain/claim"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
)

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) ReportClaim(ctx context.Context, r ClaimReport) (live.ClaimAck, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(live.ClaimAck), args.Error(1)
}

func newDriver(reporter ClaimReporter) *ClaimDriver {
	return NewClaimDriver(reporter, func() string { return "acc-1" }, "sdk", time.Minute, nil)
}

func TestClaimDriver_ReportsOutcomeOnce(t *testing.T) {
	reporter := new(mockReporter)
	want := ClaimReport{Code: "PROMO", Success: true, Value: "$5", Source: "sdk"}
	reporter.On("ReportClaim", mock.Anything, want).
		Return(live.ClaimAck{Code: "PROMO", Applied: true, Result: "success"}, nil).Once()

	d := newDriver(reporter)
	attempt := func(context.Context, live.CodePayload) (AttemptResult, error) {
		return AttemptResult{Success: true, Value: "$5"}, nil
	}

	ack, err := d.Claim(context.Background(), live.CodePayload{Token: "promo"}, attempt)
	require.NoError(t, err)
	assert.True(t, ack.Applied)

	outcome, ok := d.Outcome("promo")
	require.True(t, ok)
	assert.Equal(t, claim.ResultSuccess, outcome.Result)

	_, err = d.Claim(context.Background(), live.CodePayload{Token: "PROMO"}, attempt)
	assert.ErrorIs(t, err, ErrClaimInFlight)

	reporter.AssertExpectations(t)
}

func TestClaimDriver_FailedAttemptCanRetry(t *testing.T) {
	reporter := new(mockReporter)
	reporter.On("ReportClaim", mock.Anything, mock.MatchedBy(func(r ClaimReport) bool {
		return r.Code == "RETRY" && !r.Success && r.Reason == "limit reached"
	})).Return(live.ClaimAck{Code: "RETRY", Applied: true, Result: "rejected"}, nil).Once()

	d := newDriver(reporter)

	_, err := d.Claim(context.Background(), live.CodePayload{Token: "RETRY"},
		func(context.Context, live.CodePayload) (AttemptResult, error) {
			return AttemptResult{}, errors.New("network down")
		})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrClaimInFlight)
	reporter.AssertNotCalled(t, "ReportClaim", mock.Anything, mock.Anything)

	ack, err := d.Claim(context.Background(), live.CodePayload{Token: "RETRY"},
		func(context.Context, live.CodePayload) (AttemptResult, error) {
			return AttemptResult{Success: false, Reason: "limit reached"}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "rejected", ack.Result)

	reporter.AssertExpectations(t)
}

func TestClaimDriver_ConcurrentClaimsAttemptOnce(t *testing.T) {
	reporter := new(mockReporter)
	reporter.On("ReportClaim", mock.Anything, mock.Anything).
		Return(live.ClaimAck{Code: "RACE", Applied: true, Result: "success"}, nil).Once()

	d := newDriver(reporter)
	var attempts atomic.Int32
	release := make(chan struct{})
	attempt := func(context.Context, live.CodePayload) (AttemptResult, error) {
		attempts.Add(1)
		<-release
		return AttemptResult{Success: true}, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	var inFlight atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Claim(context.Background(), live.CodePayload{Token: "RACE"}, attempt); errors.Is(err, ErrClaimInFlight) {
				inFlight.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return inFlight.Load() == workers-1 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), attempts.Load())
	reporter.AssertExpectations(t)
}

func TestClaimDriver_ReportResendsAfterFailure(t *testing.T) {
	reporter := new(mockReporter)
	want := ClaimReport{Code: "LATE", Success: true, Value: "$2", Source: "sdk"}
	reporter.On("ReportClaim", mock.Anything, want).
		Return(live.ClaimAck{}, errors.New("network down")).Once()
	reporter.On("ReportClaim", mock.Anything, want).
		Return(live.ClaimAck{Code: "LATE", Applied: true, Result: "success"}, nil).Once()

	d := newDriver(reporter)
	var attempts int32
	attempt := func(context.Context, live.CodePayload) (AttemptResult, error) {
		atomic.AddInt32(&attempts, 1)
		return AttemptResult{Success: true, Value: "$2"}, nil
	}

	_, err := d.Claim(context.Background(), live.CodePayload{Token: "late"}, attempt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
	assert.Equal(t, []string{"LATE"}, d.Pending())

	_, err = d.Claim(context.Background(), live.CodePayload{Token: "LATE"}, attempt)
	assert.ErrorIs(t, err, ErrClaimInFlight)

	ack, err := d.Report(context.Background(), " late ")
	require.NoError(t, err)
	assert.True(t, ack.Applied)
	assert.Empty(t, d.Pending())
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))

	_, err = d.Report(context.Background(), "LATE")
	assert.ErrorIs(t, err, ErrNothingToReport)

	reporter.AssertExpectations(t)
}
