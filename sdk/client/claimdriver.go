package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codedrop-io/codedrop/internal/domain/claim"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
)

// ErrClaimInFlight is returned when a claim for the same code is already
// running or already resolved on this client.
var ErrClaimInFlight = errors.New("claim already in flight or resolved")

// ErrNothingToReport is returned by Report when the code has no outcome
// awaiting delivery.
var ErrNothingToReport = errors.New("no unreported outcome for code")

// AttemptResult is what an AttemptFunc learned from trying a code.
type AttemptResult struct {
	Success bool
	Reason  string
	Value   string
}

// AttemptFunc performs the actual claim against the target site.
type AttemptFunc func(ctx context.Context, code live.CodePayload) (AttemptResult, error)

// ClaimReporter sends an outcome to the server.
type ClaimReporter interface {
	ReportClaim(ctx context.Context, r ClaimReport) (live.ClaimAck, error)
}

// ClaimDriver runs claim attempts at most once per code on this client and
// reports each resolved outcome. *Client satisfies ClaimReporter.
type ClaimDriver struct {
	coordinator *claim.Coordinator
	reporter    ClaimReporter
	accountID   func() string
	source      string

	pendingMu sync.Mutex
	pending   map[string]ClaimReport // token -> report the server has not acknowledged
}

// NewClaimDriver creates a driver. accountID supplies the account the
// outcomes are recorded under locally; lockTTL bounds an unfinished attempt.
func NewClaimDriver(reporter ClaimReporter, accountID func() string, source string, lockTTL time.Duration, clock shared.Clock) *ClaimDriver {
	return &ClaimDriver{
		coordinator: claim.NewCoordinator(lockTTL, clock),
		reporter:    reporter,
		accountID:   accountID,
		source:      source,
		pending:     make(map[string]ClaimReport),
	}
}

// Claim attempts code once. A failing attempt releases the lock so the code
// can be tried again; a resolved attempt is reported to the server. If that
// report fails the outcome stays recorded and Report re-sends it.
func (d *ClaimDriver) Claim(ctx context.Context, code live.CodePayload, attempt AttemptFunc) (live.ClaimAck, error) {
	token := strings.ToUpper(strings.TrimSpace(code.Token))
	account := d.accountID()

	if !d.coordinator.AttemptClaim(token, account) {
		return live.ClaimAck{}, ErrClaimInFlight
	}

	result, err := attempt(ctx, code)
	if err != nil {
		d.coordinator.Release(token, account)
		return live.ClaimAck{}, fmt.Errorf("claim attempt for %s: %w", token, err)
	}

	outcome, applied, err := d.coordinator.RecordOutcome(token, account, claim.ResultFromBool(result.Success), result.Reason)
	if err != nil {
		return live.ClaimAck{}, err
	}
	if !applied {
		return live.ClaimAck{
			Type:   live.TypeClaimAck,
			Code:   token,
			Result: string(outcome.Result),
			Reason: outcome.Reason,
		}, ErrClaimInFlight
	}

	return d.send(ctx, ClaimReport{
		Code:    token,
		Success: result.Success,
		Reason:  result.Reason,
		Value:   result.Value,
		Source:  d.source,
	})
}

// Report re-sends the outcome of token after a failed report.
func (d *ClaimDriver) Report(ctx context.Context, token string) (live.ClaimAck, error) {
	token = strings.ToUpper(strings.TrimSpace(token))

	d.pendingMu.Lock()
	r, ok := d.pending[token]
	d.pendingMu.Unlock()
	if !ok {
		return live.ClaimAck{}, ErrNothingToReport
	}
	return d.send(ctx, r)
}

// Pending lists the codes whose outcome has not reached the server.
func (d *ClaimDriver) Pending() []string {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	tokens := make([]string, 0, len(d.pending))
	for token := range d.pending {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func (d *ClaimDriver) send(ctx context.Context, r ClaimReport) (live.ClaimAck, error) {
	ack, err := d.reporter.ReportClaim(ctx, r)

	d.pendingMu.Lock()
	if err != nil {
		d.pending[r.Code] = r
	} else {
		delete(d.pending, r.Code)
	}
	d.pendingMu.Unlock()

	if err != nil {
		return ack, fmt.Errorf("report claim for %s: %w", r.Code, err)
	}
	return ack, nil
}

// Outcome returns the locally recorded outcome for token.
func (d *ClaimDriver) Outcome(token string) (claim.Outcome, bool) {
	return d.coordinator.Outcome(strings.ToUpper(strings.TrimSpace(token)), d.accountID())
}
