package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/voxwatch/voxwatch/internal/domain"
	"github.com/voxwatch/voxwatch/internal/metrics"
)

type fakeAccounts struct {
	account      *domain.Account
	getErr       error
	decremented  bool
	decrementErr error
	calls        int
}

func (f *fakeAccounts) GetAccount(_ context.Context, _ string) (*domain.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.account, nil
}

func (f *fakeAccounts) DecrementFreeCalls(_ context.Context, _ string) (bool, error) {
	f.calls++
	if f.decrementErr != nil {
		return false, f.decrementErr
	}
	return f.decremented, nil
}

type fakeFlags struct {
	enabled bool
	err     error
}

func (f *fakeFlags) IsEnabled(_ context.Context, _, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.enabled, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGateAdmit(t *testing.T) {
	tests := []struct {
		name          string
		accounts      *fakeAccounts
		flags         *fakeFlags
		wantAdmitted  bool
		wantReason    string
		wantBypassed  bool
		wantDecrement int
	}{
		{
			name: "paid account admitted without decrement",
			accounts: &fakeAccounts{
				account: &domain.Account{ID: "acct_1", PaidPlan: true},
			},
			flags:         &fakeFlags{},
			wantAdmitted:  true,
			wantDecrement: 0,
		},
		{
			name: "free account with credits consumes one",
			accounts: &fakeAccounts{
				account:     &domain.Account{ID: "acct_2", FreeCallsRemaining: 3},
				decremented: true,
			},
			flags:         &fakeFlags{},
			wantAdmitted:  true,
			wantDecrement: 1,
		},
		{
			name: "free account exhausted is denied",
			accounts: &fakeAccounts{
				account:     &domain.Account{ID: "acct_3", FreeCallsRemaining: 0},
				decremented: false,
			},
			flags:         &fakeFlags{},
			wantAdmitted:  false,
			wantReason:    "no free calls left",
			wantDecrement: 1,
		},
		{
			name: "bypass flag skips decrement",
			accounts: &fakeAccounts{
				account: &domain.Account{ID: "acct_4", FreeCallsRemaining: 0},
			},
			flags:         &fakeFlags{enabled: true},
			wantAdmitted:  true,
			wantBypassed:  true,
			wantDecrement: 0,
		},
		{
			name: "account lookup failure admits",
			accounts: &fakeAccounts{
				getErr: errors.New("db down"),
			},
			flags:         &fakeFlags{},
			wantAdmitted:  true,
			wantDecrement: 0,
		},
		{
			name: "flag failure falls through to decrement",
			accounts: &fakeAccounts{
				account:     &domain.Account{ID: "acct_5", FreeCallsRemaining: 1},
				decremented: true,
			},
			flags:         &fakeFlags{err: errors.New("posthog unreachable")},
			wantAdmitted:  true,
			wantDecrement: 1,
		},
		{
			name: "decrement failure admits",
			accounts: &fakeAccounts{
				account:      &domain.Account{ID: "acct_6", FreeCallsRemaining: 1},
				decrementErr: errors.New("db down"),
			},
			flags:         &fakeFlags{},
			wantAdmitted:  true,
			wantDecrement: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.accounts, tt.flags, testLogger())

			decision := gate.Admit(context.Background(), "acct")

			if decision.Admitted != tt.wantAdmitted {
				t.Errorf("Admitted = %v, want %v", decision.Admitted, tt.wantAdmitted)
			}
			if decision.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", decision.Reason, tt.wantReason)
			}
			if decision.Bypassed != tt.wantBypassed {
				t.Errorf("Bypassed = %v, want %v", decision.Bypassed, tt.wantBypassed)
			}
			if tt.accounts.calls != tt.wantDecrement {
				t.Errorf("decrement calls = %d, want %d", tt.accounts.calls, tt.wantDecrement)
			}
		})
	}
}

// The consumed counter must track actual credit decrements, not
// admissions: paid plans and fail-open admissions leave it untouched.
func TestGateRecordsConsumedOnlyOnDecrement(t *testing.T) {
	consumed := metrics.QuotaDecrementsTotal.WithLabelValues("consumed")

	tests := []struct {
		name     string
		accounts *fakeAccounts
		flags    *fakeFlags
		wantInc  float64
	}{
		{
			name: "paid admission does not count",
			accounts: &fakeAccounts{
				account: &domain.Account{ID: "acct_1", PaidPlan: true},
			},
			flags:   &fakeFlags{},
			wantInc: 0,
		},
		{
			name: "fail-open admission does not count",
			accounts: &fakeAccounts{
				getErr: errors.New("db down"),
			},
			flags:   &fakeFlags{},
			wantInc: 0,
		},
		{
			name: "consumed credit counts once",
			accounts: &fakeAccounts{
				account:     &domain.Account{ID: "acct_2", FreeCallsRemaining: 1},
				decremented: true,
			},
			flags:   &fakeFlags{},
			wantInc: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(consumed)

			gate := NewGate(tt.accounts, tt.flags, testLogger())
			gate.Admit(context.Background(), "acct")

			if got := testutil.ToFloat64(consumed) - before; got != tt.wantInc {
				t.Errorf("consumed counter delta = %v, want %v", got, tt.wantInc)
			}
		})
	}
}
