// Package quota implements admission control for call uploads.
//
// The gate decides whether an account may submit a call for processing.
// Paid accounts and accounts carrying the payment bypass flag are always
// admitted. Free accounts consume one credit per admitted call via an
// atomic conditional decrement, so concurrent submissions can never
// overdraw the balance.
package quota

import (
	"context"
	"log/slog"

	"github.com/voxwatch/voxwatch/internal/domain"
	"github.com/voxwatch/voxwatch/internal/metrics"
)

// BypassPaymentFlag is the feature flag that exempts an account from
// quota enforcement.
const BypassPaymentFlag = "bypass-payment"

// AccountStore provides the account lookups and credit mutation the
// gate needs.
type AccountStore interface {
	// GetAccount returns the account, or an error if it does not exist.
	GetAccount(ctx context.Context, id string) (*domain.Account, error)

	// DecrementFreeCalls atomically decrements the account's free call
	// balance if it is positive. Returns true if a credit was consumed.
	DecrementFreeCalls(ctx context.Context, id string) (bool, error)
}

// FlagChecker reports whether a feature flag is enabled for an account.
type FlagChecker interface {
	IsEnabled(ctx context.Context, flag, accountID string) (bool, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	// Reason is set when the submission is denied.
	Reason string
	// Bypassed is true when the payment bypass flag exempted the account.
	Bypassed bool
}

// Gate performs quota admission checks.
type Gate struct {
	accounts AccountStore
	flags    FlagChecker
	logger   *slog.Logger
}

// NewGate creates a quota gate.
func NewGate(accounts AccountStore, flags FlagChecker, logger *slog.Logger) *Gate {
	return &Gate{
		accounts: accounts,
		flags:    flags,
		logger:   logger,
	}
}

// Admit decides whether the account may submit a call.
//
// The check fails open: if the account lookup, the flag evaluation, or
// the credit decrement errors, the call is admitted anyway and the
// failure is logged. An availability incident in the billing path must
// not reject customer traffic. The only denial is a definitive one: a
// free account whose balance is confirmed exhausted.
func (g *Gate) Admit(ctx context.Context, accountID string) Decision {
	const op = "quota.admit"

	account, err := g.accounts.GetAccount(ctx, accountID)
	if err != nil {
		g.logger.Error("quota check failed, admitting call",
			"op", op,
			"account_id", accountID,
			"error", err,
		)
		return Decision{Admitted: true}
	}

	if account.PaidPlan {
		return Decision{Admitted: true}
	}

	bypass, err := g.flags.IsEnabled(ctx, BypassPaymentFlag, accountID)
	if err != nil {
		g.logger.Warn("flag evaluation failed, treating as disabled",
			"op", op,
			"account_id", accountID,
			"flag", BypassPaymentFlag,
			"error", err,
		)
		bypass = false
	}
	if bypass {
		return Decision{Admitted: true, Bypassed: true}
	}

	consumed, err := g.accounts.DecrementFreeCalls(ctx, accountID)
	if err != nil {
		metrics.QuotaDecrementsTotal.WithLabelValues("failed").Inc()
		g.logger.Error("credit decrement failed, admitting call",
			"op", op,
			"account_id", accountID,
			"error", err,
		)
		return Decision{Admitted: true}
	}
	if !consumed {
		metrics.QuotaDecrementsTotal.WithLabelValues("exhausted").Inc()
		return Decision{Admitted: false, Reason: "no free calls left"}
	}

	metrics.QuotaDecrementsTotal.WithLabelValues("consumed").Inc()
	return Decision{Admitted: true}
}
