package flags

import (
	"context"
	"fmt"
)

// Client evaluates feature flags for an account.
//
// Flag evaluation is best effort: implementations should treat provider
// failures as "flag disabled" rather than propagating errors into the
// request path.
type Client interface {
	// IsEnabled reports whether the named flag is enabled for the account.
	IsEnabled(ctx context.Context, flag, accountID string) (bool, error)
}

// Provider identifies a flags backend.
type Provider string

const (
	ProviderPostHog Provider = "posthog"
	ProviderStatic  Provider = "static"
)

// FlagError wraps errors from flag providers with operation context.
type FlagError struct {
	Op   string
	Flag string
	Err  error
}

func (e *FlagError) Error() string {
	return fmt.Sprintf("flags: %s %q: %v", e.Op, e.Flag, e.Err)
}

func (e *FlagError) Unwrap() error {
	return e.Err
}
