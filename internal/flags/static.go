package flags

import "context"

// StaticClient evaluates flags from a fixed set configured at startup.
// Used in development and tests where no PostHog project exists.
type StaticClient struct {
	enabled map[string]bool
}

// NewStaticClient creates a flags client that reports the given flags as
// enabled for every account.
func NewStaticClient(enabledFlags []string) *StaticClient {
	enabled := make(map[string]bool, len(enabledFlags))
	for _, f := range enabledFlags {
		enabled[f] = true
	}
	return &StaticClient{enabled: enabled}
}

func (c *StaticClient) IsEnabled(_ context.Context, flag, _ string) (bool, error) {
	return c.enabled[flag], nil
}
