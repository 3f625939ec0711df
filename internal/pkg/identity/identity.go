package identity

import "context"

// Result reports the outcome of a bulk credential deletion.
type Result struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed"`
}

// Deleter removes authentication credentials for a set of account IDs.
// Implementations are best-effort: a partially failed call still returns
// a Result describing which IDs went through.
type Deleter interface {
	DeleteAccounts(ctx context.Context, ids []string) (*Result, error)
}

// Noop is a Deleter that succeeds without contacting any provider.
// Used when no identity provider is configured.
type Noop struct{}

func (Noop) DeleteAccounts(ctx context.Context, ids []string) (*Result, error) {
	return &Result{Deleted: ids, Failed: map[string]string{}}, nil
}
