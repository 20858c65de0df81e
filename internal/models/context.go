package models

import (
	"context"
)

type interactionContextKey struct{}

// InteractionContext carries per-interaction identifiers through context so
// lower layers can correlate their log lines without widening every signature.
type InteractionContext struct {
	InteractionId string
	AccountId     int64
	ChatId        int64
	UpdateId      int
}

// WithInteractionContext attaches interaction data to a context.
func WithInteractionContext(ctx context.Context, ic *InteractionContext) context.Context {
	return context.WithValue(ctx, interactionContextKey{}, ic)
}

// GetInteractionContext retrieves interaction data from context, or nil if absent.
func GetInteractionContext(ctx context.Context) *InteractionContext {
	ic, _ := ctx.Value(interactionContextKey{}).(*InteractionContext)
	return ic
}
