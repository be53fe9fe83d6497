package types

import "context"

type ContextKey string

const (
	ContextKeyRunID       ContextKey = "run_id"
	ContextKeyCommunityID ContextKey = "community_id"
	ContextKeyStage       ContextKey = "stage"
)

// WithRunID attaches the pipeline run id to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFrom returns the run id attached to ctx, if any.
func RunIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyRunID).(string)
	return v
}

// WithCommunityID attaches the community being summarized to ctx.
func WithCommunityID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ContextKeyCommunityID, id)
}

// CommunityIDFrom returns the community id attached to ctx.
func CommunityIDFrom(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(ContextKeyCommunityID).(int)
	return v, ok
}

// WithStage attaches the pipeline stage name to ctx.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// StageFrom returns the pipeline stage attached to ctx, if any.
func StageFrom(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyStage).(string)
	return v
}
