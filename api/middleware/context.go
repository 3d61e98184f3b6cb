package middleware

import (
	"context"

	"github.com/canteen-coders/canteen-client/internal/workspace"
)

type contextKey string

const ctxWorkspace contextKey = "workspace"

// WorkspaceFromContext returns the workspace resolved by ClientWorkspace.
func WorkspaceFromContext(ctx context.Context) *workspace.Workspace {
	if ctx == nil {
		return nil
	}
	if ws, ok := ctx.Value(ctxWorkspace).(*workspace.Workspace); ok {
		return ws
	}
	return nil
}

// WithWorkspace injects the client workspace into the context.
func WithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxWorkspace, ws)
}
