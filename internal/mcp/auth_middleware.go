package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/auth"
	"github.com/kgraph-dev/kgengine/internal/protocol"
)

// toolPermission maps each kg.* tool to the RBAC permission required to
// call it (§6.1: the facade's JSON-RPC surface is authenticated when
// cfg.Auth.Enabled). authorize runs on every tools/call whenever the server
// has an authenticator, whatever the transport; the token is read only from
// a context built with WithBearerToken, and Server.Handle attaches none.
func toolPermission(name string) auth.Permission {
	switch name {
	case ToolBuild, ToolWatch:
		return auth.PermissionGraphBuild
	case ToolConfirmRule, ToolCorrectRule, ToolRejectRule, ToolDeprecateRule:
		return auth.PermissionRulesWrite
	case ToolSnapshotCreate, ToolSnapshotCompare, ToolSnapshotRollback:
		return auth.PermissionSnapshotsWrite
	default:
		return auth.PermissionGraphRead
	}
}

// bearerTokenKey is the context key an HTTP transport stores the request's
// bearer token under, read back by authorize.
type bearerTokenKey struct{}

// WithBearerToken attaches an HTTP Authorization header's bearer token to
// ctx for authorize to validate.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// authorize validates ctx's bearer token and checks it carries toolName's
// required permission. A nil authenticator (cfg.Auth.Enabled == false)
// always allows.
func authorize(ctx context.Context, authenticator auth.Authenticator, toolName string) error {
	if authenticator == nil {
		return nil
	}
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return &protocol.Error{Code: protocol.InvalidRequest, Message: "missing bearer token"}
	}

	user, err := authenticator.ValidateToken(ctx, token)
	if err != nil {
		return &protocol.Error{Code: protocol.InvalidRequest, Message: fmt.Sprintf("invalid token: %v", err)}
	}

	perm := toolPermission(toolName)
	if !authenticator.HasPermission(user, perm) {
		return &protocol.Error{Code: protocol.InvalidRequest, Message: fmt.Sprintf("missing permission %s", perm)}
	}
	return nil
}
