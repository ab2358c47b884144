package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rankhub/discord-rank-hub/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE AUTHORIZER
// Implements the command.Authorizer port: administrators always pass, other
// callers must hold the configured moderator role. The role name is resolved
// to an id once and cached with a TTL so role edits eventually take effect.
// ══════════════════════════════════════════════════════════════════════════════

// roleCacheTTL bounds how long a resolved role id is trusted.
const roleCacheTTL = 10 * time.Minute

// RoleAuthorizer authorizes rank commands by guild role.
type RoleAuthorizer struct {
	client   *Client
	roleName string
	logger   *slog.Logger

	mu         sync.Mutex
	roleID     string
	resolvedAt time.Time
}

// NewRoleAuthorizer creates an authorizer for the given role name.
// An empty role name restricts rank commands to administrators only.
func NewRoleAuthorizer(client *Client, roleName string, logger *slog.Logger) *RoleAuthorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleAuthorizer{client: client, roleName: roleName, logger: logger}
}

// CanManageRanks reports whether the caller may run rank commands.
func (a *RoleAuthorizer) CanManageRanks(ctx context.Context, caller command.Caller) (bool, error) {
	if caller.IsAdmin {
		return true, nil
	}
	if a.roleName == "" {
		return false, nil
	}

	roleID, err := a.resolveRoleID(ctx)
	if err != nil {
		return false, err
	}
	if roleID == "" {
		// The configured role does not exist in the guild; nobody but
		// administrators passes until it is created.
		return false, nil
	}

	for _, id := range caller.RoleIDs {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

// resolveRoleID maps the configured role name to its id, caching the result.
func (a *RoleAuthorizer) resolveRoleID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.roleID != "" && time.Since(a.resolvedAt) < roleCacheTTL {
		return a.roleID, nil
	}

	roles, err := a.client.GetGuildRoles(ctx)
	if err != nil {
		// Fall back to a stale id rather than denying every command while
		// the API hiccups.
		if a.roleID != "" {
			a.logger.Warn("role refresh failed, using cached role id", "error", err)
			return a.roleID, nil
		}
		return "", err
	}

	for _, r := range roles {
		if r.Name == a.roleName {
			a.roleID = r.ID
			a.resolvedAt = time.Now()
			return a.roleID, nil
		}
	}

	a.logger.Warn("authorized role not found in guild", "role", a.roleName)
	a.roleID = ""
	a.resolvedAt = time.Now()
	return "", nil
}
