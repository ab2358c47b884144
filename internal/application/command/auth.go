package command

import (
	"context"
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZATION
// Rank commands are restricted to server administrators and members of the
// configured moderator role. The transport layer extracts the caller from the
// interaction payload; the role check itself lives in infrastructure.
// ══════════════════════════════════════════════════════════════════════════════

// Caller describes the member invoking a command, as reported by the
// transport layer.
type Caller struct {
	// MemberID is the invoking member's id.
	MemberID string

	// IsAdmin is true when the member carries the administrator permission.
	IsAdmin bool

	// RoleIDs are the role ids the member holds.
	RoleIDs []string
}

// Authorizer decides whether a caller may manage ranks.
type Authorizer interface {
	// CanManageRanks reports whether the caller is an administrator or holds
	// the configured moderator role.
	CanManageRanks(ctx context.Context, caller Caller) (bool, error)
}

// ErrUnauthorized is returned when the caller may not manage ranks.
var ErrUnauthorized = errors.New("command: not authorized to manage ranks")
