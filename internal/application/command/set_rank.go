// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rankhub/discord-rank-hub/internal/application/ranking"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET RANK COMMAND
// Assigns or moves a member to a rank. The whole table is re-densified, so a
// single command may shift several members; the result reports how many.
// ══════════════════════════════════════════════════════════════════════════════

// SetRankCommand contains the data to assign a rank.
type SetRankCommand struct {
	// TargetID is the member receiving the rank.
	TargetID string

	// Rank is the requested position (positive; values beyond the table
	// size land on the dense tail).
	Rank int

	// Caller is the member invoking the command.
	Caller Caller

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SetRankCommand) Validate() error {
	if c.TargetID == "" {
		return errors.New("set_rank: target member is required")
	}
	if c.Rank < 1 {
		return fmt.Errorf("set_rank: rank must be positive, got %d", c.Rank)
	}
	if c.Caller.MemberID == "" {
		return errors.New("set_rank: caller is required")
	}
	return nil
}

// SetRankResult contains the result of assigning a rank.
type SetRankResult struct {
	// TargetID is the member the rank was assigned to.
	TargetID string

	// OldRank is the rank before the operation (0 if unranked).
	OldRank int

	// NewRank is the final resolved rank.
	NewRank int

	// MembersShifted is the number of other members whose rank changed.
	MembersShifted int

	// RenamesFailed counts members whose visible name could not be updated.
	RenamesFailed int

	// ExecutedAt is when the command completed.
	ExecutedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SetRankHandler handles the SetRankCommand.
type SetRankHandler struct {
	ranks  *ranking.Service
	auth   Authorizer
	logger *slog.Logger
}

// NewSetRankHandler creates a new SetRankHandler.
func NewSetRankHandler(ranks *ranking.Service, auth Authorizer, logger *slog.Logger) *SetRankHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetRankHandler{ranks: ranks, auth: auth, logger: logger}
}

// Handle executes the set rank command.
func (h *SetRankHandler) Handle(ctx context.Context, cmd SetRankCommand) (*SetRankResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_rank: validation failed: %w", err)
	}

	ok, err := h.auth.CanManageRanks(ctx, cmd.Caller)
	if err != nil {
		return nil, fmt.Errorf("set_rank: authorization check failed: %w", err)
	}
	if !ok {
		h.logger.Warn("unauthorized set rank attempt",
			"caller", cmd.Caller.MemberID,
			"target", cmd.TargetID,
			"correlation_id", cmd.CorrelationID,
		)
		return nil, ErrUnauthorized
	}

	res, err := h.ranks.SetRank(ctx, rank.MemberID(cmd.TargetID), rank.Rank(cmd.Rank))
	if err != nil {
		return nil, fmt.Errorf("set_rank: %w", err)
	}

	h.logger.Info("set rank command executed",
		"caller", cmd.Caller.MemberID,
		"target", cmd.TargetID,
		"rank", res.NewRank,
		"correlation_id", cmd.CorrelationID,
	)

	return &SetRankResult{
		TargetID:       cmd.TargetID,
		OldRank:        int(res.OldRank),
		NewRank:        int(res.NewRank),
		MembersShifted: res.MembersShifted,
		RenamesFailed:  res.RenamesFailed,
		ExecutedAt:     time.Now().UTC(),
	}, nil
}
