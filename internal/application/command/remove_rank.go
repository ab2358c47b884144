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
// REMOVE RANK COMMAND
// Removes a member's rank and closes the gap they leave behind.
// ══════════════════════════════════════════════════════════════════════════════

// RemoveRankCommand contains the data to remove a rank.
type RemoveRankCommand struct {
	// TargetID is the member losing the rank.
	TargetID string

	// Caller is the member invoking the command.
	Caller Caller

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RemoveRankCommand) Validate() error {
	if c.TargetID == "" {
		return errors.New("remove_rank: target member is required")
	}
	if c.Caller.MemberID == "" {
		return errors.New("remove_rank: caller is required")
	}
	return nil
}

// RemoveRankResult contains the result of removing a rank.
type RemoveRankResult struct {
	// TargetID is the member the rank was removed from.
	TargetID string

	// OldRank is the rank the member held.
	OldRank int

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

// RemoveRankHandler handles the RemoveRankCommand.
type RemoveRankHandler struct {
	ranks  *ranking.Service
	auth   Authorizer
	logger *slog.Logger
}

// NewRemoveRankHandler creates a new RemoveRankHandler.
func NewRemoveRankHandler(ranks *ranking.Service, auth Authorizer, logger *slog.Logger) *RemoveRankHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoveRankHandler{ranks: ranks, auth: auth, logger: logger}
}

// Handle executes the remove rank command.
// A target without a rank surfaces rank.ErrNotRanked so the caller can reply
// "not found" instead of a generic failure.
func (h *RemoveRankHandler) Handle(ctx context.Context, cmd RemoveRankCommand) (*RemoveRankResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("remove_rank: validation failed: %w", err)
	}

	ok, err := h.auth.CanManageRanks(ctx, cmd.Caller)
	if err != nil {
		return nil, fmt.Errorf("remove_rank: authorization check failed: %w", err)
	}
	if !ok {
		h.logger.Warn("unauthorized remove rank attempt",
			"caller", cmd.Caller.MemberID,
			"target", cmd.TargetID,
			"correlation_id", cmd.CorrelationID,
		)
		return nil, ErrUnauthorized
	}

	res, err := h.ranks.RemoveRank(ctx, rank.MemberID(cmd.TargetID))
	if err != nil {
		if errors.Is(err, rank.ErrNotRanked) {
			return nil, err
		}
		return nil, fmt.Errorf("remove_rank: %w", err)
	}

	h.logger.Info("remove rank command executed",
		"caller", cmd.Caller.MemberID,
		"target", cmd.TargetID,
		"old_rank", res.OldRank,
		"correlation_id", cmd.CorrelationID,
	)

	return &RemoveRankResult{
		TargetID:       cmd.TargetID,
		OldRank:        int(res.OldRank),
		MembersShifted: res.MembersShifted,
		RenamesFailed:  res.RenamesFailed,
		ExecutedAt:     time.Now().UTC(),
	}, nil
}
