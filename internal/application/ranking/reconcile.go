package ranking

import (
	"context"
	"fmt"

	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION
// A read-aligning pass: visible names are brought into agreement with the
// table. The table itself is never mutated and the listing artifact is left
// alone. Runs periodically and after startup.
// ══════════════════════════════════════════════════════════════════════════════

// Reconcile aligns every directory member's visible name with the table.
// Each member's update is independent; a failing member is logged and skipped.
func (s *Service) Reconcile(ctx context.Context) error {
	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("ranking: reconcile: %w", err)
	}

	// Taking the operation guard keeps the pass from interleaving with a
	// concurrent mutation; per-member updates are idempotent either way.
	s.mu.Lock()
	defer s.mu.Unlock()

	checked, rewritten := 0, 0
	for _, m := range members {
		checked++
		changed, err := s.reconcileMemberLocked(ctx, m)
		if err != nil {
			s.logger.Warn("reconciliation skipped member", "member", m.ID, "error", err)
			continue
		}
		if changed {
			rewritten++
		}
	}

	s.logger.Info("reconciliation pass completed", "checked", checked, "rewritten", rewritten)
	return nil
}

// ReconcileMember aligns a single member's visible name with the table.
// Used for member-join and member-update events.
func (s *Service) ReconcileMember(ctx context.Context, m member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.reconcileMemberLocked(ctx, m)
	return err
}

// reconcileMemberLocked applies the four-case table-wins policy:
//
//	table has rank, name encodes it correctly  -> nothing
//	table has rank, name encodes another rank  -> rewrite with table rank
//	table has rank, name has no marker         -> rewrite with table rank
//	table has no rank, name carries a marker   -> strip the marker
//	table has no rank, name has no marker      -> nothing
func (s *Service) reconcileMemberLocked(ctx context.Context, m member.Member) (bool, error) {
	expected, ranked := s.table.Get(m.ID)
	current, marked := rank.ParseRank(m.DisplayName())

	switch {
	case ranked && marked && current == expected:
		return false, nil
	case !ranked && !marked:
		return false, nil
	}

	var newName string
	if ranked {
		newName = rank.FormatDisplayName(rank.StripRank(m.DisplayName()), expected)
	} else {
		newName = rank.StripRank(m.DisplayName())
	}

	if err := s.dir.Rename(ctx, m.ID, newName); err != nil {
		return false, err
	}

	s.logger.Debug("reconciled display name",
		"member", m.ID,
		"table_rank", int(expected),
		"name_rank", int(current),
		"name", newName,
	)
	return true, nil
}
