// Package ranking orchestrates rank mutations over the domain table.
// It owns the single mutual-exclusion guard that serializes every
// read-modify-write operation, the save-after-mutate persistence discipline,
// and the directory synchronization that follows each mutation.
//
// The rank table is the source of truth. Directory failures (member gone,
// missing permissions) are soft: they are logged and skipped, never retried
// inline, and never roll the table back. The periodic reconciliation pass
// repairs any visible name that lagged behind.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// ServiceConfig contains dependencies for the ranking service.
type ServiceConfig struct {
	// States persists the whole {table, listing artifact} pair.
	States rank.StateRepository

	// Directory is the live member directory (rename / listing side effects).
	Directory member.Directory

	// Logger for structured logging.
	Logger *slog.Logger
}

// Service owns the rank table and implements set, remove, reconcile, and
// listing refresh. One Service instance is constructed at startup and passed
// by reference to whichever layer issues commands.
type Service struct {
	mu sync.Mutex

	table   *rank.Table
	msgRef  rank.MessageRef
	channel member.ChannelRef

	states rank.StateRepository
	dir    member.Directory
	logger *slog.Logger
}

// NewService creates a ranking service with an empty table.
// Call Load to restore persisted state before serving commands.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.States == nil {
		return nil, errors.New("ranking: state repository is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("ranking: directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		table:  rank.NewTable(),
		states: cfg.States,
		dir:    cfg.Directory,
		logger: cfg.Logger,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STARTUP
// ══════════════════════════════════════════════════════════════════════════════

// Load restores the table and listing reference from persisted state.
// A stale snapshot that lost contiguity is renumbered back into shape.
func (s *Service) Load(ctx context.Context) error {
	state, err := s.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("ranking: load state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.table = rank.FromMap(state.UserRanks)
	s.msgRef = state.RankMessageID

	if changes := s.table.Renumber(""); len(changes) != 0 {
		s.logger.Warn("persisted ranks were not contiguous, renumbered",
			"entries", s.table.Len(),
			"changed", len(changes),
		)
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("rank table loaded", "entries", s.table.Len(), "has_listing", !s.msgRef.IsZero())
	return nil
}

// Bootstrap brings the live directory and the table into agreement at startup.
// With an empty table the ranks are seeded from the members' display names
// (the pre-persistence behavior); otherwise the table wins and names are
// reconciled. Either way the listing artifact is refreshed afterwards.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	empty := s.table.Len() == 0
	s.mu.Unlock()

	if empty {
		if err := s.seedFromNames(ctx); err != nil {
			return err
		}
	} else if err := s.Reconcile(ctx); err != nil {
		return err
	}

	return s.RefreshListing(ctx)
}

// seedFromNames loads ranks out of the members' current display names,
// normalizes them into a dense sequence, and persists the result.
func (s *Service) seedFromNames(ctx context.Context) error {
	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("ranking: seed from names: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A mutation may land between Bootstrap's emptiness check and this point;
	// a populated table is authoritative and must not be overlaid with raw
	// parsed values.
	if s.table.Len() != 0 {
		s.logger.Info("rank table populated concurrently, skipping name seeding")
		return nil
	}

	seeded := 0
	for _, m := range members {
		if r, ok := rank.ParseRank(m.DisplayName()); ok {
			s.table.Set(m.ID, r)
			seeded++
		}
	}

	changes := s.table.Renumber("")
	s.logger.Info("seeded ranks from display names", "seeded", seeded, "normalized", len(changes))

	if seeded == 0 && len(changes) == 0 {
		return nil
	}
	if err := s.persistLocked(ctx); err != nil {
		return err
	}

	// Parsed names may have carried gaps or duplicates; align the visible
	// names with the normalized table.
	s.applyRenames(ctx, changes)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SetRankResult contains the result of a set/move operation.
type SetRankResult struct {
	// Member is the target member.
	Member rank.MemberID

	// OldRank is the rank before the operation (0 if the member was unranked).
	OldRank rank.Rank

	// NewRank is the final resolved rank (a requested rank beyond the table
	// size lands on the dense tail).
	NewRank rank.Rank

	// MembersShifted is the number of other members whose rank changed.
	MembersShifted int

	// RenamesFailed counts members whose visible name could not be updated.
	RenamesFailed int
}

// SetRank assigns or moves a member to newRank and re-densifies the table.
// The incoming member takes priority at the requested slot; the previous
// occupant and everyone below shift down by one.
func (s *Service) SetRank(ctx context.Context, id rank.MemberID, newRank rank.Rank) (SetRankResult, error) {
	if !id.IsValid() {
		return SetRankResult{}, rank.ErrInvalidMemberID
	}
	if !newRank.IsValid() {
		return SetRankResult{}, rank.ErrInvalidRank
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.table.Snapshot()
	oldRank := before[id]

	s.table.Delete(id)
	s.table.Set(id, newRank)
	s.table.Renumber(id)

	if err := s.persistLocked(ctx); err != nil {
		return SetRankResult{}, err
	}

	changes := diffAgainst(before, s.table)
	failed := s.applyRenames(ctx, changes)

	final, _ := s.table.Get(id)
	result := SetRankResult{
		Member:         id,
		OldRank:        oldRank,
		NewRank:        final,
		MembersShifted: countOthers(changes, id),
		RenamesFailed:  failed,
	}

	s.logger.Info("rank set",
		"member", id,
		"old_rank", int(oldRank),
		"new_rank", int(final),
		"members_shifted", result.MembersShifted,
	)

	if err := s.refreshListingLocked(ctx); err != nil {
		s.logger.Error("failed to refresh rank listing", "error", err)
	}

	return result, nil
}

// RemoveRankResult contains the result of a remove operation.
type RemoveRankResult struct {
	// Member is the target member.
	Member rank.MemberID

	// OldRank is the rank the member held.
	OldRank rank.Rank

	// MembersShifted is the number of other members whose rank changed.
	MembersShifted int

	// RenamesFailed counts members whose visible name could not be updated.
	RenamesFailed int
}

// RemoveRank deletes a member's rank and closes the gap it leaves.
// Removing an unranked member returns rank.ErrNotRanked and leaves the table
// untouched.
func (s *Service) RemoveRank(ctx context.Context, id rank.MemberID) (RemoveRankResult, error) {
	if !id.IsValid() {
		return RemoveRankResult{}, rank.ErrInvalidMemberID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.table.Snapshot()
	oldRank, ok := s.table.Get(id)
	if !ok {
		return RemoveRankResult{}, rank.ErrNotRanked
	}

	s.table.Delete(id)
	s.table.Renumber("")

	if err := s.persistLocked(ctx); err != nil {
		return RemoveRankResult{}, err
	}

	changes := diffAgainst(before, s.table)
	failed := s.applyRenames(ctx, changes)

	result := RemoveRankResult{
		Member:         id,
		OldRank:        oldRank,
		MembersShifted: countOthers(changes, id),
		RenamesFailed:  failed,
	}

	s.logger.Info("rank removed",
		"member", id,
		"old_rank", int(oldRank),
		"members_shifted", result.MembersShifted,
	)

	if err := s.refreshListingLocked(ctx); err != nil {
		s.logger.Error("failed to refresh rank listing", "error", err)
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERNALS
// ══════════════════════════════════════════════════════════════════════════════

// diffAgainst returns the user-visible rank changes between the snapshot taken
// before a mutation and the table after it, including members whose rank was
// removed (To == 0).
func diffAgainst(before map[rank.MemberID]rank.Rank, after *rank.Table) []rank.Change {
	var changes []rank.Change

	for id, newRank := range after.Snapshot() {
		if before[id] != newRank {
			changes = append(changes, rank.Change{Member: id, From: before[id], To: newRank})
		}
	}
	for id, oldRank := range before {
		if !after.Has(id) {
			changes = append(changes, rank.Change{Member: id, From: oldRank, To: 0})
		}
	}

	return changes
}

// countOthers counts the changes affecting members other than the target.
func countOthers(changes []rank.Change, target rank.MemberID) int {
	n := 0
	for _, c := range changes {
		if c.Member != target {
			n++
		}
	}
	return n
}

// applyRenames pushes rank changes into the directory. A member who is gone
// or protected is logged and skipped; the batch always runs to completion.
// Returns the number of failed renames.
func (s *Service) applyRenames(ctx context.Context, changes []rank.Change) int {
	failed := 0

	for _, c := range changes {
		m, err := s.dir.Member(ctx, c.Member)
		if err != nil {
			failed++
			s.logSoftFailure("fetch member", c, err)
			continue
		}

		newName := rank.FormatDisplayName(rank.StripRank(m.DisplayName()), c.To)
		if err := s.dir.Rename(ctx, c.Member, newName); err != nil {
			failed++
			s.logSoftFailure("rename member", c, err)
			continue
		}

		s.logger.Debug("display name updated",
			"member", c.Member,
			"rank", int(c.To),
			"name", newName,
		)
	}

	return failed
}

// logSoftFailure logs a skipped directory update with enough context to
// identify the member and rank involved.
func (s *Service) logSoftFailure(op string, c rank.Change, err error) {
	level := slog.LevelError
	if errors.Is(err, member.ErrNotFound) || errors.Is(err, member.ErrForbidden) {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "skipped directory update",
		"op", op,
		"member", c.Member,
		"from_rank", int(c.From),
		"to_rank", int(c.To),
		"error", err,
	)
}

// persistLocked writes the whole state synchronously. Callers must hold s.mu.
func (s *Service) persistLocked(ctx context.Context) error {
	state := rank.State{
		UserRanks:     s.table.ToMap(),
		RankMessageID: s.msgRef,
	}
	if err := s.states.Save(ctx, state); err != nil {
		return fmt.Errorf("ranking: persist state: %w", err)
	}
	return nil
}
