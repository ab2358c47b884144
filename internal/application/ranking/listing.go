package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK LISTING
// A single externally rendered message listing all entries sorted by rank.
// The message id is cached in the persisted state and the message is edited
// in place; if the message (or the cached id) is gone, a fresh one is posted
// and the new id persisted.
// ══════════════════════════════════════════════════════════════════════════════

// ListingRow is one rendered line of the rank listing.
type ListingRow struct {
	// Rank is the member's position.
	Rank rank.Rank

	// Member is the member id.
	Member rank.MemberID

	// Name is the member's current display name; empty when the member is
	// no longer present in the directory.
	Name string
}

// RenderListing renders rows as the fenced text block posted to the listing
// channel. Rows must already be sorted by ascending rank.
func RenderListing(rows []ListingRow) string {
	if len(rows) == 0 {
		return "```\nNo ranks available.\n```"
	}

	var b strings.Builder
	b.WriteString("```\n")
	for _, row := range rows {
		if row.Name != "" {
			fmt.Fprintf(&b, "Rank %d: %s\n", row.Rank, row.Name)
		} else {
			fmt.Fprintf(&b, "Rank %d: member %s is no longer on the server\n", row.Rank, row.Member)
		}
	}
	b.WriteString("```")
	return b.String()
}

// RefreshListing rebuilds and republishes the rank listing artifact.
func (s *Service) RefreshListing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshListingLocked(ctx)
}

// Ranking returns the current listing rows, sorted by ascending rank.
// Read-only: used by the query side and by tests.
func (s *Service) Ranking(ctx context.Context) ([]ListingRow, error) {
	names, err := s.memberNames(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsLocked(names), nil
}

// refreshListingLocked renders the table and posts or edits the listing
// message. Callers must hold s.mu.
func (s *Service) refreshListingLocked(ctx context.Context) error {
	names, err := s.memberNames(ctx)
	if err != nil {
		return err
	}

	text := RenderListing(s.rowsLocked(names))

	ch, err := s.ensureChannelLocked(ctx)
	if err != nil {
		return err
	}

	if !s.msgRef.IsZero() {
		err := s.dir.EditListing(ctx, ch, s.msgRef, text)
		if err == nil {
			return nil
		}
		if !errors.Is(err, member.ErrMessageNotFound) {
			return fmt.Errorf("ranking: edit listing: %w", err)
		}
		s.logger.Warn("rank listing message is gone, posting a new one", "message", s.msgRef)
	}

	msg, err := s.dir.PostListing(ctx, ch, text)
	if err != nil {
		return fmt.Errorf("ranking: post listing: %w", err)
	}

	s.msgRef = msg
	if err := s.persistLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("rank listing posted", "message", msg)
	return nil
}

// ensureChannelLocked resolves the listing channel, creating it when absent.
// The resolved reference is cached for the lifetime of the process.
func (s *Service) ensureChannelLocked(ctx context.Context) (member.ChannelRef, error) {
	if !s.channel.IsZero() {
		return s.channel, nil
	}

	ch, err := s.dir.FindListingChannel(ctx)
	if errors.Is(err, member.ErrChannelNotFound) {
		ch, err = s.dir.CreateListingChannel(ctx)
		if err == nil {
			s.logger.Info("created rank listing channel", "channel", ch)
		}
	}
	if err != nil {
		return "", fmt.Errorf("ranking: resolve listing channel: %w", err)
	}

	s.channel = ch
	return ch, nil
}

// rowsLocked builds listing rows from the table. Callers must hold s.mu.
func (s *Service) rowsLocked(names map[rank.MemberID]string) []ListingRow {
	entries := s.table.Entries()
	rows := make([]ListingRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ListingRow{
			Rank:   e.Rank,
			Member: e.Member,
			Name:   names[e.Member],
		})
	}
	return rows
}

// memberNames fetches the directory once and indexes display names by id.
func (s *Service) memberNames(ctx context.Context) (map[rank.MemberID]string, error) {
	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking: list members: %w", err)
	}

	names := make(map[rank.MemberID]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName()
	}
	return names, nil
}
