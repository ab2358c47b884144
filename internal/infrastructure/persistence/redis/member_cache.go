package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER DIRECTORY CACHE
// A read-through decorator over member.Directory. Member reads come from
// Redis while fresh; writes (renames) go straight through and invalidate the
// affected keys so the next read sees the new name. Cache failures degrade to
// the underlying directory.
// ══════════════════════════════════════════════════════════════════════════════

// MemberCache decorates a member.Directory with Redis caching.
type MemberCache struct {
	next    member.Directory
	cache   *Cache
	guildID string
	logger  *slog.Logger
}

// NewMemberCache wraps a directory with caching.
func NewMemberCache(next member.Directory, cache *Cache, guildID string, logger *slog.Logger) *MemberCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberCache{next: next, cache: cache, guildID: guildID, logger: logger}
}

// ListMembers returns the cached member list, falling back to the directory.
func (mc *MemberCache) ListMembers(ctx context.Context) ([]member.Member, error) {
	key := MembersKey(mc.guildID)

	var cached []member.Member
	err := mc.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		mc.logger.Warn("member list cache read failed", "error", err)
	}

	members, err := mc.next.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	if err := mc.cache.Set(ctx, key, members, TTLMemberList); err != nil {
		mc.logger.Warn("member list cache write failed", "error", err)
	}
	return members, nil
}

// Member returns a cached member, falling back to the directory.
func (mc *MemberCache) Member(ctx context.Context, id rank.MemberID) (member.Member, error) {
	key := MemberKey(mc.guildID, string(id))

	var cached member.Member
	err := mc.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		mc.logger.Warn("member cache read failed", "member", id, "error", err)
	}

	m, err := mc.next.Member(ctx, id)
	if err != nil {
		return member.Member{}, err
	}

	if err := mc.cache.Set(ctx, key, m, TTLMember); err != nil {
		mc.logger.Warn("member cache write failed", "member", id, "error", err)
	}
	return m, nil
}

// Rename passes through and invalidates the member and the list snapshot.
func (mc *MemberCache) Rename(ctx context.Context, id rank.MemberID, displayName string) error {
	if err := mc.next.Rename(ctx, id, displayName); err != nil {
		return err
	}

	if err := mc.cache.Delete(ctx, MemberKey(mc.guildID, string(id)), MembersKey(mc.guildID)); err != nil {
		mc.logger.Warn("member cache invalidation failed", "member", id, "error", err)
	}
	return nil
}

// FindListingChannel passes through; channel lookups are rare and already
// cached by the caller.
func (mc *MemberCache) FindListingChannel(ctx context.Context) (member.ChannelRef, error) {
	return mc.next.FindListingChannel(ctx)
}

// CreateListingChannel passes through.
func (mc *MemberCache) CreateListingChannel(ctx context.Context) (member.ChannelRef, error) {
	return mc.next.CreateListingChannel(ctx)
}

// PostListing passes through.
func (mc *MemberCache) PostListing(ctx context.Context, ch member.ChannelRef, text string) (rank.MessageRef, error) {
	return mc.next.PostListing(ctx, ch, text)
}

// EditListing passes through.
func (mc *MemberCache) EditListing(ctx context.Context, ch member.ChannelRef, msg rank.MessageRef, text string) error {
	return mc.next.EditListing(ctx, ch, msg, text)
}
