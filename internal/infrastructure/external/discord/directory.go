package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER DIRECTORY ADAPTER
// Implements the domain Directory port on top of the REST client. API errors
// are translated into the domain's soft-failure vocabulary so the application
// layer never sees HTTP status codes.
// ══════════════════════════════════════════════════════════════════════════════

// maxNickLength is the nickname length limit imposed by the API.
const maxNickLength = 32

// DirectoryConfig contains configuration for the directory adapter.
type DirectoryConfig struct {
	// RankChannelName is the name of the channel holding the rank listing.
	RankChannelName string

	// Logger for structured logging.
	Logger *slog.Logger
}

// Directory adapts the Discord client to the member.Directory port.
type Directory struct {
	client      *Client
	channelName string
	logger      *slog.Logger
}

// NewDirectory creates a directory adapter over an existing client.
func NewDirectory(client *Client, cfg DirectoryConfig) (*Directory, error) {
	if client == nil {
		return nil, errors.New("discord: client is required")
	}
	if cfg.RankChannelName == "" {
		return nil, errors.New("discord: rank channel name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Directory{
		client:      client,
		channelName: cfg.RankChannelName,
		logger:      cfg.Logger,
	}, nil
}

// ListMembers returns the guild's human members.
func (d *Directory) ListMembers(ctx context.Context) ([]member.Member, error) {
	guildMembers, err := d.client.ListGuildMembers(ctx)
	if err != nil {
		return nil, err
	}

	members := make([]member.Member, 0, len(guildMembers))
	for i := range guildMembers {
		gm := &guildMembers[i]
		if gm.User == nil || gm.User.Bot {
			continue
		}
		members = append(members, mapMember(gm))
	}
	return members, nil
}

// Member returns a single guild member by id.
func (d *Directory) Member(ctx context.Context, id rank.MemberID) (member.Member, error) {
	gm, err := d.client.GetGuildMember(ctx, string(id))
	if err != nil {
		return member.Member{}, mapDirectoryError(err)
	}
	return mapMember(gm), nil
}

// Rename sets a member's visible name. A name identical to the username is
// written as an empty nick so the override is dropped instead of duplicated.
func (d *Directory) Rename(ctx context.Context, id rank.MemberID, displayName string) error {
	if len(displayName) > maxNickLength {
		d.logger.Warn("display name exceeds nickname limit, truncating",
			"member", id,
			"length", len(displayName),
		)
		displayName = fitNick(displayName)
	}

	nick := displayName
	if _, marked := rank.ParseRank(displayName); !marked {
		// A markerless name may just be the username; dropping the override
		// is cleaner than pinning a redundant nick.
		if gm, err := d.client.GetGuildMember(ctx, string(id)); err == nil {
			if gm.User != nil && gm.User.Username == displayName {
				nick = ""
			}
		}
	}

	if err := d.client.ModifyMemberNick(ctx, string(id), nick); err != nil {
		return mapDirectoryError(err)
	}
	return nil
}

// FindListingChannel looks up the configured rank listing channel by name.
func (d *Directory) FindListingChannel(ctx context.Context) (member.ChannelRef, error) {
	channels, err := d.client.GetGuildChannels(ctx)
	if err != nil {
		return "", err
	}

	for _, ch := range channels {
		if ch.Type == ChannelTypeGuildText && ch.Name == d.channelName {
			return member.ChannelRef(ch.ID), nil
		}
	}
	return "", member.ErrChannelNotFound
}

// CreateListingChannel creates the rank listing channel.
func (d *Directory) CreateListingChannel(ctx context.Context) (member.ChannelRef, error) {
	ch, err := d.client.CreateGuildChannel(ctx, d.channelName)
	if err != nil {
		return "", mapDirectoryError(err)
	}
	return member.ChannelRef(ch.ID), nil
}

// PostListing posts the rank listing as a new message.
func (d *Directory) PostListing(ctx context.Context, ch member.ChannelRef, text string) (rank.MessageRef, error) {
	msg, err := d.client.CreateMessage(ctx, string(ch), text)
	if err != nil {
		return "", mapDirectoryError(err)
	}
	return rank.MessageRef(msg.ID), nil
}

// EditListing replaces the content of the existing listing message.
func (d *Directory) EditListing(ctx context.Context, ch member.ChannelRef, msg rank.MessageRef, text string) error {
	if _, err := d.client.EditMessage(ctx, string(ch), string(msg), text); err != nil {
		return mapDirectoryError(err)
	}
	return nil
}

// fitNick shortens an oversized display name to the API limit. The rank
// marker must survive: the base name is what gives way, never the digits.
func fitNick(name string) string {
	if len(name) <= maxNickLength {
		return name
	}
	if r, ok := rank.ParseRank(name); ok {
		marker := " #" + strconv.Itoa(int(r))
		base := truncateRunes(rank.StripRank(name), maxNickLength-len(marker))
		return rank.FormatDisplayName(base, r)
	}
	return truncateRunes(name, maxNickLength)
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// mapMember converts an API member into the domain representation.
func mapMember(gm *GuildMember) member.Member {
	m := member.Member{Nick: gm.Nick}
	if gm.User != nil {
		m.ID = rank.MemberID(gm.User.ID)
		m.Username = gm.User.Username
	}
	return m
}

// mapDirectoryError translates API errors into domain errors.
func mapDirectoryError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == CodeUnknownMember:
		return fmt.Errorf("%w: %v", member.ErrNotFound, err)
	case apiErr.Code == CodeUnknownMessage:
		return fmt.Errorf("%w: %v", member.ErrMessageNotFound, err)
	case apiErr.Code == CodeUnknownChannel:
		return fmt.Errorf("%w: %v", member.ErrChannelNotFound, err)
	case apiErr.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", member.ErrForbidden, err)
	case apiErr.Status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", member.ErrNotFound, err)
	}
	return err
}
