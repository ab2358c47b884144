// Package discord implements a Discord REST API client.
// This package handles all communication with the Discord API: guild member
// listing and renaming, channel and message management for the rank listing,
// and application command registration.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Discord client.
type ClientConfig struct {
	// Token is the bot token.
	Token string

	// ApplicationID is the application id, used for command registration.
	ApplicationID string

	// GuildID is the guild the bot operates in.
	GuildID string

	// BaseURL is the Discord API base URL (default: https://discord.com/api/v10).
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// RateLimiterConfig for API rate limiting.
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance.
	CircuitBreakerConfig CircuitBreakerConfig

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:                token,
		BaseURL:              "https://discord.com/api/v10",
		Timeout:              30 * time.Second,
		RetryAttempts:        3,
		RetryDelay:           1 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISCORD API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// User represents a Discord user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// GuildMember represents a member of a guild.
type GuildMember struct {
	User  *User    `json:"user,omitempty"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles"`

	// Permissions is the resolved permission bit set, present only in
	// interaction payloads.
	Permissions string `json:"permissions,omitempty"`
}

// DisplayName returns the member's visible name: nick if set, else username.
func (m *GuildMember) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.Username
	}
	return ""
}

// Channel types used by the bot.
const (
	ChannelTypeGuildText = 0
)

// Channel represents a guild channel.
type Channel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name,omitempty"`
}

// Message represents a channel message.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content,omitempty"`
	Author    *User  `json:"author,omitempty"`
}

// Role represents a guild role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ApplicationCommand describes a slash command for registration.
type ApplicationCommand struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

// Application command option types used by the bot.
const (
	OptionTypeSubCommand = 1
	OptionTypeInteger    = 4
	OptionTypeUser       = 6
)

// ApplicationCommandOption describes one option of a slash command.
type ApplicationCommandOption struct {
	Type        int                        `json:"type"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Required    bool                       `json:"required,omitempty"`
	MinValue    *int                       `json:"min_value,omitempty"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Discord REST API client.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
}

// NewClient creates a new Discord client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://discord.com/api/v10"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:         config.Logger,
		rateLimiter:    NewRateLimiter(config.RateLimiterConfig),
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GUILD MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

// listMembersPageSize is the maximum page size the API accepts.
const listMembersPageSize = 1000

// ListGuildMembers returns all members of the guild, paging through the API.
func (c *Client) ListGuildMembers(ctx context.Context) ([]GuildMember, error) {
	var all []GuildMember
	after := ""

	for {
		path := fmt.Sprintf("/guilds/%s/members?limit=%d", c.config.GuildID, listMembersPageSize)
		if after != "" {
			path += "&after=" + url.QueryEscape(after)
		}

		var page []GuildMember
		if err := c.callAPI(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}

		all = append(all, page...)
		if len(page) < listMembersPageSize {
			return all, nil
		}

		// The cursor is the highest user id seen; entries without a user
		// object cannot carry it.
		after = ""
		for i := len(page) - 1; i >= 0; i-- {
			if page[i].User != nil {
				after = page[i].User.ID
				break
			}
		}
		if after == "" {
			return all, nil
		}
	}
}

// GetGuildMember returns a single guild member.
func (c *Client) GetGuildMember(ctx context.Context, userID string) (*GuildMember, error) {
	var m GuildMember
	path := fmt.Sprintf("/guilds/%s/members/%s", c.config.GuildID, url.PathEscape(userID))
	if err := c.callAPI(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, fmt.Errorf("get guild member: %w", err)
	}
	return &m, nil
}

// ModifyMemberNick sets a member's server nickname. An empty nick clears the
// override so the username shows through.
func (c *Client) ModifyMemberNick(ctx context.Context, userID, nick string) error {
	body := map[string]interface{}{
		"nick": nick,
	}
	if nick == "" {
		body["nick"] = nil
	}

	path := fmt.Sprintf("/guilds/%s/members/%s", c.config.GuildID, url.PathEscape(userID))
	if err := c.callAPI(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("modify member nick: %w", err)
	}
	return nil
}

// GetGuildRoles returns all roles of the guild.
func (c *Client) GetGuildRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	path := fmt.Sprintf("/guilds/%s/roles", c.config.GuildID)
	if err := c.callAPI(ctx, http.MethodGet, path, nil, &roles); err != nil {
		return nil, fmt.Errorf("get guild roles: %w", err)
	}
	return roles, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANNELS & MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// GetGuildChannels returns all channels of the guild.
func (c *Client) GetGuildChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	path := fmt.Sprintf("/guilds/%s/channels", c.config.GuildID)
	if err := c.callAPI(ctx, http.MethodGet, path, nil, &channels); err != nil {
		return nil, fmt.Errorf("get guild channels: %w", err)
	}
	return channels, nil
}

// CreateGuildChannel creates a text channel with the given name.
func (c *Client) CreateGuildChannel(ctx context.Context, name string) (*Channel, error) {
	body := map[string]interface{}{
		"name": name,
		"type": ChannelTypeGuildText,
	}

	var ch Channel
	path := fmt.Sprintf("/guilds/%s/channels", c.config.GuildID)
	if err := c.callAPI(ctx, http.MethodPost, path, body, &ch); err != nil {
		return nil, fmt.Errorf("create guild channel: %w", err)
	}
	return &ch, nil
}

// CreateMessage posts a message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (*Message, error) {
	body := map[string]interface{}{
		"content": content,
	}

	var msg Message
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	if err := c.callAPI(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &msg, nil
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) (*Message, error) {
	body := map[string]interface{}{
		"content": content,
	}

	var msg Message
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	if err := c.callAPI(ctx, http.MethodPatch, path, body, &msg); err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return &msg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterGuildCommands bulk-overwrites the guild's application commands.
func (c *Client) RegisterGuildCommands(ctx context.Context, commands []ApplicationCommand) error {
	path := fmt.Sprintf("/applications/%s/guilds/%s/commands", c.config.ApplicationID, c.config.GuildID)
	if err := c.callAPI(ctx, http.MethodPut, path, commands, nil); err != nil {
		return fmt.Errorf("register guild commands: %w", err)
	}

	names := make([]string, len(commands))
	for i, cmd := range commands {
		names[i] = cmd.Name
	}
	c.logger.Info("registered application commands", "commands", strings.Join(names, ","))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// API CALL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// callAPI makes a call to the Discord API with rate limiting and retries.
func (c *Client) callAPI(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.circuitBreaker.Allow(); err != nil {
		return err
	}

	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.rateLimiter.Allow(ctx); err != nil {
			return err
		}

		err := c.doAPICall(ctx, method, path, body, result)
		if err == nil {
			c.circuitBreaker.RecordSuccess()
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			// Client errors are the caller's problem, not service health.
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
				c.circuitBreaker.RecordFailure()
			}
			return err
		}

		c.circuitBreaker.RecordFailure()

		// Honor the retry-after hint on 429.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			c.rateLimiter.RecordRateLimitHit(apiErr.RetryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(apiErr.RetryAfter):
			}
		}
	}

	return fmt.Errorf("api call failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

// doAPICall performs a single API call.
func (c *Client) doAPICall(ctx context.Context, method, path string, body, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+c.config.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.config.Debug {
		c.logger.Debug("discord api call", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError represents a Discord API error response.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Code is the Discord-specific error code (e.g. 10007 Unknown Member).
	Code int

	// Message is the human-readable error description.
	Message string

	// RetryAfter is the suggested wait on 429 responses.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("discord api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Discord error codes the bot reacts to.
const (
	CodeUnknownMember  = 10007
	CodeUnknownMessage = 10008
	CodeUnknownChannel = 10003
)

// parseAPIError builds an APIError from an error response body.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var payload struct {
		Code       int     `json:"code"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if payload.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(payload.RetryAfter * float64(time.Second))
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	return apiErr
}

// isRetryableError checks if an error is worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests {
			return true
		}
		if apiErr.Status >= 500 {
			return true
		}
		return false
	}

	// Network errors are retryable.
	errStr := err.Error()
	for _, sub := range []string{"timeout", "connection refused", "temporary", "reset"} {
		if strings.Contains(errStr, sub) {
			return true
		}
	}
	return false
}
