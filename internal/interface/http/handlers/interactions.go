// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rankhub/discord-rank-hub/internal/application/command"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
	"github.com/rankhub/discord-rank-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISCORD INTERACTION WIRE TYPES
// Discord delivers slash commands as signed POSTs to the interactions
// endpoint. Only the fields this service reads are modelled.
// ══════════════════════════════════════════════════════════════════════════════

// Interaction types sent by Discord.
const (
	InteractionTypePing               = 1
	InteractionTypeApplicationCommand = 2
)

// Interaction response types.
const (
	ResponseTypePong           = 1
	ResponseTypeChannelMessage = 4
)

// MessageFlagEphemeral makes a response visible only to the invoking user.
const MessageFlagEphemeral = 1 << 6

// permissionAdministrator is the Discord administrator permission bit.
const permissionAdministrator = 1 << 3

// maxInteractionBody caps how much of the request body is read.
const maxInteractionBody = 1 << 20 // 1 MB

// Interaction is an inbound interaction payload.
type Interaction struct {
	ID      string             `json:"id"`
	Type    int                `json:"type"`
	GuildID string             `json:"guild_id,omitempty"`
	Data    *InteractionData   `json:"data,omitempty"`
	Member  *InteractionMember `json:"member,omitempty"`
}

// InteractionData is the command portion of an interaction.
type InteractionData struct {
	Name    string              `json:"name"`
	Options []InteractionOption `json:"options,omitempty"`
}

// InteractionOption is a command option or subcommand. Subcommands nest
// their own options one level down.
type InteractionOption struct {
	Name    string              `json:"name"`
	Type    int                 `json:"type"`
	Value   any                 `json:"value,omitempty"`
	Options []InteractionOption `json:"options,omitempty"`
}

// StringValue returns the option value as a string. User and role options
// arrive as snowflake strings.
func (o InteractionOption) StringValue() string {
	s, _ := o.Value.(string)
	return s
}

// IntValue returns the option value as an int. Integer options arrive as
// JSON numbers.
func (o InteractionOption) IntValue() int {
	switch v := o.Value.(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// InteractionMember identifies the guild member who invoked the interaction.
type InteractionMember struct {
	User        *InteractionUser `json:"user,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
	Permissions string           `json:"permissions,omitempty"`
}

// InteractionUser is the user portion of an interaction member.
type InteractionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// IsAdmin reports whether the member's resolved permissions carry the
// administrator bit.
func (m *InteractionMember) IsAdmin() bool {
	if m == nil || m.Permissions == "" {
		return false
	}
	perms, err := strconv.ParseUint(m.Permissions, 10, 64)
	if err != nil {
		return false
	}
	return perms&permissionAdministrator != 0
}

// InteractionResponse is the synchronous reply to an interaction.
type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

// InteractionResponseData carries the message for a channel-message response.
type InteractionResponseData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERACTION HANDLER
// Verifies the Ed25519 signature on every request, answers PING probes and
// dispatches /rank subcommands to the command handlers. All command replies
// are ephemeral.
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidPublicKey is returned when the configured verification key does
// not parse as a 32-byte hex string.
var ErrInvalidPublicKey = errors.New("handlers: invalid interaction public key")

// InteractionConfig configures the interaction handler.
type InteractionConfig struct {
	// PublicKey is the application's hex-encoded Ed25519 verification key.
	PublicKey string

	// SetRank handles /rank set.
	SetRank *command.SetRankHandler

	// RemoveRank handles /rank remove.
	RemoveRank *command.RemoveRankHandler

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger is optional.
	Logger *slog.Logger
}

// InteractionHandler serves the Discord interactions endpoint.
type InteractionHandler struct {
	publicKey  ed25519.PublicKey
	setRank    *command.SetRankHandler
	removeRank *command.RemoveRankHandler
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewInteractionHandler creates an interaction handler, parsing the
// verification key.
func NewInteractionHandler(cfg InteractionConfig) (*InteractionHandler, error) {
	raw, err := hex.DecodeString(cfg.PublicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &InteractionHandler{
		publicKey:  ed25519.PublicKey(raw),
		setRank:    cfg.SetRank,
		removeRank: cfg.RemoveRank,
		metrics:    cfg.Metrics,
		logger:     logger,
	}, nil
}

// ServeHTTP handles POST /interactions.
func (h *InteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r, body) {
		h.metrics.RecordSignatureRejection()
		h.logger.Warn("interaction signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var interaction Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		http.Error(w, "malformed interaction payload", http.StatusBadRequest)
		return
	}

	switch interaction.Type {
	case InteractionTypePing:
		h.metrics.RecordInteraction("ping")
		writeInteractionResponse(w, InteractionResponse{Type: ResponseTypePong})

	case InteractionTypeApplicationCommand:
		h.metrics.RecordInteraction("application_command")
		writeInteractionResponse(w, h.handleCommand(r, &interaction))

	default:
		h.metrics.RecordInteraction("unknown")
		http.Error(w, "unsupported interaction type", http.StatusBadRequest)
	}
}

// verifySignature checks the Ed25519 signature headers against the raw body.
// The signed message is the timestamp header concatenated with the body.
func (h *InteractionHandler) verifySignature(r *http.Request, body []byte) bool {
	sig, err := hex.DecodeString(r.Header.Get("X-Signature-Ed25519"))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	timestamp := r.Header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return false
	}

	message := make([]byte, 0, len(timestamp)+len(body))
	message = append(message, timestamp...)
	message = append(message, body...)

	return ed25519.Verify(h.publicKey, message, sig)
}

// handleCommand dispatches an application command to its handler and renders
// the reply.
func (h *InteractionHandler) handleCommand(r *http.Request, in *Interaction) InteractionResponse {
	if in.Data == nil || in.Data.Name != "rank" {
		return ephemeral("Unknown command.")
	}

	sub := findSubcommand(in.Data.Options)
	if sub == nil {
		return ephemeral("Unknown subcommand.")
	}

	caller := callerFromInteraction(in)
	start := time.Now()

	var content string
	var outcome string

	switch sub.Name {
	case "set":
		content, outcome = h.handleSetRank(r, in, sub, caller)
	case "remove":
		content, outcome = h.handleRemoveRank(r, in, sub, caller)
	default:
		return ephemeral("Unknown subcommand.")
	}

	h.metrics.RecordCommand("rank_"+sub.Name, outcome, time.Since(start))
	return ephemeral(content)
}

// handleSetRank executes /rank set.
func (h *InteractionHandler) handleSetRank(r *http.Request, in *Interaction, sub *InteractionOption, caller command.Caller) (string, string) {
	target := optionString(sub.Options, "member")
	requested := optionInt(sub.Options, "rank")

	res, err := h.setRank.Handle(r.Context(), command.SetRankCommand{
		TargetID:      target,
		Rank:          requested,
		Caller:        caller,
		CorrelationID: in.ID,
	})
	if err != nil {
		return h.commandErrorReply(err, target, in.ID)
	}

	reply := fmt.Sprintf("Assigned rank %d to <@%s>.", res.NewRank, res.TargetID)
	if res.MembersShifted > 0 {
		reply += fmt.Sprintf(" %d other member(s) shifted.", res.MembersShifted)
	}
	if res.RenamesFailed > 0 {
		reply += fmt.Sprintf(" %d nickname(s) could not be updated.", res.RenamesFailed)
	}
	return reply, "success"
}

// handleRemoveRank executes /rank remove.
func (h *InteractionHandler) handleRemoveRank(r *http.Request, in *Interaction, sub *InteractionOption, caller command.Caller) (string, string) {
	target := optionString(sub.Options, "member")

	res, err := h.removeRank.Handle(r.Context(), command.RemoveRankCommand{
		TargetID:      target,
		Caller:        caller,
		CorrelationID: in.ID,
	})
	if err != nil {
		return h.commandErrorReply(err, target, in.ID)
	}

	reply := fmt.Sprintf("Removed rank %d from <@%s>.", res.OldRank, res.TargetID)
	if res.RenamesFailed > 0 {
		reply += fmt.Sprintf(" %d nickname(s) could not be updated.", res.RenamesFailed)
	}
	return reply, "success"
}

// commandErrorReply maps command errors to user-facing replies and metric
// outcomes.
func (h *InteractionHandler) commandErrorReply(err error, target, correlationID string) (string, string) {
	switch {
	case errors.Is(err, command.ErrUnauthorized):
		return "You are not allowed to manage ranks.", "unauthorized"
	case errors.Is(err, rank.ErrNotRanked):
		return fmt.Sprintf("<@%s> has no rank assigned.", target), "not_ranked"
	case errors.Is(err, rank.ErrInvalidRank):
		return "Rank must be a positive number.", "invalid_input"
	case errors.Is(err, rank.ErrInvalidMemberID):
		return "You must pick a member.", "invalid_input"
	default:
		h.logger.Error("command failed", "error", err, "correlation_id", correlationID)
		return "Something went wrong, please try again later.", "error"
	}
}

// callerFromInteraction builds the command caller from the interaction
// member block.
func callerFromInteraction(in *Interaction) command.Caller {
	caller := command.Caller{}
	if in.Member == nil {
		return caller
	}
	if in.Member.User != nil {
		caller.MemberID = in.Member.User.ID
	}
	caller.IsAdmin = in.Member.IsAdmin()
	caller.RoleIDs = in.Member.Roles
	return caller
}

// findSubcommand returns the first subcommand option, if any.
func findSubcommand(opts []InteractionOption) *InteractionOption {
	for i := range opts {
		if opts[i].Type == 1 { // SUB_COMMAND
			return &opts[i]
		}
	}
	return nil
}

// optionString finds a named option and returns its string value.
func optionString(opts []InteractionOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

// optionInt finds a named option and returns its integer value.
func optionInt(opts []InteractionOption, name string) int {
	for _, o := range opts {
		if o.Name == name {
			return o.IntValue()
		}
	}
	return 0
}

// ephemeral wraps content in an ephemeral channel-message response.
func ephemeral(content string) InteractionResponse {
	return InteractionResponse{
		Type: ResponseTypeChannelMessage,
		Data: &InteractionResponseData{
			Content: content,
			Flags:   MessageFlagEphemeral,
		},
	}
}

// writeInteractionResponse marshals the response body.
func writeInteractionResponse(w http.ResponseWriter, resp InteractionResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
