package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// StateRepository implements rank.StateRepository on the rank_state table.
type StateRepository struct {
	conn    *Connection
	guildID string
}

// NewStateRepository creates a state repository scoped to one guild.
func NewStateRepository(conn *Connection, guildID string) *StateRepository {
	return &StateRepository{conn: conn, guildID: guildID}
}

// Load reads the guild's rank state. A missing row is an empty state.
func (r *StateRepository) Load(ctx context.Context) (rank.State, error) {
	var (
		ranksJSON []byte
		messageID *string
	)

	err := r.conn.QueryRow(ctx,
		`SELECT user_ranks, rank_message_id FROM rank_state WHERE guild_id = $1`,
		r.guildID,
	).Scan(&ranksJSON, &messageID)
	if err != nil {
		if IsNoRows(err) {
			return rank.EmptyState(), nil
		}
		return rank.State{}, fmt.Errorf("postgres: load rank state: %w", err)
	}

	state := rank.EmptyState()
	if len(ranksJSON) > 0 {
		if err := json.Unmarshal(ranksJSON, &state.UserRanks); err != nil {
			return rank.State{}, fmt.Errorf("postgres: decode user_ranks: %w", err)
		}
	}
	if messageID != nil {
		state.RankMessageID = rank.MessageRef(*messageID)
	}
	return state, nil
}

// Save upserts the guild's whole rank state.
func (r *StateRepository) Save(ctx context.Context, state rank.State) error {
	ranksJSON, err := json.Marshal(state.UserRanks)
	if err != nil {
		return fmt.Errorf("postgres: encode user_ranks: %w", err)
	}

	var messageID *string
	if !state.RankMessageID.IsZero() {
		s := string(state.RankMessageID)
		messageID = &s
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO rank_state (guild_id, user_ranks, rank_message_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id) DO UPDATE SET
			user_ranks = EXCLUDED.user_ranks,
			rank_message_id = EXCLUDED.rank_message_id,
			updated_at = NOW()
	`, r.guildID, ranksJSON, messageID)
	if err != nil {
		return fmt.Errorf("postgres: save rank state: %w", err)
	}
	return nil
}
