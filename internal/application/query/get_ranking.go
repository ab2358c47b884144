// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rankhub/discord-rank-hub/internal/application/ranking"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANKING QUERY
// Возвращает текущую таблицу рангов в порядке возрастания - те же строки,
// из которых собирается публикуемый список.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankingQuery содержит параметры запроса таблицы рангов.
type GetRankingQuery struct {
	// Limit - максимальное количество строк (0 = без ограничения).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// Validate проверяет корректность параметров.
func (q *GetRankingQuery) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("get_ranking: limit must be non-negative, got %d", q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("get_ranking: offset must be non-negative, got %d", q.Offset)
	}
	return nil
}

// GetRankingResult содержит результат запроса.
type GetRankingResult struct {
	// Rows - строки таблицы, отсортированные по возрастанию ранга.
	Rows []ranking.ListingRow

	// Total - полное число записей в таблице (до пагинации).
	Total int

	// RetrievedAt - момент чтения.
	RetrievedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetRankingHandler обрабатывает GetRankingQuery.
type GetRankingHandler struct {
	ranks  *ranking.Service
	logger *slog.Logger
}

// NewGetRankingHandler создаёт новый GetRankingHandler.
func NewGetRankingHandler(ranks *ranking.Service, logger *slog.Logger) *GetRankingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetRankingHandler{ranks: ranks, logger: logger}
}

// Handle выполняет запрос.
func (h *GetRankingHandler) Handle(ctx context.Context, q GetRankingQuery) (*GetRankingResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := h.ranks.Ranking(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_ranking: %w", err)
	}

	total := len(rows)
	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.Offset:]
		}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	return &GetRankingResult{
		Rows:        rows,
		Total:       total,
		RetrievedAt: time.Now().UTC(),
	}, nil
}
