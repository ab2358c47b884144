package rank

import "errors"

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidRank - невалидный ранг (должен быть положительным).
	ErrInvalidRank = errors.New("rank: invalid rank: must be positive")

	// ErrInvalidMemberID - невалидный идентификатор участника.
	ErrInvalidMemberID = errors.New("rank: invalid member id: cannot be empty")

	// ErrNotRanked - участник отсутствует в таблице рангов.
	ErrNotRanked = errors.New("rank: member has no rank assigned")
)
