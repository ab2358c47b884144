package rank

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTED STATE
// Состояние сохраняется целиком после каждой изменяющей его операции.
// Формат совместим с историческим ranks.json: ключи user_ranks и
// rank_message_id.
// ══════════════════════════════════════════════════════════════════════════════

// State - персистентное состояние системы: таблица рангов и ссылка на
// артефакт списка.
type State struct {
	// UserRanks - отображение id участника -> ранг.
	UserRanks map[string]int `json:"user_ranks"`

	// RankMessageID - ссылка на сообщение со списком рангов (может отсутствовать).
	RankMessageID MessageRef `json:"rank_message_id"`
}

// EmptyState возвращает пустое состояние.
func EmptyState() State {
	return State{UserRanks: make(map[string]int)}
}

// IsEmpty возвращает true, если таблица пуста.
func (s State) IsEmpty() bool {
	return len(s.UserRanks) == 0
}

// StateRepository - интерфейс репозитория состояния (реализации в infrastructure).
//
// Load возвращает пустое состояние, если сохранённого состояния ещё нет.
// Повреждённое состояние также деградирует до пустого (с логированием на
// стороне реализации) - это не фатальная ошибка.
//
// Save вызывается синхронно после каждой мутации и перезаписывает состояние
// целиком.
type StateRepository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}
