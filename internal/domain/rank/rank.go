package rank

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию участника в общем порядке.
// Rank начинается с 1 (первое место).
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// MemberID - непрозрачный стабильный идентификатор участника
// (Discord user id). Используется только как ключ таблицы.
type MemberID string

// IsValid проверяет, что идентификатор непустой.
func (id MemberID) IsValid() bool {
	return id != ""
}

// String возвращает строковое представление идентификатора.
func (id MemberID) String() string {
	return string(id)
}

// MessageRef - непрозрачная ссылка на внешний артефакт списка рангов
// (id сообщения). Пустое значение означает отсутствие артефакта.
//
// Исторический формат ranks.json хранил id сообщения и как число, и как
// строку, поэтому при разборе принимаются оба варианта.
type MessageRef string

// IsZero возвращает true, если ссылка отсутствует.
func (m MessageRef) IsZero() bool {
	return m == ""
}

// String возвращает строковое представление ссылки.
func (m MessageRef) String() string {
	return string(m)
}

// MarshalJSON сериализует ссылку как строку или null.
func (m MessageRef) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(m))
}

// UnmarshalJSON принимает строку, число или null.
func (m *MessageRef) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*m = ""
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*m = MessageRef(str)
		return nil
	}

	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		*m = MessageRef(strconv.FormatInt(num, 10))
		return nil
	}

	return fmt.Errorf("rank: invalid message ref %q", s)
}
