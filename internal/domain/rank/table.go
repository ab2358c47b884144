package rank

import (
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK TABLE
// Отображение MemberID -> Rank. Таблица не потокобезопасна: владелец
// (application-слой) сериализует все read-modify-write операции одним мьютексом.
// ══════════════════════════════════════════════════════════════════════════════

// Entry представляет одну запись таблицы.
type Entry struct {
	Member MemberID
	Rank   Rank
}

// Change описывает изменение ранга одного участника.
// From == 0 означает, что ранга не было; To == 0 - что ранг снят.
type Change struct {
	Member MemberID
	From   Rank
	To     Rank
}

// Table владеет отображением участник -> ранг.
type Table struct {
	ranks map[MemberID]Rank
}

// NewTable создаёт пустую таблицу.
func NewTable() *Table {
	return &Table{ranks: make(map[MemberID]Rank)}
}

// FromMap восстанавливает таблицу из сериализованного состояния.
// Записи с пустым id или неположительным рангом отбрасываются.
func FromMap(m map[string]int) *Table {
	t := NewTable()
	for id, r := range m {
		if MemberID(id).IsValid() && Rank(r).IsValid() {
			t.ranks[MemberID(id)] = Rank(r)
		}
	}
	return t
}

// ToMap сериализует таблицу в форму для персистентности.
func (t *Table) ToMap() map[string]int {
	m := make(map[string]int, len(t.ranks))
	for id, r := range t.ranks {
		m[string(id)] = int(r)
	}
	return m
}

// Get возвращает ранг участника.
func (t *Table) Get(id MemberID) (Rank, bool) {
	r, ok := t.ranks[id]
	return r, ok
}

// Has возвращает true, если участник есть в таблице.
func (t *Table) Has(id MemberID) bool {
	_, ok := t.ranks[id]
	return ok
}

// Set выполняет сырую вставку: возможная коллизия значений разрешается
// последующим вызовом Renumber.
func (t *Table) Set(id MemberID, r Rank) {
	t.ranks[id] = r
}

// Delete удаляет участника из таблицы.
// Возвращает false, если участника в таблице не было.
func (t *Table) Delete(id MemberID) bool {
	if _, ok := t.ranks[id]; !ok {
		return false
	}
	delete(t.ranks, id)
	return true
}

// Len возвращает число записей.
func (t *Table) Len() int {
	return len(t.ranks)
}

// Snapshot возвращает копию отображения.
func (t *Table) Snapshot() map[MemberID]Rank {
	m := make(map[MemberID]Rank, len(t.ranks))
	for id, r := range t.ranks {
		m[id] = r
	}
	return m
}

// Entries возвращает записи, отсортированные по возрастанию ранга
// (при равенстве - по id для детерминированности).
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.ranks))
	for id, r := range t.ranks {
		entries = append(entries, Entry{Member: id, Rank: r})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rank != entries[j].Rank {
			return entries[i].Rank < entries[j].Rank
		}
		return entries[i].Member < entries[j].Member
	})
	return entries
}

// IsContiguous проверяет инвариант: множество рангов равно {1..N} без
// дубликатов и пропусков.
func (t *Table) IsContiguous() bool {
	seen := make(map[Rank]bool, len(t.ranks))
	for _, r := range t.ranks {
		if !r.IsValid() || int(r) > len(t.ranks) || seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// RENUMBERING
// Примитив заполнения пропусков и разрешения коллизий.
// ══════════════════════════════════════════════════════════════════════════════

// Renumber превращает произвольное распределение рангов в плотную
// последовательность 1..N и возвращает изменения относительно исходных
// сырых значений.
//
// Остальные участники сортируются по возрастанию исходного значения
// (при равенстве - по id), после чего target вставляется точно на
// запрошенную позицию: при коллизии активно назначаемый участник занимает
// слот, а прежний владелец сдвигается. Запрошенная позиция за пределами
// таблицы усекается до хвоста. Передавайте target == "" для операций без
// целевого участника (удаление, загрузка состояния).
//
// Операция идемпотентна: повторный вызов над плотной таблицей не даёт
// изменений.
func (t *Table) Renumber(target MemberID) []Change {
	targetRank, hasTarget := t.ranks[target]

	entries := make([]Entry, 0, len(t.ranks))
	for id, r := range t.ranks {
		if hasTarget && id == target {
			continue
		}
		entries = append(entries, Entry{Member: id, Rank: r})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rank != entries[j].Rank {
			return entries[i].Rank < entries[j].Rank
		}
		return entries[i].Member < entries[j].Member
	})

	if hasTarget {
		idx := int(targetRank) - 1
		if idx < 0 {
			idx = 0
		}
		if idx > len(entries) {
			idx = len(entries)
		}
		entries = append(entries, Entry{})
		copy(entries[idx+1:], entries[idx:])
		entries[idx] = Entry{Member: target, Rank: targetRank}
	}

	var changes []Change
	for i, e := range entries {
		newRank := Rank(i + 1)
		if e.Rank != newRank {
			changes = append(changes, Change{Member: e.Member, From: e.Rank, To: newRank})
		}
		t.ranks[e.Member] = newRank
	}

	return changes
}
