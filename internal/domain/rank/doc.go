// Package rank содержит доменную модель упорядочивания участников Discord Rank Hub.
//
// Это ядро бизнес-логики системы. Пакет определяет:
//
//   - Value Objects: Rank, MemberID, MessageRef
//   - Таблицу рангов (Table) и алгоритм перенумерации (Renumber)
//   - Парсер/форматтер маркера ранга в отображаемом имени
//   - Интерфейс репозитория состояния: StateRepository
//
// # Архитектурные принципы
//
// Пакет следует принципам Clean Architecture и DDD:
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - определяет интерфейсы, которые реализуются в infrastructure
//  3. Чистые функции - перенумерация детерминирована и тестируется без внешних сервисов
//
// # Инвариант таблицы
//
// В установившемся состоянии множество значений рангов равно {1, 2, ..., N},
// где N - число записей: без дубликатов и без пропусков. Инвариант может
// нарушаться внутри операции, но восстанавливается перенумерацией до её
// завершения.
//
// # Маркер ранга
//
// Ранг кодируется в отображаемом имени суффиксом "#<число>":
//
//	r, ok := ParseRank("Nova #7")        // 7, true
//	base := StripRank("Nova #7")         // "Nova"
//	name := FormatDisplayName("Nova", 7) // "Nova #7"
//
// # Перенумерация
//
// Renumber превращает произвольное (возможно, с пропусками и коллизиями)
// распределение рангов в плотную последовательность 1..N. Записи
// упорядочиваются по возрастанию исходного значения; при равенстве значений
// активно назначаемый участник выигрывает целевую позицию. Операция
// идемпотентна: Renumber(Renumber(t)) == Renumber(t).
package rank
