package rank

import (
	"regexp"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// NAME PARSER / FORMATTER
// Маркер ранга - суффикс "#<число>" в конце отображаемого имени.
// Пробел перед '#' необязателен; базовое имя может содержать любые символы,
// включая '#', если они не образуют завершающий маркер.
// ══════════════════════════════════════════════════════════════════════════════

// rankMarkerRE распознаёт завершающий маркер ранга: необязательные пробелы,
// '#', необязательные пробелы, одна или более цифр - строго в конце строки.
var rankMarkerRE = regexp.MustCompile(`\s*#\s*([0-9]+)$`)

// ParseRank извлекает ранг из отображаемого имени.
// Возвращает (0, false), если маркер отсутствует или число не помещается в int.
func ParseRank(name string) (Rank, bool) {
	if name == "" {
		return 0, false
	}

	m := rankMarkerRE.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}

	return Rank(n), true
}

// StripRank возвращает имя без завершающего маркера ранга, с обрезанными
// пробелами. Имя без маркера возвращается как есть (только trim).
func StripRank(name string) string {
	return strings.TrimSpace(rankMarkerRE.ReplaceAllString(name, ""))
}

// FormatDisplayName строит отображаемое имя из базового имени и ранга.
// При r == 0 (ранг отсутствует) возвращается базовое имя без изменений
// (с обрезанными пробелами).
func FormatDisplayName(base string, r Rank) string {
	base = strings.TrimSpace(base)
	if !r.IsValid() {
		return base
	}
	return base + " #" + strconv.Itoa(int(r))
}
