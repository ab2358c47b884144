// Package member содержит доменную модель участника сообщества и порт
// внешнего каталога (Directory) - живого источника участников и исполнителя
// побочных эффектов: переименований и публикации списка рангов.
//
// Таблица рангов - источник истины; каталог лишь приводится в соответствие
// с ней. Реализации порта находятся в infrastructure.
package member

import (
	"context"
	"errors"

	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Member представляет участника сообщества, как его видит внешний каталог.
type Member struct {
	// ID - стабильный идентификатор участника.
	ID rank.MemberID

	// Username - каноническое имя аккаунта (не переопределяется).
	Username string

	// Nick - серверный никнейм; пустая строка, если не установлен.
	Nick string
}

// DisplayName возвращает видимое имя: никнейм, если установлен, иначе username.
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.Username
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY PORT
// ══════════════════════════════════════════════════════════════════════════════

// ChannelRef - непрозрачная ссылка на канал со списком рангов.
type ChannelRef string

// IsZero возвращает true, если ссылка отсутствует.
func (c ChannelRef) IsZero() bool {
	return c == ""
}

// Directory - порт внешнего каталога участников.
//
// Ошибки ErrNotFound и ErrForbidden - мягкие: вызывающая сторона логирует их
// и продолжает обработку остальных участников; они никогда не откатывают
// таблицу рангов.
type Directory interface {
	// ListMembers возвращает живой список участников.
	ListMembers(ctx context.Context) ([]Member, error)

	// Member возвращает одного участника по id.
	Member(ctx context.Context, id rank.MemberID) (Member, error)

	// Rename устанавливает видимое имя участника. Пустое имя снимает
	// переопределение. Реализация вправе не устанавливать имя, которое
	// не несёт информации (совпадает с каноническим).
	Rename(ctx context.Context, id rank.MemberID, displayName string) error

	// FindListingChannel ищет канал списка рангов.
	// Возвращает ErrChannelNotFound, если канала нет.
	FindListingChannel(ctx context.Context) (ChannelRef, error)

	// CreateListingChannel создаёт канал списка рангов.
	CreateListingChannel(ctx context.Context) (ChannelRef, error)

	// PostListing публикует новый список и возвращает ссылку на артефакт.
	PostListing(ctx context.Context, ch ChannelRef, text string) (rank.MessageRef, error)

	// EditListing обновляет существующий артефакт списка.
	// Возвращает ErrMessageNotFound, если артефакт исчез.
	EditListing(ctx context.Context, ch ChannelRef, msg rank.MessageRef, text string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNotFound - участник отсутствует в живом каталоге.
	ErrNotFound = errors.New("member: not found in directory")

	// ErrForbidden - каталог отказал в переименовании (нет прав).
	ErrForbidden = errors.New("member: rename forbidden")

	// ErrChannelNotFound - канал списка рангов не найден.
	ErrChannelNotFound = errors.New("member: listing channel not found")

	// ErrMessageNotFound - артефакт списка рангов исчез.
	ErrMessageNotFound = errors.New("member: listing message not found")
)
