package query

import (
	"context"
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USERS AHEAD QUERY
// Возвращает до N пользователей, стоящих в рейтинге сразу ПЕРЕД целевым:
// очки >= целевых, сам целевой исключён, ближайшие первыми.
//
// Сравнение намеренно нестрогое: пользователи с теми же очками, что у
// цели, СЧИТАЮТСЯ стоящими впереди. Это осознанная асимметрия с
// UsersBehind (там строгое "меньше"), и её нужно сохранять.
// ══════════════════════════════════════════════════════════════════════════════

// UsersAheadQuery содержит параметры запроса.
type UsersAheadQuery struct {
	// UserID - целевой пользователь.
	UserID string

	// HowMany - сколько соседей вернуть (ограничивается MaxRange).
	HowMany int
}

// UsersAheadHandler обрабатывает запросы "кто впереди".
type UsersAheadHandler struct {
	repo user.Repository
}

// NewUsersAheadHandler создаёт новый обработчик.
func NewUsersAheadHandler(repo user.Repository) *UsersAheadHandler {
	return &UsersAheadHandler{repo: repo}
}

// Handle выполняет запрос. Несуществующий целевой ID - жёсткая ошибка
// user.ErrUserNotFound, без частичного результата.
func (h *UsersAheadHandler) Handle(ctx context.Context, q UsersAheadQuery) (*NeighborsResult, error) {
	target, err := h.repo.GetByID(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	limit := clampRange(q.HowMany)

	users, err := h.repo.ListAhead(ctx, target.Points, target.ID, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]RankedUserDTO, len(users))
	for i, u := range users {
		dtos[i] = newRankedUserDTO(u, target.Points)
	}

	return &NeighborsResult{
		TargetID:     target.ID,
		TargetPoints: int(target.Points),
		Users:        dtos,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}
