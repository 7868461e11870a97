package query

import (
	"context"
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USERS BEHIND QUERY
// Возвращает до N пользователей, стоящих в рейтинге сразу ЗА целевым:
// очки строго меньше целевых, ближайшие первыми. Пользователи с теми же
// очками, что у цели, в выдачу не попадают.
// ══════════════════════════════════════════════════════════════════════════════

// UsersBehindQuery содержит параметры запроса.
type UsersBehindQuery struct {
	// UserID - целевой пользователь.
	UserID string

	// HowMany - сколько соседей вернуть (ограничивается MaxRange).
	HowMany int
}

// UsersBehindHandler обрабатывает запросы "кто позади".
type UsersBehindHandler struct {
	repo user.Repository
}

// NewUsersBehindHandler создаёт новый обработчик.
func NewUsersBehindHandler(repo user.Repository) *UsersBehindHandler {
	return &UsersBehindHandler{repo: repo}
}

// Handle выполняет запрос. Несуществующий целевой ID - жёсткая ошибка
// user.ErrUserNotFound, без частичного результата.
func (h *UsersBehindHandler) Handle(ctx context.Context, q UsersBehindQuery) (*NeighborsResult, error) {
	target, err := h.repo.GetByID(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	limit := clampRange(q.HowMany)

	// Строго меньше: равные с целью очки исключаются самим сравнением.
	users, err := h.repo.ListBehind(ctx, target.Points, limit)
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
