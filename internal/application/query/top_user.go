package query

import (
	"context"
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOP USER QUERY
// Возвращает одного лидера рейтинга для витрины. Равные очки разрешаются
// порядком хранилища по умолчанию.
// ══════════════════════════════════════════════════════════════════════════════

// TopUserResult содержит лидера рейтинга.
type TopUserResult struct {
	// User - лидер.
	User RankedUserDTO `json:"user"`

	// TotalUsers - всего пользователей в хранилище.
	TotalUsers int `json:"total_users"`

	// GeneratedAt - время генерации.
	GeneratedAt time.Time `json:"generated_at"`
}

// TopUserHandler обрабатывает запросы лидера.
type TopUserHandler struct {
	repo user.Repository
}

// NewTopUserHandler создаёт новый обработчик.
func NewTopUserHandler(repo user.Repository) *TopUserHandler {
	return &TopUserHandler{repo: repo}
}

// Handle выполняет запрос. На пустом хранилище возвращает
// user.ErrUserNotFound.
func (h *TopUserHandler) Handle(ctx context.Context) (*TopUserResult, error) {
	top, err := h.repo.Top(ctx)
	if err != nil {
		return nil, err
	}

	total, err := h.repo.Count(ctx)
	if err != nil {
		total = 0
	}

	return &TopUserResult{
		User:        newRankedUserDTO(top, top.Points),
		TotalUsers:  total,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
