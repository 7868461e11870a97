package query

import (
	"context"
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER QUERY
// Отдаёт пользователю его собственную запись: код, очки, реферальную
// связь. Используется личным кабинетом для показа "моя реферальная
// ссылка и мой счёт".
// ══════════════════════════════════════════════════════════════════════════════

// GetUserQuery содержит параметры запроса.
type GetUserQuery struct {
	// UserID - запрашиваемый пользователь.
	UserID string
}

// UserDTO - полное представление пользователя для него самого.
type UserDTO struct {
	ID           string         `json:"id"`
	Username     string         `json:"username,omitempty"`
	Emails       []EmailDTO     `json:"emails"`
	Profile      map[string]any `json:"profile,omitempty"`
	ReferralCode string         `json:"referral_code"`
	Points       int            `json:"points"`
	ReferredBy   string         `json:"referred_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// EmailDTO - email пользователя.
type EmailDTO struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

// GetUserHandler обрабатывает чтение одной записи.
type GetUserHandler struct {
	repo  user.Repository
	cache user.Cache

	// cacheTTL - срок жизни кешированной записи. Короткий: очки
	// меняются политикой начисления, а точность рейтинга терпима к
	// небольшому отставанию.
	cacheTTL time.Duration
}

// NewGetUserHandler создаёт новый обработчик. cache может быть nil.
func NewGetUserHandler(repo user.Repository, cache user.Cache) *GetUserHandler {
	return &GetUserHandler{
		repo:     repo,
		cache:    cache,
		cacheTTL: 30 * time.Second,
	}
}

// Handle выполняет запрос. Несуществующий ID - user.ErrUserNotFound.
func (h *GetUserHandler) Handle(ctx context.Context, q GetUserQuery) (*UserDTO, error) {
	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, q.UserID); err == nil && cached != nil {
			return toUserDTO(cached), nil
		}
	}

	u, err := h.repo.GetByID(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, u, h.cacheTTL)
	}

	return toUserDTO(u), nil
}

// toUserDTO преобразует сущность в DTO.
func toUserDTO(u *user.User) *UserDTO {
	emails := make([]EmailDTO, len(u.Emails))
	for i, e := range u.Emails {
		emails[i] = EmailDTO{Address: e.Address, Verified: e.Verified}
	}

	return &UserDTO{
		ID:           u.ID,
		Username:     u.Username,
		Emails:       emails,
		Profile:      u.Profile,
		ReferralCode: u.ReferralCode.String(),
		Points:       int(u.Points),
		ReferredBy:   u.ReferredBy,
		CreatedAt:    u.CreatedAt,
	}
}
