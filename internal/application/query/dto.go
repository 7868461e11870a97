// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// DefaultRange - сколько соседей возвращать, если вызывающий не указал.
const DefaultRange = 5

// MaxRange - верхняя граница запрашиваемого количества соседей.
const MaxRange = 100

// clampRange нормализует запрошенное количество записей.
func clampRange(n int) int {
	if n <= 0 {
		return DefaultRange
	}
	if n > MaxRange {
		return MaxRange
	}
	return n
}

// RankedUserDTO - запись рейтинга, отдаваемая наружу. Содержит только
// реферальные поля: email и профиль соседей не раскрываются.
type RankedUserDTO struct {
	// UserID - внутренний ID.
	UserID string `json:"user_id"`

	// Username - отображаемое имя, может быть пустым.
	Username string `json:"username,omitempty"`

	// ReferralCode - публичный код.
	ReferralCode string `json:"referral_code"`

	// Points - текущие очки.
	Points int `json:"points"`

	// PointsGap - разница очков с целевым пользователем.
	// Положительная = сосед впереди, отрицательная = сосед позади.
	PointsGap int `json:"points_gap"`
}

// newRankedUserDTO строит DTO относительно очков целевого пользователя.
func newRankedUserDTO(u *user.User, targetPoints user.Points) RankedUserDTO {
	return RankedUserDTO{
		UserID:       u.ID,
		Username:     u.Username,
		ReferralCode: u.ReferralCode.String(),
		Points:       int(u.Points),
		PointsGap:    int(u.Points) - int(targetPoints),
	}
}

// NeighborsResult - общий результат запросов соседей по рейтингу.
type NeighborsResult struct {
	// TargetID - пользователь, относительно которого строился запрос.
	TargetID string `json:"target_id"`

	// TargetPoints - его очки на момент запроса.
	TargetPoints int `json:"target_points"`

	// Users - соседи, ближайшие первыми.
	Users []RankedUserDTO `json:"users"`

	// GeneratedAt - время генерации. Запрос читает согласованный лишь
	// в конечном счёте снимок: очки могут измениться во время чтения.
	GeneratedAt time.Time `json:"generated_at"`
}
