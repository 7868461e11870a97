package user

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем пользователей.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища, на которые опирается ядро.
//
// Корректность при конкурентной регистрации зависит от двух гарантий
// реализации: Create обнаруживает дубликат email атомарно (ограничение
// уникальности, а не чтение-потом-запись), а SetReferredBy обновляет
// одно поле атомарно.
type Repository interface {
	// Create создаёт нового пользователя.
	// Возвращает ErrEmailTaken, если один из email уже зарегистрирован.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает пользователя по внутреннему ID.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail возвращает пользователя по email.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByReferralCode возвращает пользователя-владельца кода.
	// Возвращает ErrUserNotFound, если код никому не принадлежит.
	GetByReferralCode(ctx context.Context, code ReferralCode) (*User, error)

	// SetReferredBy атомарно записывает реферальную связь.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	SetReferredBy(ctx context.Context, id, referrerID string) error

	// AddPoints атомарно увеличивает очки пользователя.
	// Используется политикой начисления, а не ядром.
	AddPoints(ctx context.Context, id string, delta Points) error

	// CodeExists проверяет занятость кода. Используется циклом
	// генерации для проверки уникальности до вставки.
	CodeExists(ctx context.Context, code ReferralCode) (bool, error)

	// ListBehind возвращает до limit пользователей с очками строго меньше
	// points, отсортированных по убыванию очков (ближайшие первыми).
	ListBehind(ctx context.Context, points Points, limit int) ([]*User, error)

	// ListAhead возвращает до limit пользователей с очками >= points,
	// исключая excludeID, отсортированных по возрастанию очков
	// (ближайшие первыми). Равные очки попадают в результат.
	ListAhead(ctx context.Context, points Points, excludeID string, limit int) ([]*User, error)

	// Top возвращает пользователя с максимальными очками.
	// Возвращает ErrUserNotFound на пустом хранилище.
	Top(ctx context.Context) (*User, error)

	// Count возвращает общее количество пользователей.
	Count(ctx context.Context) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// Для кеширования часто запрашиваемых пользователей (обычно Redis).
// Рейтинговые запросы терпимы к слегка устаревшим данным.
// ══════════════════════════════════════════════════════════════════════════════

// Cache определяет операции кеширования пользователей.
type Cache interface {
	// Get получает пользователя из кеша по ID.
	Get(ctx context.Context, id string) (*User, error)

	// Set сохраняет пользователя в кеш.
	Set(ctx context.Context, u *User, ttl time.Duration) error

	// GetByCode получает пользователя из кеша по реферальному коду.
	GetByCode(ctx context.Context, code ReferralCode) (*User, error)

	// SetByCode сохраняет пользователя в кеш с ключом по коду.
	SetByCode(ctx context.Context, u *User, ttl time.Duration) error

	// Invalidate удаляет все записи пользователя из кеша.
	Invalidate(ctx context.Context, id string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTENSION POINTS
// ══════════════════════════════════════════════════════════════════════════════

// AwardPolicy - точка расширения для начисления очков за реферала.
//
// Ядро вызывает Award ровно один раз на успешную реализацию кода,
// синхронно, сразу после того как связь надёжно записана. Возвращаемая
// ошибка только логируется и не влияет на результат регистрации.
type AwardPolicy interface {
	Award(ctx context.Context, referrerID, referredID string) error
}

// AwardPolicyFunc позволяет использовать функцию как AwardPolicy.
type AwardPolicyFunc func(ctx context.Context, referrerID, referredID string) error

// Award вызывает функцию.
func (f AwardPolicyFunc) Award(ctx context.Context, referrerID, referredID string) error {
	return f(ctx, referrerID, referredID)
}

// EnrollmentNotifier - внешний коллаборатор, уведомляющий нового
// пользователя о регистрации. Вызов fire-and-forget: сбои не
// поднимаются до вызывающего.
type EnrollmentNotifier interface {
	SendEnrollmentNotification(ctx context.Context, userID string)
}
