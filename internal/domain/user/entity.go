// Package user содержит доменную модель пользователя реферальной системы.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/idorecall/referral-service/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Points представляет реферальные очки пользователя.
type Points int

// IsValid проверяет, что количество очков неотрицательное.
func (p Points) IsValid() bool {
	return p >= 0
}

// Add складывает очки. Ядро никогда не уменьшает очки - этим занимается
// только политика начисления.
func (p Points) Add(delta Points) Points {
	return p + delta
}

// ReferralCode представляет публичный реферальный код пользователя.
type ReferralCode string

// IsValid проверяет корректность кода: непустой, без пробелов, разумной длины.
// Точный алфавит принадлежит генератору; домен проверяет только форму.
func (c ReferralCode) IsValid() bool {
	s := string(c)
	return len(s) >= 4 && len(s) <= 16 && !strings.ContainsAny(s, " \t\n\r")
}

// String возвращает строковое представление кода.
func (c ReferralCode) String() string {
	return string(c)
}

// EmailAddress представляет один email пользователя.
type EmailAddress struct {
	// Address - сам адрес. Обязательное поле.
	Address string

	// Verified - подтверждён ли адрес.
	Verified bool
}

// IsValid проверяет минимальную форму адреса.
func (e EmailAddress) IsValid() bool {
	return e.Address != "" && strings.Contains(e.Address, "@")
}

// VisitorInfo содержит данные о посетителе, собранные при регистрации.
// Хранится отдельно от профиля и используется только для анализа фрода.
type VisitorInfo struct {
	// IP - сетевой адрес, с которого пришла регистрация.
	IP string

	// UserAgent - браузер посетителя.
	UserAgent string

	// Language - язык браузера.
	Language string

	// ReferrerURL - страница, с которой пришёл посетитель.
	ReferrerURL string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User - центральная сущность реферальной системы.
type User struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// Username - отображаемое имя. Опционально, на практике обычно пустое.
	Username string

	// Emails - адреса пользователя, минимум один.
	Emails []EmailAddress

	// Profile - произвольный профиль, непрозрачный для ядра.
	Profile map[string]any

	// ReferralCode - публичный код, назначается один раз при создании
	// и никогда не меняется. Уникален в пределах хранилища.
	ReferralCode ReferralCode

	// Points - реферальные очки. Ноль при создании, изменяются только
	// внешней политикой начисления.
	Points Points

	// ReferredBy - ID пользователя, чей код был использован при регистрации.
	// Устанавливается не более одного раза, сразу после создания.
	ReferredBy string

	// VisitorInfo - данные о посетителе на момент регистрации.
	VisitorInfo VisitorInfo

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMissingUserObject - данные пользователя не переданы вовсе.
	ErrMissingUserObject = shared.NewDomainError("user", "Validate", shared.ErrInvalidInput, "no user object supplied")

	// ErrInvalidUserShape - данные пользователя не проходят минимальную
	// проверку формы (нужен хотя бы один email с адресом).
	ErrInvalidUserShape = shared.NewDomainError("user", "Validate", shared.ErrValidation, "user object must contain at least one email address")

	// ErrEmailTaken - email уже зарегистрирован. Команда регистрации
	// превращает эту ошибку в идемпотентный успех, наружу она не выходит.
	ErrEmailTaken = shared.NewDomainError("user", "Create", shared.ErrAlreadyExists, "email address already registered")

	// ErrUserNotFound - пользователь не найден.
	ErrUserNotFound = shared.NewDomainError("user", "Find", shared.ErrNotFound, "user not found")

	// ErrInvalidReferralCode - код не соответствует ни одному пользователю.
	// Внимание: к моменту этой ошибки новый пользователь уже создан.
	ErrInvalidReferralCode = shared.NewDomainError("user", "Redeem", shared.ErrNotFound, "user created, but invalid referral code")

	// ErrCodeSpaceExhausted - не удалось сгенерировать уникальный код
	// за отведённое число попыток.
	ErrCodeSpaceExhausted = shared.NewDomainError("user", "GenerateCode", shared.ErrExhausted, "could not generate a unique referral code")

	// ErrSelfReferral - попытка связать пользователя с самим собой.
	ErrSelfReferral = shared.NewDomainError("user", "Link", shared.ErrInvalidInput, "user cannot refer itself")

	// ErrAlreadyLinked - реферальная связь уже установлена.
	ErrAlreadyLinked = shared.NewDomainError("user", "Link", shared.ErrInvalidState, "referrer already recorded")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewUserParams содержит параметры для создания нового пользователя.
type NewUserParams struct {
	ID           string
	Username     string
	Emails       []EmailAddress
	Profile      map[string]any
	ReferralCode ReferralCode
	VisitorInfo  VisitorInfo
}

// ValidateShape проверяет форму входных данных регистрации до генерации
// кода и обращения к хранилищу.
func ValidateShape(emails []EmailAddress) error {
	if len(emails) == 0 {
		return ErrInvalidUserShape
	}
	for _, e := range emails {
		if !e.IsValid() {
			return ErrInvalidUserShape
		}
	}
	return nil
}

// NewUser создаёт нового пользователя с нулевыми очками и назначенным кодом.
func NewUser(params NewUserParams) (*User, error) {
	if params.ID == "" {
		return nil, errors.New("user id is required")
	}

	if err := ValidateShape(params.Emails); err != nil {
		return nil, err
	}

	if !params.ReferralCode.IsValid() {
		return nil, errors.New("referral code is required at creation")
	}

	now := time.Now().UTC()

	return &User{
		ID:           params.ID,
		Username:     strings.TrimSpace(params.Username),
		Emails:       params.Emails,
		Profile:      params.Profile,
		ReferralCode: params.ReferralCode,
		Points:       0,
		VisitorInfo:  params.VisitorInfo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// PrimaryEmail возвращает первый email пользователя.
func (u *User) PrimaryEmail() string {
	if len(u.Emails) == 0 {
		return ""
	}
	return u.Emails[0].Address
}

// WasReferred возвращает true, если пользователь пришёл по чужому коду.
func (u *User) WasReferred() bool {
	return u.ReferredBy != ""
}

// LinkReferrer записывает, кто привёл пользователя. Связь устанавливается
// не более одного раза и никогда на самого себя.
func (u *User) LinkReferrer(referrerID string) error {
	if referrerID == u.ID {
		return ErrSelfReferral
	}
	if u.ReferredBy != "" {
		return ErrAlreadyLinked
	}

	u.ReferredBy = referrerID
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// AddPoints увеличивает очки пользователя. Отрицательная дельта отклоняется:
// ядро никогда не уменьшает очки.
func (u *User) AddPoints(delta Points) error {
	if delta < 0 {
		return errors.New("points delta must be non-negative")
	}

	u.Points = u.Points.Add(delta)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// String возвращает строковое представление пользователя для логирования.
func (u *User) String() string {
	return fmt.Sprintf(
		"User{ID: %s, Email: %s, Code: %s, Points: %d}",
		u.ID, u.PrimaryEmail(), u.ReferralCode, u.Points,
	)
}

// Clone создаёт копию пользователя.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	clone := *u
	clone.Emails = make([]EmailAddress, len(u.Emails))
	copy(clone.Emails, u.Emails)
	return &clone
}
