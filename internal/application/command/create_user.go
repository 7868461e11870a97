// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/pkg/logger"
	"github.com/idorecall/referral-service/pkg/referralcode"
	"github.com/idorecall/referral-service/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE USER COMMAND
// Регистрирует нового пользователя, выдаёт ему реферальный код и, если
// при регистрации был указан чужой код, связывает нового пользователя
// с рефером и вызывает политику начисления очков.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCodeAttempts - число попыток генерации уникального кода.
const DefaultCodeAttempts = 5

// codeCacheTTL - срок жизни кеша "код -> владелец". Код неизменяем,
// короткий TTL нужен только чтобы кеш не пережил удаление записи.
const codeCacheTTL = 10 * time.Minute

// CreateUserCommand contains the registration data.
type CreateUserCommand struct {
	// Username is optional; in practice it is usually empty.
	Username string

	// Emails - at least one address is required.
	Emails []user.EmailAddress

	// Profile is an opaque blob stored as-is.
	Profile map[string]any

	// ReferralCode is the code of the referring user. Optional.
	ReferralCode string

	// VisitorInfo is captured per request by the transport layer and
	// attached to the new record for fraud analysis. Passing it here
	// explicitly (instead of reading shared connection state) closes the
	// window in which a crash could detach it from the user record.
	VisitorInfo user.VisitorInfo
}

// Validate validates the command.
func (c CreateUserCommand) Validate() error {
	return user.ValidateShape(c.Emails)
}

// CreateUserResult contains the outcome of a registration attempt.
type CreateUserResult struct {
	// ID is the id of the created (or pre-existing) user.
	ID string `json:"id"`

	// ReferralCode is that user's own code.
	ReferralCode string `json:"referral_code"`

	// AlreadyExists is true when the email was registered before; the
	// returned ID and code then belong to the existing record and
	// nothing new was created.
	AlreadyExists bool `json:"already_exists"`
}

// CreateUserHandler обрабатывает регистрацию пользователей.
type CreateUserHandler struct {
	repo     user.Repository
	codes    *referralcode.Generator
	award    user.AwardPolicy
	notifier user.EnrollmentNotifier
	cache    user.Cache
	log      *logger.Logger

	// codeAttempts bounds the generate-and-check loop.
	codeAttempts int
}

// NewCreateUserHandler создаёт новый обработчик. award, notifier и cache
// могут быть nil - регистрация обязана работать и без них.
func NewCreateUserHandler(
	repo user.Repository,
	codes *referralcode.Generator,
	award user.AwardPolicy,
	notifier user.EnrollmentNotifier,
	cache user.Cache,
	log *logger.Logger,
) *CreateUserHandler {
	if log == nil {
		log = logger.Default()
	}
	return &CreateUserHandler{
		repo:         repo,
		codes:        codes,
		award:        award,
		notifier:     notifier,
		cache:        cache,
		log:          log.With(logger.Component("create_user")),
		codeAttempts: DefaultCodeAttempts,
	}
}

// WithCodeAttempts переопределяет число попыток генерации кода.
// Неположительные значения игнорируются.
func (h *CreateUserHandler) WithCodeAttempts(n int) *CreateUserHandler {
	if n > 0 {
		h.codeAttempts = n
	}
	return h
}

// Handle выполняет регистрацию.
//
// Семантика частичного успеха: если указанный реферальный код никому не
// принадлежит, пользователь К ЭТОМУ МОМЕНТУ УЖЕ СОЗДАН. Handle возвращает
// заполненный результат ВМЕСТЕ с user.ErrInvalidReferralCode - вызывающий
// обязан проверять результат даже при ошибке и не должен считать, что
// ошибка означает отсутствие изменений.
func (h *CreateUserHandler) Handle(ctx context.Context, cmd CreateUserCommand) (*CreateUserResult, error) {
	if len(cmd.Emails) == 0 && cmd.Username == "" && cmd.Profile == nil {
		return nil, user.ErrMissingUserObject
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	code, err := h.generateUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	newUser, err := user.NewUser(user.NewUserParams{
		ID:           uuid.New().String(),
		Username:     cmd.Username,
		Emails:       cmd.Emails,
		Profile:      cmd.Profile,
		ReferralCode: code,
		VisitorInfo:  cmd.VisitorInfo,
	})
	if err != nil {
		return nil, err
	}

	// Обнаружение дубликата - атомарное, через ограничение уникальности
	// в хранилище. Повторная отправка того же email - не ошибка.
	if err := h.repo.Create(ctx, newUser); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return h.handleDuplicate(ctx, cmd)
		}
		return nil, err
	}

	result := &CreateUserResult{
		ID:           newUser.ID,
		ReferralCode: newUser.ReferralCode.String(),
	}

	// Уведомление о регистрации - fire-and-forget, на сохранённое
	// состояние не влияет.
	if h.notifier != nil {
		h.notifier.SendEnrollmentNotification(ctx, newUser.ID)
	}
	h.log.Info("enrolled", logger.Email(newUser.PrimaryEmail()), logger.UserID(newUser.ID))

	if cmd.ReferralCode == "" {
		return result, nil
	}

	if err := h.redeem(ctx, newUser, user.ReferralCode(cmd.ReferralCode)); err != nil {
		// Пользователь уже создан и остаётся созданным.
		return result, err
	}

	return result, nil
}

// handleDuplicate обрабатывает повторную регистрацию существующего email.
// Занятым может оказаться любой из переданных адресов, не только первый,
// поэтому существующая запись ищется по каждому из них.
func (h *CreateUserHandler) handleDuplicate(ctx context.Context, cmd CreateUserCommand) (*CreateUserResult, error) {
	var (
		existing *user.User
		taken    string
	)
	for _, e := range cmd.Emails {
		found, err := h.repo.GetByEmail(ctx, e.Address)
		if errors.Is(err, user.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		existing = found
		taken = e.Address
		break
	}
	if existing == nil {
		// Хранилище сообщило о занятом адресе, но запись к моменту
		// повторного чтения уже исчезла.
		return nil, user.ErrUserNotFound
	}

	// Логируем для мониторинга злоупотреблений, но запрос не блокируем.
	h.log.Warn("duplicate signup attempt",
		logger.Email(taken),
		logger.ClientIP(cmd.VisitorInfo.IP),
	)

	return &CreateUserResult{
		ID:            existing.ID,
		ReferralCode:  existing.ReferralCode.String(),
		AlreadyExists: true,
	}, nil
}

// redeem разрешает код рефера, записывает связь и ровно один раз вызывает
// политику начисления.
func (h *CreateUserHandler) redeem(ctx context.Context, newUser *user.User, code user.ReferralCode) error {
	referrer, err := h.lookupReferrer(ctx, code)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return user.ErrInvalidReferralCode
		}
		return err
	}

	// Связь пишется атомарным обновлением одного поля до вызова политики:
	// начисление происходит только за надёжно записанную связь.
	if err := h.repo.SetReferredBy(ctx, newUser.ID, referrer.ID); err != nil {
		return err
	}

	if h.award != nil {
		if err := h.award.Award(ctx, referrer.ID, newUser.ID); err != nil {
			// Результат политики ядром не потребляется.
			h.log.Error("award policy failed",
				logger.ReferrerID(referrer.ID),
				logger.UserID(newUser.ID),
				logger.Err(err),
			)
		}
	}

	// Связь и очки изменили обе записи; кешированные копии устарели.
	if h.cache != nil {
		_ = h.cache.Invalidate(ctx, newUser.ID)
		_ = h.cache.Invalidate(ctx, referrer.ID)
	}

	h.log.Info("referral recorded",
		logger.ReferrerID(referrer.ID),
		logger.UserID(newUser.ID),
		logger.Code(code.String()),
	)

	return nil
}

// lookupReferrer разрешает владельца кода, предпочитая кеш: коды
// неизменяемы, и реализация кода - самый горячий путь чтения.
func (h *CreateUserHandler) lookupReferrer(ctx context.Context, code user.ReferralCode) (*user.User, error) {
	if h.cache != nil {
		if cached, err := h.cache.GetByCode(ctx, code); err == nil && cached != nil {
			return cached, nil
		}
	}

	referrer, err := h.repo.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.SetByCode(ctx, referrer, codeCacheTTL)
	}

	return referrer, nil
}

// errCodeCollision сигнализирует циклу генерации о занятом коде.
var errCodeCollision = errors.New("referral code collision")

// generateUniqueCode выполняет генерацию с проверкой уникальности и
// ограниченным числом повторов.
func (h *CreateUserHandler) generateUniqueCode(ctx context.Context) (user.ReferralCode, error) {
	var code user.ReferralCode

	err := retry.CodeGenerationRetrier(h.codeAttempts).Do(ctx, func(ctx context.Context) error {
		raw, err := h.codes.Generate()
		if err != nil {
			return retry.Permanent(err)
		}

		taken, err := h.repo.CodeExists(ctx, user.ReferralCode(raw))
		if err != nil {
			return retry.Permanent(err)
		}
		if taken {
			return retry.Retryable(errCodeCollision)
		}

		code = user.ReferralCode(raw)
		return nil
	})
	if err != nil {
		if errors.Is(err, errCodeCollision) {
			return "", user.ErrCodeSpaceExhausted
		}
		return "", err
	}

	return code, nil
}
