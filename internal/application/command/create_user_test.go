package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/internal/infrastructure/persistence/memory"
	"github.com/idorecall/referral-service/pkg/referralcode"
)

// recordingNotifier counts enrollment notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) SendEnrollmentNotification(ctx context.Context, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID)
}

// recordingAward counts Award invocations and remembers the arguments.
type recordingAward struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (a *recordingAward) Award(ctx context.Context, referrerID, referredID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, [2]string{referrerID, referredID})
	return a.err
}

// fakeCache is an in-process user.Cache recording invalidations.
type fakeCache struct {
	mu          sync.Mutex
	byID        map[string]*user.User
	byCode      map[user.ReferralCode]*user.User
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		byID:   make(map[string]*user.User),
		byCode: make(map[user.ReferralCode]*user.User),
	}
}

func (c *fakeCache) Get(ctx context.Context, id string) (*user.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[id].Clone(), nil
}

func (c *fakeCache) Set(ctx context.Context, u *user.User, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[u.ID] = u.Clone()
	return nil
}

func (c *fakeCache) GetByCode(ctx context.Context, code user.ReferralCode) (*user.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byCode[code].Clone(), nil
}

func (c *fakeCache) SetByCode(ctx context.Context, u *user.User, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCode[u.ReferralCode] = u.Clone()
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type testEnv struct {
	repo     *memory.UserRepository
	award    *recordingAward
	notifier *recordingNotifier
	cache    *fakeCache
	handler  *CreateUserHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:     memory.NewUserRepository(),
		award:    &recordingAward{},
		notifier: &recordingNotifier{},
	}
	env.handler = NewCreateUserHandler(env.repo, referralcode.New(6), env.award, env.notifier, nil, nil)
	return env
}

func newCachedTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:     memory.NewUserRepository(),
		award:    &recordingAward{},
		notifier: &recordingNotifier{},
		cache:    newFakeCache(),
	}
	env.handler = NewCreateUserHandler(env.repo, referralcode.New(6), env.award, env.notifier, env.cache, nil)
	return env
}

func signupCmd(email, code string) CreateUserCommand {
	return CreateUserCommand{
		Emails:       []user.EmailAddress{{Address: email}},
		ReferralCode: code,
		VisitorInfo:  user.VisitorInfo{IP: "203.0.113.7"},
	}
}

func TestCreateUser_FreshSignup(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.handler.Handle(context.Background(), signupCmd("alice@example.com", ""))

	assert.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.Len(t, result.ReferralCode, 6)
	assert.False(t, result.AlreadyExists)

	stored, err := env.repo.GetByID(context.Background(), result.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, int(stored.Points))
	assert.Empty(t, stored.ReferredBy)
	assert.Equal(t, "203.0.113.7", stored.VisitorInfo.IP)

	assert.Equal(t, []string{result.ID}, env.notifier.calls)
	assert.Empty(t, env.award.calls)
}

func TestCreateUser_DuplicateEmailIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.handler.Handle(ctx, signupCmd("bob@example.com", ""))
	assert.NoError(t, err)

	second, err := env.handler.Handle(ctx, signupCmd("bob@example.com", ""))
	assert.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)

	// The second attempt must not create a record or notify again.
	count, err := env.repo.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, env.notifier.calls, 1)
}

func TestCreateUser_DuplicateSecondaryEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.handler.Handle(ctx, signupCmd("bob@example.com", ""))
	assert.NoError(t, err)

	// Занятый адрес стоит вторым в списке; ответ всё равно идемпотентный.
	cmd := CreateUserCommand{
		Emails: []user.EmailAddress{
			{Address: "fresh@example.com"},
			{Address: "bob@example.com"},
		},
		VisitorInfo: user.VisitorInfo{IP: "203.0.113.7"},
	}
	second, err := env.handler.Handle(ctx, cmd)

	assert.NoError(t, err)
	assert.NotNil(t, second)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)

	count, err := env.repo.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateUser_ValidReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer, err := env.handler.Handle(ctx, signupCmd("carol@example.com", ""))
	assert.NoError(t, err)

	referred, err := env.handler.Handle(ctx, signupCmd("dave@example.com", referrer.ReferralCode))
	assert.NoError(t, err)
	assert.False(t, referred.AlreadyExists)

	stored, err := env.repo.GetByID(ctx, referred.ID)
	assert.NoError(t, err)
	assert.Equal(t, referrer.ID, stored.ReferredBy)

	// Award fires exactly once, after the link is recorded.
	assert.Equal(t, [][2]string{{referrer.ID, referred.ID}}, env.award.calls)
}

func TestCreateUser_InvalidReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.handler.Handle(ctx, signupCmd("erin@example.com", "zzzzzz"))

	// Partial success: the user exists, the linking failed.
	assert.ErrorIs(t, err, user.ErrInvalidReferralCode)
	assert.NotNil(t, result)
	assert.NotEmpty(t, result.ID)

	stored, getErr := env.repo.GetByID(ctx, result.ID)
	assert.NoError(t, getErr)
	assert.Empty(t, stored.ReferredBy)
	assert.Empty(t, env.award.calls)
	assert.Len(t, env.notifier.calls, 1)
}

func TestCreateUser_SelfReferralImpossible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A user cannot know their own code before signing up, and a second
	// signup with that code is answered from the existing record without
	// touching the link.
	first, err := env.handler.Handle(ctx, signupCmd("frank@example.com", ""))
	assert.NoError(t, err)

	second, err := env.handler.Handle(ctx, signupCmd("frank@example.com", first.ReferralCode))
	assert.NoError(t, err)
	assert.True(t, second.AlreadyExists)

	stored, err := env.repo.GetByID(ctx, first.ID)
	assert.NoError(t, err)
	assert.Empty(t, stored.ReferredBy)
	assert.Empty(t, env.award.calls)
}

func TestCreateUser_AwardFailureDoesNotFailSignup(t *testing.T) {
	env := newTestEnv(t)
	env.award.err = errors.New("ledger offline")
	ctx := context.Background()

	referrer, err := env.handler.Handle(ctx, signupCmd("grace@example.com", ""))
	assert.NoError(t, err)

	referred, err := env.handler.Handle(ctx, signupCmd("heidi@example.com", referrer.ReferralCode))
	assert.NoError(t, err)

	stored, err := env.repo.GetByID(ctx, referred.ID)
	assert.NoError(t, err)
	assert.Equal(t, referrer.ID, stored.ReferredBy)
}

func TestCreateUser_MissingUserObject(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handler.Handle(context.Background(), CreateUserCommand{})
	assert.ErrorIs(t, err, user.ErrMissingUserObject)
}

func TestCreateUser_InvalidShape(t *testing.T) {
	env := newTestEnv(t)

	cmd := CreateUserCommand{
		Emails: []user.EmailAddress{{Address: "not-an-email"}},
	}
	_, err := env.handler.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, user.ErrInvalidUserShape)
}

// collidingRepo reports every generated code as taken.
type collidingRepo struct {
	*memory.UserRepository
}

func (r *collidingRepo) CodeExists(ctx context.Context, code user.ReferralCode) (bool, error) {
	return true, nil
}

func TestCreateUser_RedeemPopulatesCodeCache(t *testing.T) {
	env := newCachedTestEnv(t)
	ctx := context.Background()

	referrer, err := env.handler.Handle(ctx, signupCmd("carol@example.com", ""))
	assert.NoError(t, err)

	referred, err := env.handler.Handle(ctx, signupCmd("dave@example.com", referrer.ReferralCode))
	assert.NoError(t, err)

	// Разрешение кода через хранилище заполняет кеш "код -> владелец".
	cached := env.cache.byCode[user.ReferralCode(referrer.ReferralCode)]
	assert.NotNil(t, cached)
	assert.Equal(t, referrer.ID, cached.ID)

	// Связь и начисление делают обе кешированные записи устаревшими.
	assert.Contains(t, env.cache.invalidated, referrer.ID)
	assert.Contains(t, env.cache.invalidated, referred.ID)
}

func TestCreateUser_RedeemPrefersCachedCode(t *testing.T) {
	env := newCachedTestEnv(t)
	ctx := context.Background()

	referrer, err := env.handler.Handle(ctx, signupCmd("erin@example.com", ""))
	assert.NoError(t, err)

	owner, err := env.repo.GetByID(ctx, referrer.ID)
	assert.NoError(t, err)

	// Код существует только в кеше: успешная реализация доказывает, что
	// кеш опрашивается раньше хранилища.
	ghost := owner.Clone()
	ghost.ReferralCode = "WWWW22"
	assert.NoError(t, env.cache.SetByCode(ctx, ghost, time.Minute))

	referred, err := env.handler.Handle(ctx, signupCmd("frank@example.com", "WWWW22"))
	assert.NoError(t, err)

	stored, err := env.repo.GetByID(ctx, referred.ID)
	assert.NoError(t, err)
	assert.Equal(t, referrer.ID, stored.ReferredBy)
	assert.Equal(t, [][2]string{{referrer.ID, referred.ID}}, env.award.calls)
}

func TestCreateUser_CodeSpaceExhausted(t *testing.T) {
	repo := &collidingRepo{memory.NewUserRepository()}
	handler := NewCreateUserHandler(repo, referralcode.New(6), nil, nil, nil, nil)

	result, err := handler.Handle(context.Background(), signupCmd("ivan@example.com", ""))

	assert.ErrorIs(t, err, user.ErrCodeSpaceExhausted)
	assert.Nil(t, result)
}
