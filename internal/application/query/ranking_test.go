package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/internal/infrastructure/persistence/memory"
)

// seedUser inserts a user with the given points directly into the repo.
func seedUser(t *testing.T, repo *memory.UserRepository, id string, points int) {
	t.Helper()

	u, err := user.NewUser(user.NewUserParams{
		ID:           id,
		Emails:       []user.EmailAddress{{Address: id + "@example.com"}},
		ReferralCode: user.ReferralCode(fmt.Sprintf("c%05s", id)),
	})
	assert.NoError(t, err)
	assert.NoError(t, repo.Create(context.Background(), u))
	if points > 0 {
		assert.NoError(t, repo.AddPoints(context.Background(), id, user.Points(points)))
	}
}

// seedRanking builds the canonical fixture: A=50, B=50, C=30, D=70.
func seedRanking(t *testing.T) *memory.UserRepository {
	t.Helper()

	repo := memory.NewUserRepository()
	seedUser(t, repo, "A", 50)
	seedUser(t, repo, "B", 50)
	seedUser(t, repo, "C", 30)
	seedUser(t, repo, "D", 70)
	return repo
}

func rankedIDs(dtos []RankedUserDTO) []string {
	ids := make([]string, len(dtos))
	for i, d := range dtos {
		ids[i] = d.UserID
	}
	return ids
}

func TestUsersBehind_ExcludesTies(t *testing.T) {
	repo := seedRanking(t)
	h := NewUsersBehindHandler(repo)

	// B sits at the same 50 points as A and must not appear.
	result, err := h.Handle(context.Background(), UsersBehindQuery{UserID: "A", HowMany: 2})

	assert.NoError(t, err)
	assert.Equal(t, "A", result.TargetID)
	assert.Equal(t, 50, result.TargetPoints)
	assert.Equal(t, []string{"C"}, rankedIDs(result.Users))
	assert.Equal(t, -20, result.Users[0].PointsGap)
}

func TestUsersAhead_IncludesTies(t *testing.T) {
	repo := seedRanking(t)
	h := NewUsersAheadHandler(repo)

	// B shares A's 50 points and still counts as ahead; A itself is
	// excluded. Closest first.
	result, err := h.Handle(context.Background(), UsersAheadQuery{UserID: "A", HowMany: 2})

	assert.NoError(t, err)
	assert.Equal(t, []string{"B", "D"}, rankedIDs(result.Users))
	assert.Equal(t, 0, result.Users[0].PointsGap)
	assert.Equal(t, 20, result.Users[1].PointsGap)
}

func TestUsersBehind_LimitRespected(t *testing.T) {
	repo := memory.NewUserRepository()
	seedUser(t, repo, "top", 100)
	for i := 0; i < 10; i++ {
		seedUser(t, repo, fmt.Sprintf("u%d", i), i*5)
	}

	h := NewUsersBehindHandler(repo)
	result, err := h.Handle(context.Background(), UsersBehindQuery{UserID: "top", HowMany: 3})

	assert.NoError(t, err)
	assert.Len(t, result.Users, 3)
	// Closest first: highest totals below the target.
	assert.Equal(t, []string{"u9", "u8", "u7"}, rankedIDs(result.Users))
}

func TestRanking_DefaultAndClampedRange(t *testing.T) {
	assert.Equal(t, DefaultRange, clampRange(0))
	assert.Equal(t, DefaultRange, clampRange(-3))
	assert.Equal(t, MaxRange, clampRange(100000))
	assert.Equal(t, 7, clampRange(7))
}

func TestRanking_MissingTargetIsHardFailure(t *testing.T) {
	repo := seedRanking(t)
	ctx := context.Background()

	_, err := NewUsersBehindHandler(repo).Handle(ctx, UsersBehindQuery{UserID: "nobody"})
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	_, err = NewUsersAheadHandler(repo).Handle(ctx, UsersAheadQuery{UserID: "nobody"})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestTopUser(t *testing.T) {
	repo := seedRanking(t)
	h := NewTopUserHandler(repo)

	result, err := h.Handle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "D", result.User.UserID)
	assert.Equal(t, 70, result.User.Points)
	assert.Equal(t, 4, result.TotalUsers)
}

func TestTopUser_EmptyStore(t *testing.T) {
	h := NewTopUserHandler(memory.NewUserRepository())

	_, err := h.Handle(context.Background())
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestGetUser(t *testing.T) {
	repo := seedRanking(t)
	h := NewGetUserHandler(repo, nil)

	dto, err := h.Handle(context.Background(), GetUserQuery{UserID: "A"})

	assert.NoError(t, err)
	assert.Equal(t, "A", dto.ID)
	assert.Equal(t, 50, dto.Points)
	assert.Len(t, dto.Emails, 1)
	assert.Equal(t, "A@example.com", dto.Emails[0].Address)

	_, err = h.Handle(context.Background(), GetUserQuery{UserID: "nobody"})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}
