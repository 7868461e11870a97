package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestUser(t *testing.T) *User {
	t.Helper()

	u, err := NewUser(NewUserParams{
		ID:           "user-1",
		Emails:       []EmailAddress{{Address: "dan@example.com"}},
		ReferralCode: "Ab3kQ9",
	})
	assert.NoError(t, err)
	return u
}

func TestNewUser_Defaults(t *testing.T) {
	u := newTestUser(t)

	assert.Equal(t, Points(0), u.Points)
	assert.Equal(t, ReferralCode("Ab3kQ9"), u.ReferralCode)
	assert.Empty(t, u.ReferredBy)
	assert.False(t, u.WasReferred())
	assert.Equal(t, "dan@example.com", u.PrimaryEmail())
}

func TestValidateShape(t *testing.T) {
	assert.ErrorIs(t, ValidateShape(nil), ErrInvalidUserShape)
	assert.ErrorIs(t, ValidateShape([]EmailAddress{{Address: ""}}), ErrInvalidUserShape)
	assert.ErrorIs(t, ValidateShape([]EmailAddress{{Address: "not-an-email"}}), ErrInvalidUserShape)
	assert.NoError(t, ValidateShape([]EmailAddress{{Address: "a@b.c", Verified: true}}))
}

func TestNewUser_RequiresEmailAndCode(t *testing.T) {
	_, err := NewUser(NewUserParams{ID: "user-1", ReferralCode: "Ab3kQ9"})
	assert.ErrorIs(t, err, ErrInvalidUserShape)

	_, err = NewUser(NewUserParams{
		ID:     "user-1",
		Emails: []EmailAddress{{Address: "dan@example.com"}},
	})
	assert.Error(t, err)
}

func TestLinkReferrer(t *testing.T) {
	u := newTestUser(t)

	assert.NoError(t, u.LinkReferrer("user-2"))
	assert.Equal(t, "user-2", u.ReferredBy)
	assert.True(t, u.WasReferred())

	// Связь устанавливается только один раз.
	assert.ErrorIs(t, u.LinkReferrer("user-3"), ErrAlreadyLinked)
	assert.Equal(t, "user-2", u.ReferredBy)
}

func TestLinkReferrer_Self(t *testing.T) {
	u := newTestUser(t)

	assert.ErrorIs(t, u.LinkReferrer(u.ID), ErrSelfReferral)
	assert.Empty(t, u.ReferredBy)
}

func TestAddPoints(t *testing.T) {
	u := newTestUser(t)

	assert.NoError(t, u.AddPoints(10))
	assert.Equal(t, Points(10), u.Points)

	assert.Error(t, u.AddPoints(-5))
	assert.Equal(t, Points(10), u.Points)
}

func TestReferralCode_IsValid(t *testing.T) {
	assert.True(t, ReferralCode("Ab3kQ9").IsValid())
	assert.False(t, ReferralCode("").IsValid())
	assert.False(t, ReferralCode("a b c d").IsValid())
	assert.False(t, ReferralCode("way-too-long-to-be-a-code").IsValid())
}

func TestClone(t *testing.T) {
	u := newTestUser(t)
	c := u.Clone()

	c.Emails[0].Address = "other@example.com"
	assert.Equal(t, "dan@example.com", u.PrimaryEmail())
}
