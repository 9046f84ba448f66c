package adminauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "an-admin-secret-that-is-32-bytes!"

func TestIssueAndVerify(t *testing.T) {
	tokens := New(testSecret, clockwork.NewFakeClock())

	raw, err := tokens.Issue("ops", time.Hour)
	require.NoError(t, err)

	subject, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)
}

func TestIssue_RejectsBadInput(t *testing.T) {
	tokens := New(testSecret, clockwork.NewFakeClock())

	_, err := tokens.Issue("  ", time.Hour)
	assert.Error(t, err)

	_, err = tokens.Issue("ops", 0)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tokens := New(testSecret, clock)

	raw, err := tokens.Issue("ops", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	clock := clockwork.NewFakeClock()
	raw, err := New("some-other-secret-also-32-bytes!!", clock).Issue("ops", time.Hour)
	require.NoError(t, err)

	_, err = New(testSecret, clock).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "ops"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = New(testSecret, clockwork.NewFakeClock()).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresSubject(t *testing.T) {
	clock := clockwork.NewFakeClock()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = New(testSecret, clock).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	clock := clockwork.NewFakeClock()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = New(testSecret, clock).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := New(testSecret, clockwork.NewFakeClock()).Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
