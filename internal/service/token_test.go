package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coloring-session/internal/service"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := service.NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue("ABC234", "participant-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	participantID, err := svc.Verify(token, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, "participant-42", participantID)
}

func TestTokenService_Verify_WrongRoom(t *testing.T) {
	svc := service.NewTokenService("test-secret", time.Hour)
	token, err := svc.Issue("ABC234", "participant-42")
	require.NoError(t, err)

	// 令牌绑定房间码，拿去别的房间无效
	_, err = svc.Verify(token, "XYZ789")

	assert.True(t, errors.Is(err, service.ErrInvalidResumeToken))
}

func TestTokenService_Verify_Tampered(t *testing.T) {
	svc := service.NewTokenService("test-secret", time.Hour)
	token, err := svc.Issue("ABC234", "participant-42")
	require.NoError(t, err)

	_, err = svc.Verify(token+"x", "ABC234")
	assert.True(t, errors.Is(err, service.ErrInvalidResumeToken))

	_, err = svc.Verify("not-a-jwt", "ABC234")
	assert.True(t, errors.Is(err, service.ErrInvalidResumeToken))
}

func TestTokenService_Verify_WrongSecret(t *testing.T) {
	issuer := service.NewTokenService("secret-one", time.Hour)
	verifier := service.NewTokenService("secret-two", time.Hour)

	token, err := issuer.Issue("ABC234", "participant-42")
	require.NoError(t, err)

	_, err = verifier.Verify(token, "ABC234")
	assert.True(t, errors.Is(err, service.ErrInvalidResumeToken))
}

func TestTokenService_Verify_Expired(t *testing.T) {
	svc := service.NewTokenService("test-secret", time.Millisecond)

	token, err := svc.Issue("ABC234", "participant-42")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = svc.Verify(token, "ABC234")
	assert.True(t, errors.Is(err, service.ErrInvalidResumeToken))
}
