package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenClient struct {
	res       *provider.AuthResult
	err       error
	signOuts  []string
	signOutEr error
}

func (f *fakeTokenClient) ExchangeCode(context.Context, string, string) (*provider.AuthResult, error) {
	return f.res, f.err
}

func (f *fakeTokenClient) Refresh(context.Context, string) (*provider.AuthResult, error) {
	return f.res, f.err
}

func (f *fakeTokenClient) SignOut(_ context.Context, at string) error {
	f.signOuts = append(f.signOuts, at)
	return f.signOutEr
}

type stubVerifier struct {
	err error
}

func (s stubVerifier) Verify(_ context.Context, at string) (*sessions.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &sessions.Principal{UserID: "u1", AccessToken: at}, nil
}

func TestSessionService_Sync(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	at, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u1", ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("s"))
	require.NoError(t, err)

	s := NewSessionService(&fakeTokenClient{}, stubVerifier{}, nil)
	sess, err := s.Sync(ctx, at, " rt ")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "rt", sess.RefreshToken)
	assert.True(t, exp.Equal(sess.ExpiresAt))

	_, err = s.Sync(ctx, "", "rt")
	assert.ErrorIs(t, err, ErrMissingToken)

	s = NewSessionService(&fakeTokenClient{}, stubVerifier{err: sessions.ErrUnauthenticated}, nil)
	_, err = s.Sync(ctx, "bad", "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	s = NewSessionService(&fakeTokenClient{}, stubVerifier{err: common.ErrorInternal}, nil)
	_, err = s.Sync(ctx, "at", "")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestSessionService_Exchange(t *testing.T) {
	ctx := context.Background()
	ok := &provider.AuthResult{Session: &provider.Session{AccessToken: "at"}}

	s := NewSessionService(&fakeTokenClient{res: ok}, stubVerifier{}, nil)
	res, err := s.Exchange(ctx, "code", "v")
	require.NoError(t, err)
	assert.Equal(t, "at", res.Session.AccessToken)

	_, err = s.Exchange(ctx, " ", "v")
	assert.ErrorIs(t, err, ErrMissingToken)

	s = NewSessionService(&fakeTokenClient{err: &provider.APIError{Status: http.StatusNotFound, Code: "flow_state_not_found"}}, stubVerifier{}, nil)
	_, err = s.Exchange(ctx, "code", "v")
	assert.ErrorIs(t, err, ErrInvalidCode)

	s = NewSessionService(&fakeTokenClient{err: &provider.APIError{Status: http.StatusUnauthorized, Code: "no_authorization"}}, stubVerifier{}, nil)
	_, err = s.Exchange(ctx, "code", "v")
	assert.ErrorIs(t, err, common.ErrorInternal)

	s = NewSessionService(&fakeTokenClient{res: &provider.AuthResult{}}, stubVerifier{}, nil)
	_, err = s.Exchange(ctx, "code", "v")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionService_Refresh(t *testing.T) {
	ctx := context.Background()

	s := NewSessionService(&fakeTokenClient{}, stubVerifier{}, nil)
	_, err := s.Refresh(ctx, "")
	assert.ErrorIs(t, err, sessions.ErrUnauthenticated)

	s = NewSessionService(&fakeTokenClient{err: &provider.APIError{Status: 400, Code: "invalid_grant"}}, stubVerifier{}, nil)
	_, err = s.Refresh(ctx, "rt")
	assert.ErrorIs(t, err, sessions.ErrUnauthenticated)

	s = NewSessionService(&fakeTokenClient{err: errors.New("down")}, stubVerifier{}, nil)
	_, err = s.Refresh(ctx, "rt")
	assert.ErrorIs(t, err, common.ErrorInternal)

	s = NewSessionService(&fakeTokenClient{res: &provider.AuthResult{Session: &provider.Session{AccessToken: "at2"}}}, stubVerifier{}, nil)
	res, err := s.Refresh(ctx, "rt")
	require.NoError(t, err)
	assert.Equal(t, "at2", res.Session.AccessToken)
}

func TestSessionService_SignOutIsBestEffort(t *testing.T) {
	tc := &fakeTokenClient{signOutEr: errors.New("down")}
	s := NewSessionService(tc, stubVerifier{}, nil)

	s.SignOut(context.Background(), "")
	s.SignOut(context.Background(), "at")
	assert.Equal(t, []string{"at"}, tc.signOuts)
}
