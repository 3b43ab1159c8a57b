package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/dbx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/models"
	"github.com/dmitrijs2005/authbridge/internal/server/ratelimit"
	"github.com/dmitrijs2005/authbridge/internal/server/repositories/pins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID = "7d9f3a52-5f7e-4c4a-9a1e-0f3b8a1c2d3e"
	testPepper = "pepper"
	testSalt   = "c2FsdHNhbHRzYWx0c2FsdA=="

	testClientIP = "203.0.113.7"
)

type fakePinsRepo struct {
	rows      map[string]*models.UserPin
	getErr    error
	upsertErr error
	upserts   int
}

func (f *fakePinsRepo) Get(_ context.Context, userID string) (*models.UserPin, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return row, nil
}

func (f *fakePinsRepo) Upsert(_ context.Context, userID, salt string) error {
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[userID] = &models.UserPin{UserID: userID, Salt: sql.NullString{String: salt, Valid: true}}
	return nil
}

func (f *fakePinsRepo) Delete(_ context.Context, userID string) error {
	delete(f.rows, userID)
	return nil
}

type fakeRepoManager struct {
	pins *fakePinsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Pins(dbx.DBTX) pins.Repository                { return m.pins }

type fakeAdmin struct {
	user      *provider.User
	getErr    error
	updateErr error
	passwords map[string]string
}

func (f *fakeAdmin) AdminGetUser(_ context.Context, id string) (*provider.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.user, nil
}

func (f *fakeAdmin) AdminUpdatePassword(_ context.Context, id, pw string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.passwords[id] = pw
	return nil
}

// fakePasswordAuth accepts the password most recently set through fakeAdmin.
type fakePasswordAuth struct {
	admin      *fakeAdmin
	identifier string
	calls      int
	err        error
}

func (f *fakePasswordAuth) SignInWithPassword(_ context.Context, identifier, pw string) (*provider.AuthResult, error) {
	f.calls++
	f.identifier = identifier
	if f.err != nil {
		return nil, f.err
	}
	if f.admin.passwords[testUserID] != pw {
		return nil, &provider.APIError{Status: http.StatusBadRequest, Code: "invalid_credentials"}
	}
	return &provider.AuthResult{
		Session: &provider.Session{AccessToken: "at", RefreshToken: "rt", UserID: testUserID},
		User:    &provider.User{ID: testUserID},
	}, nil
}

type pinFixture struct {
	svc   *PinService
	repo  *fakePinsRepo
	admin *fakeAdmin
	auth  *fakePasswordAuth
	mock  sqlmock.Sqlmock
}

func newPinFixture(t *testing.T) *pinFixture {
	t.Helper()
	return newPinFixtureWith(t, PinOptions{})
}

func newPinFixtureWith(t *testing.T, opts PinOptions) *pinFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := &fakePinsRepo{rows: map[string]*models.UserPin{}}
	admin := &fakeAdmin{user: &provider.User{ID: testUserID, Email: "user@example.com"}, passwords: map[string]string{}}
	auth := &fakePasswordAuth{admin: admin}
	svc, err := NewPinService(db, &fakeRepoManager{pins: repo}, testPepper, admin, auth, nil, opts)
	require.NoError(t, err)
	return &pinFixture{svc: svc, repo: repo, admin: admin, auth: auth, mock: mock}
}

func TestNewPinService_RequiresPepper(t *testing.T) {
	_, err := NewPinService(nil, nil, "", nil, nil, nil, PinOptions{})
	assert.ErrorIs(t, err, cryptox.ErrNoPepper)
}

func TestValidatePin(t *testing.T) {
	for _, ok := range []string{"1234", "00000000", "123456"} {
		assert.NoError(t, ValidatePin(ok), ok)
	}
	for _, bad := range []string{"", "123", "123456789", "12a4", " 1234", "١٢٣٤"} {
		assert.ErrorIs(t, ValidatePin(bad), ErrInvalidPin, bad)
	}
}

func TestResync_PushesDerivedPassword(t *testing.T) {
	f := newPinFixture(t)
	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID, Salt: sql.NullString{String: testSalt, Valid: true}}

	require.NoError(t, f.svc.Resync(context.Background(), testUserID, "1234"))

	want, err := cryptox.DeriveProviderPassword("1234", testUserID, testSalt, testPepper)
	require.NoError(t, err)
	assert.Equal(t, want, f.admin.passwords[testUserID])
}

func TestResync_Errors(t *testing.T) {
	ctx := context.Background()

	f := newPinFixture(t)
	assert.ErrorIs(t, f.svc.Resync(ctx, testUserID, "1234"), ErrNoPinRow)
	assert.ErrorIs(t, f.svc.Resync(ctx, "not-a-uuid", "1234"), common.ErrorValidation)
	assert.ErrorIs(t, f.svc.Resync(ctx, testUserID, "12"), ErrInvalidPin)

	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID}
	assert.ErrorIs(t, f.svc.Resync(ctx, testUserID, "1234"), cryptox.ErrNoSalt)

	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID, Salt: sql.NullString{String: testSalt, Valid: true}}
	f.admin.updateErr = errors.New("provider down")
	assert.ErrorIs(t, f.svc.Resync(ctx, testUserID, "1234"), ErrProviderUpdate)

	f.repo.getErr = errors.New("db down")
	assert.ErrorIs(t, f.svc.Resync(ctx, testUserID, "1234"), common.ErrorInternal)
}

func TestSetup_CommitsOnlyAfterProviderUpdate(t *testing.T) {
	ctx := context.Background()

	f := newPinFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.Setup(ctx, testUserID, "4321"))
	assert.NoError(t, f.mock.ExpectationsWereMet())

	row := f.repo.rows[testUserID]
	require.True(t, row.HasSalt())
	want, err := cryptox.DeriveProviderPassword("4321", testUserID, row.Salt.String, testPepper)
	require.NoError(t, err)
	assert.Equal(t, want, f.admin.passwords[testUserID])

	f = newPinFixture(t)
	f.admin.updateErr = errors.New("provider down")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	assert.ErrorIs(t, f.svc.Setup(ctx, testUserID, "4321"), ErrProviderUpdate)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	f = newPinFixture(t)
	f.repo.upsertErr = errors.New("db down")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	assert.ErrorIs(t, f.svc.Setup(ctx, testUserID, "4321"), common.ErrorInternal)
	assert.Empty(t, f.admin.passwords)

	f = newPinFixture(t)
	assert.ErrorIs(t, f.svc.Setup(ctx, testUserID, "abcd"), ErrInvalidPin)
	assert.Zero(t, f.repo.upserts)
}

func TestSetupThenSignIn_SameDerivation(t *testing.T) {
	ctx := context.Background()
	f := newPinFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.Setup(ctx, testUserID, "2468"))

	res, err := f.svc.SignIn(ctx, testUserID, "2468", testClientIP)
	require.NoError(t, err)
	assert.Equal(t, "at", res.Session.AccessToken)
	assert.Equal(t, "user@example.com", f.auth.identifier)

	_, err = f.svc.SignIn(ctx, testUserID, "1357", testClientIP)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResyncThenSignIn_SameDerivation(t *testing.T) {
	ctx := context.Background()
	f := newPinFixture(t)
	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID, Salt: sql.NullString{String: testSalt, Valid: true}}

	require.NoError(t, f.svc.Resync(ctx, testUserID, "9999"))
	_, err := f.svc.SignIn(ctx, testUserID, "9999", testClientIP)
	assert.NoError(t, err)
}

func TestSignIn_Errors(t *testing.T) {
	ctx := context.Background()
	f := newPinFixture(t)

	_, err := f.svc.SignIn(ctx, testUserID, "1234", testClientIP)
	assert.ErrorIs(t, err, ErrNoPinRow)

	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID}
	_, err = f.svc.SignIn(ctx, testUserID, "1234", testClientIP)
	assert.ErrorIs(t, err, cryptox.ErrNoSalt)

	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID, Salt: sql.NullString{String: testSalt, Valid: true}}
	f.admin.getErr = &provider.APIError{Status: http.StatusNotFound, Code: "user_not_found"}
	_, err = f.svc.SignIn(ctx, testUserID, "1234", testClientIP)
	assert.ErrorIs(t, err, ErrNoPinRow)

	f.admin.getErr = nil
	f.admin.user = &provider.User{ID: testUserID}
	_, err = f.svc.SignIn(ctx, testUserID, "1234", testClientIP)
	assert.ErrorIs(t, err, common.ErrorInternal)

	f.admin.user = &provider.User{ID: testUserID, Phone: "9779812345678"}
	f.auth.err = &provider.APIError{Status: http.StatusTooManyRequests}
	_, err = f.svc.SignIn(ctx, testUserID, "1234", testClientIP)
	assert.ErrorIs(t, err, common.ErrRateLimited)
	assert.Equal(t, "+9779812345678", f.auth.identifier)

	f.auth.err = errors.New("timeout")
	_, err = f.svc.SignIn(ctx, testUserID, "1234", testClientIP)
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func seedPin(t *testing.T, f *pinFixture, pin string) {
	t.Helper()
	f.repo.rows[testUserID] = &models.UserPin{UserID: testUserID, Salt: sql.NullString{String: testSalt, Valid: true}}
	require.NoError(t, f.svc.Resync(context.Background(), testUserID, pin))
}

func TestSignIn_LocksOutAfterRepeatedWrongPins(t *testing.T) {
	ctx := context.Background()
	mem := ratelimit.NewMemoryLimiter(nil)
	f := newPinFixtureWith(t, PinOptions{Limiter: mem, Lockout: ratelimit.NewLockout(mem, 3, time.Hour)})
	seedPin(t, f, "2468")

	for i := 0; i < 3; i++ {
		_, err := f.svc.SignIn(ctx, testUserID, "1111", testClientIP)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// The right PIN is refused too while the lockout holds.
	_, err := f.svc.SignIn(ctx, testUserID, "2468", "198.51.100.1")
	assert.ErrorIs(t, err, common.ErrRateLimited)
	assert.Equal(t, 3, f.auth.calls, "locked attempts never reach the provider")
}

func TestSignIn_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	mem := ratelimit.NewMemoryLimiter(nil)
	f := newPinFixtureWith(t, PinOptions{Limiter: mem, Lockout: ratelimit.NewLockout(mem, 3, time.Hour)})
	seedPin(t, f, "2468")

	for i := 0; i < 2; i++ {
		_, err := f.svc.SignIn(ctx, testUserID, "1111", testClientIP)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := f.svc.SignIn(ctx, testUserID, "2468", testClientIP)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.SignIn(ctx, testUserID, "1111", testClientIP)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = f.svc.SignIn(ctx, testUserID, "2468", testClientIP)
	assert.NoError(t, err)
}

func TestSignIn_AttemptsLimitedPerUserAndAddress(t *testing.T) {
	ctx := context.Background()
	f := newPinFixtureWith(t, PinOptions{Policy: ratelimit.Policy{Max: 2, Window: time.Minute}})
	seedPin(t, f, "2468")
	otherUser := "0b6f2c1e-3d4a-4e5f-8a9b-1c2d3e4f5a6b"

	// Another user's attempts spend the address budget.
	for i := 0; i < 2; i++ {
		_, err := f.svc.SignIn(ctx, otherUser, "1111", testClientIP)
		require.ErrorIs(t, err, ErrNoPinRow)
	}
	_, err := f.svc.SignIn(ctx, testUserID, "2468", testClientIP)
	require.ErrorIs(t, err, common.ErrRateLimited)

	// The refused address did not spend this user's budget.
	for i := 0; i < 2; i++ {
		_, err = f.svc.SignIn(ctx, testUserID, "2468", "198.51.100.1")
		require.NoError(t, err)
	}
	_, err = f.svc.SignIn(ctx, testUserID, "2468", "198.51.100.2")
	assert.ErrorIs(t, err, common.ErrRateLimited)
}
