package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/munisalud/piscinas-api/internal/models"
	appErrors "github.com/munisalud/piscinas-api/pkg/errors"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User // keyed by id
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{}}
}

func (m *mockUserRepo) add(user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = "u-" + user.Username
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	return nil
}

type mockTokenRepo struct {
	mu      sync.Mutex
	tokens  map[string]*models.RefreshToken
	revoked []string // user ids passed to RevokeAllForUser
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: map[string]*models.RefreshToken{}}
}

func (m *mockTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *token
	m.tokens[token.Token] = &copied
	return nil
}

func (m *mockTokenRepo) Consume(ctx context.Context, token string, revokedAt time.Time) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[token]
	if !ok || rt.Revoked {
		return nil, sql.ErrNoRows
	}
	rt.Revoked = true
	rt.RevokedAt = &revokedAt
	copied := *rt
	return &copied, nil
}

func (m *mockTokenRepo) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, userID)
	for _, rt := range m.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *mockTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for key, rt := range m.tokens {
		if rt.ExpiresAt.Before(cutoff) {
			delete(m.tokens, key)
			pruned++
		}
	}
	return pruned, nil
}

type mockMailer struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (m *mockMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	return nil
}

func newAuthFixture() (*AuthService, *mockUserRepo, *mockTokenRepo, *mockMailer) {
	users := newMockUserRepo()
	tokens := newMockTokenRepo()
	mail := &mockMailer{}
	svc := NewAuthService(users, tokens, mail, nil, nil, AuthConfig{
		Secret:             "test-secret",
		AccessTokenExpiry:  720 * time.Hour,
		RefreshTokenExpiry: 1440 * time.Hour,
		ResetTokenExpiry:   time.Hour,
		Issuer:             "piscinas-api",
	})
	return svc, users, tokens, mail
}

func seedUser(t *testing.T, users *mockUserRepo, email, username, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "u-" + username,
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    "Ana",
		LastName:     "Pérez",
		Role:         models.RoleCitizen,
		IsActive:     active,
	}
	users.add(user)
	return user
}

func TestSignupCreatesCitizenAccount(t *testing.T) {
	svc, _, _, mail := newAuthFixture()

	user, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:      "Vecino@Example.COM",
		Username:   "vecino",
		FirstName:  "Ana",
		LastName:   "Pérez",
		Password:   "secret-password",
		RePassword: "secret-password",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCitizen, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)
	// Domain part lowercased, local part untouched.
	assert.Equal(t, "Vecino@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")))
	require.Len(t, mail.subjects, 1)
	assert.Contains(t, mail.subjects[0], "Welcome")
}

func TestSignupRejectsReservedUsername(t *testing.T) {
	svc, _, _, _ := newAuthFixture()

	for _, username := range []string{"admin", "ROOT", "Superuser"} {
		_, err := svc.Signup(context.Background(), models.SignupRequest{
			Email:      "a@example.com",
			Username:   username,
			FirstName:  "A",
			LastName:   "B",
			Password:   "secret-password",
			RePassword: "secret-password",
		})
		require.Error(t, err, username)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:      "vecino@example.com",
		Username:   "otro",
		FirstName:  "A",
		LastName:   "B",
		Password:   "secret-password",
		RePassword: "secret-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateSuperuserForcesFlags(t *testing.T) {
	svc, _, _, _ := newAuthFixture()

	user, err := svc.CreateSuperuser(context.Background(), models.CreateSuperuserRequest{
		Email:     "jefa@example.com",
		Username:  "jefa",
		FirstName: "María",
		LastName:  "Luque",
		Password:  "secret-password",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.IsStaff)
	assert.True(t, user.IsSuperuser)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vecino@example.com",
		Password: "secret-password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((720 * time.Hour).Seconds()), pair.ExpiresIn)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-vecino", claims.UserID)
	assert.Equal(t, models.RoleCitizen, claims.Role)

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	assert.Len(t, tokens.tokens, 1)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	_, unknownErr := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nadie@example.com",
		Password: "secret-password",
	})
	_, wrongErr := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vecino@example.com",
		Password: "wrong-password",
	})
	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, appErrors.FromError(unknownErr).Code, appErrors.FromError(wrongErr).Code)
	assert.Equal(t, appErrors.FromError(unknownErr).Message, appErrors.FromError(wrongErr).Message)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "baja@example.com", "baja", "secret-password", false)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "baja@example.com",
		Password: "secret-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestSocialLoginProvisionsAccountOnFirstContact(t *testing.T) {
	svc, users, _, _ := newAuthFixture()

	pair, err := svc.SocialLogin(context.Background(), models.SocialLoginRequest{
		Provider:  "google",
		Email:     "nueva@example.com",
		FirstName: "Nueva",
		LastName:  "Vecina",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	user, err := users.FindByEmail(context.Background(), "nueva@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCitizen, user.Role)
	assert.Equal(t, "nueva", user.Username)

	// Password login stays closed for a provisioned account.
	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "nueva@example.com",
		Password: "anything-at-all",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestSocialLoginReusesExistingAccount(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	pair, err := svc.SocialLogin(context.Background(), models.SocialLoginRequest{
		Provider:  "google",
		Email:     "vecino@example.com",
		FirstName: "Ana",
		LastName:  "Pérez",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-vecino", claims.UserID)

	users.mu.Lock()
	defer users.mu.Unlock()
	assert.Len(t, users.users, 1)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vecino@example.com",
		Password: "secret-password",
	})
	require.NoError(t, err)

	next, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The consumed token is blacklisted, replaying it fails.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	assert.True(t, tokens.tokens[pair.RefreshToken].Revoked)
}

func TestRefreshConcurrentUseSingleWinner(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vecino@example.com",
		Password: "secret-password",
	})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	require.NoError(t, tokens.Create(context.Background(), &models.RefreshToken{
		ID:        "rt-old",
		UserID:    user.ID,
		Token:     "stale-token",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}))

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
}

func TestPruneExpiredTokensKeepsLiveSessions(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	require.NoError(t, tokens.Create(context.Background(), &models.RefreshToken{
		ID:        "rt-stale",
		UserID:    user.ID,
		Token:     "stale-token",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}))
	require.NoError(t, tokens.Create(context.Background(), &models.RefreshToken{
		ID:        "rt-live",
		UserID:    user.ID,
		Token:     "live-token",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		CreatedAt: time.Now().UTC(),
	}))

	pruned, err := svc.PruneExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "live-token"})
	require.NoError(t, err)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vecino@example.com",
		Password: "secret-password",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), "someone-else", models.LogoutRequest{RefreshToken: pair.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vecino@example.com",
		Password: "secret-password",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "u-vecino", models.LogoutRequest{RefreshToken: pair.RefreshToken}))

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	svc, users, tokens, mail := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "old-password-1", true)

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		CurrentPassword: "old-password-1",
		NewPassword:     "new-password-1",
		ReNewPassword:   "new-password-1",
	})
	require.NoError(t, err)
	assert.Contains(t, tokens.revoked, user.ID)
	require.NotEmpty(t, mail.subjects)
	assert.Contains(t, mail.subjects[len(mail.subjects)-1], "password")

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "vecino@example.com", Password: "new-password-1"})
	assert.NoError(t, err)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "old-password-1", true)

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "new-password-1",
		ReNewPassword:   "new-password-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestForgotPasswordSilentOnUnknownEmail(t *testing.T) {
	svc, _, _, mail := newAuthFixture()

	err := svc.ForgotPassword(context.Background(), models.ResetPasswordRequest{Email: "nadie@example.com"})
	assert.NoError(t, err)
	assert.Empty(t, mail.subjects)
}

func TestResetPasswordRoundTrip(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "old-password-1", true)

	token, err := svc.generateResetToken(user)
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{
		Token:       token,
		NewPassword: "new-password-1",
	})
	require.NoError(t, err)
	assert.Contains(t, tokens.revoked, user.ID)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "vecino@example.com", Password: "new-password-1"})
	assert.NoError(t, err)
}

func TestResetPasswordRejectsAccessToken(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "old-password-1", true)

	// An access token lacks the reset audience and must not pass.
	access, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{
		Token:       access,
		NewPassword: "new-password-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsTamperedSignature(t *testing.T) {
	svc, users, _, _ := newAuthFixture()
	user := seedUser(t, users, "vecino@example.com", "vecino", "secret-password", true)

	access, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.ValidateToken(access + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
}
