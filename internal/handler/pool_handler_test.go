package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/munisalud/piscinas-api/internal/middleware"
	"github.com/munisalud/piscinas-api/internal/models"
	"github.com/munisalud/piscinas-api/internal/service"
)

type fakePoolRepo struct {
	pools  map[int64]*models.Pool
	nextID int64
}

func newFakePoolRepo() *fakePoolRepo {
	return &fakePoolRepo{pools: map[int64]*models.Pool{}, nextID: 1}
}

func (f *fakePoolRepo) Create(ctx context.Context, pool *models.Pool) error {
	pool.ID = f.nextID
	f.nextID++
	copied := *pool
	f.pools[pool.ID] = &copied
	return nil
}

func (f *fakePoolRepo) FindByID(ctx context.Context, id int64) (*models.Pool, error) {
	if p, ok := f.pools[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakePoolRepo) List(ctx context.Context) ([]models.Pool, error) {
	out := []models.Pool{}
	for id := int64(1); id < f.nextID; id++ {
		if p, ok := f.pools[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePoolRepo) ListByState(ctx context.Context, state models.PoolState) ([]models.Pool, error) {
	out := []models.Pool{}
	for _, p := range f.pools {
		if p.State == state {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePoolRepo) ListByDistrict(ctx context.Context, district string) ([]models.Pool, error) {
	out := []models.Pool{}
	for _, p := range f.pools {
		if strings.EqualFold(p.District, district) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePoolRepo) ListFiltered(ctx context.Context, filter models.PoolFilter) ([]models.Pool, error) {
	out := []models.Pool{}
	for _, p := range f.pools {
		if filter.State != "" && string(p.State) != filter.State {
			continue
		}
		if filter.CurrentState != "" && string(p.CurrentState) != filter.CurrentState {
			continue
		}
		if filter.District != "" && !strings.EqualFold(p.District, filter.District) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePoolRepo) CountByState(ctx context.Context) ([]models.StateCount, error) {
	byState := map[models.PoolState]int64{}
	for _, p := range f.pools {
		byState[p.State]++
	}
	out := []models.StateCount{}
	for state, count := range byState {
		out = append(out, models.StateCount{State: state, Count: count})
	}
	return out, nil
}

func (f *fakePoolRepo) ExistsByFileNumber(ctx context.Context, fileNumber string, excludeID int64) (bool, error) {
	for _, p := range f.pools {
		if p.FileNumber == fileNumber && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePoolRepo) Update(ctx context.Context, pool *models.Pool) error {
	if _, ok := f.pools[pool.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *pool
	f.pools[pool.ID] = &copied
	return nil
}

type fakeAccountRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{users: map[string]*models.User{}}
}

func (f *fakeAccountRepo) seed(t *testing.T, id, email, username, password string, role models.UserRole) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &models.User{
		ID: id, Email: email, Username: username, PasswordHash: string(hash),
		FirstName: "Test", LastName: "User", Role: role, IsActive: true,
	}
}

func (f *fakeAccountRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAccountRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAccountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = "u-" + user.Username
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeAccountRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.PasswordHash = passwordHash
		return nil
	}
	return sql.ErrNoRows
}

func (f *fakeAccountRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[user.ID]; ok {
		u.FirstName = user.FirstName
		u.LastName = user.LastName
		return nil
	}
	return sql.ErrNoRows
}

func (f *fakeAccountRepo) ListPublic(ctx context.Context) ([]models.PublicProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.PublicProfile{}
	for _, u := range f.users {
		out = append(out, u.Public())
	}
	return out, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *token
	f.tokens[token.Token] = &copied
	return nil
}

func (f *fakeTokenRepo) Consume(ctx context.Context, token string, revokedAt time.Time) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[token]
	if !ok || rt.Revoked {
		return nil, sql.ErrNoRows
	}
	rt.Revoked = true
	copied := *rt
	return &copied, nil
}

func (f *fakeTokenRepo) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (f *fakeTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pruned int64
	for key, rt := range f.tokens {
		if rt.ExpiresAt.Before(cutoff) {
			delete(f.tokens, key)
			pruned++
		}
	}
	return pruned, nil
}

type testEnv struct {
	router   *gin.Engine
	accounts *fakeAccountRepo
	auth     *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	accounts := newFakeAccountRepo()
	accounts.seed(t, "u-admin", "admin-user@example.com", "jefa", "admin-password", models.RoleAdmin)
	accounts.seed(t, "u-inspector", "inspector@example.com", "inspector1", "inspector-pass", models.RoleInspector)
	accounts.seed(t, "u-citizen", "vecino@example.com", "vecino", "citizen-pass", models.RoleCitizen)

	tokens := newFakeTokenRepo()
	poolRepo := newFakePoolRepo()

	authSvc := service.NewAuthService(accounts, tokens, nil, nil, nil, service.AuthConfig{
		Secret:             "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		ResetTokenExpiry:   time.Hour,
		Issuer:             "piscinas-api",
	})
	poolSvc := service.NewPoolService(poolRepo, nil, nil, nil, 0)
	userSvc := service.NewUserService(accounts, nil, nil)

	authHandler := NewAuthHandler(authSvc)
	poolHandler := NewPoolHandler(poolSvc)
	userHandler := NewUserHandler(userSvc)

	authRequired := middleware.JWT(authSvc)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	registryWriters := middleware.RequireRoles(models.RoleAdmin, models.RoleInspector)

	router := gin.New()
	auth := router.Group("/auth")
	{
		auth.POST("/users/", authHandler.Signup)
		auth.POST("/jwt/create/", authHandler.Login)
		auth.POST("/jwt/refresh/", authHandler.Refresh)
		auth.POST("/social/callback/", authHandler.SocialLogin)
		auth.POST("/logout/", authRequired, authHandler.Logout)
		auth.GET("/users/me/", authRequired, userHandler.Me)
		auth.GET("/users/", authRequired, adminOnly, userHandler.List)
		auth.POST("/users/superuser/", authRequired, adminOnly, authHandler.CreateSuperuser)
	}
	pool := router.Group("/pool", authRequired)
	{
		pool.GET("/all/", poolHandler.List)
		pool.GET("/all/:id/", poolHandler.Get)
		pool.GET("/state/:state/", poolHandler.ListByState)
		pool.GET("/district/:district/", poolHandler.ListByDistrict)
		pool.GET("/statistics/", poolHandler.Statistics)
		pool.GET("/filters/", poolHandler.Filter)
		pool.GET("/export/", poolHandler.Export)
		pool.POST("/create/", registryWriters, poolHandler.Create)
		pool.PUT("/all/:id/", registryWriters, poolHandler.Update)
	}

	return &testEnv{router: router, accounts: accounts, auth: authSvc}
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	pair, err := e.auth.Login(context.Background(), models.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func poolPayload() map[string]interface{} {
	return map[string]interface{}{
		"file_number": "EXP-2024-001",
		"legal_name":  "Club Municipal de Natación",
		"pool_type":   "Recreational",
		"address":     "Av. Los Incas 123",
		"district":    "Centro",
		"capacity":    80,
		"area_m2":     312.5,
		"volume_m3":   540,
	}
}

func TestPoolRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/pool/all/", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), `"UNAUTHORIZED"`)
}

func TestPoolRoutesAcceptLegacyJWTScheme(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "vecino@example.com", "citizen-pass")

	req := httptest.NewRequest(http.MethodGet, "/pool/all/", nil)
	req.Header.Set("Authorization", "JWT "+token)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestPoolCreateForbiddenForCitizen(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "vecino@example.com", "citizen-pass")

	resp := env.do(t, http.MethodPost, "/pool/create/", token, poolPayload())
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Body.String(), `"FORBIDDEN"`)
}

func TestPoolCreateAsInspector(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "inspector@example.com", "inspector-pass")

	resp := env.do(t, http.MethodPost, "/pool/create/", token, poolPayload())
	require.Equal(t, http.StatusCreated, resp.Code)

	var envelope struct {
		Data models.Pool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "EXP-2024-001", envelope.Data.FileNumber)
	assert.Equal(t, models.StateResolutionValid, envelope.Data.State)
	assert.NotZero(t, envelope.Data.ID)
}

func TestPoolCreateDuplicateFileNumberIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "inspector@example.com", "inspector-pass")

	resp := env.do(t, http.MethodPost, "/pool/create/", token, poolPayload())
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, http.MethodPost, "/pool/create/", token, poolPayload())
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"VALIDATION_ERROR"`)
}

func TestPoolGetNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "vecino@example.com", "citizen-pass")

	for _, path := range []string{"/pool/all/999/", "/pool/all/not-a-number/"} {
		resp := env.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusNotFound, resp.Code, path)
		assert.Contains(t, resp.Body.String(), `"NOT_FOUND"`, path)
	}
}

func TestPoolListByStateUnknownValueReturnsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "vecino@example.com", "citizen-pass")

	resp := env.do(t, http.MethodGet, "/pool/state/RES_PENDING/", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"data":[]`)
}

func TestPoolFilterIgnoresUnknownQueryKeys(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin-user@example.com", "admin-password")

	resp := env.do(t, http.MethodPost, "/pool/create/", admin, poolPayload())
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, http.MethodGet, "/pool/filters/?district=centro&bogus=value", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data []models.Pool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
}

func TestPoolUpdateAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin-user@example.com", "admin-password")

	resp := env.do(t, http.MethodPost, "/pool/create/", admin, poolPayload())
	require.Equal(t, http.StatusCreated, resp.Code)

	updated := poolPayload()
	updated["district"] = "Norte"
	updated["current_state"] = "UNHEALTHY"
	resp = env.do(t, http.MethodPut, "/pool/all/1/", admin, updated)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data models.Pool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "Norte", envelope.Data.District)
	assert.Equal(t, models.ConditionUnhealthy, envelope.Data.CurrentState)
}

func TestPoolStatistics(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin-user@example.com", "admin-password")

	resp := env.do(t, http.MethodPost, "/pool/create/", admin, poolPayload())
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, http.MethodGet, "/pool/statistics/", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data []models.StateCount `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, int64(1), envelope.Data[0].Count)
}

func TestPoolExportStreamsCSV(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin-user@example.com", "admin-password")

	resp := env.do(t, http.MethodPost, "/pool/create/", admin, poolPayload())
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, http.MethodGet, "/pool/export/", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "pools.csv")

	lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "file_number")
	assert.Contains(t, lines[1], "EXP-2024-001")
}
