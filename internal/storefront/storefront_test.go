package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rest "github.com/xompass/storefront-rest"
	"github.com/xompass/storefront-rest/accounts"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/http_errors"
	"github.com/xompass/storefront-rest/otp"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const testPhone = "+56912345678"

type memoryUsers struct {
	mu    sync.Mutex
	seq   int
	users map[string]*accounts.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]*accounts.User{}}
}

func (m *memoryUsers) add(role auth.Role, accountType auth.AccountType) *accounts.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	u := &accounts.User{
		ID:          bson.NewObjectID(),
		Phone:       fmt.Sprintf("+5699%07d", m.seq),
		Role:        role,
		AccountType: accountType,
		Status:      auth.StatusActive,
	}
	m.users[u.ID.Hex()] = u
	return u
}

func (m *memoryUsers) get(id string) (*accounts.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return u, nil
}

func (m *memoryUsers) FindOrCreateByPhone(_ context.Context, phone string) (*accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	u := &accounts.User{
		ID:          bson.NewObjectID(),
		Phone:       phone,
		Role:        auth.RoleUser,
		AccountType: auth.AccountIndividual,
		Status:      auth.StatusActive,
	}
	m.users[u.ID.Hex()] = u
	return u, nil
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (*accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUsers) List(_ context.Context, limit, skip int64) ([]accounts.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []accounts.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	total := int64(len(out))
	if skip >= total {
		return []accounts.User{}, total, nil
	}
	out = out[skip:]
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memoryUsers) SetStatus(_ context.Context, id string, status auth.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.Status = status
	return nil
}

func (m *memoryUsers) SetAccountType(_ context.Context, id string, accountType auth.AccountType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.AccountType = accountType
	return nil
}

func (m *memoryUsers) SetRole(_ context.Context, id string, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.Role = role
	return nil
}

func (m *memoryUsers) LookupStatus(ctx context.Context, id string) (auth.Status, error) {
	u, err := m.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Status, nil
}

func (m *memoryUsers) LookupAccountType(ctx context.Context, id string) (auth.AccountType, error) {
	u, err := m.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.AccountType, nil
}

// fixedCodes accepts a single code and locks out after three misses.
type fixedCodes struct {
	mu       sync.Mutex
	misses   int
	requests []string
}

func (f *fixedCodes) Request(_ context.Context, destination string) (*otp.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, destination)
	return &otp.Challenge{Destination: destination, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

func (f *fixedCodes) Verify(_ context.Context, destination, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.misses >= 3 {
		return otp.ErrTooManyAttempts
	}
	if code != "123456" {
		f.misses++
		return otp.ErrCodeMismatch
	}
	return nil
}

type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (r *memoryRevocations) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = expiresAt
	return nil
}

func (r *memoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok, nil
}

type harness struct {
	app    *rest.RestApp
	users  *memoryUsers
	codes  *fixedCodes
	tokens *auth.TokenService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.TokenServiceOptions{Secret: []byte("storefront-test"), Issuer: "storefront"})
	require.NoError(t, err)

	users := newMemoryUsers()
	codes := &fixedCodes{}
	revocations := &memoryRevocations{revoked: map[string]time.Time{}}

	resolver := auth.NewSessionResolver(tokens, users, auth.WithRevocationList(revocations))
	app := rest.NewRestApp(rest.RestAppOptions{
		Name:        "storefront-test",
		Environment: "test",
		Guard:       auth.NewGuard(resolver),
		Redirector:  auth.NewRedirector(auth.DefaultRedirectRules...),
	})

	api := NewAPI(users, codes, tokens, revocations, Options{TokenTTL: 24 * time.Hour, TempAdminTokenTTL: time.Hour})
	require.NoError(t, app.RegisterEndpoints(api.Endpoints(), app.Group("/api")))

	return &harness{app: app, users: users, codes: codes, tokens: tokens}
}

func (h *harness) tokenFor(t *testing.T, u *accounts.User) string {
	t.Helper()
	raw, err := h.tokens.Issue(u.ID.Hex(), u.Role, u.AccountType, time.Hour)
	require.NoError(t, err)
	return raw
}

func (h *harness) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.app.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) http_errors.ErrorResponse {
	t.Helper()
	var resp http_errors.ErrorResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (h *harness) login(t *testing.T, phone string) session {
	t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"`+phone+`","code":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var s session
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &s))
	require.NotEmpty(t, s.Token)
	return s
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/otp", "", `{"phone":"+56 9 1234 5678"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{testPhone}, h.codes.requests)

	s := h.login(t, testPhone)
	assert.Equal(t, testPhone, s.User.Phone)
	assert.Equal(t, auth.RoleUser, s.User.Role)

	claims, err := h.tokens.Verify(s.Token)
	require.NoError(t, err)
	assert.True(t, s.ExpiresAt.Equal(claims.ExpiresAt), "%s != %s", s.ExpiresAt, claims.ExpiresAt)

	rec = h.do(http.MethodGet, "/api/me", s.Token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p profile
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, s.User.ID.Hex(), p.Principal.SubjectID)
	assert.Equal(t, auth.AccountIndividual, p.Principal.AccountType)
}

func TestVerifyOTPRejections(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"`+testPhone+`","code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "OTP_INVALID", errorOf(t, rec).ErrorCode)

	rec = h.do(http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"`+testPhone+`","code":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for range 2 {
		h.do(http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"`+testPhone+`","code":"000000"}`)
	}
	rec = h.do(http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"`+testPhone+`","code":"123456"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestBlockedUserCannotLogIn(t *testing.T) {
	h := newHarness(t)
	u := h.users.add(auth.RoleUser, auth.AccountIndividual)
	require.NoError(t, h.users.SetStatus(context.Background(), u.ID.Hex(), auth.StatusBlocked))

	rec := h.do(http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"`+u.Phone+`","code":"123456"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(auth.AccountBlocked), errorOf(t, rec).ErrorCode)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(auth.RoleUser, auth.AccountIndividual)
	temp := h.users.add(auth.RoleTempAdmin, auth.AccountAdmin)
	admin := h.users.add(auth.RoleAdmin, auth.AccountAdmin)

	rec := h.do(http.MethodGet, "/api/admin/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(auth.MissingToken), errorOf(t, rec).ErrorCode)

	rec = h.do(http.MethodGet, "/api/admin/users", h.tokenFor(t, user), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(auth.InsufficientRole), errorOf(t, rec).ErrorCode)

	rec = h.do(http.MethodGet, "/api/admin/users", h.tokenFor(t, temp), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/api/admin/users?limit=2", h.tokenFor(t, admin), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page rest.Page[accounts.User]
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)

	rec = h.do(http.MethodGet, "/api/admin/users?limit=0", h.tokenFor(t, admin), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockingTakesEffectOnNextRequest(t *testing.T) {
	h := newHarness(t)
	admin := h.users.add(auth.RoleAdmin, auth.AccountAdmin)
	user := h.users.add(auth.RoleUser, auth.AccountIndividual)
	userToken := h.tokenFor(t, user)

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", userToken, "").Code)

	rec := h.do(http.MethodPatch, "/api/admin/users/"+user.ID.Hex()+"/status", h.tokenFor(t, admin), `{"status":"Blocked"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/me", userToken, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(auth.AccountBlocked), errorOf(t, rec).ErrorCode)
}

func TestAdminSetters(t *testing.T) {
	h := newHarness(t)
	admin := h.users.add(auth.RoleAdmin, auth.AccountAdmin)
	super := h.users.add(auth.RoleSuperAdmin, auth.AccountSuperAdmin)
	user := h.users.add(auth.RoleUser, auth.AccountIndividual)
	adminToken := h.tokenFor(t, admin)

	t.Run("admin cannot change roles", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/admin/users/"+user.ID.Hex()+"/role", adminToken, `{"role":"admin"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("super admin changes roles", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/admin/users/"+user.ID.Hex()+"/role", h.tokenFor(t, super), `{"role":"tempAdmin"}`)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		stored, err := h.users.FindByID(context.Background(), user.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, auth.RoleTempAdmin, stored.Role)
	})

	t.Run("account type", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/admin/users/"+user.ID.Hex()+"/account-type", adminToken, `{"accountType":"Corporate"}`)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = h.do(http.MethodPatch, "/api/admin/users/"+user.ID.Hex()+"/account-type", adminToken, `{"accountType":"Reseller"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("self modification", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/admin/users/"+admin.ID.Hex()+"/status", adminToken, `{"status":"Blocked"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CANNOT_MODIFY_SELF", errorOf(t, rec).ErrorCode)
	})

	t.Run("admin cannot manage equal or higher roles", func(t *testing.T) {
		other := h.users.add(auth.RoleAdmin, auth.AccountAdmin)
		for _, path := range []string{
			"/api/admin/users/" + super.ID.Hex() + "/status",
			"/api/admin/users/" + other.ID.Hex() + "/status",
		} {
			rec := h.do(http.MethodPatch, path, adminToken, `{"status":"Blocked"}`)
			assert.Equal(t, http.StatusForbidden, rec.Code, path)
			assert.Equal(t, string(auth.InsufficientRole), errorOf(t, rec).ErrorCode, path)
		}

		rec := h.do(http.MethodPatch, "/api/admin/users/"+super.ID.Hex()+"/account-type", adminToken, `{"accountType":"Individual"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		stored, err := h.users.FindByID(context.Background(), super.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, auth.StatusActive, stored.Status)
		assert.Equal(t, auth.AccountSuperAdmin, stored.AccountType)

		rec = h.do(http.MethodPatch, "/api/admin/users/"+other.ID.Hex()+"/status", h.tokenFor(t, super), `{"status":"Blocked"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/admin/users/"+bson.NewObjectID().Hex()+"/status", adminToken, `{"status":"Blocked"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "USER_NOT_FOUND", errorOf(t, rec).ErrorCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/admin/users/nope/status", adminToken, `{"status":"Blocked"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t)
	s := h.login(t, testPhone)

	rec := h.do(http.MethodPost, "/api/auth/logout", s.Token, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/me", s.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(auth.Revoked), errorOf(t, rec).ErrorCode)
}

func TestTempAdminGetsShortSession(t *testing.T) {
	h := newHarness(t)
	u, err := h.users.FindOrCreateByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	require.NoError(t, h.users.SetRole(context.Background(), u.ID.Hex(), auth.RoleTempAdmin))

	s := h.login(t, testPhone)
	claims, err := h.tokens.Verify(s.Token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestCorporatePricing(t *testing.T) {
	h := newHarness(t)
	individual := h.users.add(auth.RoleUser, auth.AccountIndividual)
	corporate := h.users.add(auth.RoleUser, auth.AccountCorporate)

	rec := h.do(http.MethodGet, "/api/corporate/pricing", h.tokenFor(t, individual), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(auth.WrongAccountType), errorOf(t, rec).ErrorCode)

	rec = h.do(http.MethodGet, "/api/corporate/pricing", h.tokenFor(t, corporate), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p pricing
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, auth.AccountCorporate, p.AccountType)
}

func TestResolvePath(t *testing.T) {
	h := newHarness(t)
	corporate := h.users.add(auth.RoleUser, auth.AccountCorporate)

	rec := h.do(http.MethodGet, "/api/paths/resolve?path=/shop", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var anon rest.Redirect
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &anon))
	assert.Equal(t, "/shop", anon.Path)
	assert.False(t, anon.Redirected)

	rec = h.do(http.MethodGet, "/api/paths/resolve?path=/shop", h.tokenFor(t, corporate), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var corp rest.Redirect
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &corp))
	assert.Equal(t, "/corporate-shop", corp.Path)
	assert.True(t, corp.Redirected)

	rec = h.do(http.MethodGet, "/api/paths/resolve?path=shop", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/paths/resolve?path=/shop", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOTPRateLimitsAreKeyedByPhone(t *testing.T) {
	api := NewAPI(newMemoryUsers(), &fixedCodes{}, nil, nil, Options{OTPRequestsPerHour: 3, OTPVerificationsPerHour: 7})

	limiters := map[string]func(*rest.EndpointContext) rest.RateLimit{}
	for _, ep := range api.Endpoints() {
		limiters[ep.Name] = ep.RateLimiter
	}
	require.NotNil(t, limiters["requestOtp"])
	require.NotNil(t, limiters["verifyOtp"])

	limit := limiters["requestOtp"](&rest.EndpointContext{ParsedBody: &otpRequestBody{Phone: testPhone}})
	assert.Equal(t, rest.RateLimit{Max: 3, Window: time.Hour, Key: "otp:" + testPhone}, limit)

	limit = limiters["verifyOtp"](&rest.EndpointContext{ParsedBody: &otpVerifyBody{Phone: testPhone, Code: "123456"}})
	assert.Equal(t, rest.RateLimit{Max: 7, Window: time.Hour, Key: "otp-verify:" + testPhone}, limit)
}

func TestOutranks(t *testing.T) {
	assert.True(t, outranks(auth.RoleSuperAdmin, auth.RoleAdmin))
	assert.True(t, outranks(auth.RoleAdmin, auth.RoleTempAdmin))
	assert.True(t, outranks(auth.RoleAdmin, auth.RoleUser))
	assert.False(t, outranks(auth.RoleAdmin, auth.RoleAdmin))
	assert.False(t, outranks(auth.RoleAdmin, auth.RoleSuperAdmin))
	assert.False(t, outranks(auth.RoleSuperAdmin, auth.RoleSuperAdmin))
}

func TestUserError(t *testing.T) {
	var resp *http_errors.ErrorResponse
	require.ErrorAs(t, userError(accounts.ErrNotFound), &resp)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	boom := errors.New("boom")
	assert.Equal(t, boom, userError(boom))
}
