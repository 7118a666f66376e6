package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/icrowley/fake"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rentease/db"
	"rentease/handler"
	"rentease/mail"
	"rentease/model"
	"rentease/payment"
	"rentease/storage"
)

const (
	testAdminEmail = "admin@rentease.test"
	testPassword   = "password123"
)

type testServer struct {
	URL     string
	Config  Config
	DB      *gorm.DB
	Gateway *payment.Fake
	Mailer  *mail.Recorder
	Images  *storage.Memory
}

func testConfig() Config {
	return Config{
		Port:            "1323",
		DBDriver:        db.DriverSQLite,
		JWTSecret:       "test-secret",
		Domain:          "http://localhost:1323",
		AdminEmail:      testAdminEmail,
		PaymentCurrency: "usd",
		PaymentTimeout:  time.Second,
		LogLevel:        log.OFF,
	}
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()

	cfg := testConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "rentease.db")
	for _, m := range mutate {
		m(&cfg)
	}

	conn, err := db.Open(cfg.DBDriver, cfg.DSN())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	s := &testServer{
		Config:  cfg,
		DB:      conn,
		Gateway: &payment.Fake{},
		Mailer:  &mail.Recorder{},
		Images:  &storage.Memory{BaseURL: "https://images.rentease.test"},
	}

	e, err := NewServer(cfg, Deps{DB: conn, Gateway: s.Gateway, Mailer: s.Mailer, Images: s.Images})
	require.NoError(t, err)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	s.URL = srv.URL

	return s
}

func performRequest(t *testing.T, method, url, token string, data interface{}) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if data != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(data))
	}

	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := http.Client{}
	res, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })

	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

type account struct {
	ID    string
	Email string
	Token string
}

func (s *testServer) signup(t *testing.T, email string) model.PrivateUser {
	t.Helper()

	res := performRequest(t, http.MethodPost, s.URL+"/signup", "", map[string]string{
		"email":     email,
		"password":  testPassword,
		"password2": testPassword,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return decode[model.PrivateUser](t, res)
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()

	res := performRequest(t, http.MethodPost, s.URL+"/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	return decode[model.LoginUserReqResponse](t, res).Token
}

func (s *testServer) signupAndLogin(t *testing.T) account {
	t.Helper()

	email := fake.EmailAddress()
	u := s.signup(t, email)
	return account{ID: u.ID, Email: u.Email, Token: s.login(t, email)}
}

func (s *testServer) admin(t *testing.T) account {
	t.Helper()

	u := s.signup(t, testAdminEmail)
	return account{ID: u.ID, Email: u.Email, Token: s.login(t, testAdminEmail)}
}

func TestSignup(t *testing.T) {
	s := newTestServer(t)

	email := fake.EmailAddress()
	u := s.signup(t, email)

	assert.Equal(t, model.StripEmail(email), u.Email)
	assert.NotEmpty(t, u.Username)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.False(t, u.IsEmailVerified)

	res := performRequest(t, http.MethodPost, s.URL+"/signup", "", map[string]string{
		"email":     email,
		"password":  testPassword,
		"password2": testPassword,
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestSignupValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []map[string]string{
		{"email": "not-an-email", "password": testPassword, "password2": testPassword},
		{"email": fake.EmailAddress(), "password": testPassword, "password2": "something else"},
		{"email": fake.EmailAddress(), "password": "short", "password2": "short"},
		{"email": fake.EmailAddress(), "password": testPassword, "password2": testPassword, "username": "no spaces allowed!"},
	}
	for _, c := range cases {
		res := performRequest(t, http.MethodPost, s.URL+"/signup", "", c)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, c)
	}
}

func TestSignupDerivesUniqueUsernames(t *testing.T) {
	s := newTestServer(t)

	a := s.signup(t, "jane.doe@example.com")
	b := s.signup(t, "jane.doe@example.org")

	assert.Equal(t, "jane.doe", a.Username)
	assert.NotEqual(t, a.Username, b.Username)
}

func TestAdminEmailGetsAdminRole(t *testing.T) {
	s := newTestServer(t)

	u := s.signup(t, testAdminEmail)
	assert.Equal(t, model.RoleAdmin, u.Role)
}

func TestLoginWithWrongPassword(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)

	res := performRequest(t, http.MethodPost, s.URL+"/login", "", map[string]string{"email": a.Email, "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = performRequest(t, http.MethodPost, s.URL+"/login", "", map[string]string{"email": "nobody@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestEmailVerification(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.RequireEmailVerification = true })

	email := fake.EmailAddress()
	u := s.signup(t, email)

	res := performRequest(t, http.MethodPost, s.URL+"/login", "", map[string]string{"email": email, "password": testPassword})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	require.Eventually(t, func() bool { return len(s.Mailer.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	sent := s.Mailer.Sent()[0]
	assert.Equal(t, u.Email, sent.To)
	assert.Contains(t, sent.Body, s.Config.Domain+"/verify-email?token=")

	res = performRequest(t, http.MethodGet, s.URL+"/verify-email?token=garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	token, err := handler.VerificationToken([]byte(s.Config.JWTSecret), u.ID, time.Now())
	require.NoError(t, err)
	res = performRequest(t, http.MethodGet, s.URL+"/verify-email?token="+token, "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	assert.NotEmpty(t, s.login(t, email))
}

func TestVerificationLinkCannotAuthenticate(t *testing.T) {
	s := newTestServer(t)
	u := s.signup(t, fake.EmailAddress())

	token, err := handler.VerificationToken([]byte(s.Config.JWTSecret), u.ID, time.Now())
	require.NoError(t, err)

	res := performRequest(t, http.MethodGet, s.URL+"/account/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Not even on routes open to anonymous callers.
	res = performRequest(t, http.MethodGet, s.URL+"/houses", token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestEmailVerificationExpired(t *testing.T) {
	s := newTestServer(t)
	u := s.signup(t, fake.EmailAddress())

	token, err := handler.VerificationToken([]byte(s.Config.JWTSecret), u.ID, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)

	res := performRequest(t, http.MethodGet, s.URL+"/verify-email?token="+token, "", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Activation link expired", decode[map[string]string](t, res)["message"])
}

func TestAccountMe(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)

	res := performRequest(t, http.MethodGet, s.URL+"/account/me", a.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, a.ID, decode[model.PrivateUser](t, res).ID)

	res = performRequest(t, http.MethodPatch, s.URL+"/account/me", a.Token, map[string]string{
		"first_name": "Jane",
		"last_name":  "Doe",
		"username":   "jane_d",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	me := decode[model.PrivateUser](t, res)
	assert.Equal(t, "Jane Doe", me.FullName)
	assert.Equal(t, "jane_d", me.Username)

	other := s.signupAndLogin(t)
	res = performRequest(t, http.MethodPatch, s.URL+"/account/me", other.Token, map[string]string{"username": "jane_d"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = performRequest(t, http.MethodPatch, s.URL+"/account/me", a.Token, map[string]string{"image": "not a url"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)

	res := performRequest(t, http.MethodPost, s.URL+"/account/password", a.Token, map[string]string{
		"current_password": "wrong-password",
		"new_password":     "new-password-1",
		"new_password2":    "new-password-1",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = performRequest(t, http.MethodPost, s.URL+"/account/password", a.Token, map[string]string{
		"current_password": testPassword,
		"new_password":     "new-password-1",
		"new_password2":    "new-password-1",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = performRequest(t, http.MethodPost, s.URL+"/login", "", map[string]string{"email": a.Email, "password": "new-password-1"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestAnonymousAndRoleAccess(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)
	admin := s.admin(t)

	res := performRequest(t, http.MethodGet, s.URL+"/houses", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = performRequest(t, http.MethodGet, s.URL+"/account/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = performRequest(t, http.MethodGet, s.URL+"/account/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = performRequest(t, http.MethodGet, s.URL+"/users", a.Token, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = performRequest(t, http.MethodGet, s.URL+"/users", admin.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(2), decode[struct {
		Count int64 `json:"count"`
	}](t, res).Count)
}

func TestTrailingSlashIsIgnored(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)

	res := performRequest(t, http.MethodGet, s.URL+"/houses/", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = performRequest(t, http.MethodGet, s.URL+"/rent-requests/", a.Token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)
	b := s.signupAndLogin(t)
	admin := s.admin(t)

	res := performRequest(t, http.MethodDelete, s.URL+"/users/"+b.ID, a.Token, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = performRequest(t, http.MethodDelete, s.URL+"/users/"+a.ID, a.Token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = performRequest(t, http.MethodDelete, s.URL+"/users/"+b.ID, admin.Token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = performRequest(t, http.MethodGet, s.URL+"/users/"+b.ID, admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSetUserRole(t *testing.T) {
	s := newTestServer(t)
	a := s.signupAndLogin(t)
	admin := s.admin(t)

	res := performRequest(t, http.MethodPatch, s.URL+"/users/"+a.ID+"/role", admin.Token, map[string]string{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = performRequest(t, http.MethodPatch, s.URL+"/users/"+a.ID+"/role", admin.Token, map[string]string{"role": model.RoleAdmin})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, model.RoleAdmin, decode[model.PrivateUser](t, res).Role)

	// Roles travel in the token, so they apply from the next login.
	token := s.login(t, a.Email)
	res = performRequest(t, http.MethodGet, s.URL+"/users", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
