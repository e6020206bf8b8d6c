package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dsmirnov82/authuser/internal/common"
	"github.com/dsmirnov82/authuser/internal/dbx"
	"github.com/dsmirnov82/authuser/internal/logging"
	"github.com/dsmirnov82/authuser/internal/server/auth"
	"github.com/dsmirnov82/authuser/internal/server/config"
	"github.com/dsmirnov82/authuser/internal/server/models"
	usersrepo "github.com/dsmirnov82/authuser/internal/server/repositories/users"
	"github.com/dsmirnov82/authuser/internal/server/services"
)

// stubRepo is an in-memory users.Repository shared across the handlers of a
// single test server.
type stubRepo struct {
	byID  map[string]*models.User
	roles map[string]*models.Role
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		byID: map[string]*models.User{},
		roles: map[string]*models.Role{
			models.RoleUser:      {ID: 1, Name: models.RoleUser},
			models.RoleModerator: {ID: 2, Name: models.RoleModerator},
			models.RoleAdmin:     {ID: 3, Name: models.RoleAdmin},
		},
	}
}

func (s *stubRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return nil, common.ErrConflict
		}
	}
	clone := *u
	s.byID[u.ID] = &clone
	return u, nil
}

func (s *stubRepo) GetByLogin(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, common.ErrNotFound
}

func (s *stubRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *stubRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return s.GetByID(ctx, id)
}

func (s *stubRepo) Update(ctx context.Context, id string, patch *usersrepo.Patch) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Password != nil {
		u.Password = *patch.Password
	}
	if patch.Age != nil {
		u.Age = *patch.Age
	}
	clone := *u
	return &clone, nil
}

func (s *stubRepo) Delete(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *stubRepo) List(ctx context.Context, skip, limit int) ([]*models.User, error) {
	out := make([]*models.User, 0, len(s.byID))
	for _, u := range s.byID {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (s *stubRepo) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	r, ok := s.roles[name]
	if !ok {
		return nil, common.ErrNotFound
	}
	return r, nil
}

func (s *stubRepo) AddRole(ctx context.Context, userID string, roleID int64) error {
	u, ok := s.byID[userID]
	if !ok {
		return common.ErrNotFound
	}
	for _, r := range s.roles {
		if r.ID == roleID {
			u.Roles = append(u.Roles, r.Name)
			return nil
		}
	}
	return common.ErrNotFound
}

func (s *stubRepo) RemoveRole(ctx context.Context, userID string, roleID int64) error {
	u, ok := s.byID[userID]
	if !ok {
		return common.ErrNotFound
	}
	for _, r := range s.roles {
		if r.ID != roleID {
			continue
		}
		kept := u.Roles[:0]
		for _, name := range u.Roles {
			if name != r.Name {
				kept = append(kept, name)
			}
		}
		u.Roles = kept
		return nil
	}
	return common.ErrNotAssigned
}

type stubRepoManager struct {
	repo *stubRepo
}

func (m *stubRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *stubRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return m.repo }

func newTestServer(t *testing.T) (*httptest.Server, *stubRepo) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// handlers open transactions in any order; queue generous expectations
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}

	cfg := &config.Config{
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	repo := newStubRepo()
	rm := &stubRepoManager{repo: repo}
	authSvc := services.NewAuthService(db, rm, cfg, logger)
	usersSvc := services.NewUsersService(db, rm, authSvc, logger)

	srv := httptest.NewServer(NewServer("", authSvc, usersSvc, logger).Router())
	t.Cleanup(srv.Close)
	return srv, repo
}

func seedUser(t *testing.T, repo *stubRepo, id, email, password string, roles ...string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	repo.byID[id] = &models.User{ID: id, Email: email, Password: hash, Roles: roles}
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return resp
}

func loginFor(t *testing.T, srv *httptest.Server, email, password string) services.TokenPair {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/login", "", map[string]string{
		"email": email, "password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}
	var pair services.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	return pair
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "u1", "alice@example.com", "secret", models.RoleUser)

	pair := loginFor(t, srv, "alice@example.com", "secret")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: want 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/login", "", map[string]string{
		"email": "ghost@example.com", "password": "x",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user: want 404, got %d", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "u1", "alice@example.com", "secret", models.RoleUser)

	pair := loginFor(t, srv, "alice@example.com", "secret")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
		t.Fatalf("decode: token=%q err=%v", out.AccessToken, err)
	}

	bad := doJSON(t, http.MethodPost, srv.URL+"/api/refresh", "", map[string]string{
		"refresh_token": "garbage",
	})
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: want 401, got %d", bad.StatusCode)
	}
}

func TestProfileMe(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "u1", "alice@example.com", "secret", models.RoleUser)

	pair := loginFor(t, srv, "alice@example.com", "secret")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/profile/me", pair.AccessToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var pub models.PublicUser
	if err := json.NewDecoder(resp.Body).Decode(&pub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pub.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", pub)
	}

	anon := doJSON(t, http.MethodGet, srv.URL+"/api/profile/me", "", nil)
	anon.Body.Close()
	if anon.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", anon.StatusCode)
	}
}

func TestCreateUser_Authorization(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "a1", "admin@example.com", "secret", models.RoleAdmin)
	seedUser(t, repo, "u1", "plain@example.com", "secret", models.RoleUser)

	body := map[string]any{
		"name": "Bob", "email": "bob@example.com", "password": "pw", "age": 25,
	}

	anon := doJSON(t, http.MethodPost, srv.URL+"/api/users", "", body)
	anon.Body.Close()
	if anon.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", anon.StatusCode)
	}

	plain := loginFor(t, srv, "plain@example.com", "secret")
	forbidden := doJSON(t, http.MethodPost, srv.URL+"/api/users", plain.AccessToken, body)
	forbidden.Body.Close()
	if forbidden.StatusCode != http.StatusForbidden {
		t.Fatalf("USER role: want 403, got %d", forbidden.StatusCode)
	}

	admin := loginFor(t, srv, "admin@example.com", "secret")
	created := doJSON(t, http.MethodPost, srv.URL+"/api/users", admin.AccessToken, body)
	defer created.Body.Close()
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("admin create: want 201, got %d", created.StatusCode)
	}
	var out services.UserWithToken
	if err := json.NewDecoder(created.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.Email != "bob@example.com" || out.AccessToken == "" {
		t.Fatalf("incomplete result: %+v", out)
	}
	if len(out.User.Roles) != 1 || out.User.Roles[0] != models.RoleUser {
		t.Fatalf("want default USER role, got %v", out.User.Roles)
	}

	dup := doJSON(t, http.MethodPost, srv.URL+"/api/users", admin.AccessToken, body)
	dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: want 409, got %d", dup.StatusCode)
	}
}

func TestRoleEndpoints(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "a1", "admin@example.com", "secret", models.RoleAdmin)
	seedUser(t, repo, "u1", "bob@example.com", "secret", models.RoleUser)

	admin := loginFor(t, srv, "admin@example.com", "secret")
	base := fmt.Sprintf("%s/api/users/%s/roles", srv.URL, "u1")

	resp := doJSON(t, http.MethodPost, base, admin.AccessToken, map[string]string{"role": models.RoleModerator})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add role: want 200, got %d", resp.StatusCode)
	}
	var out rolesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Roles) != 2 {
		t.Fatalf("roles after add: %v err=%v", out.Roles, err)
	}

	again := doJSON(t, http.MethodPost, base, admin.AccessToken, map[string]string{"role": models.RoleModerator})
	again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate role: want 409, got %d", again.StatusCode)
	}

	del := doJSON(t, http.MethodDelete, base+"/"+models.RoleModerator, admin.AccessToken, nil)
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("remove role: want 200, got %d", del.StatusCode)
	}

	last := doJSON(t, http.MethodDelete, base+"/"+models.RoleUser, admin.AccessToken, nil)
	last.Body.Close()
	if last.StatusCode != http.StatusConflict {
		t.Fatalf("last role: want 409, got %d", last.StatusCode)
	}
}

func TestUpdateAndDeleteUser(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "a1", "admin@example.com", "secret", models.RoleAdmin)
	seedUser(t, repo, "u1", "bob@example.com", "secret", models.RoleUser)

	admin := loginFor(t, srv, "admin@example.com", "secret")

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/users/u1", admin.AccessToken, map[string]any{"age": 42})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: want 200, got %d", resp.StatusCode)
	}
	var out services.UserWithToken
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.Age != 42 {
		t.Fatalf("age not updated: %+v", out.User)
	}

	del := doJSON(t, http.MethodDelete, srv.URL+"/api/users/u1", admin.AccessToken, nil)
	defer del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("delete: want 200, got %d", del.StatusCode)
	}
	var prior models.PublicUser
	if err := json.NewDecoder(del.Body).Decode(&prior); err != nil || prior.ID != "u1" {
		t.Fatalf("prior state: %+v err=%v", prior, err)
	}

	missing := doJSON(t, http.MethodGet, srv.URL+"/api/users/u1", admin.AccessToken, nil)
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted user: want 404, got %d", missing.StatusCode)
	}
}

func TestResetPasswordEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	seedUser(t, repo, "u1", "alice@example.com", "old-secret", models.RoleUser)

	pair := loginFor(t, srv, "alice@example.com", "old-secret")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/reset-password", pair.AccessToken, map[string]string{
		"new_password": "new-secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: want 200, got %d", resp.StatusCode)
	}

	// old credential no longer works, the new one does
	old := doJSON(t, http.MethodPost, srv.URL+"/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "old-secret",
	})
	old.Body.Close()
	if old.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password: want 401, got %d", old.StatusCode)
	}
	loginFor(t, srv, "alice@example.com", "new-secret")
}
