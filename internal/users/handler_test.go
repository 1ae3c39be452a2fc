package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
)

type memoryStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]domain.User{}}
}

func (s *memoryStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username already exists", domain.ErrConflict)
		}
	}
	user.ID = uuid.New().String()
	s.users[user.ID] = *user
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *memoryStore) GetByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *memoryStore) List(context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.User{}
	for _, u := range s.users {
		if !u.Archived {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, id string, upd Update) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	s.users[id] = u
	return u, nil
}

func (s *memoryStore) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Archived = true
	s.users[id] = u
	return nil
}

type HandlerSuite struct {
	suite.Suite
	store   *memoryStore
	handler *Handler
	mux     *http.ServeMux
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokens("secret", auth.TokenTTL)
	s.store = newMemoryStore()
	s.handler = NewHandler(s.store, tokens, false, logger)

	mw := auth.NewMiddleware(tokens, s.store, logger)
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /api/auth/sign-up", s.handler.HandleSignUp)
	s.mux.HandleFunc("POST /api/auth/sign-in", s.handler.HandleSignIn)
	s.mux.HandleFunc("POST /api/auth/sign-out", s.handler.HandleSignOut)
	s.mux.HandleFunc("GET /api/auth/check-customer", mw.RequireCustomer(s.handler.HandleWhoAmI))
	s.mux.HandleFunc("GET /api/user/{id}", mw.RequireAnyRole(s.handler.HandleGet))
	s.mux.HandleFunc("PUT /api/user/{id}", mw.RequireAnyRole(s.handler.HandleUpdate))
}

func (s *HandlerSuite) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) signUp(username string) {
	rec := s.do(http.MethodPost, "/api/auth/sign-up", map[string]string{
		"first_name":   "Ada",
		"last_name":    "Lovelace",
		"username":     username,
		"email":        username + "@example.com",
		"phone_number": "555-" + username,
		"password":     "hunter22",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) signIn(username string) (domain.User, *http.Cookie) {
	rec := s.do(http.MethodPost, "/api/auth/sign-in", map[string]string{
		"username": username,
		"password": "hunter22",
		"role":     "Customer",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var user domain.User
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &user))
	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 1)
	return user, cookies[0]
}

func (s *HandlerSuite) TestSignUpAndSignIn() {
	s.signUp("ada")
	user, cookie := s.signIn("ada")

	s.Equal("token", cookie.Name)
	s.True(cookie.HttpOnly)
	s.Equal(int(auth.TokenTTL.Seconds()), cookie.MaxAge)
	s.Equal(domain.RoleCustomer, user.Role)
	s.NotContains(s.do(http.MethodGet, "/api/auth/check-customer", nil, cookie).Body.String(), "hunter22")

	rec := s.do(http.MethodGet, "/api/auth/check-customer", nil, cookie)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), user.ID)
}

func (s *HandlerSuite) TestSignUpDuplicate() {
	s.signUp("ada")
	rec := s.do(http.MethodPost, "/api/auth/sign-up", map[string]string{
		"first_name": "A", "last_name": "L", "username": "ada",
		"email": "other@example.com", "phone_number": "1", "password": "hunter22",
	})
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlerSuite) TestSignUpValidation() {
	rec := s.do(http.MethodPost, "/api/auth/sign-up", map[string]string{"username": "ada"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "email")
}

func (s *HandlerSuite) TestSignInRejections() {
	s.signUp("ada")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"username": "ada", "password": "nope-nope", "role": "Customer"}, http.StatusUnauthorized},
		{"wrong role", map[string]string{"username": "ada", "password": "hunter22", "role": "Admin"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "bob", "password": "hunter22", "role": "Customer"}, http.StatusUnauthorized},
		{"bad role", map[string]string{"username": "ada", "password": "hunter22", "role": "Root"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, s.do(http.MethodPost, "/api/auth/sign-in", tt.body).Code)
		})
	}
}

func (s *HandlerSuite) TestSignOutClearsCookie() {
	rec := s.do(http.MethodPost, "/api/auth/sign-out", map[string]string{"role": "Customer"})
	s.Equal(http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 1)
	s.Equal("token", cookies[0].Name)
	s.Less(cookies[0].MaxAge, 0)
}

func (s *HandlerSuite) TestUserOwnership() {
	s.signUp("ada")
	s.signUp("bob")
	ada, adaCookie := s.signIn("ada")
	bob, _ := s.signIn("bob")

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/user/"+ada.ID, nil, adaCookie).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/user/"+bob.ID, nil, adaCookie).Code)

	rec := s.do(http.MethodPut, "/api/user/"+ada.ID, map[string]string{"first_name": "Augusta"}, adaCookie)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Augusta")
}
