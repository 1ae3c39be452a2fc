package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"slices"
	"strings"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

type Store interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, id string, u Update) (domain.User, error)
	Archive(ctx context.Context, id string) error
}

type Handler struct {
	store        Store
	tokens       *auth.Tokens
	secureCookie bool
	logger       *slog.Logger
}

func NewHandler(store Store, tokens *auth.Tokens, secureCookie bool, logger *slog.Logger) *Handler {
	return &Handler{
		store:        store,
		tokens:       tokens,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type signUpRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

func (req signUpRequest) validate() error {
	var missing []string
	for field, v := range map[string]string{
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"username":     req.Username,
		"email":        req.Email,
		"phone_number": req.PhoneNumber,
		"password":     req.Password,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	return nil
}

// HandleSignUp registers a customer. Admin accounts are provisioned out of band.
func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid sign-up request")
		return
	}
	if err := req.validate(); err != nil {
		httpx.Fail(w, h.logger, err, "invalid sign-up request")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to hash password")
		return
	}

	user := &domain.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}
	if err := h.store.Create(r.Context(), user); err != nil {
		httpx.Fail(w, h.logger, err, "failed to create user")
		return
	}

	h.logger.Info("user signed up", "user_id", user.ID)
	httpx.WriteMessage(w, h.logger, http.StatusCreated, "new user has been created")
}

type signInRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid sign-in request")
		return
	}
	if !req.Role.Valid() {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: role must be Customer or Admin", domain.ErrValidation), "invalid sign-in request")
		return
	}

	invalid := fmt.Errorf("%w: invalid username or password", domain.ErrUnauthenticated)

	user, err := h.store.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpx.Fail(w, h.logger, invalid, "sign-in rejected")
			return
		}
		httpx.Fail(w, h.logger, err, "failed to get user", "username", req.Username)
		return
	}

	if user.Archived || user.Role != req.Role || !auth.CheckPassword(user.PasswordHash, req.Password) {
		httpx.Fail(w, h.logger, invalid, "sign-in rejected")
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to issue token", "user_id", user.ID)
		return
	}

	http.SetCookie(w, h.sessionCookie(user.Role, token, int(auth.TokenTTL.Seconds())))

	h.logger.Info("user signed in", "user_id", user.ID, "role", user.Role)
	httpx.WriteJSON(w, h.logger, http.StatusOK, user)
}

type signOutRequest struct {
	Role domain.Role `json:"role"`
}

func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	var req signOutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid sign-out request")
		return
	}

	http.SetCookie(w, h.sessionCookie(req.Role, "", -1))
	httpx.WriteMessage(w, h.logger, http.StatusOK, "signed out successfully")
}

// HandleWhoAmI backs check-customer and check-admin: the middleware already resolved
// the user.
func (h *Handler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, domain.ErrUnauthenticated, "no user in context")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, user)
}

func (h *Handler) sessionCookie(role domain.Role, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName(role),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list users")
		return
	}

	h.logger.Info("users listed", "count", len(users))
	httpx.WriteJSON(w, h.logger, http.StatusOK, users)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.authorize(w, r, id) {
		return
	}

	user, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get user", "id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, user)
}

type updateRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Password    *string `json:"password"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.authorize(w, r, id) {
		return
	}

	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid user update")
		return
	}

	update := Update{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	}
	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			httpx.Fail(w, h.logger, fmt.Errorf("%w: invalid email", domain.ErrValidation), "invalid user update")
			return
		}
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			httpx.Fail(w, h.logger, err, "failed to hash password")
			return
		}
		update.PasswordHash = &hash
	}

	user, err := h.store.Update(r.Context(), id, update)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update user", "id", id)
		return
	}

	h.logger.Info("user updated", "user_id", user.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, user)
}

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.Archive(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, err, "failed to archive user", "id", id)
		return
	}

	h.logger.Info("user archived", "user_id", id)
	httpx.WriteMessage(w, h.logger, http.StatusOK, "user deleted successfully")
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, domain.ErrUnauthenticated, "no user in context")
		return false
	}
	if !auth.CanAccessUser(caller, ownerID) {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: not your account", domain.ErrForbidden), "access denied")
		return false
	}
	return true
}
