package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/heracles-fit/heracles/internal/auth"
	"github.com/heracles-fit/heracles/internal/telemetry/tracing"
	"github.com/heracles-fit/heracles/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=users_mocks_test.go -package=users_test

type usersRepo interface {
	Create(ctx context.Context, user User) (*User, error)
	Get(ctx context.Context, id int) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListAll(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	CountAdmins(ctx context.Context) (int, error)
	DeleteCascade(ctx context.Context, id int) error
}

type tokenIssuer interface {
	IssueToken(identity auth.Identity) (string, error)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

type Handler struct {
	repo        usersRepo
	tokenIssuer tokenIssuer
}

func NewHandler(repo usersRepo, tokenIssuer tokenIssuer) *Handler {
	return &Handler{
		repo:        repo,
		tokenIssuer: tokenIssuer,
	}
}

func (handler *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.register")
	defer span.End()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("register, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	fieldErrors := map[string]string{}
	if !strings.Contains(req.Email, "@") {
		fieldErrors["email"] = "invalid email"
	}
	if req.Name == "" {
		fieldErrors["name"] = "name is required"
	}
	if len(req.Password) < 6 {
		fieldErrors["password"] = "password must be at least 6 characters"
	}
	if len(fieldErrors) > 0 {
		pkg.WriteErrorResponse(w, pkg.ErrorResponse{
			Error:  "validation failed",
			Fields: fieldErrors,
		}, http.StatusBadRequest)
		return
	}

	passwordHash, err := pkg.HashPassword(req.Password)
	if err != nil {
		log.Errorf("register, hash password: %s", err)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	user, err := handler.repo.Create(ctx, User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: passwordHash,
		Role:         auth.RoleUser,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			pkg.WriteJSONError(w, "email already taken", http.StatusConflict)
			return
		}
		log.Errorf("register, create user [%s]: %s", req.Email, err)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	handler.respondWithToken(w, user, http.StatusCreated)
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.login")
	defer span.End()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("login, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	user, err := handler.repo.GetByEmail(ctx, req.Email)
	if errors.Is(err, ErrUserNotFound) {
		pkg.WriteJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	} else if err != nil {
		log.Errorf("login, get user [%s]: %s", req.Email, err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	if !pkg.CheckPasswordHash(req.Password, user.PasswordHash) {
		log.Tracef("login, invalid password for %s", req.Email)
		pkg.WriteJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	handler.respondWithToken(w, user, http.StatusOK)
}

func (handler *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.list")
	defer span.End()

	if !handler.requireAdmin(ctx, w) {
		return
	}

	users, err := handler.repo.ListAll(ctx)
	if err != nil {
		log.Errorf("list users: %s", err)
		http.Error(w, "failed to get users", http.StatusInternalServerError)
		return
	}

	usersJson, err := json.Marshal(users)
	if err != nil {
		log.Errorf("marshal users: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, usersJson, http.StatusOK)
}

func (handler *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.update")
	defer span.End()

	if !handler.requireAdmin(ctx, w) {
		return
	}

	id, err := userIDParam(r)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("update user, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	user, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Errorf("update user, get %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if req.Role != nil {
		if *req.Role != auth.RoleUser && *req.Role != auth.RoleAdmin {
			pkg.WriteJSONError(w, "unknown role", http.StatusBadRequest)
			return
		}
		// demoting the only admin would lock everyone out
		if user.Role == auth.RoleAdmin && *req.Role != auth.RoleAdmin {
			if locked, err := handler.lastAdmin(ctx); err != nil {
				log.Errorf("update user, count admins: %s", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			} else if locked {
				pkg.WriteJSONError(w, "cannot demote the last admin", http.StatusBadRequest)
				return
			}
		}
		user.Role = *req.Role
	}
	if req.Email != nil {
		if !strings.Contains(*req.Email, "@") {
			pkg.WriteJSONError(w, "invalid email", http.StatusBadRequest)
			return
		}
		user.Email = *req.Email
	}
	if req.Name != nil {
		if *req.Name == "" {
			pkg.WriteJSONError(w, "name is required", http.StatusBadRequest)
			return
		}
		user.Name = *req.Name
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			pkg.WriteJSONError(w, "password must be at least 6 characters", http.StatusBadRequest)
			return
		}
		passwordHash, err := pkg.HashPassword(*req.Password)
		if err != nil {
			log.Errorf("update user, hash password: %s", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		user.PasswordHash = passwordHash
	}

	if err := handler.repo.Update(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			pkg.WriteJSONError(w, "email already taken", http.StatusConflict)
			return
		}
		log.Errorf("update user %d: %s", id, err)
		http.Error(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("marshal user: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.delete")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsAdmin() {
		pkg.WriteJSONError(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := userIDParam(r)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if id == identity.ID {
		pkg.WriteJSONError(w, "cannot delete your own account", http.StatusBadRequest)
		return
	}

	user, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Errorf("delete user, get %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if user.Role == auth.RoleAdmin {
		if locked, err := handler.lastAdmin(ctx); err != nil {
			log.Errorf("delete user, count admins: %s", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		} else if locked {
			pkg.WriteJSONError(w, "cannot delete the last admin", http.StatusBadRequest)
			return
		}
	}

	if err := handler.repo.DeleteCascade(ctx, id); err != nil {
		log.Errorf("delete user %d: %s", id, err)
		http.Error(w, "failed to delete user", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"ok":true}`)
}

func (handler *Handler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.promote")
	defer span.End()

	if !handler.requireAdmin(ctx, w) {
		return
	}

	id, err := userIDParam(r)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Errorf("promote user, get %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user.Role = auth.RoleAdmin
	if err := handler.repo.Update(ctx, user); err != nil {
		log.Errorf("promote user %d: %s", id, err)
		http.Error(w, "failed to promote user", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("marshal user: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusOK)
}

func (handler *Handler) respondWithToken(w http.ResponseWriter, user *User, statusCode int) {
	token, err := handler.tokenIssuer.IssueToken(auth.Identity{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	})
	if err != nil {
		log.Errorf("issue token for %s: %s", user.Email, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(AuthResponse{
		Token: token,
		User:  *user,
	})
	if err != nil {
		log.Errorf("marshal auth response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, statusCode)
}

func (handler *Handler) requireAdmin(ctx context.Context, w http.ResponseWriter) bool {
	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsAdmin() {
		pkg.WriteJSONError(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (handler *Handler) lastAdmin(ctx context.Context) (bool, error) {
	adminCount, err := handler.repo.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	return adminCount <= 1, nil
}

func userIDParam(r *http.Request) (int, error) {
	idStr := mux.Vars(r)["id"]
	if idStr == "" {
		return 0, errors.New("error, id empty")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, errors.New("error, id NaN")
	}
	return id, nil
}
