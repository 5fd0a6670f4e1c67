package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"librarydrive/internal/domain"
	"librarydrive/internal/service"
)

// UserHandler обслуживает профили пользователей
type UserHandler struct {
	users *service.UserService
	auth  Authenticator
}

func NewUserHandler(users *service.UserService, auth Authenticator) *UserHandler {
	return &UserHandler{
		users: users,
		auth:  auth,
	}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/me", h.Me)
		r.Put("/me", h.UpdateMe)
		r.Get("/nickname-available", h.NicknameAvailable)
		r.Get("/{id}", h.Get)
	})
}

// Create заводит профиль текущего пользователя. Повторный вызов
// безопасен и возвращает существующий профиль.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	var input domain.UserCreate
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
	}
	// Идентификатор берется из токена, а не из тела запроса
	input.UserID = userID

	user, err := h.users.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "User profile created", user)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User profile retrieved", user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	var upd domain.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	user, err := h.users.Update(r.Context(), userID, upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User profile updated", user)
}

// Get возвращает публичный профиль пользователя
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User profile retrieved", user)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	users, total, err := h.users.List(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	writePaginated(w, "Users retrieved", users, NewPaginationInfo(skip, limit, total))
}

func (h *UserHandler) NicknameAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := h.users.NicknameAvailable(r.Context(), r.URL.Query().Get("nickname"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Nickname availability checked", map[string]bool{"available": available})
}
