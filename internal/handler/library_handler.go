package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarydrive/internal/domain"
	"librarydrive/internal/service"
)

// Authenticator проверяет подлинность входящих запросов.
// Реализуется auth.Verifier.
type Authenticator interface {
	VerifyRequest(r *http.Request) (string, error)
	SubjectOptional(r *http.Request) string
}

// LibraryHandler обслуживает HTTP-запросы к элементам библиотеки
type LibraryHandler struct {
	library *service.LibraryService
	auth    Authenticator
}

func NewLibraryHandler(library *service.LibraryService, auth Authenticator) *LibraryHandler {
	return &LibraryHandler{
		library: library,
		auth:    auth,
	}
}

// RegisterRoutes регистрирует маршруты элементов библиотеки
func (h *LibraryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/library-items", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/public", h.ListPublic)
		r.Get("/stats/summary", h.Stats)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/restore", h.Restore)
	})
}

func parseListOptions(r *http.Request) domain.ListOptions {
	q := r.URL.Query()
	opts := domain.ListOptions{
		Search: q.Get("search"),
	}
	if v := q.Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Skip = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("type"); v != "" {
		t := domain.ItemType(v)
		opts.Type = &t
	}
	if v := q.Get("include_deleted"); v != "" {
		opts.IncludeDeleted = v == "true" || v == "1"
	}
	return opts
}

func itemIDFromURL(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// Create регистрирует элемент после загрузки файла в хранилище
func (h *LibraryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	var input domain.LibraryItemCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	item, err := h.library.Create(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Library item created", item)
}

// List возвращает страницу элементов владельца, сверенную с хранилищем
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	opts := parseListOptions(r)
	items, total, err := h.library.ReconcileAndList(r.Context(), userID, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	normalized := opts
	normalizePagination(&normalized)
	writePaginated(w, "Library items retrieved", items, NewPaginationInfo(normalized.Skip, normalized.Limit, total))
}

// normalizePagination повторяет границы сервисного слоя для подсчета
// метаданных страницы
func normalizePagination(opts *domain.ListOptions) {
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
}

// ListPublic возвращает публичные элементы, доступно без аутентификации
func (h *LibraryHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	opts := parseListOptions(r)
	items, total, err := h.library.PublicItems(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	normalizePagination(&opts)
	writePaginated(w, "Public items retrieved", items, NewPaginationInfo(opts.Skip, opts.Limit, total))
}

// Get возвращает один элемент; аутентификация опциональна
func (h *LibraryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid item id")
		return
	}

	requesterID := h.auth.SubjectOptional(r)
	item, err := h.library.Get(r.Context(), id, requesterID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Library item retrieved", item)
}

func (h *LibraryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	id, ok := itemIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid item id")
		return
	}

	var upd domain.LibraryItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	item, err := h.library.Update(r.Context(), id, userID, upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Library item updated", item)
}

// Delete удаляет элемент. permanent=true по умолчанию
func (h *LibraryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	id, ok := itemIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid item id")
		return
	}

	permanent := true
	if v := r.URL.Query().Get("permanent"); v != "" {
		permanent = v == "true" || v == "1"
	}

	if err := h.library.Delete(r.Context(), id, userID, permanent); err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Library item deleted", nil)
}

func (h *LibraryHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	id, ok := itemIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid item id")
		return
	}

	item, err := h.library.Restore(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Library item restored", item)
}

// Stats возвращает сводную статистику библиотеки владельца
func (h *LibraryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	stats, err := h.library.Stats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Library stats retrieved", stats)
}
