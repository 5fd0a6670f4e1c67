package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"librarydrive/internal/domain"
	"librarydrive/internal/service"
)

// InternalHandler принимает служебные вызовы конвейера обработки медиа.
// Доступ защищен общим API-ключом, а не пользовательским токеном.
type InternalHandler struct {
	library *service.LibraryService
	apiKey  string
}

func NewInternalHandler(library *service.LibraryService, apiKey string) *InternalHandler {
	return &InternalHandler{
		library: library,
		apiKey:  apiKey,
	}
}

func (h *InternalHandler) RegisterRoutes(r chi.Router) {
	r.Patch("/internal/library-items/{id}/derived", h.SetDerivedKeys)
}

func (h *InternalHandler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return false
	}
	provided := r.Header.Get("X-Internal-Api-Key")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) == 1
}

// SetDerivedKeys записывает ключи производных файлов, сгенерированных
// конвейером для элемента
func (h *InternalHandler) SetDerivedKeys(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid internal API key")
		return
	}

	id, ok := itemIDFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid item id")
		return
	}

	var keys domain.DerivedKeys
	if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if err := h.library.SetDerivedKeys(r.Context(), id, keys); err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Derived keys updated", nil)
}
