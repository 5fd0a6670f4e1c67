package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"librarydrive/internal/domain"
	"librarydrive/internal/service"
)

const maxMultipartMemory = 32 << 20 // 32MB в памяти, остальное на диск

// UploadHandler обслуживает выдачу временных ссылок и прямую загрузку
type UploadHandler struct {
	uploads *service.UploadService
	library *service.LibraryService
	auth    Authenticator
}

func NewUploadHandler(uploads *service.UploadService, library *service.LibraryService, auth Authenticator) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		library: library,
		auth:    auth,
	}
}

func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Get("/library-items/url-by-key", h.DownloadByKey)
	r.Route("/uploads", func(r chi.Router) {
		r.Post("/presigned-url", h.PresignUpload)
		r.Get("/download/{id}", h.DownloadItem)
		r.Post("/direct", h.DirectUpload)
	})
}

type presignUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// PresignUpload проверяет файл и выдает ссылку для прямой загрузки клиентом
func (h *UploadHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	var req presignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.uploads.PresignUpload(r.Context(), userID, req.Filename, req.ContentType, req.FileSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Upload URL generated", result)
}

// DownloadItem выдает ссылки на скачивание элемента: владельцу — всегда,
// остальным — только для публичных активных элементов
func (h *UploadHandler) DownloadItem(w http.ResponseWriter, r *http.Request) {
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

	item, err := h.library.Get(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.uploads.DownloadURLs(r.Context(), item)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Download URL generated", result)
}

// DownloadByKey выдает ссылку на скачивание по ключу хранилища,
// без обращения к базе
func (h *UploadHandler) DownloadByKey(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	result, err := h.uploads.PresignDownloadByKey(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Download URL generated", result)
}

// DirectUpload принимает multipart-файл и загружает его на стороне сервера
func (h *UploadHandler) DirectUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	visibility := domain.Visibility(r.FormValue("visibility"))
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	item, err := h.uploads.DirectUpload(r.Context(), userID, header.Filename, contentType, data, visibility)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "File uploaded", item)
}
