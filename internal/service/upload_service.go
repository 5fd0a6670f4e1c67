package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/bimg"

	"librarydrive/internal/domain"
	"librarydrive/internal/service/s3"
)

const (
	presignUploadTTL   = 1 * time.Hour
	presignDownloadTTL = 1 * time.Hour

	maxImageSize    = 50 * 1024 * 1024   // 50MB
	maxVideoSize    = 500 * 1024 * 1024  // 500MB
	maxDocumentSize = 100 * 1024 * 1024  // 100MB
	maxGenericSize  = 1024 * 1024 * 1024 // 1GB

	thumbnailWidth  = 320
	thumbnailHeight = 240
)

// documentMIMETypes — типы, которые считаются документами
var documentMIMETypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-powerpoint":                                     true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain": true,
	"text/csv":   true,
}

// blockedMIMETypes — исполняемые типы, загрузка которых запрещена
var blockedMIMETypes = map[string]bool{
	"application/x-msdownload":     true,
	"application/x-executable":     true,
	"application/x-dosexec":        true,
	"application/x-sh":             true,
	"application/x-bat":            true,
	"application/x-msi":            true,
	"application/vnd.microsoft.portable-executable": true,
}

// forbiddenFilenameChars — символы, недопустимые в имени файла
const forbiddenFilenameChars = `<>:"|?*\/`

// UploadResult описывает выданную клиенту ссылку для прямой загрузки
type UploadResult struct {
	UploadURL  string          `json:"upload_url"`
	StorageKey string          `json:"s3_key"`
	Type       domain.ItemType `json:"type"`
	ExpiresIn  int             `json:"expires_in"`
}

// DownloadResult содержит временные ссылки на скачивание элемента
type DownloadResult struct {
	DownloadURL  string  `json:"download_url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	ExpiresIn    int     `json:"expires_in"`
}

// UploadService проверяет загружаемые файлы, генерирует ключи хранения
// и выдает временные ссылки
type UploadService struct {
	storage s3.Storage
	library *LibraryService
}

func NewUploadService(storage s3.Storage, library *LibraryService) *UploadService {
	return &UploadService{
		storage: storage,
		library: library,
	}
}

// DetectItemType определяет тип элемента по MIME-типу файла
func DetectItemType(mimeType string) domain.ItemType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.ItemTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return domain.ItemTypeVideo
	case documentMIMETypes[mimeType]:
		return domain.ItemTypeDocument
	default:
		return domain.ItemTypeFile
	}
}

// maxSizeFor возвращает предельный размер файла для типа элемента
func maxSizeFor(itemType domain.ItemType) int64 {
	switch itemType {
	case domain.ItemTypeImage:
		return maxImageSize
	case domain.ItemTypeVideo:
		return maxVideoSize
	case domain.ItemTypeDocument:
		return maxDocumentSize
	default:
		return maxGenericSize
	}
}

// ValidateFilename проверяет имя файла: непустое, не длиннее 255 символов,
// без служебных символов файловых систем
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if len(filename) > maxNameLength {
		return fmt.Errorf("%w: filename exceeds %d characters", ErrValidation, maxNameLength)
	}
	if strings.ContainsAny(filename, forbiddenFilenameChars) {
		return fmt.Errorf("%w: filename contains forbidden characters", ErrValidation)
	}
	return nil
}

// ValidateUpload проверяет файл перед выдачей ссылки или загрузкой
func ValidateUpload(filename, mimeType string, size int64) (domain.ItemType, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	if mimeType == "" {
		return "", fmt.Errorf("%w: content type is required", ErrValidation)
	}
	if blockedMIMETypes[mimeType] {
		return "", fmt.Errorf("%w: content type %s is not allowed", ErrValidation, mimeType)
	}

	itemType := DetectItemType(mimeType)
	if size <= 0 {
		return "", fmt.Errorf("%w: file size must be positive", ErrValidation)
	}
	if limit := maxSizeFor(itemType); size > limit {
		return "", fmt.Errorf("%w: file size %d exceeds limit %d for type %s", ErrValidation, size, limit, itemType)
	}

	return itemType, nil
}

// GenerateStorageKey строит ключ вида {owner}/library/{yyyy}/{mm}/{uuid}{.ext}
func GenerateStorageKey(ownerID, filename string) string {
	now := time.Now().UTC()
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/library/%04d/%02d/%s%s", ownerID, now.Year(), int(now.Month()), uuid.New().String(), ext)
}

// ThumbnailKeyFor строит ключ миниатюры рядом с оригиналом:
// .../thumbs/{name}_thumb{.ext}
func ThumbnailKeyFor(storageKey string) string {
	dir := filepath.Dir(storageKey)
	base := filepath.Base(storageKey)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s/thumbs/%s_thumb%s", dir, name, ext)
}

// PresignUpload проверяет параметры файла и выдает временную ссылку
// для прямой загрузки клиентом
func (s *UploadService) PresignUpload(ctx context.Context, ownerID, filename, contentType string, size int64) (*UploadResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	itemType, err := ValidateUpload(filename, contentType, size)
	if err != nil {
		return nil, err
	}

	key := GenerateStorageKey(ownerID, filename)
	url, err := s.storage.PresignUploadURL(ctx, key, contentType, presignUploadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &UploadResult{
		UploadURL:  url,
		StorageKey: key,
		Type:       itemType,
		ExpiresIn:  int(presignUploadTTL.Seconds()),
	}, nil
}

// DownloadURLs выдает временные ссылки на оригинал и миниатюру элемента
func (s *UploadService) DownloadURLs(ctx context.Context, item *domain.LibraryItem) (*DownloadResult, error) {
	url, err := s.storage.PresignDownloadURL(ctx, item.StorageKey, presignDownloadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	result := &DownloadResult{
		DownloadURL: url,
		ExpiresIn:   int(presignDownloadTTL.Seconds()),
	}

	if item.ThumbnailKey != nil && *item.ThumbnailKey != "" {
		thumbURL, err := s.storage.PresignDownloadURL(ctx, *item.ThumbnailKey, presignDownloadTTL)
		if err != nil {
			log.Printf("[UPLOAD] Failed to presign thumbnail for %s: %v", item.ID, err)
		} else {
			result.ThumbnailURL = &thumbURL
		}
	}

	return result, nil
}

// PresignDownloadByKey выдает ссылку на скачивание по ключу хранилища,
// без обращения к базе
func (s *UploadService) PresignDownloadByKey(ctx context.Context, key string) (*DownloadResult, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrValidation)
	}
	url, err := s.storage.PresignDownloadURL(ctx, key, presignDownloadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	return &DownloadResult{
		DownloadURL: url,
		ExpiresIn:   int(presignDownloadTTL.Seconds()),
	}, nil
}

// DirectUpload загружает файл на сервере: кладет оригинал в хранилище,
// для изображений генерирует миниатюру и регистрирует элемент библиотеки
func (s *UploadService) DirectUpload(ctx context.Context, ownerID, filename, contentType string, data []byte, visibility domain.Visibility) (*domain.LibraryItem, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	itemType, err := ValidateUpload(filename, contentType, int64(len(data)))
	if err != nil {
		return nil, err
	}

	key := GenerateStorageKey(ownerID, filename)
	metadata := map[string]string{
		"user-id":           ownerID,
		"original-filename": filename,
	}
	if err := s.storage.UploadBytes(key, data, contentType, metadata); err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	var thumbnailKey *string
	if itemType == domain.ItemTypeImage {
		thumb, err := makeThumbnail(data)
		if err != nil {
			log.Printf("[UPLOAD] Thumbnail generation failed for %s: %v", key, err)
		} else {
			tk := ThumbnailKeyFor(key)
			if err := s.storage.UploadBytes(tk, thumb, "image/jpeg", nil); err != nil {
				log.Printf("[UPLOAD] Thumbnail upload failed for %s: %v", tk, err)
			} else {
				thumbnailKey = &tk
			}
		}
	}

	item, err := s.library.Create(ctx, ownerID, domain.LibraryItemCreate{
		Name:             strings.TrimSuffix(filename, filepath.Ext(filename)),
		Type:             itemType,
		Visibility:       visibility,
		MIMEType:         contentType,
		StorageKey:       key,
		ThumbnailKey:     thumbnailKey,
		FileSize:         int64(len(data)),
		OriginalFilename: filename,
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// makeThumbnail уменьшает изображение до размера миниатюры в JPEG
func makeThumbnail(data []byte) ([]byte, error) {
	thumb, err := bimg.NewImage(data).Process(bimg.Options{
		Width:   thumbnailWidth,
		Height:  thumbnailHeight,
		Quality: 85,
		Type:    bimg.JPEG,
		Enlarge: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return thumb, nil
}
