// storage.go
package s3

import (
	"context"
	"time"
)

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	// Exists возвращает (false, nil) только если объект гарантированно
	// отсутствует. Любая другая ошибка хранилища возвращается вызывающему.
	Exists(ctx context.Context, key string) (bool, error)
	UploadBytes(key string, data []byte, contentType string, metadata map[string]string) error
	DeleteObject(key string) error
	PresignUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
