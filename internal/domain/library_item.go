package domain

import (
	"time"

	"github.com/google/uuid"
)

// ItemType определяет тип элемента библиотеки
type ItemType string

const (
	ItemTypeImage    ItemType = "image"
	ItemTypeDocument ItemType = "document"
	ItemTypeFile     ItemType = "file"
	ItemTypeVideo    ItemType = "video"
)

// Valid проверяет, что тип входит в список поддерживаемых
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeImage, ItemTypeDocument, ItemTypeFile, ItemTypeVideo:
		return true
	}
	return false
}

// Visibility определяет область видимости элемента
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// LibraryItem представляет элемент библиотеки пользователя.
// deleted_at — единственный источник истины о статусе: NULL означает
// активный элемент, не NULL — мягко удаленный.
type LibraryItem struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	OwnerID          string     `json:"user_id" db:"user_id"`
	Name             string     `json:"name" db:"name"`
	Type             ItemType   `json:"type" db:"type"`
	MIMEType         string     `json:"mime_type" db:"mime_type"`
	Visibility       Visibility `json:"visibility" db:"visibility"`
	StorageKey       string     `json:"s3_key" db:"s3_key"`
	ThumbnailKey     *string    `json:"s3_thumbnail_key,omitempty" db:"s3_thumbnail_key"`
	PreviewKey       *string    `json:"s3_preview_key,omitempty" db:"s3_preview_key"`
	SubtitleKey      *string    `json:"s3_subtitle_key,omitempty" db:"s3_subtitle_key"`
	FileSize         int64      `json:"file_size" db:"file_size"`
	PreviewText      *string    `json:"preview_text,omitempty" db:"preview_text"`
	OriginalFilename string     `json:"original_filename" db:"original_filename"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDeleted сообщает, находится ли элемент в состоянии мягкого удаления
func (i *LibraryItem) IsDeleted() bool {
	return i.DeletedAt != nil
}

// LibraryItemCreate содержит данные для создания элемента
// после завершения загрузки файла в хранилище
type LibraryItemCreate struct {
	Name             string     `json:"name"`
	Type             ItemType   `json:"type"`
	Visibility       Visibility `json:"visibility"`
	MIMEType         string     `json:"mime_type"`
	StorageKey       string     `json:"s3_key"`
	ThumbnailKey     *string    `json:"s3_thumbnail_key,omitempty"`
	FileSize         int64      `json:"file_size"`
	OriginalFilename string     `json:"original_filename"`
	PreviewText      *string    `json:"preview_text,omitempty"`
}

// LibraryItemUpdate перечисляет явно все изменяемые владельцем поля.
// nil означает «поле не менять».
type LibraryItemUpdate struct {
	Name        *string     `json:"name,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
	PreviewText *string     `json:"preview_text,omitempty"`
}

// DerivedKeys содержит ключи производных файлов, которые внешний
// конвейер записывает после обработки оригинала
type DerivedKeys struct {
	ThumbnailKey *string `json:"s3_thumbnail_key,omitempty"`
	PreviewKey   *string `json:"s3_preview_key,omitempty"`
	SubtitleKey  *string `json:"s3_subtitle_key,omitempty"`
	PreviewText  *string `json:"preview_text,omitempty"`
}

// ListOptions описывает параметры выборки элементов
type ListOptions struct {
	Skip           int
	Limit          int
	Type           *ItemType
	Search         string
	IncludeDeleted bool
}

// LibraryStats представляет агрегированную статистику по активным
// элементам владельца
type LibraryStats struct {
	TotalItems    int              `json:"total_items"`
	TotalFileSize int64            `json:"total_file_size"`
	ItemsByType   map[ItemType]int `json:"items_by_type"`
	RecentUploads int              `json:"recent_uploads"`
}
