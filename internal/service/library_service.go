package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"librarydrive/internal/domain"
	"librarydrive/internal/service/s3"
	"librarydrive/internal/service/workflow"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxNameLength    = 255
)

// ItemRepository описывает операции хранения элементов библиотеки.
// Реализуется repository.LibraryItemRepository.
type ItemRepository interface {
	Create(ctx context.Context, item *domain.LibraryItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LibraryItem, error)
	ListByOwner(ctx context.Context, ownerID string, includeDeleted bool, skip, limit int) ([]domain.LibraryItem, error)
	ListByType(ctx context.Context, ownerID string, itemType domain.ItemType, skip, limit int) ([]domain.LibraryItem, error)
	Search(ctx context.Context, ownerID, search string, skip, limit int) ([]domain.LibraryItem, error)
	CountSearch(ctx context.Context, ownerID, search string) (int, error)
	ListPublic(ctx context.Context, itemType *domain.ItemType, skip, limit int) ([]domain.LibraryItem, error)
	CountPublic(ctx context.Context, itemType *domain.ItemType) (int, error)
	CountByOwner(ctx context.Context, ownerID string, itemType *domain.ItemType, includeDeleted bool) (int, error)
	Update(ctx context.Context, item *domain.LibraryItem) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetDerivedKeys(ctx context.Context, id uuid.UUID, keys domain.DerivedKeys) error
	Stats(ctx context.Context, ownerID string) (*domain.LibraryStats, error)
}

// LibraryService управляет жизненным циклом элементов библиотеки.
// Состояние строки в базе сверяется с фактическим наличием объекта
// в хранилище при выборке списка: хранилище — источник истины.
type LibraryService struct {
	repo    ItemRepository
	storage s3.Storage
	trigger workflow.Trigger
}

func NewLibraryService(repo ItemRepository, storage s3.Storage, trigger workflow.Trigger) *LibraryService {
	return &LibraryService{
		repo:    repo,
		storage: storage,
		trigger: trigger,
	}
}

// normalizeListOptions приводит параметры пагинации к допустимым границам
func normalizeListOptions(opts *domain.ListOptions) {
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultPageLimit
	}
	if opts.Limit > maxPageLimit {
		opts.Limit = maxPageLimit
	}
}

// ReconcileAndList возвращает страницу элементов владельца, предварительно
// сверив кандидатов с хранилищем. Объект есть, а запись мягко удалена —
// запись восстанавливается; объекта нет, а запись активна — запись мягко
// удаляется. Сверка выполняется во всех режимах; поиск и фильтр по типу
// выбирают только активные записи, так что там возможно лишь удаление.
func (s *LibraryService) ReconcileAndList(ctx context.Context, ownerID string, opts domain.ListOptions) ([]domain.LibraryItem, int, error) {
	if ownerID == "" {
		return nil, 0, ErrUnauthenticated
	}
	normalizeListOptions(&opts)
	if opts.Type != nil && !opts.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown item type %q", ErrValidation, *opts.Type)
	}

	var (
		candidates []domain.LibraryItem
		err        error
	)
	switch {
	case opts.Search != "":
		candidates, err = s.repo.Search(ctx, ownerID, opts.Search, opts.Skip, opts.Limit)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to search items: %w", err)
		}
	case opts.Type != nil:
		candidates, err = s.repo.ListByType(ctx, ownerID, *opts.Type, opts.Skip, opts.Limit)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list items by type: %w", err)
		}
	default:
		// Кандидаты выбираются вместе с мягко удаленными: только так
		// вернувшийся в хранилище объект может восстановить свою запись
		candidates, err = s.repo.ListByOwner(ctx, ownerID, true, opts.Skip, opts.Limit)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list items: %w", err)
		}
	}

	result := s.reconcile(ctx, ownerID, candidates, opts.IncludeDeleted)

	// Пересчет после сверки, чтобы пагинация отражала новое состояние
	var total int
	switch {
	case opts.Search != "":
		total, err = s.repo.CountSearch(ctx, ownerID, opts.Search)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count search results: %w", err)
		}
	case opts.Type != nil:
		total, err = s.repo.CountByOwner(ctx, ownerID, opts.Type, false)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count items: %w", err)
		}
	default:
		total, err = s.repo.CountByOwner(ctx, ownerID, nil, opts.IncludeDeleted)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count items: %w", err)
		}
	}

	return result, total, nil
}

// reconcile сверяет каждого кандидата с хранилищем и возвращает элементы,
// прошедшие фильтр по deleted_at. Ошибка проверки существования оставляет
// элемент в текущем состоянии.
func (s *LibraryService) reconcile(ctx context.Context, ownerID string, candidates []domain.LibraryItem, includeDeleted bool) []domain.LibraryItem {
	restored, removed := 0, 0
	result := make([]domain.LibraryItem, 0, len(candidates))
	for _, item := range candidates {
		exists, err := s.storage.Exists(ctx, item.StorageKey)
		if err != nil {
			// Состояние хранилища неизвестно, элемент не трогаем
			log.Printf("[LIBRARY] Existence check failed for %s (key %s): %v", item.ID, item.StorageKey, err)
			if includeDeleted || !item.IsDeleted() {
				result = append(result, item)
			}
			continue
		}

		switch {
		case exists && item.IsDeleted():
			if err := s.repo.Restore(ctx, item.ID); err != nil {
				log.Printf("[LIBRARY] Auto-restore failed for %s: %v", item.ID, err)
			} else {
				if fresh, err := s.repo.GetByID(ctx, item.ID); err == nil {
					item = *fresh
				}
				restored++
			}
		case !exists && !item.IsDeleted():
			if err := s.repo.SoftDelete(ctx, item.ID); err != nil {
				log.Printf("[LIBRARY] Auto soft-delete failed for %s: %v", item.ID, err)
			} else {
				if fresh, err := s.repo.GetByID(ctx, item.ID); err == nil {
					item = *fresh
				}
				removed++
			}
		}

		if includeDeleted || !item.IsDeleted() {
			result = append(result, item)
		}
	}

	if restored > 0 || removed > 0 {
		log.Printf("[LIBRARY] Reconciled items for user %s: restored=%d, soft-deleted=%d", ownerID, restored, removed)
	}

	return result
}

func validateCreate(input *domain.LibraryItemCreate) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}
	input.Name = name
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown item type %q", ErrValidation, input.Type)
	}
	if input.Visibility == "" {
		input.Visibility = domain.VisibilityPrivate
	}
	if !input.Visibility.Valid() {
		return fmt.Errorf("%w: unknown visibility %q", ErrValidation, input.Visibility)
	}
	if input.MIMEType == "" {
		return fmt.Errorf("%w: mime_type is required", ErrValidation)
	}
	if input.StorageKey == "" {
		return fmt.Errorf("%w: s3_key is required", ErrValidation)
	}
	if input.OriginalFilename == "" {
		return fmt.Errorf("%w: original_filename is required", ErrValidation)
	}
	if input.FileSize <= 0 {
		return fmt.Errorf("%w: file_size must be positive", ErrValidation)
	}
	return nil
}

// Create регистрирует элемент после того, как файл уже загружен в
// хранилище. Для видео запускается конвейер генерации превью; его сбой
// логируется, но не мешает созданию.
func (s *LibraryService) Create(ctx context.Context, ownerID string, input domain.LibraryItemCreate) (*domain.LibraryItem, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	item := &domain.LibraryItem{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Name:             input.Name,
		Type:             input.Type,
		MIMEType:         input.MIMEType,
		Visibility:       input.Visibility,
		StorageKey:       input.StorageKey,
		ThumbnailKey:     input.ThumbnailKey,
		FileSize:         input.FileSize,
		PreviewText:      input.PreviewText,
		OriginalFilename: input.OriginalFilename,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create library item: %w", err)
	}

	if item.Type == domain.ItemTypeVideo || strings.HasPrefix(item.MIMEType, "video/") {
		execution, err := s.trigger.StartPreviewGeneration(ctx, item.StorageKey, item.ID)
		if err != nil {
			log.Printf("[LIBRARY] Preview workflow trigger failed for %s: %v", item.ID, err)
		} else if execution != "" {
			log.Printf("[LIBRARY] Preview workflow started for %s: %s", item.ID, execution)
		}
	}

	return item, nil
}

// getOwned возвращает элемент, если он принадлежит запрашивающему.
// Чужой или несуществующий элемент неразличимы для вызывающего.
func (s *LibraryService) getOwned(ctx context.Context, itemID uuid.UUID, requesterID string) (*domain.LibraryItem, error) {
	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get library item: %w", err)
	}
	if item.OwnerID != requesterID {
		return nil, ErrNotFound
	}
	return item, nil
}

// Update изменяет имя, видимость и текст превью элемента
func (s *LibraryService) Update(ctx context.Context, itemID uuid.UUID, requesterID string, upd domain.LibraryItemUpdate) (*domain.LibraryItem, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}

	item, err := s.getOwned(ctx, itemID, requesterID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		if len(name) > maxNameLength {
			return nil, fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
		}
		item.Name = name
	}
	if upd.Visibility != nil {
		if !upd.Visibility.Valid() {
			return nil, fmt.Errorf("%w: unknown visibility %q", ErrValidation, *upd.Visibility)
		}
		item.Visibility = *upd.Visibility
	}
	if upd.PreviewText != nil {
		item.PreviewText = upd.PreviewText
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update library item: %w", err)
	}

	return item, nil
}

// Delete удаляет элемент. Объекты в хранилище (оригинал и производные)
// удаляются в любом случае; сбой удаления отдельного объекта логируется
// и не прерывает операцию. permanent управляет только судьбой записи.
func (s *LibraryService) Delete(ctx context.Context, itemID uuid.UUID, requesterID string, permanent bool) error {
	if requesterID == "" {
		return ErrUnauthenticated
	}

	item, err := s.getOwned(ctx, itemID, requesterID)
	if err != nil {
		return err
	}

	keys := []string{item.StorageKey}
	for _, k := range []*string{item.PreviewKey, item.ThumbnailKey, item.SubtitleKey} {
		if k != nil && *k != "" {
			keys = append(keys, *k)
		}
	}
	for _, key := range keys {
		if err := s.storage.DeleteObject(key); err != nil {
			log.Printf("[LIBRARY] Failed to delete object %s for item %s: %v", key, item.ID, err)
		}
	}

	if permanent {
		if err := s.repo.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to delete library item: %w", err)
		}
		return nil
	}

	if err := s.repo.SoftDelete(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to soft delete library item: %w", err)
	}
	return nil
}

// Restore снимает мягкое удаление
func (s *LibraryService) Restore(ctx context.Context, itemID uuid.UUID, requesterID string) (*domain.LibraryItem, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}

	item, err := s.getOwned(ctx, itemID, requesterID)
	if err != nil {
		return nil, err
	}
	if !item.IsDeleted() {
		return item, nil
	}

	if err := s.repo.Restore(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("failed to restore library item: %w", err)
	}

	fresh, err := s.repo.GetByID(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload library item: %w", err)
	}
	return fresh, nil
}

// Get возвращает элемент для чтения. requesterID может быть пустым:
// анонимному доступен только публичный активный элемент.
func (s *LibraryService) Get(ctx context.Context, itemID uuid.UUID, requesterID string) (*domain.LibraryItem, error) {
	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get library item: %w", err)
	}

	if item.OwnerID == requesterID && requesterID != "" {
		return item, nil
	}
	if item.Visibility != domain.VisibilityPublic {
		return nil, ErrForbidden
	}
	if item.IsDeleted() {
		return nil, ErrNotFound
	}
	return item, nil
}

// PublicItems возвращает страницу публичных активных элементов
func (s *LibraryService) PublicItems(ctx context.Context, opts domain.ListOptions) ([]domain.LibraryItem, int, error) {
	normalizeListOptions(&opts)
	if opts.Type != nil && !opts.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown item type %q", ErrValidation, *opts.Type)
	}

	items, err := s.repo.ListPublic(ctx, opts.Type, opts.Skip, opts.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list public items: %w", err)
	}
	total, err := s.repo.CountPublic(ctx, opts.Type)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count public items: %w", err)
	}

	return items, total, nil
}

// Stats возвращает статистику по активным элементам владельца
func (s *LibraryService) Stats(ctx context.Context, ownerID string) (*domain.LibraryStats, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	stats, err := s.repo.Stats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get library stats: %w", err)
	}
	return stats, nil
}

// SetDerivedKeys записывает ключи производных файлов от конвейера.
// Вызывается служебным endpoint'ом, без проверки владельца.
func (s *LibraryService) SetDerivedKeys(ctx context.Context, itemID uuid.UUID, keys domain.DerivedKeys) error {
	if _, err := s.repo.GetByID(ctx, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get library item: %w", err)
	}
	if err := s.repo.SetDerivedKeys(ctx, itemID, keys); err != nil {
		return fmt.Errorf("failed to set derived keys: %w", err)
	}
	return nil
}
