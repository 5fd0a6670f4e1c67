package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librarydrive/internal/domain"
)

type LibraryItemRepository struct {
	db *sqlx.DB
}

func NewLibraryItemRepository(db *sqlx.DB) *LibraryItemRepository {
	return &LibraryItemRepository{db: db}
}

func (r *LibraryItemRepository) Create(ctx context.Context, item *domain.LibraryItem) error {
	query := `
        INSERT INTO library_items (
            id, user_id, name, type, mime_type, visibility,
            s3_key, s3_thumbnail_key, file_size, preview_text, original_filename
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		item.ID,
		item.OwnerID,
		item.Name,
		item.Type,
		item.MIMEType,
		item.Visibility,
		item.StorageKey,
		item.ThumbnailKey,
		item.FileSize,
		item.PreviewText,
		item.OriginalFilename,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert library item: %w", err)
	}

	return nil
}

func (r *LibraryItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LibraryItem, error) {
	var item domain.LibraryItem
	query := `SELECT * FROM library_items WHERE id = $1`

	err := r.db.GetContext(ctx, &item, query, id)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// ListByOwner возвращает элементы владельца. При includeDeleted = true
// в выборку попадают и мягко удаленные строки — это нужно процессу
// сверки с хранилищем.
func (r *LibraryItemRepository) ListByOwner(ctx context.Context, ownerID string, includeDeleted bool, skip, limit int) ([]domain.LibraryItem, error) {
	items := make([]domain.LibraryItem, 0)
	query := `SELECT * FROM library_items WHERE user_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC OFFSET $2 LIMIT $3`

	err := r.db.SelectContext(ctx, &items, query, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list library items: %w", err)
	}

	return items, nil
}

// ListByType возвращает активные элементы владельца указанного типа
func (r *LibraryItemRepository) ListByType(ctx context.Context, ownerID string, itemType domain.ItemType, skip, limit int) ([]domain.LibraryItem, error) {
	items := make([]domain.LibraryItem, 0)
	query := `
        SELECT * FROM library_items
        WHERE user_id = $1 AND type = $2 AND deleted_at IS NULL
        ORDER BY created_at DESC OFFSET $3 LIMIT $4`

	err := r.db.SelectContext(ctx, &items, query, ownerID, itemType, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list library items by type: %w", err)
	}

	return items, nil
}

// Search ищет по имени, исходному имени файла и тексту превью,
// без учета регистра. Мягко удаленные элементы не ищутся.
func (r *LibraryItemRepository) Search(ctx context.Context, ownerID, search string, skip, limit int) ([]domain.LibraryItem, error) {
	items := make([]domain.LibraryItem, 0)
	query := `
        SELECT * FROM library_items
        WHERE user_id = $1 AND deleted_at IS NULL
          AND (name ILIKE $2 OR original_filename ILIKE $2 OR preview_text ILIKE $2)
        ORDER BY created_at DESC OFFSET $3 LIMIT $4`

	pattern := "%" + search + "%"
	err := r.db.SelectContext(ctx, &items, query, ownerID, pattern, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search library items: %w", err)
	}

	return items, nil
}

func (r *LibraryItemRepository) CountSearch(ctx context.Context, ownerID, search string) (int, error) {
	var count int
	query := `
        SELECT COUNT(id) FROM library_items
        WHERE user_id = $1 AND deleted_at IS NULL
          AND (name ILIKE $2 OR original_filename ILIKE $2 OR preview_text ILIKE $2)`

	pattern := "%" + search + "%"
	if err := r.db.GetContext(ctx, &count, query, ownerID, pattern); err != nil {
		return 0, fmt.Errorf("failed to count search results: %w", err)
	}

	return count, nil
}

// ListPublic возвращает активные публичные элементы всех пользователей
func (r *LibraryItemRepository) ListPublic(ctx context.Context, itemType *domain.ItemType, skip, limit int) ([]domain.LibraryItem, error) {
	items := make([]domain.LibraryItem, 0)
	query := `SELECT * FROM library_items WHERE visibility = 'public' AND deleted_at IS NULL`
	args := []interface{}{}
	if itemType != nil {
		query += ` AND type = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`
		args = append(args, *itemType, skip, limit)
	} else {
		query += ` ORDER BY created_at DESC OFFSET $1 LIMIT $2`
		args = append(args, skip, limit)
	}

	err := r.db.SelectContext(ctx, &items, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list public items: %w", err)
	}

	return items, nil
}

func (r *LibraryItemRepository) CountPublic(ctx context.Context, itemType *domain.ItemType) (int, error) {
	var count int
	query := `SELECT COUNT(id) FROM library_items WHERE visibility = 'public' AND deleted_at IS NULL`
	args := []interface{}{}
	if itemType != nil {
		query += ` AND type = $1`
		args = append(args, *itemType)
	}

	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count public items: %w", err)
	}

	return count, nil
}

// CountByOwner считает элементы владельца с теми же фильтрами,
// что и у выборок
func (r *LibraryItemRepository) CountByOwner(ctx context.Context, ownerID string, itemType *domain.ItemType, includeDeleted bool) (int, error) {
	var count int
	query := `SELECT COUNT(id) FROM library_items WHERE user_id = $1`
	args := []interface{}{ownerID}
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if itemType != nil {
		query += fmt.Sprintf(` AND type = $%d`, len(args)+1)
		args = append(args, *itemType)
	}

	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count library items: %w", err)
	}

	return count, nil
}

// Update сохраняет изменяемые владельцем поля. Набор полей
// фиксированный: имя, видимость, текст превью.
func (r *LibraryItemRepository) Update(ctx context.Context, item *domain.LibraryItem) error {
	query := `
        UPDATE library_items
        SET name = $1,
            visibility = $2,
            preview_text = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $4
        RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, item.Name, item.Visibility, item.PreviewText, item.ID).
		Scan(&item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update library item: %w", err)
	}

	return nil
}

func (r *LibraryItemRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE library_items
        SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND deleted_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to soft delete library item: %w", err)
	}

	return nil
}

func (r *LibraryItemRepository) Restore(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE library_items
        SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND deleted_at IS NOT NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to restore library item: %w", err)
	}

	return nil
}

// Delete окончательно удаляет строку
func (r *LibraryItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM library_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete library item: %w", err)
	}

	return nil
}

// SetDerivedKeys записывает ключи производных файлов, сгенерированных
// внешним конвейером. nil-поля не трогаются.
func (r *LibraryItemRepository) SetDerivedKeys(ctx context.Context, id uuid.UUID, keys domain.DerivedKeys) error {
	query := `
        UPDATE library_items
        SET s3_thumbnail_key = COALESCE($1, s3_thumbnail_key),
            s3_preview_key   = COALESCE($2, s3_preview_key),
            s3_subtitle_key  = COALESCE($3, s3_subtitle_key),
            preview_text     = COALESCE($4, preview_text),
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query, keys.ThumbnailKey, keys.PreviewKey, keys.SubtitleKey, keys.PreviewText, id)
	if err != nil {
		return fmt.Errorf("failed to set derived keys: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("library item %s not found", id)
	}

	return nil
}

// Stats собирает статистику по активным элементам владельца
func (r *LibraryItemRepository) Stats(ctx context.Context, ownerID string) (*domain.LibraryStats, error) {
	stats := &domain.LibraryStats{
		ItemsByType: make(map[domain.ItemType]int),
	}

	totalsQuery := `
        SELECT COUNT(id), COALESCE(SUM(file_size), 0)
        FROM library_items
        WHERE user_id = $1 AND deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, totalsQuery, ownerID).Scan(&stats.TotalItems, &stats.TotalFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get library totals: %w", err)
	}

	typeQuery := `
        SELECT type, COUNT(id)
        FROM library_items
        WHERE user_id = $1 AND deleted_at IS NULL
        GROUP BY type`

	rows, err := r.db.QueryContext(ctx, typeQuery, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get per-type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemType domain.ItemType
		var count int
		if err := rows.Scan(&itemType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ItemsByType[itemType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate type counts: %w", err)
	}

	recentQuery := `
        SELECT COUNT(id)
        FROM library_items
        WHERE user_id = $1 AND deleted_at IS NULL
          AND created_at >= NOW() - INTERVAL '7 days'`

	if err := r.db.GetContext(ctx, &stats.RecentUploads, recentQuery, ownerID); err != nil {
		return nil, fmt.Errorf("failed to count recent uploads: %w", err)
	}

	return stats, nil
}
