package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydrive/internal/domain"
)

// fakeItemRepo хранит элементы в памяти
type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.LibraryItem
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[uuid.UUID]domain.LibraryItem)}
}

func (r *fakeItemRepo) put(item domain.LibraryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
}

func (r *fakeItemRepo) Create(_ context.Context, item *domain.LibraryItem) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	r.put(*item)
	return nil
}

func (r *fakeItemRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.LibraryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (r *fakeItemRepo) sorted(filter func(domain.LibraryItem) bool) []domain.LibraryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LibraryItem
	for _, item := range r.items {
		if filter(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func page(items []domain.LibraryItem, skip, limit int) []domain.LibraryItem {
	if skip >= len(items) {
		return nil
	}
	items = items[skip:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (r *fakeItemRepo) ListByOwner(_ context.Context, ownerID string, includeDeleted bool, skip, limit int) ([]domain.LibraryItem, error) {
	items := r.sorted(func(i domain.LibraryItem) bool {
		return i.OwnerID == ownerID && (includeDeleted || !i.IsDeleted())
	})
	return page(items, skip, limit), nil
}

func (r *fakeItemRepo) ListByType(_ context.Context, ownerID string, itemType domain.ItemType, skip, limit int) ([]domain.LibraryItem, error) {
	items := r.sorted(func(i domain.LibraryItem) bool {
		return i.OwnerID == ownerID && i.Type == itemType && !i.IsDeleted()
	})
	return page(items, skip, limit), nil
}

func (r *fakeItemRepo) Search(_ context.Context, ownerID, _ string, skip, limit int) ([]domain.LibraryItem, error) {
	items := r.sorted(func(i domain.LibraryItem) bool {
		return i.OwnerID == ownerID && !i.IsDeleted()
	})
	return page(items, skip, limit), nil
}

func (r *fakeItemRepo) CountSearch(ctx context.Context, ownerID, search string) (int, error) {
	items, err := r.Search(ctx, ownerID, search, 0, 1<<30)
	return len(items), err
}

func (r *fakeItemRepo) ListPublic(_ context.Context, itemType *domain.ItemType, skip, limit int) ([]domain.LibraryItem, error) {
	items := r.sorted(func(i domain.LibraryItem) bool {
		if i.Visibility != domain.VisibilityPublic || i.IsDeleted() {
			return false
		}
		return itemType == nil || i.Type == *itemType
	})
	return page(items, skip, limit), nil
}

func (r *fakeItemRepo) CountPublic(ctx context.Context, itemType *domain.ItemType) (int, error) {
	items, err := r.ListPublic(ctx, itemType, 0, 1<<30)
	return len(items), err
}

func (r *fakeItemRepo) CountByOwner(_ context.Context, ownerID string, itemType *domain.ItemType, includeDeleted bool) (int, error) {
	items := r.sorted(func(i domain.LibraryItem) bool {
		if i.OwnerID != ownerID {
			return false
		}
		if !includeDeleted && i.IsDeleted() {
			return false
		}
		return itemType == nil || i.Type == *itemType
	})
	return len(items), nil
}

func (r *fakeItemRepo) Update(_ context.Context, item *domain.LibraryItem) error {
	item.UpdatedAt = time.Now()
	r.put(*item)
	return nil
}

func (r *fakeItemRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.IsDeleted() {
		return nil
	}
	now := time.Now()
	item.DeletedAt = &now
	r.items[id] = item
	return nil
}

func (r *fakeItemRepo) Restore(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil
	}
	item.DeletedAt = nil
	r.items[id] = item
	return nil
}

func (r *fakeItemRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeItemRepo) SetDerivedKeys(_ context.Context, id uuid.UUID, keys domain.DerivedKeys) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("library item %s not found", id)
	}
	if keys.ThumbnailKey != nil {
		item.ThumbnailKey = keys.ThumbnailKey
	}
	if keys.PreviewKey != nil {
		item.PreviewKey = keys.PreviewKey
	}
	if keys.SubtitleKey != nil {
		item.SubtitleKey = keys.SubtitleKey
	}
	if keys.PreviewText != nil {
		item.PreviewText = keys.PreviewText
	}
	r.items[id] = item
	return nil
}

func (r *fakeItemRepo) Stats(ctx context.Context, ownerID string) (*domain.LibraryStats, error) {
	stats := &domain.LibraryStats{ItemsByType: make(map[domain.ItemType]int)}
	weekAgo := time.Now().AddDate(0, 0, -7)
	for _, item := range r.sorted(func(i domain.LibraryItem) bool {
		return i.OwnerID == ownerID && !i.IsDeleted()
	}) {
		stats.TotalItems++
		stats.TotalFileSize += item.FileSize
		stats.ItemsByType[item.Type]++
		if item.CreatedAt.After(weekAgo) {
			stats.RecentUploads++
		}
	}
	return stats, nil
}

// fakeStorage моделирует хранилище набором существующих ключей
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]bool
	errKeys map[string]error
	deleted []string
}

func newFakeStorage(keys ...string) *fakeStorage {
	s := &fakeStorage{
		objects: make(map[string]bool),
		errKeys: make(map[string]error),
	}
	for _, k := range keys {
		s.objects[k] = true
	}
	return s
}

func (s *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errKeys[key]; ok {
		return false, err
	}
	return s.objects[key], nil
}

func (s *fakeStorage) UploadBytes(key string, _ []byte, _ string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = true
	return nil
}

func (s *fakeStorage) DeleteObject(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errKeys[key]; ok {
		return err
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStorage) PresignUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://example.com/upload/" + key, nil
}

func (s *fakeStorage) PresignDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.com/download/" + key, nil
}

// fakeTrigger записывает запуски конвейера
type fakeTrigger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (t *fakeTrigger) StartPreviewGeneration(_ context.Context, storageKey string, _ uuid.UUID) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.calls = append(t.calls, storageKey)
	return "execution-arn", nil
}

func newTestItem(owner string, deleted bool) domain.LibraryItem {
	item := domain.LibraryItem{
		ID:               uuid.New(),
		OwnerID:          owner,
		Name:             "item",
		Type:             domain.ItemTypeFile,
		MIMEType:         "application/octet-stream",
		Visibility:       domain.VisibilityPrivate,
		StorageKey:       owner + "/library/2026/08/" + uuid.New().String(),
		FileSize:         100,
		OriginalFilename: "item.bin",
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if deleted {
		now := time.Now()
		item.DeletedAt = &now
	}
	return item
}

func TestReconcileAndList_RestoresWhenObjectReappears(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", true)
	repo.put(item)
	storage := newFakeStorage(item.StorageKey)

	svc := NewLibraryService(repo, storage, &fakeTrigger{})
	items, total, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Nil(t, items[0].DeletedAt)
	assert.Equal(t, 1, total)

	stored, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted())
}

func TestReconcileAndList_SoftDeletesWhenObjectMissing(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	storage := newFakeStorage() // объекта нет

	svc := NewLibraryService(repo, storage, &fakeTrigger{})
	items, total, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{})
	require.NoError(t, err)

	// Активных элементов не осталось
	assert.Empty(t, items)
	assert.Equal(t, 0, total)

	stored, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestReconcileAndList_IncludeDeletedKeepsSoftDeleted(t *testing.T) {
	repo := newFakeItemRepo()
	active := newTestItem("user-1", false)
	deleted := newTestItem("user-1", true)
	repo.put(active)
	repo.put(deleted)
	storage := newFakeStorage(active.StorageKey) // deleted так и нет в хранилище

	svc := NewLibraryService(repo, storage, &fakeTrigger{})
	items, total, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{IncludeDeleted: true})
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, 2, total)
}

func TestReconcileAndList_TransientErrorLeavesItemUntouched(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	storage := newFakeStorage()
	storage.errKeys[item.StorageKey] = errors.New("connection timeout")

	svc := NewLibraryService(repo, storage, &fakeTrigger{})
	items, _, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{})
	require.NoError(t, err)

	// Элемент остался активным и попал в ответ
	require.Len(t, items, 1)
	stored, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted())
}

func TestReconcileAndList_SearchSoftDeletesWhenObjectMissing(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	storage := newFakeStorage() // объекта нет

	svc := NewLibraryService(repo, storage, &fakeTrigger{})
	items, total, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{Search: "item"})
	require.NoError(t, err)

	assert.Empty(t, items)
	assert.Equal(t, 0, total)
	stored, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestReconcileAndList_TypeFilterSoftDeletesWhenObjectMissing(t *testing.T) {
	repo := newFakeItemRepo()
	stale := newTestItem("user-1", false)
	intact := newTestItem("user-1", false)
	repo.put(stale)
	repo.put(intact)
	storage := newFakeStorage(intact.StorageKey)

	fileType := domain.ItemTypeFile
	svc := NewLibraryService(repo, storage, &fakeTrigger{})
	items, total, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{Type: &fileType})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, intact.ID, items[0].ID)
	assert.Equal(t, 1, total)

	stored, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestReconcileAndList_InvalidType(t *testing.T) {
	svc := NewLibraryService(newFakeItemRepo(), newFakeStorage(), &fakeTrigger{})
	bad := domain.ItemType("archive")
	_, _, err := svc.ReconcileAndList(context.Background(), "user-1", domain.ListOptions{Type: &bad})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_TriggersWorkflowForVideo(t *testing.T) {
	repo := newFakeItemRepo()
	trigger := &fakeTrigger{}
	svc := NewLibraryService(repo, newFakeStorage(), trigger)

	item, err := svc.Create(context.Background(), "user-1", domain.LibraryItemCreate{
		Name:             "clip",
		Type:             domain.ItemTypeVideo,
		MIMEType:         "video/mp4",
		StorageKey:       "user-1/library/2026/08/clip.mp4",
		FileSize:         1024,
		OriginalFilename: "clip.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VisibilityPrivate, item.Visibility)
	assert.Equal(t, []string{"user-1/library/2026/08/clip.mp4"}, trigger.calls)
}

func TestCreate_TriggerFailureDoesNotFailCreation(t *testing.T) {
	repo := newFakeItemRepo()
	trigger := &fakeTrigger{err: errors.New("state machine unavailable")}
	svc := NewLibraryService(repo, newFakeStorage(), trigger)

	item, err := svc.Create(context.Background(), "user-1", domain.LibraryItemCreate{
		Name:             "clip",
		Type:             domain.ItemTypeVideo,
		MIMEType:         "video/mp4",
		StorageKey:       "user-1/library/2026/08/clip.mp4",
		FileSize:         1024,
		OriginalFilename: "clip.mp4",
	})
	require.NoError(t, err)

	_, err = repo.GetByID(context.Background(), item.ID)
	assert.NoError(t, err)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewLibraryService(newFakeItemRepo(), newFakeStorage(), &fakeTrigger{})
	valid := domain.LibraryItemCreate{
		Name:             "doc",
		Type:             domain.ItemTypeDocument,
		MIMEType:         "application/pdf",
		StorageKey:       "user-1/library/2026/08/doc.pdf",
		FileSize:         10,
		OriginalFilename: "doc.pdf",
	}

	tests := []struct {
		name   string
		mutate func(*domain.LibraryItemCreate)
	}{
		{"empty name", func(c *domain.LibraryItemCreate) { c.Name = "  " }},
		{"unknown type", func(c *domain.LibraryItemCreate) { c.Type = "archive" }},
		{"unknown visibility", func(c *domain.LibraryItemCreate) { c.Visibility = "hidden" }},
		{"missing mime", func(c *domain.LibraryItemCreate) { c.MIMEType = "" }},
		{"missing key", func(c *domain.LibraryItemCreate) { c.StorageKey = "" }},
		{"missing filename", func(c *domain.LibraryItemCreate) { c.OriginalFilename = "" }},
		{"zero size", func(c *domain.LibraryItemCreate) { c.FileSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			_, err := svc.Create(context.Background(), "user-1", input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUpdate_NonOwnerGetsNotFound(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})

	name := "renamed"
	_, err := svc.Update(context.Background(), item.ID, "user-2", domain.LibraryItemUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_AppliesFields(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})

	name := "renamed"
	visibility := domain.VisibilityPublic
	updated, err := svc.Update(context.Background(), item.ID, "user-1", domain.LibraryItemUpdate{
		Name:       &name,
		Visibility: &visibility,
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, domain.VisibilityPublic, updated.Visibility)
}

func TestUpdate_EmptyNameRejected(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})

	empty := ""
	_, err := svc.Update(context.Background(), item.ID, "user-1", domain.LibraryItemUpdate{Name: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDelete_PermanentRemovesRowAndObjects(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	thumb := item.StorageKey + "_thumb"
	item.ThumbnailKey = &thumb
	repo.put(item)
	storage := newFakeStorage(item.StorageKey, thumb)
	svc := NewLibraryService(repo, storage, &fakeTrigger{})

	err := svc.Delete(context.Background(), item.ID, "user-1", true)
	require.NoError(t, err)

	_, err = repo.GetByID(context.Background(), item.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ElementsMatch(t, []string{item.StorageKey, thumb}, storage.deleted)

	// Окончательное удаление необратимо
	_, err = svc.Restore(context.Background(), item.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(context.Background(), item.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_SoftKeepsRow(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	storage := newFakeStorage(item.StorageKey)
	svc := NewLibraryService(repo, storage, &fakeTrigger{})

	err := svc.Delete(context.Background(), item.ID, "user-1", false)
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestDelete_ObjectDeleteFailureDoesNotAbort(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	storage := newFakeStorage(item.StorageKey)
	storage.errKeys[item.StorageKey] = errors.New("connection reset")
	svc := NewLibraryService(repo, storage, &fakeTrigger{})

	err := svc.Delete(context.Background(), item.ID, "user-1", true)
	require.NoError(t, err)

	_, err = repo.GetByID(context.Background(), item.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDelete_NonOwnerGetsNotFound(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", false)
	repo.put(item)
	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})

	err := svc.Delete(context.Background(), item.ID, "user-2", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestore_ClearsDeletedAt(t *testing.T) {
	repo := newFakeItemRepo()
	item := newTestItem("user-1", true)
	repo.put(item)
	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})

	restored, err := svc.Restore(context.Background(), item.ID, "user-1")
	require.NoError(t, err)

	assert.Nil(t, restored.DeletedAt)
	assert.Equal(t, item.Name, restored.Name)
	assert.Equal(t, item.StorageKey, restored.StorageKey)
}

func TestGet_VisibilityRules(t *testing.T) {
	repo := newFakeItemRepo()
	private := newTestItem("user-1", false)
	public := newTestItem("user-1", false)
	public.Visibility = domain.VisibilityPublic
	deletedPublic := newTestItem("user-1", true)
	deletedPublic.Visibility = domain.VisibilityPublic
	repo.put(private)
	repo.put(public)
	repo.put(deletedPublic)

	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})
	ctx := context.Background()

	// Владелец видит свой приватный элемент
	_, err := svc.Get(ctx, private.ID, "user-1")
	assert.NoError(t, err)

	// Чужой приватный элемент запрещен
	_, err = svc.Get(ctx, private.ID, "user-2")
	assert.ErrorIs(t, err, ErrForbidden)

	// Аноним видит публичный активный
	_, err = svc.Get(ctx, public.ID, "")
	assert.NoError(t, err)

	// Удаленный публичный недоступен постороннему
	_, err = svc.Get(ctx, deletedPublic.ID, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)

	// Несуществующий элемент
	_, err = svc.Get(ctx, uuid.New(), "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats_ActiveItemsOnly(t *testing.T) {
	repo := newFakeItemRepo()
	active := newTestItem("user-1", false)
	active.Type = domain.ItemTypeImage
	active.FileSize = 300
	old := newTestItem("user-1", false)
	old.FileSize = 200
	old.CreatedAt = time.Now().AddDate(0, 0, -30)
	deleted := newTestItem("user-1", true)
	repo.put(active)
	repo.put(old)
	repo.put(deleted)

	svc := NewLibraryService(repo, newFakeStorage(), &fakeTrigger{})
	stats, err := svc.Stats(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, int64(500), stats.TotalFileSize)
	assert.Equal(t, 1, stats.ItemsByType[domain.ItemTypeImage])
	// Месячной давности загрузка не попадает в недельный счетчик
	assert.Equal(t, 1, stats.RecentUploads)
}

func TestSetDerivedKeys_UnknownItem(t *testing.T) {
	svc := NewLibraryService(newFakeItemRepo(), newFakeStorage(), &fakeTrigger{})
	err := svc.SetDerivedKeys(context.Background(), uuid.New(), domain.DerivedKeys{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnauthenticatedOperations(t *testing.T) {
	svc := NewLibraryService(newFakeItemRepo(), newFakeStorage(), &fakeTrigger{})
	ctx := context.Background()

	_, _, err := svc.ReconcileAndList(ctx, "", domain.ListOptions{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Create(ctx, "", domain.LibraryItemCreate{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = svc.Delete(ctx, uuid.New(), "", true)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Stats(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
