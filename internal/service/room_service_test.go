package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type mockRoomRepo struct {
	rooms     map[string]*models.Room
	occupants map[string][]models.RoomOccupant
	names     map[string]string
	created   []*models.Room
	deleted   []string
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{
		rooms:     make(map[string]*models.Room),
		occupants: make(map[string][]models.RoomOccupant),
		names:     make(map[string]string),
	}
}

func (m *mockRoomRepo) addRoom(room *models.Room) {
	m.rooms[room.ID] = room
	m.names[room.Name] = room.ID
}

func (m *mockRoomRepo) List(ctx context.Context) ([]models.Room, error) {
	out := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m.rooms[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	id, ok := m.names[name]
	return ok && id != excludeID, nil
}

func (m *mockRoomRepo) ListOccupants(ctx context.Context, at time.Time) (map[string][]models.RoomOccupant, error) {
	return m.occupants, nil
}

func (m *mockRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = "room-created"
	}
	m.created = append(m.created, room)
	m.addRoom(room)
	return nil
}

func (m *mockRoomRepo) Update(ctx context.Context, room *models.Room) error {
	if _, ok := m.rooms[room.ID]; !ok {
		return sql.ErrNoRows
	}
	m.addRoom(room)
	return nil
}

func (m *mockRoomRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.rooms[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	delete(m.rooms, id)
	return nil
}

type mockRoomStatusChecker struct {
	referenced bool
}

func (m *mockRoomStatusChecker) RoomReferenced(ctx context.Context, roomID string) (bool, error) {
	return m.referenced, nil
}

type mockCacheStore struct {
	entries     map[string][]byte
	invalidated []string
}

func newMockCacheStore() *mockCacheStore {
	return &mockCacheStore{entries: make(map[string][]byte)}
}

func (m *mockCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCacheStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	m.entries = make(map[string][]byte)
	return nil
}

func newTestRoomService(repo *mockRoomRepo, checker *mockRoomStatusChecker, cacheStore CacheRepository) *RoomService {
	if repo == nil {
		repo = newMockRoomRepo()
	}
	if checker == nil {
		checker = &mockRoomStatusChecker{}
	}
	cache := NewCacheService(cacheStore, nil, time.Minute, zap.NewNop(), cacheStore != nil)
	return NewRoomService(repo, checker, cache, time.Minute, validator.New(), zap.NewNop())
}

func TestRoomServiceListAvailableOnly(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 2})
	repo.addRoom(&models.Room{ID: "r2", Name: "102", Capacity: 1})
	repo.occupants["r2"] = []models.RoomOccupant{{StudentID: "s1", LastName: "Иванов"}}
	svc := newTestRoomService(repo, nil, nil)

	rooms, err := svc.List(context.Background(), time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "101", rooms[0].Name)
}

func TestRoomServiceListUsesCache(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 2})
	store := newMockCacheStore()
	svc := newTestRoomService(repo, nil, store)
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.List(context.Background(), at, false)
	require.NoError(t, err)
	assert.Contains(t, store.entries, "rooms:occupancy:2025-05-01")

	// Second call must come from cache even after the repo changes.
	repo.addRoom(&models.Room{ID: "r2", Name: "102", Capacity: 3})
	rooms, err := svc.List(context.Background(), at, false)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestRoomServiceCreateInvalidatesCache(t *testing.T) {
	store := newMockCacheStore()
	svc := newTestRoomService(nil, nil, store)

	room, err := svc.Create(context.Background(), SaveRoomRequest{Name: "103", Capacity: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Contains(t, store.invalidated, "rooms:*")
}

func TestRoomServiceCreateDuplicateName(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 2})
	svc := newTestRoomService(repo, nil, nil)

	_, err := svc.Create(context.Background(), SaveRoomRequest{Name: "101", Capacity: 2})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRoomServiceCreateRejectsCapacity(t *testing.T) {
	svc := newTestRoomService(nil, nil, nil)

	_, err := svc.Create(context.Background(), SaveRoomRequest{Name: "101", Capacity: 25})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRoomServiceUpdateCapacityBelowOccupancy(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 3})
	repo.occupants["r1"] = []models.RoomOccupant{
		{StudentID: "s1"},
		{StudentID: "s2"},
	}
	svc := newTestRoomService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "r1", SaveRoomRequest{Name: "101", Capacity: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRoomServiceUpdate(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 3})
	svc := newTestRoomService(repo, nil, nil)

	room, err := svc.Update(context.Background(), "r1", SaveRoomRequest{Name: "101а", Capacity: 4})
	require.NoError(t, err)
	assert.Equal(t, "101а", room.Name)
	assert.Equal(t, 4, room.Capacity)
}

func TestRoomServiceDeleteReferenced(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 3})
	svc := newTestRoomService(repo, &mockRoomStatusChecker{referenced: true}, nil)

	err := svc.Delete(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestRoomServiceDelete(t *testing.T) {
	repo := newMockRoomRepo()
	repo.addRoom(&models.Room{ID: "r1", Name: "101", Capacity: 3})
	svc := newTestRoomService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "r1"))
	assert.Equal(t, []string{"r1"}, repo.deleted)
}

func TestRoomServiceGetNotFound(t *testing.T) {
	svc := newTestRoomService(nil, nil, nil)

	_, err := svc.Get(context.Background(), "missing", time.Time{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
