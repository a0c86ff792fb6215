package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context) ([]models.Room, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	ListOccupants(ctx context.Context, at time.Time) (map[string][]models.RoomOccupant, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

type roomStatusChecker interface {
	RoomReferenced(ctx context.Context, roomID string) (bool, error)
}

// SaveRoomRequest carries payload for room create and update.
type SaveRoomRequest struct {
	Name     string `json:"name" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,gte=1,lte=20"`
	Note     string `json:"note"`
}

// RoomService manages dormitory rooms and their derived occupancy.
// Occupancy listings go through the cache; any room or dormitory write
// invalidates the whole rooms keyspace.
type RoomService struct {
	rooms     roomRepository
	statuses  roomStatusChecker
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService constructs the room service.
func NewRoomService(rooms roomRepository, statuses roomStatusChecker, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{rooms: rooms, statuses: statuses, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns every room with occupants at the reference date. When
// availableOnly is set, rooms without a free place are dropped.
func (s *RoomService) List(ctx context.Context, at time.Time, availableOnly bool) ([]models.RoomDetail, error) {
	if at.IsZero() {
		at = time.Now().UTC().Truncate(24 * time.Hour)
	}

	cacheKey := fmt.Sprintf("rooms:occupancy:%s", at.Format("2006-01-02"))
	var details []models.RoomDetail
	if hit, _ := s.cache.Get(ctx, cacheKey, &details); !hit {
		rooms, err := s.rooms.List(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
		}
		occupants, err := s.rooms.ListOccupants(ctx, at)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupants")
		}
		details = make([]models.RoomDetail, 0, len(rooms))
		for _, room := range rooms {
			occ := occupants[room.ID]
			if occ == nil {
				occ = []models.RoomOccupant{}
			}
			details = append(details, models.RoomDetail{Room: room, Occupants: occ})
		}
		if err := s.cache.Set(ctx, cacheKey, details, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache room occupancy", zap.Error(err))
		}
	}

	if !availableOnly {
		return details, nil
	}
	available := make([]models.RoomDetail, 0, len(details))
	for _, d := range details {
		if d.HasFreePlace() {
			available = append(available, d)
		}
	}
	return available, nil
}

// Get returns one room with its occupants at the reference date.
func (s *RoomService) Get(ctx context.Context, id string, at time.Time) (*models.RoomDetail, error) {
	if at.IsZero() {
		at = time.Now().UTC().Truncate(24 * time.Hour)
	}
	room, err := s.rooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	occupants, err := s.rooms.ListOccupants(ctx, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupants")
	}
	occ := occupants[room.ID]
	if occ == nil {
		occ = []models.RoomOccupant{}
	}
	return &models.RoomDetail{Room: *room, Occupants: occ}, nil
}

// Create registers a new room.
func (s *RoomService) Create(ctx context.Context, req SaveRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	exists, err := s.rooms.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate room name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room name already used")
	}
	room := &models.Room{Name: req.Name, Capacity: req.Capacity, Note: req.Note}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.invalidate(ctx)
	return room, nil
}

// Update modifies a room. Shrinking capacity below current occupancy is
// rejected.
func (s *RoomService) Update(ctx context.Context, id string, req SaveRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	room, err := s.rooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	exists, err := s.rooms.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate room name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room name already used")
	}

	if req.Capacity < room.Capacity {
		occupants, err := s.rooms.ListOccupants(ctx, time.Now().UTC())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupants")
		}
		if len(occupants[id]) > req.Capacity {
			return nil, appErrors.Clone(appErrors.ErrConflict, "capacity below current occupancy")
		}
	}

	room.Name = req.Name
	room.Capacity = req.Capacity
	room.Note = req.Note
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	s.invalidate(ctx)
	return room, nil
}

// Delete removes a room unless any dormitory record still references it.
func (s *RoomService) Delete(ctx context.Context, id string) error {
	referenced, err := s.statuses.RoomReferenced(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room references")
	}
	if referenced {
		return appErrors.Clone(appErrors.ErrConflict, "room is referenced by dormitory records")
	}
	if err := s.rooms.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	s.invalidate(ctx)
	return nil
}

// InvalidateOccupancy drops cached occupancy listings. Called by the
// student service after dormitory status writes.
func (s *RoomService) InvalidateOccupancy(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *RoomService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "rooms:*"); err != nil {
		s.logger.Warn("failed to invalidate room cache", zap.Error(err))
	}
}
