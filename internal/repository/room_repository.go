package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Danilnaisov/praktika05/internal/models"
)

// RoomRepository manages dormitory rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs a RoomRepository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns all rooms ordered by name.
func (r *RoomRepository) List(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	const query = `SELECT id, name, capacity, note, created_at, updated_at FROM rooms ORDER BY name`
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// FindByID returns one room or sql.ErrNoRows.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	const query = `SELECT id, name, capacity, note, created_at, updated_at FROM rooms WHERE id = $1`
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindIDsByName resolves a room name to ids (names are unique, but the
// filter contract tolerates a set).
func (r *RoomRepository) FindIDsByName(ctx context.Context, name string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM rooms WHERE name = $1`, name); err != nil {
		return nil, fmt.Errorf("find rooms by name: %w", err)
	}
	return ids, nil
}

// ExistsByName checks room-name uniqueness before writes.
func (r *RoomRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT 1 FROM rooms WHERE name = $1`
	args := []interface{}{name}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check room name: %w", err)
	}
	return true, nil
}

// ListOccupants returns every student housed in some room at the
// reference date, keyed by room id.
func (r *RoomRepository) ListOccupants(ctx context.Context, at time.Time) (map[string][]models.RoomOccupant, error) {
	const query = `SELECT ss.room_id, ss.student_id, s.last_name, s.first_name, s.middle_name, s.group_label, s.phone,
        ss.start_date, ss.end_date
        FROM student_statuses ss
        JOIN students s ON s.id = ss.student_id
        WHERE ss.kind = $1 AND ss.room_id IS NOT NULL AND ss.start_date <= $2 AND (ss.end_date IS NULL OR ss.end_date >= $2)
        ORDER BY s.last_name, s.first_name`

	rows, err := r.db.QueryxContext(ctx, query, models.StatusDormitory, at)
	if err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	occupants := make(map[string][]models.RoomOccupant)
	for rows.Next() {
		var row struct {
			RoomID string `db:"room_id"`
			models.RoomOccupant
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan occupant: %w", err)
		}
		occupants[row.RoomID] = append(occupants[row.RoomID], row.RoomOccupant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate occupants: %w", err)
	}
	return occupants, nil
}

// Create inserts a new room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now
	const query = `INSERT INTO rooms (id, name, capacity, note, created_at, updated_at)
        VALUES (:id, :name, :capacity, :note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// Update modifies an existing room.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET name = :name, capacity = :capacity, note = :note, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, room)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a room by id.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
