package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jotihunt/internal/domain"
)

const locationColumns = `id, name, description, latitude, longitude, updated_at`

type LocationStore struct {
	db *DB
	tm *TransactionManager
}

func NewLocationStore(db *DB) *LocationStore {
	return &LocationStore{db: db, tm: NewTransactionManager(db)}
}

func (s *LocationStore) Get(ctx context.Context, id string) (*domain.Location, error) {
	var loc domain.Location
	err := s.db.get(ctx, &loc, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get location %q: %w", id, err)
	}
	return &loc, nil
}

func (s *LocationStore) List(ctx context.Context) ([]domain.Location, error) {
	locs := []domain.Location{}
	if err := s.db.selectAll(ctx, &locs, `SELECT `+locationColumns+` FROM locations ORDER BY updated_at DESC, id`); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locs, nil
}

// Save creates loc or merges it into the stored location with the same id.
// Empty names and descriptions and nil coordinates keep the stored values.
// It reports whether the location was created and leaves the stored record
// in loc.
func (s *LocationStore) Save(ctx context.Context, loc *domain.Location) (bool, error) {
	var created bool
	err := s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.Get(ctx, loc.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			created = true
		case err != nil:
			return err
		default:
			created = false
		}

		_, err = s.db.exec(ctx, `
			INSERT INTO locations (`+locationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE locations.name END,
				description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE locations.description END,
				latitude = COALESCE(excluded.latitude, locations.latitude),
				longitude = COALESCE(excluded.longitude, locations.longitude),
				updated_at = excluded.updated_at`,
			loc.ID,
			loc.Name,
			loc.Description,
			loc.Latitude,
			loc.Longitude,
			loc.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("save location %q: %w", loc.ID, err)
		}

		stored, err := s.Get(ctx, loc.ID)
		if err != nil {
			return err
		}
		*loc = *stored
		return nil
	})
	return created, err
}

func (s *LocationStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.exec(ctx, `DELETE FROM locations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete location %q: %w", id, err)
	}
	return nil
}
