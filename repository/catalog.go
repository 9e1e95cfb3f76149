package repository

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-union"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrCityNotFound is returned for an unknown city id.
var ErrCityNotFound = goerrors.New("city not found", goerrors.CategoryNotFound).
	WithTextCode("CITY_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// Catalog reads cities and skills.
type Catalog struct {
	cities repository.Repository[*union.City]
	db     *bun.DB
}

// NewCatalog creates the catalog store.
func NewCatalog(db *bun.DB) *Catalog {
	cities := repository.NewRepository[*union.City](db, repository.ModelHandlers[*union.City]{
		NewRecord: func() *union.City { return &union.City{} },
		GetID: func(c *union.City) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *union.City, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
	return &Catalog{cities: cities, db: db}
}

// CityByID returns a city by primary key.
func (c *Catalog) CityByID(ctx context.Context, id uuid.UUID) (*union.City, error) {
	record := &union.City{}
	err := c.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrCityNotFound.Clone().WithMetadata(map[string]any{
				"city_id": id.String(),
			})
		}
		return nil, err
	}
	return record, nil
}

// CreateCity inserts a user supplied city, reusing an existing row with
// the same name and state.
func (c *Catalog) CreateCity(ctx context.Context, city *union.City) (*union.City, error) {
	name := strings.TrimSpace(city.Name)
	state := strings.TrimSpace(city.State)

	existing := &union.City{}
	err := c.db.NewSelect().
		Model(existing).
		Where("lower(?TableAlias.name) = lower(?)", name).
		Where("lower(?TableAlias.state) = lower(?)", state).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return existing, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &union.City{
		ID:    uuid.New(),
		Name:  name,
		State: state,
	}
	return c.cities.CreateTx(ctx, c.db, record)
}

// ListCities returns all cities ordered by name.
func (c *Catalog) ListCities(ctx context.Context) ([]*union.City, error) {
	records := []*union.City{}
	err := c.db.NewSelect().Model(&records).Order("name ASC").Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// ListSkills returns the skill catalog ordered by category and name.
func (c *Catalog) ListSkills(ctx context.Context) ([]*union.Skill, error) {
	records := []*union.Skill{}
	err := c.db.NewSelect().Model(&records).Order("category ASC", "name ASC").Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}
