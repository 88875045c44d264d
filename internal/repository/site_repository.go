package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// SiteRepository reads sites. Lookups are cached for a short time since a
// harvest checks the same few sites for every file.
type SiteRepository struct {
	db    *sqlx.DB
	cache *expirable.LRU[int64, models.Site]
}

// NewSiteRepository creates a new SiteRepository caching up to size sites for ttl.
func NewSiteRepository(db *sqlx.DB, size int, ttl time.Duration) *SiteRepository {
	if size <= 0 {
		size = 128
	}
	return &SiteRepository{db: db, cache: expirable.NewLRU[int64, models.Site](size, nil, ttl)}
}

// GetSite returns a site with the ids of the projects it belongs to.
func (r *SiteRepository) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	if site, ok := r.cache.Get(id); ok {
		return &site, nil
	}

	const query = `SELECT id, name, tzinfo_tz, latitude, longitude, creator_id, created_at, updated_at FROM sites WHERE id = $1`
	var site models.Site
	if err := r.db.GetContext(ctx, &site, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get site: %w", err)
	}

	const projects = `SELECT project_id FROM projects_sites WHERE site_id = $1 ORDER BY project_id`
	if err := r.db.SelectContext(ctx, &site.ProjectIDs, projects, id); err != nil {
		return nil, fmt.Errorf("get site projects: %w", err)
	}

	r.cache.Add(id, site)
	return &site, nil
}

// Forget drops a cached site.
func (r *SiteRepository) Forget(id int64) {
	r.cache.Remove(id)
}
