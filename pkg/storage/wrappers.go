package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

// WrapConfigEntity returns the wrapper of a config entity, creating it on first
// use. Concurrent callers end up with the same wrapper.
func (s *Store) WrapConfigEntity(ctx context.Context, bundle, entityID string) (w *group.ConfigWrapper, err error) {
	defer s.observe("wrap_config_entity", &err)

	w, err = s.loadWrapper(ctx, bundle, entityID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return w, err
	}

	w = &group.ConfigWrapper{Bundle: bundle, EntityID: entityID}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO group_config_wrapper (bundle, entity_id) VALUES ($1, $2) RETURNING id`,
		bundle, entityID,
	).Scan(&w.ID)
	if err != nil {
		if isUniqueViolation(err) {
			s.logger.WithFields(map[string]interface{}{
				"bundle":    bundle,
				"entity_id": entityID,
			}).Debug("Config wrapper created concurrently, reloading")
			return s.loadWrapper(ctx, bundle, entityID)
		}
		return nil, fmt.Errorf("failed to create config wrapper %s:%s: %w", bundle, entityID, err)
	}
	return w, nil
}

// LoadWrapper loads the wrapper of a config entity without creating it
func (s *Store) LoadWrapper(ctx context.Context, bundle, entityID string) (w *group.ConfigWrapper, err error) {
	defer s.observe("load_config_wrapper", &err)
	return s.loadWrapper(ctx, bundle, entityID)
}

func (s *Store) loadWrapper(ctx context.Context, bundle, entityID string) (*group.ConfigWrapper, error) {
	var w group.ConfigWrapper
	err := s.db.QueryRowContext(ctx,
		`SELECT id, bundle, entity_id FROM group_config_wrapper WHERE bundle = $1 AND entity_id = $2`,
		bundle, entityID,
	).Scan(&w.ID, &w.Bundle, &w.EntityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config wrapper %s:%s: %w", bundle, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config wrapper %s:%s: %w", bundle, entityID, err)
	}
	return &w, nil
}
