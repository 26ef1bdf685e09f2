package httpapi

import (
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/httputil"
	"github.com/platinummonkey/groupaccess/pkg/relation"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type page struct {
	limit  int
	offset int
}

func parsePage(r *http.Request) (page, error) {
	limit, err := httputil.ParseQueryInt64(r, "limit", defaultPageSize)
	if err != nil {
		return page{}, err
	}
	offset, err := httputil.ParseQueryInt64(r, "offset", 0)
	if err != nil {
		return page{}, err
	}
	if limit <= 0 || limit > maxPageSize {
		return page{}, fmt.Errorf("limit must be between 1 and %d", maxPageSize)
	}
	if offset < 0 {
		return page{}, fmt.Errorf("offset must not be negative")
	}
	return page{limit: int(limit), offset: int(offset)}, nil
}

func (p page) scope(db *gorm.DB) *gorm.DB {
	return db.Limit(p.limit).Offset(p.offset)
}

// listRequest parses the operation and paging of a list endpoint
func listRequest(w http.ResponseWriter, r *http.Request) (relation.Operation, page, bool) {
	pg, err := parsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", page{}, false
	}
	op := relation.Operation(httputil.ParseQueryString(r, "operation", string(relation.OperationView)))
	return op, pg, true
}

type groupList struct {
	Groups []*group.Group     `json:"groups"`
	Cache  cacheable.Metadata `json:"cache"`
}

// listGroups returns the groups the account may perform the operation on
func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	op, pg, ok := listRequest(w, r)
	if !ok {
		return
	}
	rw, err := s.deps.Rewriter.GroupQuery(r.Context(), AccountFromContext(r.Context()), op)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var records []storage.GroupRecord
	err = s.deps.DB.WithContext(r.Context()).
		Scopes(rw.Scope, pg.scope).
		Order(storage.GroupTable + ".id").
		Find(&records).Error
	if err != nil {
		writeError(w, r, err)
		return
	}

	groups := make([]*group.Group, 0, len(records))
	for _, rec := range records {
		groups = append(groups, rec.Group())
	}
	httputil.WriteJSON(w, http.StatusOK, groupList{Groups: groups, Cache: rw.CacheMetadata()})
}

type relationshipList struct {
	Relationships []*group.Relationship `json:"relationships"`
	Cache         cacheable.Metadata    `json:"cache"`
}

// listRelationships returns the relationships the account may perform the
// operation on
func (s *Server) listRelationships(w http.ResponseWriter, r *http.Request) {
	op, pg, ok := listRequest(w, r)
	if !ok {
		return
	}
	rw, err := s.deps.Rewriter.RelationshipQuery(r.Context(), AccountFromContext(r.Context()), op)
	if err != nil {
		writeError(w, r, err)
		return
	}

	query := s.deps.DB.WithContext(r.Context()).Scopes(rw.Scope, pg.scope)
	if pluginID := r.URL.Query().Get("plugin"); pluginID != "" {
		query = query.Where(storage.RelationshipTable+".plugin_id = ?", pluginID)
	}
	var records []storage.RelationshipRecord
	if err := query.Order(storage.RelationshipTable + ".id").Find(&records).Error; err != nil {
		writeError(w, r, err)
		return
	}

	rels := make([]*group.Relationship, 0, len(records))
	for _, rec := range records {
		rels = append(rels, rec.Relationship())
	}
	httputil.WriteJSON(w, http.StatusOK, relationshipList{Relationships: rels, Cache: rw.CacheMetadata()})
}

type entityList struct {
	EntityType string                   `json:"entity_type"`
	Rows       []map[string]interface{} `json:"rows"`
	Cache      cacheable.Metadata       `json:"cache"`
}

// listEntities returns the rows of an entity type's table the account may
// perform the operation on
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	op, pg, ok := listRequest(w, r)
	if !ok {
		return
	}
	entityTypeID, err := httputil.ParsePathString(r, "entity_type")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	et, err := s.deps.Registry.EntityType(entityTypeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if et.Config || et.Table == "" || et.IDColumn == "" {
		httputil.WriteBadRequest(w, fmt.Sprintf("entity type %s is not stored in a table", entityTypeID))
		return
	}

	rw, err := s.deps.Rewriter.EntityQuery(r.Context(), entityTypeID, AccountFromContext(r.Context()), op)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows := []map[string]interface{}{}
	err = s.deps.DB.WithContext(r.Context()).
		Table(et.Table).
		Scopes(rw.Scope, pg.scope).
		Order(et.Table + "." + et.IDColumn).
		Find(&rows).Error
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entityList{EntityType: entityTypeID, Rows: rows, Cache: rw.CacheMetadata()})
}
