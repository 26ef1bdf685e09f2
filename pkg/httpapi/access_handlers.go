package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/groupaccess/pkg/access"
	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/httputil"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// accessResponse carries the verdict and what the caller may cache it under
type accessResponse struct {
	Outcome string             `json:"outcome"`
	Cache   cacheable.Metadata `json:"cache"`
}

func writeResult(w http.ResponseWriter, result access.Result) {
	httputil.WriteJSON(w, http.StatusOK, accessResponse{
		Outcome: result.Outcome.String(),
		Cache:   result.CacheMetadata(),
	})
}

func (s *Server) loadGroup(w http.ResponseWriter, r *http.Request) (*group.Group, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	g, err := s.deps.Loader.LoadGroup(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return g, true
}

// pluginParam returns the plugin path parameter, answering 404 for plugins
// that are not registered
func (s *Server) pluginParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	pluginID, err := httputil.ParsePathString(r, "plugin")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", false
	}
	if !s.deps.Registry.Has(pluginID) {
		httputil.WriteNotFound(w, "unknown relation plugin: "+pluginID)
		return "", false
	}
	return pluginID, true
}

func (s *Server) groupAccess(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGroup(w, r)
	if !ok {
		return
	}

	op := relation.Operation(mux.Vars(r)["operation"])
	result, err := s.deps.Engine.GroupAccess(r.Context(), g, op, AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) relationshipAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	rel, err := s.deps.Loader.LoadRelationship(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	op := relation.Operation(mux.Vars(r)["operation"])
	result, err := s.deps.Engine.RelationshipAccess(r.Context(), rel, op, AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) relationshipCreateAccess(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGroup(w, r)
	if !ok {
		return
	}
	pluginID, ok := s.pluginParam(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Engine.RelationshipCreateAccess(r.Context(), g, pluginID, AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) entityCreateAccess(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGroup(w, r)
	if !ok {
		return
	}
	pluginID, ok := s.pluginParam(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Engine.EntityCreateAccess(r.Context(), g, pluginID, AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}

// EntityAccessRequest asks for an operation on an entity that may be grouped
type EntityAccessRequest struct {
	Entity    group.Entity       `json:"entity"`
	Operation relation.Operation `json:"operation"`
}

func (s *Server) entityAccess(w http.ResponseWriter, r *http.Request) {
	var req EntityAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Entity.TypeID == "" || req.Operation == "" {
		httputil.WriteDetailedError(w, http.StatusBadRequest, errors.New("entity type and operation are required"),
			map[string]string{"entity_type": req.Entity.TypeID, "operation": string(req.Operation)})
		return
	}
	if _, err := s.deps.Registry.EntityType(req.Entity.TypeID); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.Engine.EntityAccess(r.Context(), req.Entity, req.Operation, AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}
