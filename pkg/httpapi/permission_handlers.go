package httpapi

import (
	"net/http"

	"github.com/platinummonkey/groupaccess/pkg/httputil"
)

// getPermissions returns the calculated permissions of the account
func (s *Server) getPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.deps.Calculation.CalculateFullPermissions(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, perms)
}

type hashResponse struct {
	Hash string `json:"hash"`
}

// getPermissionHash returns the hash identifying the account's permissions
func (s *Server) getPermissionHash(w http.ResponseWriter, r *http.Request) {
	hash, err := s.deps.Hasher.GenerateHash(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, hashResponse{Hash: hash})
}

type checkResponse struct {
	Granted bool `json:"granted"`
}

// checkGroupPermissions reports whether any of the permission query values is
// granted in the group
func (s *Server) checkGroupPermissions(w http.ResponseWriter, r *http.Request) {
	permissions := r.URL.Query()["permission"]
	if len(permissions) == 0 {
		httputil.WriteBadRequest(w, "at least one permission query parameter is required")
		return
	}
	g, ok := s.loadGroup(w, r)
	if !ok {
		return
	}

	granted, err := s.deps.Checker.HasAnyPermissionInGroup(r.Context(), permissions, AccountFromContext(r.Context()), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checkResponse{Granted: granted})
}

type membershipResponse struct {
	Member bool     `json:"member"`
	Roles  []string `json:"roles"`
}

// checkMembership reports whether the account is a member of the group and
// the roles it holds there, synchronized ones included
func (s *Server) checkMembership(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGroup(w, r)
	if !ok {
		return
	}
	account := AccountFromContext(r.Context())

	member, err := s.deps.Checker.IsMember(r.Context(), account, g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	roles, err := s.deps.Loader.LoadRolesByUserAndGroup(r.Context(), account, g.ID, true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := membershipResponse{Member: member, Roles: make([]string, 0, len(roles))}
	for _, role := range roles {
		resp.Roles = append(resp.Roles, role.ID)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
