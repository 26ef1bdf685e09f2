// Package httpapi exposes permission calculation, access checks and access
// filtered listings over HTTP.
//
// The account a request is asked for comes from two headers set by the
// calling platform: X-Account-ID (absent or 0 for anonymous visitors) and
// X-Account-Roles (comma separated global roles).
//
// Routes:
//
//	GET  /v1/permissions                              calculated permissions
//	GET  /v1/permissions/hash                         permission hash
//	GET  /v1/groups                                   groups the account may see (?operation=)
//	GET  /v1/groups/{id}/permissions?permission=...   permission check in a group
//	GET  /v1/groups/{id}/membership                   membership check
//	GET  /v1/groups/{id}/access/{operation}           group access
//	GET  /v1/groups/{id}/plugins/{plugin}/access/create-relationship
//	GET  /v1/groups/{id}/plugins/{plugin}/access/create-entity
//	GET  /v1/relationships                            relationships the account may see
//	GET  /v1/relationships/{id}/access/{operation}    relationship access
//	POST /v1/entities/access                          entity access
//	GET  /v1/entities/{entity_type}                   entity rows the account may see
package httpapi
