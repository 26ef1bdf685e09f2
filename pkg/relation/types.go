package relation

import "strings"

// EntityType describes an entity type that can be related to groups
type EntityType struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Config      bool   `yaml:"config" json:"config"`           // Config entities are related through a ConfigWrapper
	Owner       bool   `yaml:"owner" json:"owner"`             // Entities carry an owner
	Publishable bool   `yaml:"publishable" json:"publishable"` // Entities carry a published flag

	// Columns used when rewriting list queries of the entity type
	Table        string `yaml:"table" json:"table"`
	IDColumn     string `yaml:"id_column" json:"id_column"`
	OwnerColumn  string `yaml:"owner_column" json:"owner_column,omitempty"`
	StatusColumn string `yaml:"status_column" json:"status_column,omitempty"`
}

// Operation is an action checked against a relationship or grouped entity
type Operation string

const (
	OperationView            Operation = "view"
	OperationViewUnpublished Operation = "view unpublished"
	OperationUpdate          Operation = "update"
	OperationDelete          Operation = "delete"
	OperationCreate          Operation = "create"
)

// Target is what an operation acts upon
type Target string

const (
	TargetRelationship Target = "relationship"
	TargetEntity       Target = "entity"
)

// OwnerScope selects between the "any" and "own" variant of a permission
type OwnerScope string

const (
	Any OwnerScope = "any"
	Own OwnerScope = "own"
)

// Definition is the static description of a relation plugin
type Definition struct {
	ID              string `yaml:"id" json:"id"`
	Label           string `yaml:"label" json:"label"`
	EntityTypeID    string `yaml:"entity_type" json:"entity_type"`
	EntityBundle    string `yaml:"entity_bundle" json:"entity_bundle,omitempty"`
	AdminPermission string `yaml:"admin_permission" json:"admin_permission,omitempty"`
	EntityAccess    bool   `yaml:"entity_access" json:"entity_access"`
}

// BaseID returns the plugin ID without its derivative, node_relation for node_relation:page
func (d Definition) BaseID() string {
	base, _, _ := strings.Cut(d.ID, ":")
	return base
}

// DerivativeID returns the derivative part of the plugin ID, if any
func (d Definition) DerivativeID() string {
	_, derivative, _ := strings.Cut(d.ID, ":")
	return derivative
}

// Permission describes a permission a plugin provides
type Permission struct {
	Name           string `json:"name"`
	Title          string `json:"title"`
	Section        string `json:"section"`
	RestrictAccess bool   `json:"restrict_access,omitempty"`
}
