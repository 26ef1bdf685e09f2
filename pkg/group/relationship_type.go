package group

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Plugin configuration kinds
const (
	ConfigKindEntityRelation = "entity_relation"
	ConfigKindMembership     = "membership"
)

// PluginConfig is the plugin-specific configuration of a relationship type
type PluginConfig interface {
	Kind() string
	// GroupCardinality is the number of groups an entity may be related to through
	// the plugin; 0 means unlimited
	GroupCardinality() int
	// EntityCardinality is the number of times an entity may be related to the
	// same group; 0 means unlimited
	EntityCardinality() int
}

// EntityRelationConfig configures a plugin that relates arbitrary entities
type EntityRelationConfig struct {
	GroupCardinalityLimit  int  `json:"group_cardinality"`
	EntityCardinalityLimit int  `json:"entity_cardinality"`
	UseCreationWizard      bool `json:"use_creation_wizard"`
}

func (c EntityRelationConfig) Kind() string           { return ConfigKindEntityRelation }
func (c EntityRelationConfig) GroupCardinality() int  { return c.GroupCardinalityLimit }
func (c EntityRelationConfig) EntityCardinality() int { return c.EntityCardinalityLimit }

// MembershipConfig configures the membership plugin. A user is a member of a
// group at most once.
type MembershipConfig struct {
	GroupCardinalityLimit int  `json:"group_cardinality"`
	UseCreationWizard     bool `json:"use_creation_wizard"`
}

func (c MembershipConfig) Kind() string           { return ConfigKindMembership }
func (c MembershipConfig) GroupCardinality() int  { return c.GroupCardinalityLimit }
func (c MembershipConfig) EntityCardinality() int { return 1 }

// RelationshipType binds a relation plugin to a group type
type RelationshipType struct {
	ID          string       `json:"id"`
	GroupTypeID string       `json:"group_type"`
	PluginID    string       `json:"content_plugin"`
	Config      PluginConfig `json:"plugin_config"`
}

// RelationshipTypeID composes the bundle ID for a plugin installed on a group type
func RelationshipTypeID(groupTypeID, pluginID string) string {
	return groupTypeID + "-" + strings.ReplaceAll(pluginID, ":", "-")
}

// CacheTag is the config tag of the relationship type
func (t *RelationshipType) CacheTag() string {
	return "config:group.content_type." + t.ID
}

// DefaultPluginConfig returns the configuration a plugin is installed with
func DefaultPluginConfig(pluginID string) PluginConfig {
	if pluginID == MembershipPluginID {
		return MembershipConfig{}
	}
	return EntityRelationConfig{EntityCardinalityLimit: 1}
}

type pluginConfigEnvelope struct {
	Kind     string          `json:"kind"`
	Settings json.RawMessage `json:"settings"`
}

// MarshalPluginConfig encodes a plugin configuration with its kind discriminator
func MarshalPluginConfig(cfg PluginConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("marshal plugin config: %w", ErrUnknownPluginConfig)
	}
	settings, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal plugin config: %w", err)
	}
	return json.Marshal(pluginConfigEnvelope{Kind: cfg.Kind(), Settings: settings})
}

// UnmarshalPluginConfig decodes a configuration written by MarshalPluginConfig
func UnmarshalPluginConfig(data []byte) (PluginConfig, error) {
	var env pluginConfigEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal plugin config: %w", err)
	}

	var cfg PluginConfig
	switch env.Kind {
	case ConfigKindEntityRelation:
		var c EntityRelationConfig
		if err := decodeSettings(env.Settings, &c); err != nil {
			return nil, err
		}
		cfg = c
	case ConfigKindMembership:
		var c MembershipConfig
		if err := decodeSettings(env.Settings, &c); err != nil {
			return nil, err
		}
		cfg = c
	default:
		return nil, fmt.Errorf("unmarshal plugin config %q: %w", env.Kind, ErrUnknownPluginConfig)
	}
	return cfg, nil
}

func decodeSettings(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal plugin settings: %w", err)
	}
	return nil
}

// MarshalJSON encodes the tagged plugin configuration
func (t RelationshipType) MarshalJSON() ([]byte, error) {
	type plain RelationshipType
	aux := struct {
		plain
		Config json.RawMessage `json:"plugin_config"`
	}{plain: plain(t)}
	if t.Config != nil {
		data, err := MarshalPluginConfig(t.Config)
		if err != nil {
			return nil, err
		}
		aux.Config = data
	}
	return json.Marshal(aux)
}

// UnmarshalJSON decodes the tagged plugin configuration
func (t *RelationshipType) UnmarshalJSON(data []byte) error {
	type plain RelationshipType
	aux := struct {
		*plain
		Config json.RawMessage `json:"plugin_config"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Config = nil
	if len(aux.Config) == 0 || string(aux.Config) == "null" {
		return nil
	}
	cfg, err := UnmarshalPluginConfig(aux.Config)
	if err != nil {
		return err
	}
	t.Config = cfg
	return nil
}
