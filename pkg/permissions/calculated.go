package permissions

import (
	"encoding/json"
	"sort"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// Item holds the permissions granted within one scope identifier
type Item struct {
	Scope       group.Scope `json:"scope"`
	Identifier  string      `json:"identifier"`
	Permissions []string    `json:"permissions"`
	Admin       bool        `json:"admin"`
}

// NewItem creates an item. Admin items store no explicit permissions.
func NewItem(scope group.Scope, identifier string, permissions []string, admin bool) Item {
	item := Item{Scope: scope, Identifier: identifier, Admin: admin, Permissions: []string{}}
	if !admin {
		item.Permissions = sortedUnique(permissions)
	}
	return item
}

// HasPermission reports whether the item grants the permission
func (i Item) HasPermission(permission string) bool {
	if i.Admin {
		return true
	}
	n := sort.SearchStrings(i.Permissions, permission)
	return n < len(i.Permissions) && i.Permissions[n] == permission
}

// merge unions the permissions and ORs the admin flag of two items with the same key
func (i Item) merge(other Item) Item {
	return NewItem(i.Scope, i.Identifier, append(append([]string{}, i.Permissions...), other.Permissions...), i.Admin || other.Admin)
}

func (i Item) equal(other Item) bool {
	if i.Scope != other.Scope || i.Identifier != other.Identifier || i.Admin != other.Admin {
		return false
	}
	if len(i.Permissions) != len(other.Permissions) {
		return false
	}
	for n := range i.Permissions {
		if i.Permissions[n] != other.Permissions[n] {
			return false
		}
	}
	return true
}

type itemKey struct {
	scope      group.Scope
	identifier string
}

// CalculatedPermissions is the set of items calculated for an account plus the
// cache metadata of everything that contributed to it
type CalculatedPermissions struct {
	items map[itemKey]Item
	meta  cacheable.Metadata
}

// NewCalculatedPermissions returns an empty, permanently cacheable result
func NewCalculatedPermissions() *CalculatedPermissions {
	return &CalculatedPermissions{
		items: make(map[itemKey]Item),
		meta:  cacheable.New(),
	}
}

// Item returns the item of a scope identifier
func (c *CalculatedPermissions) Item(scope group.Scope, identifier string) (Item, bool) {
	item, ok := c.items[itemKey{scope: scope, identifier: identifier}]
	return item, ok
}

// Items returns all items ordered by scope, then identifier
func (c *CalculatedPermissions) Items() []Item {
	items := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	sortItems(items)
	return items
}

// ItemsByScope returns the items of one scope ordered by identifier
func (c *CalculatedPermissions) ItemsByScope(scope group.Scope) []Item {
	var items []Item
	for key, item := range c.items {
		if key.scope == scope {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items
}

// Len returns the number of items
func (c *CalculatedPermissions) Len() int {
	return len(c.items)
}

// CacheMetadata returns the merged cache metadata of all contributors
func (c *CalculatedPermissions) CacheMetadata() cacheable.Metadata {
	return c.meta
}

// Merge returns a new result holding the items and cache metadata of both
func (c *CalculatedPermissions) Merge(other *CalculatedPermissions) *CalculatedPermissions {
	out := c.clone()
	if other == nil {
		return out
	}
	for _, item := range other.items {
		out.addItem(item)
	}
	out.meta = out.meta.Merge(other.meta)
	return out
}

// Equal reports whether both results hold the same items and cache metadata
func (c *CalculatedPermissions) Equal(other *CalculatedPermissions) bool {
	if other == nil || len(c.items) != len(other.items) || !c.meta.Equal(other.meta) {
		return false
	}
	for key, item := range c.items {
		o, ok := other.items[key]
		if !ok || !item.equal(o) {
			return false
		}
	}
	return true
}

// addItem merges an item into the result; only used while a result is built
func (c *CalculatedPermissions) addItem(item Item) {
	key := itemKey{scope: item.Scope, identifier: item.Identifier}
	if existing, ok := c.items[key]; ok {
		item = existing.merge(item)
	} else {
		item = NewItem(item.Scope, item.Identifier, item.Permissions, item.Admin)
	}
	c.items[key] = item
}

func (c *CalculatedPermissions) addCacheMetadata(meta cacheable.Metadata) {
	c.meta = c.meta.Merge(meta)
}

func (c *CalculatedPermissions) clone() *CalculatedPermissions {
	out := &CalculatedPermissions{
		items: make(map[itemKey]Item, len(c.items)),
		meta:  c.meta,
	}
	for key, item := range c.items {
		out.items[key] = item
	}
	return out
}

type calculatedJSON struct {
	Items []Item             `json:"items"`
	Cache cacheable.Metadata `json:"cache"`
}

// MarshalJSON encodes the items in a stable order
func (c *CalculatedPermissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(calculatedJSON{Items: c.Items(), Cache: c.meta})
}

// UnmarshalJSON decodes a result written by MarshalJSON
func (c *CalculatedPermissions) UnmarshalJSON(data []byte) error {
	var aux calculatedJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.items = make(map[itemKey]Item, len(aux.Items))
	for _, item := range aux.Items {
		c.addItem(item)
	}
	c.meta = aux.Cache
	return nil
}

var scopeOrder = map[group.Scope]int{
	group.ScopeOutsider:   0,
	group.ScopeInsider:    1,
	group.ScopeIndividual: 2,
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Scope != items[j].Scope {
			return scopeOrder[items[i].Scope] < scopeOrder[items[j].Scope]
		}
		return items[i].Identifier < items[j].Identifier
	})
}

func sortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
