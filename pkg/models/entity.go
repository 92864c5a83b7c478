// Package models holds the domain types managed by the storage layer:
// entities (folders, data sets, variables, attributes, users, action log
// entries), facts and individuals, and the query/filter value types callers
// construct.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Entity type discriminators. The set is closed: the mapping registry
// dispatches on these and rejects anything else.
const (
	EntityTypeFolder    = "folder"
	EntityTypeDataSet   = "dataSet"
	EntityTypeVariable  = "variable"
	EntityTypeAttribute = "attribute"
	EntityTypeUser      = "user"
	EntityTypeAction    = "action"
)

// Entity is a domain object persisted by the storage service. An entity
// submitted for insertion must have a zero ID; an entity submitted for update
// must have a non-zero ID.
type Entity interface {
	EntityType() string
	EntityID() int64
	EntityName() string
	CreatedAt() time.Time
	ModifiedAt() time.Time
	ExtendedProperties() map[string]any
}

// Core carries the fields common to every entity type. Concrete entity
// structs embed it.
type Core struct {
	ID       int64
	Name     string
	Created  time.Time
	Modified time.Time
	Extended map[string]any
}

func (c *Core) EntityID() int64                    { return c.ID }
func (c *Core) EntityName() string                 { return c.Name }
func (c *Core) CreatedAt() time.Time               { return c.Created }
func (c *Core) ModifiedAt() time.Time              { return c.Modified }
func (c *Core) ExtendedProperties() map[string]any { return c.Extended }

// ValidID coerces an arbitrary caller-supplied value into an entity id.
// Integers and whole-valued floats above zero are accepted; everything else
// (nil, empty strings, fractional numbers, objects) is rejected. Callers that
// accept id lists from the outside world filter through this rather than
// erroring on junk entries.
func ValidID(v any) (int64, bool) {
	switch id := v.(type) {
	case int:
		return int64(id), id > 0
	case int32:
		return int64(id), id > 0
	case int64:
		return id, id > 0
	case float64:
		if id != float64(int64(id)) {
			return 0, false
		}
		return int64(id), id > 0
	case string:
		s := strings.TrimSpace(id)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}
