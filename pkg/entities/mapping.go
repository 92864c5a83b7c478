// Package entities maps typed domain entities to and from relational rows.
// A declarative registry of per-type descriptors drives the generic storage
// service; there is no per-entity CRUD code.
package entities

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
	jsoniter "github.com/json-iterator/go"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Descriptor declares how one entity type is persisted: its backing table,
// the converters between entities and flat records, and the property-name to
// column-name mappings used by query compilation and sorting.
//
// BuildRecord validates before assembling; a failure is a caller mistake and
// comes back as a validation error. BuildEntity panics on an unrecognized
// type discriminator: that signals corrupted rows, not caller misuse.
type Descriptor struct {
	EntityType       string
	Table            string
	PropertyMappings map[string]string
	BuildEntity      func(models.Record) models.Entity
	BuildRecord      func(models.Entity) (models.Record, error)
}

// Registry is the closed set of entity descriptors, indexed by type.
type Registry struct {
	descriptors map[string]*Descriptor
	order       []string
	extended    map[string][]string
}

// NewRegistry builds the registry. extendedProperties is the per-entity-type
// allowlist of extended property keys; keys outside an entity type's list are
// rejected when building records.
func NewRegistry(extendedProperties map[string][]string) *Registry {
	r := &Registry{
		descriptors: make(map[string]*Descriptor),
		extended:    extendedProperties,
	}

	for _, d := range []*Descriptor{
		r.folderDescriptor(),
		r.dataSetDescriptor(),
		r.variableDescriptor(),
		r.attributeDescriptor(),
		r.userDescriptor(),
		r.actionDescriptor(),
	} {
		if d.Table == "" {
			d.Table = defaultTableName(d.EntityType)
		}
		r.descriptors[d.EntityType] = d
		r.order = append(r.order, d.EntityType)
	}

	return r
}

// Descriptor looks up the descriptor for an entity type. Unknown types fail
// with a validation error naming the known set.
func (r *Registry) Descriptor(entityType string) (*Descriptor, error) {
	d, ok := r.descriptors[entityType]
	if !ok {
		return nil, apperrors.Validation(
			"bad entity type: %q, must be one of: %s", entityType, strings.Join(r.order, ", "))
	}
	return d, nil
}

// Types returns the registered entity types in registration order. The order
// matters to publication: parent tables come before their children.
func (r *Registry) Types() []string {
	return append([]string(nil), r.order...)
}

// defaultTableName derives a table name by snake-casing and pluralizing the
// entity type: dataSet becomes data_sets.
func defaultTableName(entityType string) string {
	var b strings.Builder
	for _, c := range entityType {
		if unicode.IsUpper(c) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return inflection.Plural(b.String())
}

// configureRecord wraps a per-type property builder with the validation and
// assembly common to all entity types: a present name, the per-type
// validator, the shared columns, and the extended-properties blob.
func (r *Registry) configureRecord(
	entityType string,
	props func(models.Entity) models.Record,
	validate func(models.Entity) error,
) func(models.Entity) (models.Record, error) {
	return func(e models.Entity) (models.Record, error) {
		if e.EntityType() != entityType {
			return nil, apperrors.Validation("entity is not of type %q", entityType)
		}
		if e.EntityName() == "" {
			return nil, apperrors.Validation("entity must have a valid name")
		}
		if validate != nil {
			if err := validate(e); err != nil {
				return nil, err
			}
		}

		record := props(e)
		if e.EntityID() != 0 {
			record["id"] = e.EntityID()
		}
		record["name"] = e.EntityName()

		// The store owns timestamps: created sticks to its first value and
		// modified is refreshed on every write.
		now := time.Now().UTC()
		created := e.CreatedAt()
		if created.IsZero() {
			created = now
		}
		record["created"] = created
		record["modified"] = now

		blob, err := r.extendedBlob(entityType, e.ExtendedProperties())
		if err != nil {
			return nil, err
		}
		record["extended_properties"] = blob

		return record, nil
	}
}

// extendedBlob serializes the allowlisted extended properties. A key outside
// the entity type's allowlist is a validation error, keeping the mapping
// contract bounded instead of an open blob.
func (r *Registry) extendedBlob(entityType string, props map[string]any) (any, error) {
	if len(props) == 0 {
		return nil, nil
	}

	allowed := make(map[string]bool)
	for _, key := range r.extended[entityType] {
		allowed[key] = true
	}
	for key := range props {
		if !allowed[key] {
			return nil, apperrors.Validation(
				"extended property %q is not configured for entity type %q", key, entityType)
		}
	}

	blob, err := json.MarshalToString(props)
	if err != nil {
		return nil, apperrors.Validation("extended properties are not serializable: %v", err)
	}
	return blob, nil
}

func parseExtended(record models.Record) map[string]any {
	if !record.Has("extended_properties") {
		return nil
	}
	raw := record.String("extended_properties")
	if raw == "" {
		return nil
	}
	var props map[string]any
	if err := json.UnmarshalFromString(raw, &props); err != nil {
		panic(fmt.Sprintf("corrupt extended_properties blob: %v", err))
	}
	return props
}

func marshalBlob(v any) any {
	if v == nil {
		return nil
	}
	blob, err := json.MarshalToString(v)
	if err != nil {
		return nil
	}
	return blob
}

func unmarshalBlob(record models.Record, col string) any {
	if !record.Has(col) {
		return nil
	}
	raw := record.String(col)
	if raw == "" {
		return nil
	}
	var v any
	if err := json.UnmarshalFromString(raw, &v); err != nil {
		panic(fmt.Sprintf("corrupt %s blob: %v", col, err))
	}
	return v
}

// nullableID stores zero ids as NULL foreign keys.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (r *Registry) folderDescriptor() *Descriptor {
	return &Descriptor{
		EntityType: models.EntityTypeFolder,

		BuildEntity: func(record models.Record) models.Entity {
			return &models.Folder{
				Core: models.Core{
					ID:       record.Int64("id"),
					Name:     record.String("name"),
					Created:  record.Time("created"),
					Modified: record.Time("modified"),
					Extended: parseExtended(record),
				},
				Parent: record.Int64("parent_id"),
			}
		},

		BuildRecord: r.configureRecord(models.EntityTypeFolder, func(e models.Entity) models.Record {
			folder := e.(*models.Folder)
			return models.Record{
				"parent_id": nullableID(folder.Parent),
			}
		}, nil),

		PropertyMappings: map[string]string{
			"id":     "id",
			"name":   "name",
			"parent": "parent_id",
		},
	}
}

func (r *Registry) dataSetDescriptor() *Descriptor {
	return &Descriptor{
		EntityType: models.EntityTypeDataSet,

		BuildEntity: func(record models.Record) models.Entity {
			return &models.DataSet{
				Core: models.Core{
					ID:       record.Int64("id"),
					Name:     record.String("name"),
					Created:  record.Time("created"),
					Modified: record.Time("modified"),
					Extended: parseExtended(record),
				},
				Folder:       record.Int64("folder_id"),
				Schema:       unmarshalBlob(record, "schema"),
				DataModified: record.Time("data_modified"),
			}
		},

		BuildRecord: r.configureRecord(models.EntityTypeDataSet, func(e models.Entity) models.Record {
			ds := e.(*models.DataSet)
			record := models.Record{
				"schema":    marshalBlob(ds.Schema),
				"folder_id": nullableID(ds.Folder),
			}
			if ds.DataModified.IsZero() {
				record["data_modified"] = nil
			} else {
				record["data_modified"] = ds.DataModified
			}
			return record
		}, nil),

		PropertyMappings: map[string]string{
			"id":           "id",
			"name":         "name",
			"schema":       "schema",
			"folder":       "folder_id",
			"dataModified": "data_modified",
		},
	}
}

func (r *Registry) variableDescriptor() *Descriptor {
	return &Descriptor{
		EntityType: models.EntityTypeVariable,

		BuildEntity: func(record models.Record) models.Entity {
			varType := models.VariableType(record.Int64("type"))
			if !varType.Valid() {
				panic(fmt.Sprintf("invalid variable type: %v", record["type"]))
			}
			return &models.Variable{
				Core: models.Core{
					ID:       record.Int64("id"),
					Name:     record.String("name"),
					Created:  record.Time("created"),
					Modified: record.Time("modified"),
					Extended: parseExtended(record),
				},
				Type:          varType,
				Key:           record.String("key"),
				ScopedDataSet: record.Int64("data_set_id"),
				Format:        unmarshalBlob(record, "format"),
			}
		},

		BuildRecord: r.configureRecord(models.EntityTypeVariable, func(e models.Entity) models.Record {
			v := e.(*models.Variable)
			key := v.Key
			if key == "" {
				key = v.Name
			}
			return models.Record{
				"type":        int64(v.Type),
				"key":         key,
				"data_set_id": nullableID(v.ScopedDataSet),
				"format":      marshalBlob(v.Format),
			}
		}, func(e models.Entity) error {
			v := e.(*models.Variable)
			if !v.Type.Valid() {
				return apperrors.Validation("variable type %d is not recognized", int(v.Type))
			}
			return nil
		}),

		PropertyMappings: map[string]string{
			"id":            "id",
			"name":          "name",
			"type":          "type",
			"key":           "key",
			"scopedDataSet": "data_set_id",
		},
	}
}

func (r *Registry) attributeDescriptor() *Descriptor {
	return &Descriptor{
		EntityType: models.EntityTypeAttribute,

		BuildEntity: func(record models.Record) models.Entity {
			return &models.Attribute{
				Core: models.Core{
					ID:       record.Int64("id"),
					Name:     record.String("name"),
					Created:  record.Time("created"),
					Modified: record.Time("modified"),
					Extended: parseExtended(record),
				},
				Variable: record.Int64("variable_id"),
				Parent:   record.Int64("parent_id"),
				Key:      record.String("key"),
			}
		},

		BuildRecord: r.configureRecord(models.EntityTypeAttribute, func(e models.Entity) models.Record {
			a := e.(*models.Attribute)
			key := a.Key
			if key == "" {
				key = a.Name
			}
			return models.Record{
				"key":         key,
				"variable_id": a.Variable,
				"parent_id":   nullableID(a.Parent),
			}
		}, func(e models.Entity) error {
			a := e.(*models.Attribute)
			if a.Variable <= 0 {
				return apperrors.Validation("property \"variable_id\" must be a valid id: %d", a.Variable)
			}
			return nil
		}),

		PropertyMappings: map[string]string{
			"id":       "id",
			"name":     "name",
			"key":      "key",
			"variable": "variable_id",
			"parent":   "parent_id",
		},
	}
}

func (r *Registry) userDescriptor() *Descriptor {
	return &Descriptor{
		EntityType: models.EntityTypeUser,

		BuildEntity: func(record models.Record) models.Entity {
			return &models.User{
				Core: models.Core{
					ID:       record.Int64("id"),
					Name:     record.String("name"),
					Created:  record.Time("created"),
					Modified: record.Time("modified"),
					Extended: parseExtended(record),
				},
				Email:    record.String("email"),
				Password: record.String("password"),
				Admin:    record.Bool("admin"),
				GUI:      record.Bool("gui"),
			}
		},

		BuildRecord: r.configureRecord(models.EntityTypeUser, func(e models.Entity) models.Record {
			u := e.(*models.User)
			return models.Record{
				"email":    u.Email,
				"password": u.Password,
				"admin":    u.Admin,
				"gui":      u.GUI,
			}
		}, func(e models.Entity) error {
			u := e.(*models.User)
			if u.Email == "" {
				return apperrors.Validation("users may not be stored without a valid email")
			}
			if u.Password == "" {
				return apperrors.Validation("users may not be stored without a valid password")
			}
			return nil
		}),

		PropertyMappings: map[string]string{
			"id":       "id",
			"name":     "name",
			"email":    "email",
			"password": "password",
			"admin":    "admin",
			"gui":      "gui",
		},
	}
}

func (r *Registry) actionDescriptor() *Descriptor {
	return &Descriptor{
		EntityType: models.EntityTypeAction,
		Table:      "action_log",

		BuildEntity: func(record models.Record) models.Entity {
			return &models.Action{
				Core: models.Core{
					ID:       record.Int64("id"),
					Name:     record.String("name"),
					Created:  record.Time("created"),
					Modified: record.Time("modified"),
					Extended: parseExtended(record),
				},
				User:        record.Int64("user_id"),
				SubjectType: record.String("subject_type"),
				SubjectID:   record.Int64("subject_id"),
				Action:      record.String("action"),
			}
		},

		BuildRecord: r.configureRecord(models.EntityTypeAction, func(e models.Entity) models.Record {
			a := e.(*models.Action)
			return models.Record{
				"user_id":      a.User,
				"subject_type": a.SubjectType,
				"subject_id":   a.SubjectID,
				"action":       a.Action,
			}
		}, func(e models.Entity) error {
			a := e.(*models.Action)
			if a.User == 0 {
				return apperrors.Validation("property \"user\" must not be empty")
			}
			if a.SubjectType == "" {
				return apperrors.Validation("property \"subjectType\" must not be empty")
			}
			if a.SubjectID == 0 {
				return apperrors.Validation("property \"subjectId\" must not be empty")
			}
			if a.Action == "" {
				return apperrors.Validation("property \"action\" must not be empty")
			}
			return nil
		}),

		PropertyMappings: map[string]string{
			"id":          "id",
			"name":        "name",
			"user":        "user_id",
			"subjectType": "subject_type",
			"subjectId":   "subject_id",
			"action":      "action",
		},
	}
}
