package models

// Attribute is one category of a categorical variable. Variable is required.
// Parent links attributes into a hierarchy; Key defaults to Name when unset.
type Attribute struct {
	Core
	Variable int64
	Parent   int64
	Key      string
}

func (*Attribute) EntityType() string { return EntityTypeAttribute }

// NewAttribute creates an unpersisted attribute for the given variable.
func NewAttribute(name string, variable int64) *Attribute {
	return &Attribute{Core: Core{Name: name}, Variable: variable}
}
