package models

// Folder is a hierarchy node grouping data sets. Parent is zero for roots.
type Folder struct {
	Core
	Parent int64
}

func (*Folder) EntityType() string { return EntityTypeFolder }

// NewFolder creates an unpersisted folder (zero ID).
func NewFolder(name string, parent int64) *Folder {
	return &Folder{Core: Core{Name: name}, Parent: parent}
}
