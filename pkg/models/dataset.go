package models

import "time"

// DataSet is a named collection of individuals and their facts. Schema is a
// free-form structural description stored as a JSON blob. DataModified tracks
// the last time the set's facts (as opposed to the entity row itself) changed,
// which drives incremental publication.
type DataSet struct {
	Core
	Folder       int64
	Schema       any
	DataModified time.Time
}

func (*DataSet) EntityType() string { return EntityTypeDataSet }

// NewDataSet creates an unpersisted data set (zero ID).
func NewDataSet(name string, folder int64) *DataSet {
	return &DataSet{Core: Core{Name: name}, Folder: folder}
}
