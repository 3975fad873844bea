package models

import "time"

// Tag represents a named category that can be applied to tasks
type Tag struct {
	ID        int64  // 0 until the tag is first persisted
	UUID      string // assigned once at creation, never changes
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsNew reports whether the tag has not been stored yet
func (t *Tag) IsNew() bool {
	return t.ID == 0
}

// TagAssociation records that a task carries a tag.
// TagName is a denormalized copy of the tag's name and must be kept
// in step with the tag whenever it is renamed.
type TagAssociation struct {
	ID        int64
	TaskID    int64
	TagUUID   string
	TagName   string
	CreatedAt time.Time
}

// Task represents a single task
type Task struct {
	ID        int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []TagAssociation // populated when loading tasks
}
