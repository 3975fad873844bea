package db

import (
	"context"
	"fmt"

	"github.com/tgienger/stmtags/internal/models"
)

const associationColumns = "id, task_id, tag_uuid, tag_name, created_at"

func scanAssociation(sc scanner) (models.TagAssociation, error) {
	var a models.TagAssociation
	err := sc.Scan(&a.ID, &a.TaskID, &a.TagUUID, &a.TagName, &a.CreatedAt)
	return a, err
}

func (db *DB) listAssociations(ctx context.Context, query string, arg any) ([]models.TagAssociation, error) {
	rows, err := db.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assocs []models.TagAssociation
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		assocs = append(assocs, a)
	}
	return assocs, rows.Err()
}

// AddTagToTask records that a task carries a tag. Adding a tag the task
// already carries refreshes the stored name.
func (db *DB) AddTagToTask(ctx context.Context, taskID int64, tag *models.Tag) error {
	_, err := db.q.ExecContext(ctx, `
		INSERT INTO task_tags (task_id, tag_uuid, tag_name) VALUES (?, ?, ?)
		ON CONFLICT(task_id, tag_uuid) DO UPDATE SET tag_name = excluded.tag_name
	`, taskID, tag.UUID, tag.Name)
	if err != nil {
		return fmt.Errorf("add tag %s to task %d: %w", tag.UUID, taskID, err)
	}
	return nil
}

// RemoveTagFromTask removes a tag from a task
func (db *DB) RemoveTagFromTask(ctx context.Context, taskID int64, tagUUID string) error {
	_, err := db.q.ExecContext(ctx, "DELETE FROM task_tags WHERE task_id = ? AND tag_uuid = ?", taskID, tagUUID)
	if err != nil {
		return fmt.Errorf("remove tag %s from task %d: %w", tagUUID, taskID, err)
	}
	return nil
}

// GetTaskTags returns all tag associations for a task, ordered by tag name
func (db *DB) GetTaskTags(ctx context.Context, taskID int64) ([]models.TagAssociation, error) {
	assocs, err := db.listAssociations(ctx, `
		SELECT `+associationColumns+` FROM task_tags
		WHERE task_id = ?
		ORDER BY tag_name COLLATE NOCASE
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get tags for task %d: %w", taskID, err)
	}
	return assocs, nil
}

// ListAssociationsByTag returns every association referencing a tag uuid
func (db *DB) ListAssociationsByTag(ctx context.Context, tagUUID string) ([]models.TagAssociation, error) {
	assocs, err := db.listAssociations(ctx, `
		SELECT `+associationColumns+` FROM task_tags
		WHERE tag_uuid = ?
		ORDER BY task_id
	`, tagUUID)
	if err != nil {
		return nil, fmt.Errorf("list associations for tag %s: %w", tagUUID, err)
	}
	return assocs, nil
}

// UpdateTagNameByUUID rewrites the denormalized name on every association
// of a tag in a single statement and returns the number of rows changed
func (db *DB) UpdateTagNameByUUID(ctx context.Context, tagUUID, name string) (int64, error) {
	result, err := db.q.ExecContext(ctx, "UPDATE task_tags SET tag_name = ? WHERE tag_uuid = ?", name, tagUUID)
	if err != nil {
		return 0, fmt.Errorf("rename associations for tag %s: %w", tagUUID, err)
	}
	return result.RowsAffected()
}

// DeleteByTagUUID removes every association of a tag and returns the number
// of rows removed
func (db *DB) DeleteByTagUUID(ctx context.Context, tagUUID string) (int64, error) {
	result, err := db.q.ExecContext(ctx, "DELETE FROM task_tags WHERE tag_uuid = ?", tagUUID)
	if err != nil {
		return 0, fmt.Errorf("delete associations for tag %s: %w", tagUUID, err)
	}
	return result.RowsAffected()
}
