package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tgienger/stmtags/internal/models"
)

// CreateTask creates a new task
func (db *DB) CreateTask(ctx context.Context, title string) (*models.Task, error) {
	result, err := db.q.ExecContext(ctx, "INSERT INTO tasks (title) VALUES (?)", title)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return db.GetTask(ctx, id)
}

// GetTask retrieves a task by ID with its tags, or nil if there is none
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	t := &models.Task{}
	err := db.q.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id).Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}

	tags, err := db.GetTaskTags(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Tags = tags

	return t, nil
}

// ListTasksByTag returns all tasks carrying a tag, newest first
func (db *DB) ListTasksByTag(ctx context.Context, tagUUID string) ([]models.Task, error) {
	rows, err := db.q.QueryContext(ctx, `
		SELECT t.id, t.title, t.created_at, t.updated_at
		FROM tasks t
		JOIN task_tags tt ON t.id = tt.task_id
		WHERE tt.tag_uuid = ?
		ORDER BY t.created_at DESC, t.id DESC
	`, tagUUID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for tag %s: %w", tagUUID, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list tasks for tag %s: %w", tagUUID, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Load tags for each task
	for i := range tasks {
		tags, err := db.GetTaskTags(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Tags = tags
	}

	return tasks, nil
}

// DeleteTask deletes a task and, through the foreign key, its tag associations
func (db *DB) DeleteTask(ctx context.Context, id int64) error {
	if _, err := db.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}
