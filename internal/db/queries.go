package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// AddProject registers path and returns the project. Registering an existing
// path returns the existing row.
func (d *DB) AddProject(ctx context.Context, path string) (*backend.Project, error) {
	_, err := d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO projects (path, name, created_at) VALUES (?, ?, ?) ON CONFLICT(path) DO NOTHING`),
		path, baseName(path), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("add project: %w", err)
	}
	return d.projectBy(ctx, "path", path)
}

// GetProject returns a project by id.
func (d *DB) GetProject(ctx context.Context, id int64) (*backend.Project, error) {
	return d.projectBy(ctx, "id", id)
}

// FindProject returns a project by path.
func (d *DB) FindProject(ctx context.Context, path string) (*backend.Project, error) {
	return d.projectBy(ctx, "path", path)
}

func (d *DB) projectBy(ctx context.Context, column string, value any) (*backend.Project, error) {
	var p backend.Project
	err := d.conn.QueryRowContext(ctx,
		d.rebind(`SELECT id, path, name, created_at FROM projects WHERE `+column+` = ?`), value,
	).Scan(&p.ID, &p.Path, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %v: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by id.
func (d *DB) ListProjects(ctx context.Context) ([]backend.Project, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, path, name, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []backend.Project
	for rows.Next() {
		var p backend.Project
		if err := rows.Scan(&p.ID, &p.Path, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RemoveProject deletes a project with its session log and folder links.
func (d *DB) RemoveProject(ctx context.Context, id int64) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("remove project: %w", err)
	}
	return affected(res, fmt.Sprintf("project %d", id))
}

// AppendSessionEvent adds an entry to a project's session log.
func (d *DB) AppendSessionEvent(ctx context.Context, projectID int64, kind, role, text string) error {
	_, err := d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO session_events (project_id, kind, role, text, created_at) VALUES (?, ?, ?, ?, ?)`),
		projectID, kind, role, text, now(),
	)
	if err != nil {
		return fmt.Errorf("append session event: %w", err)
	}
	return nil
}

// ListSessions returns a project's session log in append order.
func (d *DB) ListSessions(ctx context.Context, projectID int64) ([]backend.SessionEvent, error) {
	rows, err := d.conn.QueryContext(ctx,
		d.rebind(`SELECT id, project_id, kind, role, text, created_at FROM session_events WHERE project_id = ? ORDER BY id`),
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []backend.SessionEvent
	for rows.Next() {
		var e backend.SessionEvent
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Kind, &e.Role, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HistoryItem is a stored request snapshot. Payload is opaque JSON.
type HistoryItem struct {
	ID        string
	Title     string
	Payload   []byte
	CreatedAt string
}

// SaveHistory inserts or replaces a snapshot.
func (d *DB) SaveHistory(ctx context.Context, item HistoryItem) error {
	_, err := d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO request_history (id, title, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, payload = excluded.payload`),
		item.ID, item.Title, string(item.Payload), item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// ListHistory returns snapshots, newest first.
func (d *DB) ListHistory(ctx context.Context) ([]HistoryItem, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, title, payload, created_at FROM request_history ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryItem
	for rows.Next() {
		var h HistoryItem
		var payload string
		if err := rows.Scan(&h.ID, &h.Title, &payload, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Payload = []byte(payload)
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHistory removes a snapshot.
func (d *DB) DeleteHistory(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`DELETE FROM request_history WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return affected(res, "request "+id)
}

// Profile is a named set of settings overrides.
type Profile struct {
	Name      string            `json:"name"`
	Settings  map[string]string `json:"settings"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

// SaveProfile inserts or replaces a profile.
func (d *DB) SaveProfile(ctx context.Context, p Profile) error {
	data, err := encodeSettings(p.Settings)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO profiles (name, settings, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`),
		p.Name, data, now(),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// GetProfile returns a profile by name.
func (d *DB) GetProfile(ctx context.Context, name string) (*Profile, error) {
	var p Profile
	var raw string
	err := d.conn.QueryRowContext(ctx,
		d.rebind(`SELECT name, settings, updated_at FROM profiles WHERE name = ?`), name,
	).Scan(&p.Name, &raw, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &p.Settings); err != nil {
		return nil, fmt.Errorf("decode profile %q: %w", name, err)
	}
	return &p, nil
}

// ListProfiles returns all profiles ordered by name.
func (d *DB) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT name, settings, updated_at FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var raw string
		if err := rows.Scan(&p.Name, &raw, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &p.Settings); err != nil {
			return nil, fmt.Errorf("decode profile %q: %w", p.Name, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile.
func (d *DB) DeleteProfile(ctx context.Context, name string) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`DELETE FROM profiles WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return affected(res, "profile "+name)
}

// FolderLink attaches an extra folder to a project.
type FolderLink struct {
	ProjectID int64  `json:"project_id,omitempty"`
	Folder    string `json:"folder"`
	Label     string `json:"label,omitempty"`
}

// LinkFolder adds or relabels a folder link.
func (d *DB) LinkFolder(ctx context.Context, link FolderLink) error {
	_, err := d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO folder_links (project_id, folder, label) VALUES (?, ?, ?)
		 ON CONFLICT(project_id, folder) DO UPDATE SET label = excluded.label`),
		link.ProjectID, link.Folder, link.Label,
	)
	if err != nil {
		return fmt.Errorf("link folder: %w", err)
	}
	return nil
}

// UnlinkFolder removes a folder link.
func (d *DB) UnlinkFolder(ctx context.Context, projectID int64, folder string) error {
	res, err := d.conn.ExecContext(ctx,
		d.rebind(`DELETE FROM folder_links WHERE project_id = ? AND folder = ?`), projectID, folder)
	if err != nil {
		return fmt.Errorf("unlink folder: %w", err)
	}
	return affected(res, "folder link "+folder)
}

// ListFolderLinks returns a project's folder links ordered by folder.
func (d *DB) ListFolderLinks(ctx context.Context, projectID int64) ([]FolderLink, error) {
	rows, err := d.conn.QueryContext(ctx,
		d.rebind(`SELECT project_id, folder, label FROM folder_links WHERE project_id = ? ORDER BY folder`), projectID)
	if err != nil {
		return nil, fmt.Errorf("list folder links: %w", err)
	}
	defer rows.Close()

	var out []FolderLink
	for rows.Next() {
		var l FolderLink
		if err := rows.Scan(&l.ProjectID, &l.Folder, &l.Label); err != nil {
			return nil, fmt.Errorf("scan folder link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetSetting stores a key/value setting.
func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// GetSetting returns a setting's value.
func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := d.conn.QueryRowContext(ctx, d.rebind(`SELECT value FROM settings WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// ListSettings returns all settings.
func (d *DB) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
