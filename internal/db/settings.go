package db

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
)

// ExportVersion is the format version written by ExportSettings.
const ExportVersion = 1

// ImportMode controls how ImportSettings treats existing data.
type ImportMode string

const (
	// ImportReplace drops existing settings, profiles, folder links and
	// session logs first.
	ImportReplace ImportMode = "replace"
	// ImportMerge keeps existing data; imported entries win on conflict.
	ImportMerge ImportMode = "merge"
)

// ExportedSession is one session log entry, detached from its project id.
type ExportedSession struct {
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// ExportedProject is a project with its folder links and session log, keyed
// by path.
type ExportedProject struct {
	Path     string            `json:"path"`
	Links    []FolderLink      `json:"links,omitempty"`
	Sessions []ExportedSession `json:"sessions,omitempty"`
}

// SettingsExport is the portable settings document.
type SettingsExport struct {
	Version  int               `json:"version"`
	Settings map[string]string `json:"settings"`
	Profiles []Profile         `json:"profiles"`
	Projects []ExportedProject `json:"projects"`
}

// ExportSettings collects settings, profiles, projects, folder links and
// session logs. Request history is not exported.
func (d *DB) ExportSettings(ctx context.Context) (*SettingsExport, error) {
	settings, err := d.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := d.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		profiles[i].UpdatedAt = ""
	}
	projects, err := d.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	exp := &SettingsExport{Version: ExportVersion, Settings: settings, Profiles: profiles}
	for _, p := range projects {
		links, err := d.ListFolderLinks(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for i := range links {
			links[i].ProjectID = 0
		}
		events, err := d.ListSessions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		var sessions []ExportedSession
		for _, e := range events {
			sessions = append(sessions, ExportedSession{Kind: e.Kind, Role: e.Role, Text: e.Text, CreatedAt: e.CreatedAt})
		}
		exp.Projects = append(exp.Projects, ExportedProject{Path: p.Path, Links: links, Sessions: sessions})
	}
	sort.Slice(exp.Projects, func(i, j int) bool { return exp.Projects[i].Path < exp.Projects[j].Path })
	return exp, nil
}

// ImportSettings loads an export document in a single transaction.
func (d *DB) ImportSettings(ctx context.Context, exp *SettingsExport, mode ImportMode) error {
	if exp == nil {
		return fmt.Errorf("import settings: empty document")
	}
	if exp.Version != ExportVersion {
		return fmt.Errorf("import settings: unsupported version %d", exp.Version)
	}
	if mode != ImportReplace && mode != ImportMerge {
		return fmt.Errorf("import settings: unknown mode %q", mode)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if mode == ImportReplace {
		for _, t := range []string{"folder_links", "session_events", "profiles", "settings"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
	}

	for k, v := range exp.Settings {
		if _, err := tx.ExecContext(ctx,
			d.rebind(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`),
			k, v); err != nil {
			return fmt.Errorf("import setting %q: %w", k, err)
		}
	}
	for _, p := range exp.Profiles {
		data, err := encodeSettings(p.Settings)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			d.rebind(`INSERT INTO profiles (name, settings, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`),
			p.Name, data, now()); err != nil {
			return fmt.Errorf("import profile %q: %w", p.Name, err)
		}
	}
	for _, p := range exp.Projects {
		if _, err := tx.ExecContext(ctx,
			d.rebind(`INSERT INTO projects (path, name, created_at) VALUES (?, ?, ?) ON CONFLICT(path) DO NOTHING`),
			p.Path, baseName(p.Path), now()); err != nil {
			return fmt.Errorf("import project %q: %w", p.Path, err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, d.rebind(`SELECT id FROM projects WHERE path = ?`), p.Path).Scan(&id); err != nil {
			return fmt.Errorf("resolve project %q: %w", p.Path, err)
		}
		for _, l := range p.Links {
			if _, err := tx.ExecContext(ctx,
				d.rebind(`INSERT INTO folder_links (project_id, folder, label) VALUES (?, ?, ?)
				 ON CONFLICT(project_id, folder) DO UPDATE SET label = excluded.label`),
				id, l.Folder, l.Label); err != nil {
				return fmt.Errorf("import folder link %q: %w", l.Folder, err)
			}
		}
		// A merge skips entries already present so importing the same
		// document twice does not duplicate a log.
		for _, e := range p.Sessions {
			createdAt := e.CreatedAt
			if createdAt == "" {
				createdAt = now()
			}
			if mode == ImportMerge {
				var n int
				if err := tx.QueryRowContext(ctx,
					d.rebind(`SELECT COUNT(*) FROM session_events
					 WHERE project_id = ? AND kind = ? AND role = ? AND text = ? AND created_at = ?`),
					id, e.Kind, e.Role, e.Text, createdAt).Scan(&n); err != nil {
					return fmt.Errorf("check session event for %q: %w", p.Path, err)
				}
				if n > 0 {
					continue
				}
			}
			if _, err := tx.ExecContext(ctx,
				d.rebind(`INSERT INTO session_events (project_id, kind, role, text, created_at) VALUES (?, ?, ?, ?, ?)`),
				id, e.Kind, e.Role, e.Text, createdAt); err != nil {
				return fmt.Errorf("import session event for %q: %w", p.Path, err)
			}
		}
	}
	return tx.Commit()
}

func encodeSettings(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	return string(data), nil
}

func baseName(path string) string {
	return filepath.Base(path)
}
