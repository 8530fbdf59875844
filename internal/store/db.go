package store

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
	"github.com/openridge/trackmap/internal/monitoring"
	"github.com/openridge/trackmap/internal/track"
)

// DB is the sqlite-backed Repository.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the activity database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS activities (
			id             BIGINT PRIMARY KEY,
			min_lon        DOUBLE,
			min_lat        DOUBLE,
			max_lon        DOUBLE,
			max_lat        DOUBLE,
			geometries     TEXT,
			start_time     TEXT,
			end_time       TEXT,
			duration_s     DOUBLE,
			distance_m     DOUBLE,
			activity_type  TEXT,
			activity_raw   TEXT,
			source_file    TEXT,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// SaveActivity implements Repository. Geometries are stored as a JSON
// object keyed by tier, mirroring the in-memory representation.
func (db *DB) SaveActivity(a *track.Activity) error {
	geoms, err := json.Marshal(a.Geometries)
	if err != nil {
		return fmt.Errorf("failed to encode geometries: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO activities (
			id, min_lon, min_lat, max_lon, max_lat, geometries,
			start_time, end_time, duration_s, distance_m,
			activity_type, activity_raw, source_file
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BBox.MinLon(), a.BBox.MinLat(), a.BBox.MaxLon(), a.BBox.MaxLat(),
		string(geoms),
		encodeTime(a.Metadata.StartTime), encodeTime(a.Metadata.EndTime),
		a.Metadata.Duration, a.Metadata.Distance,
		a.Metadata.ActivityType, a.Metadata.ActivityRaw, a.Metadata.SourceFile,
	)
	if err != nil {
		return fmt.Errorf("failed to save activity %d: %w", a.ID, err)
	}
	return nil
}

// LoadAll implements Repository. Rows that fail to decode are skipped with
// a log line rather than failing the whole session load.
func (db *DB) LoadAll() ([]*track.Activity, error) {
	rows, err := db.Query(
		`SELECT id, min_lon, min_lat, max_lon, max_lat, geometries,
			start_time, end_time, duration_s, distance_m,
			activity_type, activity_raw, source_file
		FROM activities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []*track.Activity
	for rows.Next() {
		var (
			a          track.Activity
			geoms      string
			start, end string
		)
		if err := rows.Scan(
			&a.ID, &a.BBox[0], &a.BBox[1], &a.BBox[2], &a.BBox[3], &geoms,
			&start, &end, &a.Metadata.Duration, &a.Metadata.Distance,
			&a.Metadata.ActivityType, &a.Metadata.ActivityRaw, &a.Metadata.SourceFile,
		); err != nil {
			return nil, err
		}
		a.Geometries = make(map[lod.Tier][]geo.Point)
		if err := json.Unmarshal([]byte(geoms), &a.Geometries); err != nil {
			monitoring.Logf("store: skipping activity %d: bad geometry payload: %v", a.ID, err)
			continue
		}
		a.Metadata.StartTime = decodeTime(start)
		a.Metadata.EndTime = decodeTime(end)
		ac := a
		activities = append(activities, &ac)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AttachAdminRoutes mounts the live-SQL debugger and a backup endpoint on
// the debug mux. Accessible only in dev mode or over the ops network.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("store: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://activities.db", db.DB, &tailsql.DBOptions{
		Label: "Activities DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the activity database", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("store: failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			monitoring.Logf("store: failed to stream backup: %v", err)
		}
	}))
}
