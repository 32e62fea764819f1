// Package archive persists resolved bindings across analysis runs and
// detects identity drift between them. Opaque type identity must be
// stable across separate compilations; the archive makes that guarantee
// observable instead of assumed.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/opaline-lang/opaline/internal/opaque"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	module     TEXT NOT NULL,
	session    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS bindings (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	decl       TEXT NOT NULL,
	key        TEXT NOT NULL,
	underlying TEXT NOT NULL,
	caps       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS bindings_by_run ON bindings(run_id);
`

// Archive is a binding history backed by a SQLite file.
type Archive struct {
	db *sql.DB
}

// Open opens the archive at path, creating the file and schema when
// they do not exist yet.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Record snapshots every binding of a report as one run under the given
// module label and returns the run's ID.
func (a *Archive) Record(ctx context.Context, module string, report *opaque.Report) (string, error) {
	runID := uuid.NewString()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, module, session, created_at) VALUES (?, ?, ?, ?)`,
		runID, module, report.SessionID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	for _, b := range report.Bindings {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bindings (run_id, decl, key, underlying, caps) VALUES (?, ?, ?, ?, ?)`,
			runID, b.Decl, b.Key, b.Underlying, b.Caps)
		if err != nil {
			return "", fmt.Errorf("recording binding %s: %w", b.Decl, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return runID, nil
}

// Drift is one opaque key whose underlying type changed between the
// latest recorded run and the current report.
type Drift struct {
	Decl string
	Key  string
	Old  string
	New  string
}

func (d Drift) String() string {
	return fmt.Sprintf("%s (key %s): %s -> %s", d.Decl, d.Key, d.Old, d.New)
}

// Check compares a report against the latest recorded run of the same
// module. Keys absent from either side are not drift; a key present in
// both with a different underlying type is.
func (a *Archive) Check(ctx context.Context, module string, report *opaque.Report) ([]Drift, error) {
	runID, ok, err := a.latestRun(ctx, module)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	prior := map[string]string{}
	rows, err := a.db.QueryContext(ctx,
		`SELECT decl, key, underlying FROM bindings WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var decl, key, underlying string
		if err := rows.Scan(&decl, &key, &underlying); err != nil {
			return nil, fmt.Errorf("reading run %s: %w", runID, err)
		}
		prior[identity(decl, key)] = underlying
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	var drifts []Drift
	for _, b := range report.Bindings {
		old, seen := prior[identity(b.Decl, b.Key)]
		if !seen || old == b.Underlying {
			continue
		}
		drifts = append(drifts, Drift{Decl: b.Decl, Key: b.Key, Old: old, New: b.Underlying})
	}
	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].Decl != drifts[j].Decl {
			return drifts[i].Decl < drifts[j].Decl
		}
		return drifts[i].Key < drifts[j].Key
	})
	return drifts, nil
}

// identity is a binding's cross-run identity: the declaration's
// qualified name plus the key's argument list. The leading numeric part
// of a key is session-local registration order and means nothing across
// compilations.
func identity(decl, key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return decl + key[i:]
	}
	return decl
}

func (a *Archive) latestRun(ctx context.Context, module string) (string, bool, error) {
	var runID string
	err := a.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE module = ? ORDER BY rowid DESC LIMIT 1`, module).Scan(&runID)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("finding latest run for %s: %w", module, err)
	}
	return runID, true, nil
}
