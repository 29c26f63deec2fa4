package linklog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"scrub/internal/logging"
)

const (
	dbFileName    = "linklog.db"
	auditFileName = "linklog.txt"
	lockFileName  = "linklog.lock"
)

// Log is the durable identity store. It owns the SQLite keyed store, the
// append-only audit file, and the cross-process lock for a link-log
// directory. All allocation goes through a single in-process writer.
type Log struct {
	dir    string
	db     *sql.DB
	audit  *os.File
	lock   *flock.Flock
	logger *slog.Logger

	mu sync.Mutex // serializes allocation and audit appends
}

// Request carries the normalized identity keys of one record. Keys are
// opaque to the store; the identity resolver derives them.
type Request struct {
	RealID      string
	StudyKey    string
	SeriesKey   string
	InstanceKey string
}

// Identity is the resolved synthetic identity bundle for one record.
type Identity struct {
	Request

	Patient   int64 // synthetic patient identifier
	Study     int64 // synthetic study identifier
	Accession int64 // accession number, scoped per patient
	Series    int64 // synthetic series identifier
	Instance  int64 // synthetic instance identifier
}

// tupleKey is the admission dedup key over the full synthetic tuple,
// mirroring the master log of prior implementations.
func (id Identity) tupleKey() string {
	return fmt.Sprintf("%d/%d/%d/%d/%d", id.Patient, id.Accession, id.Study, id.Series, id.Instance)
}

// Open loads or creates the link log in dir. It acquires the directory lock,
// initializes the schema, verifies the audit projection against the keyed
// store, and opens the audit file for appending.
func Open(dir string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create link log directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire link log lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open link log db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Log{dir: dir, db: db, lock: lock, logger: logger.With(logging.String(logging.FieldComponent, "linklog"))}

	ctx := context.Background()
	if err := l.checkIntegrity(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	audit, err := os.OpenFile(filepath.Join(dir, auditFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l.audit = audit

	if err := l.Verify(ctx); err != nil {
		_ = audit.Close()
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	l.logger.Info("link log opened", logging.String("dir", dir))
	return l, nil
}

// Close flushes the audit file, closes the store, and releases the lock.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	var errs []error
	if l.audit != nil {
		if err := l.audit.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync audit log: %w", err))
		}
		if err := l.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit log: %w", err))
		}
		l.audit = nil
	}
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close link log db: %w", err))
		}
		l.db = nil
	}
	if l.lock != nil {
		if err := l.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release link log lock: %w", err))
		}
		l.lock = nil
	}
	return errors.Join(errs...)
}

// Dir returns the link log directory.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) checkIntegrity(ctx context.Context) error {
	var result string
	if err := l.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check: %v", ErrCorruptLog, err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("%w: integrity check reported %q", ErrCorruptLog, result)
	}
	return nil
}

// Resolve returns the synthetic identity for req, allocating any identifiers
// not yet assigned. Idempotent for a given request after the first successful
// call: re-resolving always returns the identical values, across restarts and
// regardless of which worker asks first.
func (l *Log) Resolve(ctx context.Context, req Request) (Identity, error) {
	if req.RealID == "" || req.StudyKey == "" || req.SeriesKey == "" || req.InstanceKey == "" {
		return Identity{}, errors.New("resolve: empty identity key")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var id Identity
	err := l.withRetry(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin resolve tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		resolved, err := resolveInTx(ctx, tx, req)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit resolve tx: %w", err)
		}
		id = resolved
		return nil
	})
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func resolveInTx(ctx context.Context, tx *sql.Tx, req Request) (Identity, error) {
	id := Identity{Request: req}

	// Patient: global counter on first encounter.
	err := tx.QueryRowContext(ctx, "SELECT synthetic_id FROM patients WHERE real_id = ?", req.RealID).Scan(&id.Patient)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value, err := nextCounter(ctx, tx, "patient")
		if err != nil {
			return Identity{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO patients (real_id, synthetic_id, last_accession) VALUES (?, ?, 0)",
			req.RealID, value); err != nil {
			return Identity{}, fmt.Errorf("insert patient: %w", err)
		}
		id.Patient = value
	case err != nil:
		return Identity{}, fmt.Errorf("lookup patient: %w", err)
	}

	// Study: global study counter plus the patient-scoped accession counter,
	// each incremented exactly once per newly encountered study.
	err = tx.QueryRowContext(ctx, "SELECT study_id, accession FROM studies WHERE study_key = ?", req.StudyKey).
		Scan(&id.Study, &id.Accession)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		studyID, err := nextCounter(ctx, tx, "study")
		if err != nil {
			return Identity{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE patients SET last_accession = last_accession + 1 WHERE real_id = ?", req.RealID); err != nil {
			return Identity{}, fmt.Errorf("advance accession: %w", err)
		}
		var accession int64
		if err := tx.QueryRowContext(ctx,
			"SELECT last_accession FROM patients WHERE real_id = ?", req.RealID).Scan(&accession); err != nil {
			return Identity{}, fmt.Errorf("read accession: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO studies (study_key, real_id, study_id, accession) VALUES (?, ?, ?, ?)",
			req.StudyKey, req.RealID, studyID, accession); err != nil {
			return Identity{}, fmt.Errorf("insert study: %w", err)
		}
		id.Study, id.Accession = studyID, accession
	case err != nil:
		return Identity{}, fmt.Errorf("lookup study: %w", err)
	}

	// Series: global counter; the logged flag defers the audit entry until
	// the first output file of the series is actually written.
	err = tx.QueryRowContext(ctx, "SELECT series_id FROM series WHERE series_key = ?", req.SeriesKey).Scan(&id.Series)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value, err := nextCounter(ctx, tx, "series")
		if err != nil {
			return Identity{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO series (series_key, study_key, series_id, logged) VALUES (?, ?, ?, 0)",
			req.SeriesKey, req.StudyKey, value); err != nil {
			return Identity{}, fmt.Errorf("insert series: %w", err)
		}
		id.Series = value
	case err != nil:
		return Identity{}, fmt.Errorf("lookup series: %w", err)
	}

	// Instance: global counter.
	err = tx.QueryRowContext(ctx, "SELECT instance_id FROM instances WHERE instance_key = ?", req.InstanceKey).Scan(&id.Instance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value, err := nextCounter(ctx, tx, "instance")
		if err != nil {
			return Identity{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO instances (instance_key, instance_id) VALUES (?, ?)",
			req.InstanceKey, value); err != nil {
			return Identity{}, fmt.Errorf("insert instance: %w", err)
		}
		id.Instance = value
	case err != nil:
		return Identity{}, fmt.Errorf("lookup instance: %w", err)
	}

	return id, nil
}

func nextCounter(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE counters SET value = value + 1 WHERE name = ?", name); err != nil {
		return 0, fmt.Errorf("advance counter %q: %w", name, err)
	}
	var value int64
	if err := tx.QueryRowContext(ctx, "SELECT value FROM counters WHERE name = ?", name).Scan(&value); err != nil {
		return 0, fmt.Errorf("read counter %q: %w", name, err)
	}
	return value, nil
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (l *Log) withRetry(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
