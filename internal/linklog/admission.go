package linklog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scrub/internal/logging"
)

// CommitAdmission records that the output file for id was written. It bumps
// the admission count for the identity tuple and, on the first written file
// of a series, appends the audit entry "studyID<TAB>accession" exactly once.
// Callers must invoke this only after the write succeeded, so the audit file
// never names a study whose records do not exist on disk.
func (l *Log) CommitAdmission(ctx context.Context, id Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.withRetry(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin admission tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO admissions (tuple_key, count) VALUES (?, 1)
             ON CONFLICT(tuple_key) DO UPDATE SET count = count + 1`,
			id.tupleKey()); err != nil {
			return fmt.Errorf("record admission: %w", err)
		}

		var logged int
		err = tx.QueryRowContext(ctx, "SELECT logged FROM series WHERE series_key = ?", id.SeriesKey).Scan(&logged)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: admission for unknown series %q", ErrInconsistentState, id.SeriesKey)
		}
		if err != nil {
			return fmt.Errorf("lookup series: %w", err)
		}

		if logged == 0 {
			// Append before flipping the flag: a crash in between can only
			// duplicate an identical line, never lose one. Verify tolerates
			// identical duplicates.
			if err := l.appendEntry(id.Study, id.Accession); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE series SET logged = 1 WHERE series_key = ?", id.SeriesKey); err != nil {
				return fmt.Errorf("mark series logged: %w", err)
			}
			l.logger.Debug("audit entry appended",
				logging.Int64("study_id", id.Study),
				logging.Int64("accession", id.Accession),
			)
		}

		return tx.Commit()
	})
}

func (l *Log) appendEntry(studyID, accession int64) error {
	if _, err := fmt.Fprintf(l.audit, "%d\t%d\n", studyID, accession); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if err := l.audit.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}
