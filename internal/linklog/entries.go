package linklog

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is one line of the audit projection.
type Entry struct {
	StudyID   int64
	Accession int64
}

// Stats summarizes the identifiers the store has assigned.
type Stats struct {
	Patients  int64
	Studies   int64
	Series    int64
	Instances int64
	Entries   int64
}

// Entries parses the audit file and returns its lines in order.
func (l *Log) Entries() ([]Entry, error) {
	return readEntries(filepath.Join(l.dir, auditFileName))
}

func readEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: audit line %d: expected 2 tab-separated fields, got %d", ErrCorruptLog, line, len(fields))
		}
		studyID, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: audit line %d: study id %q", ErrCorruptLog, line, fields[0])
		}
		accession, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: audit line %d: accession %q", ErrCorruptLog, line, fields[1])
		}
		entries = append(entries, Entry{StudyID: studyID, Accession: accession})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return entries, nil
}

// Verify cross-checks the audit projection against the keyed store. A study
// identifier paired with two different accessions, or an audit pair the store
// does not know, indicates a prior race or partial write and is fatal.
func (l *Log) Verify(ctx context.Context) error {
	entries, err := l.Entries()
	if err != nil {
		return err
	}

	seen := make(map[int64]int64, len(entries))
	for _, entry := range entries {
		if accession, ok := seen[entry.StudyID]; ok {
			if accession != entry.Accession {
				return fmt.Errorf("%w: study %d recorded with accessions %d and %d",
					ErrInconsistentState, entry.StudyID, accession, entry.Accession)
			}
			continue
		}
		seen[entry.StudyID] = entry.Accession

		var stored int64
		err := l.db.QueryRowContext(ctx, "SELECT accession FROM studies WHERE study_id = ?", entry.StudyID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: audit names study %d absent from the store", ErrInconsistentState, entry.StudyID)
		}
		if err != nil {
			return fmt.Errorf("lookup study %d: %w", entry.StudyID, err)
		}
		if stored != entry.Accession {
			return fmt.Errorf("%w: study %d has accession %d in the store but %d in the audit log",
				ErrInconsistentState, entry.StudyID, stored, entry.Accession)
		}
	}
	return nil
}

// Stats reports how many identifiers have been assigned and entries logged.
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(1) FROM patients", &stats.Patients},
		{"SELECT COUNT(1) FROM studies", &stats.Studies},
		{"SELECT COUNT(1) FROM series", &stats.Series},
		{"SELECT COUNT(1) FROM instances", &stats.Instances},
	}
	for _, q := range queries {
		if err := l.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Stats{}, fmt.Errorf("link log stats: %w", err)
		}
	}
	entries, err := l.Entries()
	if err != nil {
		return Stats{}, err
	}
	stats.Entries = int64(len(entries))
	return stats, nil
}

// ReadEntries parses the audit file in dir without opening the full store.
// Used by read-only CLI commands while a run may hold the directory lock.
func ReadEntries(dir string) ([]Entry, error) {
	return readEntries(filepath.Join(dir, auditFileName))
}
