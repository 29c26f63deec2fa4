package linklog_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"scrub/internal/linklog"
	"scrub/internal/logging"
	"scrub/internal/testsupport"
)

func request(patient, study, series, instance string) linklog.Request {
	studyKey := patient + "\x1f" + study
	seriesKey := studyKey + "\x1f" + series
	return linklog.Request{
		RealID:      patient,
		StudyKey:    studyKey,
		SeriesKey:   seriesKey,
		InstanceKey: seriesKey + "\x1f" + instance,
	}
}

func TestResolveAssignsSequentialIdentifiers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	first, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.Patient != 1 || first.Study != 1 || first.Series != 1 || first.Instance != 1 {
		t.Fatalf("unexpected first identity: %+v", first)
	}
	if first.Accession != 1 {
		t.Fatalf("expected first accession 1, got %d", first.Accession)
	}

	second, err := log.Resolve(ctx, request("MRN-2", "s2", "se2", "i2"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if second.Patient != 2 || second.Study != 2 {
		t.Fatalf("expected distinct identifiers for second patient, got %+v", second)
	}
	if second.Accession != 1 {
		t.Fatalf("accession numbering is per patient, got %d", second.Accession)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	req := request("MRN-1", "s1", "se1", "i1")

	first, err := log.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := log.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first != second {
		t.Fatalf("repeated resolution diverged: %+v vs %+v", first, second)
	}
}

func TestResolveSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	log, err := linklog.Open(cfg.Paths.LinkLogDir, logging.NewNop())
	if err != nil {
		t.Fatalf("open link log: %v", err)
	}

	ctx := context.Background()
	req := request("MRN-1", "s1", "se1", "i1")
	first, err := log.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := log.Resolve(ctx, request("MRN-2", "s2", "se2", "i2")); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close link log: %v", err)
	}

	reopened := testsupport.MustOpenLog(t, cfg)
	again, err := reopened.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve after reopen failed: %v", err)
	}
	if first != again {
		t.Fatalf("identity changed across reopen: %+v vs %+v", first, again)
	}

	fresh, err := reopened.Resolve(ctx, request("MRN-3", "s3", "se3", "i3"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if fresh.Patient != 3 {
		t.Fatalf("counters must continue after reopen, got patient %d", fresh.Patient)
	}
}

func TestAccessionIncrementsPerStudyWithinPatient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	first, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := log.Resolve(ctx, request("MRN-1", "s2", "se2", "i2"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.Patient != second.Patient {
		t.Fatalf("same real patient must share a synthetic patient: %d vs %d", first.Patient, second.Patient)
	}
	if second.Accession != first.Accession+1 {
		t.Fatalf("expected accession %d, got %d", first.Accession+1, second.Accession)
	}
	if second.Study == first.Study {
		t.Fatal("distinct studies must not share a synthetic study identifier")
	}
}

func TestOpenRejectsSecondHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustOpenLog(t, cfg)

	_, err := linklog.Open(cfg.Paths.LinkLogDir, logging.NewNop())
	if !errors.Is(err, linklog.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestCommitAdmissionAppendsEntryOncePerSeries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	first, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	sibling, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i2"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	other, err := log.Resolve(ctx, request("MRN-1", "s1", "se2", "i3"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, id := range []linklog.Identity{first, sibling, other} {
		if err := log.CommitAdmission(ctx, id); err != nil {
			t.Fatalf("CommitAdmission failed: %v", err)
		}
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one entry per series, got %d: %+v", len(entries), entries)
	}
	for _, entry := range entries {
		if entry.StudyID != first.Study || entry.Accession != first.Accession {
			t.Fatalf("unexpected entry %+v (study %d accession %d)", entry, first.Study, first.Accession)
		}
	}
}

func TestCommitAdmissionRejectsUnknownSeries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	id := linklog.Identity{
		Request:   request("MRN-1", "s1", "se1", "i1"),
		Patient:   1,
		Study:     1,
		Accession: 1,
		Series:    1,
		Instance:  1,
	}
	err := log.CommitAdmission(context.Background(), id)
	if !errors.Is(err, linklog.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}
}

func TestVerifyDetectsConflictingAccessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	id, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := log.CommitAdmission(ctx, id); err != nil {
		t.Fatalf("CommitAdmission failed: %v", err)
	}
	if err := log.Verify(ctx); err != nil {
		t.Fatalf("Verify on a healthy log failed: %v", err)
	}

	auditPath := filepath.Join(cfg.Paths.LinkLogDir, "linklog.txt")
	line := fmt.Sprintf("%d\t%d\n", id.Study, id.Accession+7)
	appendToFile(t, auditPath, line)

	if err := log.Verify(ctx); !errors.Is(err, linklog.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}
}

func TestVerifyToleratesDuplicateIdenticalEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	id, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := log.CommitAdmission(ctx, id); err != nil {
		t.Fatalf("CommitAdmission failed: %v", err)
	}

	// The crash window in CommitAdmission can repeat an identical line.
	auditPath := filepath.Join(cfg.Paths.LinkLogDir, "linklog.txt")
	appendToFile(t, auditPath, fmt.Sprintf("%d\t%d\n", id.Study, id.Accession))

	if err := log.Verify(ctx); err != nil {
		t.Fatalf("Verify must tolerate duplicate identical entries: %v", err)
	}
}

func TestEntriesRejectsMalformedAuditFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	auditPath := filepath.Join(cfg.Paths.LinkLogDir, "linklog.txt")
	appendToFile(t, auditPath, "not-a-number\t3\n")

	if _, err := log.Entries(); !errors.Is(err, linklog.ErrCorruptLog) {
		t.Fatalf("expected ErrCorruptLog, got %v", err)
	}
}

func TestStatsCountsAssignments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	id, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i2")); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := log.CommitAdmission(ctx, id); err != nil {
		t.Fatalf("CommitAdmission failed: %v", err)
	}

	stats, err := log.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Patients != 1 || stats.Studies != 1 || stats.Series != 1 || stats.Instances != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected 1 audit entry, got %d", stats.Entries)
	}
}

func TestReadEntriesWithoutOpeningStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)

	ctx := context.Background()
	id, err := log.Resolve(ctx, request("MRN-1", "s1", "se1", "i1"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := log.CommitAdmission(ctx, id); err != nil {
		t.Fatalf("CommitAdmission failed: %v", err)
	}

	entries, err := linklog.ReadEntries(cfg.Paths.LinkLogDir)
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].StudyID != id.Study || entries[0].Accession != id.Accession {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func appendToFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append to %s: %v", path, err)
	}
}
