// Package linklog persists the mapping from real identifiers to synthetic
// ones and the audit trail of admitted studies.
//
// The authoritative keyed store is SQLite (WAL journal, unique keys, one
// allocation transaction per first encounter) under the configured link-log
// directory, next to the human-auditable linklog.txt projection: one
// tab-separated "studyID<TAB>accession" line per admitted series, appended
// only after its output file was actually written. A directory-level flock
// enforces the single-writer discipline across processes; in-process
// allocation is serialized behind a mutex.
//
// Identifiers are never reassigned, reused, or deleted. A store that cannot
// be parsed surfaces ErrCorruptLog; a key observed with two different values
// surfaces ErrInconsistentState. Both are fatal to the batch.
package linklog
