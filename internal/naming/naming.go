// Package naming derives deterministic output paths for transformed records.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"

	"scrub/internal/record"
)

// Extension is the fixed output file extension.
const Extension = ".dcm"

// Grouping selects the output directory layout.
type Grouping string

const (
	// GroupingStudy writes one subfolder per synthetic study identifier.
	GroupingStudy Grouping = "study"
	// GroupingPatient writes one subfolder per synthetic patient identifier.
	GroupingPatient Grouping = "patient"
	// GroupingNone writes a flat output directory.
	GroupingNone Grouping = "none"
)

// ParseGrouping accepts the long names and the single-letter forms of the
// historical command line (s/m/n).
func ParseGrouping(value string) (Grouping, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "study", "s":
		return GroupingStudy, nil
	case "patient", "m", "mrn":
		return GroupingPatient, nil
	case "none", "n", "flat", "":
		return GroupingNone, nil
	default:
		return "", fmt.Errorf("unknown grouping %q (expected study, patient, or none)", value)
	}
}

var cleanReplacer = strings.NewReplacer(
	"/", "", "(", "", ")", "", "^", "", "[", "", "]", "", ";", "", ":", "",
	" ", "-",
)

// Clean strips characters that are unsafe in file names and maps spaces to
// dashes.
func Clean(value string) string {
	return cleanReplacer.Replace(value)
}

// Name builds the deterministic output file name from the transformed
// attribute set: studyID, series number, instance number, modality, study
// description, series description, and view position, joined by underscores.
func Name(attrs record.Tags) string {
	parts := []string{
		attrs.Get(record.TagStudyID),
		attrs.Get(record.TagSeriesNumber),
		attrs.Get(record.TagInstanceNumber),
		attrs.Get(record.TagModality),
		attrs.Get(record.TagStudyDescription),
		attrs.Get(record.TagSeriesDescription),
		attrs.Get(record.TagViewPosition),
	}
	return Clean(strings.Join(parts, "_")) + Extension
}

// TargetPath composes the output path for attrs under outDir per the grouping
// layout. Identical attribute sets always map to identical paths, which is
// what makes re-runs idempotent: an existing target means the record was
// already processed.
func TargetPath(outDir string, grouping Grouping, attrs record.Tags) string {
	name := Name(attrs)
	switch grouping {
	case GroupingStudy:
		return filepath.Join(outDir, Clean(attrs.Get(record.TagStudyID)), name)
	case GroupingPatient:
		return filepath.Join(outDir, Clean(attrs.Get(record.TagPatientID)), name)
	default:
		return filepath.Join(outDir, name)
	}
}
