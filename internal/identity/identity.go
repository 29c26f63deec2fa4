// Package identity resolves a record's identity-bearing tags into a stable
// synthetic identity bundle via the link log.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scrub/internal/linklog"
	"scrub/internal/record"
)

// ErrMissingIdentifier marks a record without a usable real identifier. The
// record is skipped; the batch continues.
var ErrMissingIdentifier = errors.New("missing identifier")

// SecondaryCaptureManufacturer is stamped into every output record in place
// of the original device manufacturer metadata.
const SecondaryCaptureManufacturer = "scrub"

// keySeparator joins identifier components into store keys. A unit separator
// cannot appear in tag values, so composed keys never collide.
const keySeparator = "\x1f"

// Bundle is the fully resolved identity for one record: the persistent
// synthetic identifiers plus derived attributes that are computed per record
// rather than stored in the log.
type Bundle struct {
	linklog.Identity

	// PatientAge is the age at study time ("%03dY"), blank when birth date or
	// study date is missing or malformed.
	PatientAge string
	// Manufacturer is the fixed secondary-capture manufacturer constant.
	Manufacturer string
}

// Resolver normalizes identity-bearing fields and delegates to the link log.
type Resolver struct {
	log *linklog.Log
}

// NewResolver constructs a resolver over an open link log.
func NewResolver(log *linklog.Log) *Resolver {
	return &Resolver{log: log}
}

// Resolve extracts and normalizes the identity-bearing tags, resolves them
// through the link log, and computes the derived attributes. Records missing
// any required identifier yield ErrMissingIdentifier.
func (r *Resolver) Resolve(ctx context.Context, tags record.Tags) (Bundle, error) {
	req, err := buildRequest(tags)
	if err != nil {
		return Bundle{}, err
	}

	id, err := r.log.Resolve(ctx, req)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{
		Identity:     id,
		PatientAge:   AgeAt(tags.Get(record.TagStudyDate), tags.Get(record.TagPatientBirthDate)),
		Manufacturer: SecondaryCaptureManufacturer,
	}, nil
}

func buildRequest(tags record.Tags) (linklog.Request, error) {
	realID, err := requiredTag(tags, record.TagPatientID)
	if err != nil {
		return linklog.Request{}, err
	}
	studyUID, err := requiredTag(tags, record.TagStudyInstanceUID)
	if err != nil {
		return linklog.Request{}, err
	}
	seriesUID, err := requiredTag(tags, record.TagSeriesInstanceUID)
	if err != nil {
		return linklog.Request{}, err
	}
	instanceUID, err := requiredTag(tags, record.TagSOPInstanceUID)
	if err != nil {
		return linklog.Request{}, err
	}

	// Scope keys nest: a study key is distinguished by its patient, a series
	// key by its study, so equal UIDs under different patients never merge.
	studyKey := realID + keySeparator + studyUID
	seriesKey := studyKey + keySeparator + seriesUID
	return linklog.Request{
		RealID:      realID,
		StudyKey:    studyKey,
		SeriesKey:   seriesKey,
		InstanceKey: seriesKey + keySeparator + instanceUID,
	}, nil
}

func requiredTag(tags record.Tags, name string) (string, error) {
	value, ok := tags.Lookup(name)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingIdentifier, name)
	}
	return value, nil
}

// AgeAt derives the patient age at study time from YYYYMMDD dates, formatted
// with a leading-zero year count ("042Y"). Either date missing or malformed
// yields blank, never an error.
func AgeAt(studyDate, birthDate string) string {
	if studyDate == "" || birthDate == "" {
		return ""
	}
	study, err := time.Parse("20060102", studyDate)
	if err != nil {
		return ""
	}
	birth, err := time.Parse("20060102", birthDate)
	if err != nil {
		return ""
	}
	days := study.Sub(birth).Hours() / 24
	if days < 0 {
		days = -days
	}
	return fmt.Sprintf("%03dY", int(days/365))
}
