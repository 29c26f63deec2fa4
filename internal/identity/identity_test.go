package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scrub/internal/identity"
	"scrub/internal/record"
	"scrub/internal/testsupport"
)

func TestResolveProducesStableBundle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)
	resolver := identity.NewResolver(log)

	ctx := context.Background()
	tags := testsupport.SampleTags()

	first, err := resolver.Resolve(ctx, tags)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.Patient == 0 || first.Study == 0 || first.Series == 0 || first.Instance == 0 {
		t.Fatalf("identifiers must be assigned, got %+v", first)
	}
	if first.Manufacturer != identity.SecondaryCaptureManufacturer {
		t.Fatalf("unexpected manufacturer %q", first.Manufacturer)
	}
	if first.PatientAge != "039Y" {
		t.Fatalf("expected age 039Y for 19800704..20200101, got %q", first.PatientAge)
	}

	second, err := resolver.Resolve(ctx, tags)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first != second {
		t.Fatalf("repeated resolution diverged: %+v vs %+v", first, second)
	}
}

func TestResolveScopesUIDsByPatient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)
	resolver := identity.NewResolver(log)

	ctx := context.Background()
	tags := testsupport.SampleTags()
	first, err := resolver.Resolve(ctx, tags)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Same study and series UIDs under a different patient must not merge.
	other := testsupport.SampleTags()
	other[record.TagPatientID] = "MRN-99999"
	second, err := resolver.Resolve(ctx, other)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if second.Patient == first.Patient || second.Study == first.Study || second.Series == first.Series {
		t.Fatalf("identities merged across patients: %+v vs %+v", first, second)
	}
}

func TestResolveRequiresIdentifiers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	log := testsupport.MustOpenLog(t, cfg)
	resolver := identity.NewResolver(log)

	required := []string{
		record.TagPatientID,
		record.TagStudyInstanceUID,
		record.TagSeriesInstanceUID,
		record.TagSOPInstanceUID,
	}
	for _, name := range required {
		t.Run(name, func(t *testing.T) {
			tags := testsupport.SampleTags()
			delete(tags, name)
			_, err := resolver.Resolve(context.Background(), tags)
			if !errors.Is(err, identity.ErrMissingIdentifier) {
				t.Fatalf("expected ErrMissingIdentifier, got %v", err)
			}
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("error should name the missing tag %q: %v", name, err)
			}

			// Whitespace-only values count as missing too.
			tags = testsupport.SampleTags()
			tags[name] = "   "
			if _, err := resolver.Resolve(context.Background(), tags); !errors.Is(err, identity.ErrMissingIdentifier) {
				t.Fatalf("expected ErrMissingIdentifier for blank %s, got %v", name, err)
			}
		})
	}
}

func TestAgeAt(t *testing.T) {
	cases := []struct {
		name      string
		studyDate string
		birthDate string
		want      string
	}{
		{"typical", "20200101", "19800704", "039Y"},
		{"leading zeros", "20100301", "20050101", "005Y"},
		{"same day", "20200101", "20200101", "000Y"},
		{"missing birth date", "20200101", "", ""},
		{"missing study date", "", "19800704", ""},
		{"malformed birth date", "20200101", "1980-07-04", ""},
		{"malformed study date", "01/01/2020", "19800704", ""},
		{"reversed dates", "19800704", "20200101", "039Y"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := identity.AgeAt(tc.studyDate, tc.birthDate); got != tc.want {
				t.Fatalf("AgeAt(%q, %q) = %q, want %q", tc.studyDate, tc.birthDate, got, tc.want)
			}
		})
	}
}
