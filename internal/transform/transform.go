// Package transform applies the redact/copy/compute policy to record
// attributes.
//
// The policy table alone decides what the output retains: any attribute not
// named there is dropped. Apply is pure and total; missing source attributes
// become the rule's default, never an error.
package transform

import (
	"strconv"

	"scrub/internal/identity"
	"scrub/internal/record"
)

// Action selects how an attribute is produced.
type Action int

const (
	// ActionCopy carries the source value through, blank when absent.
	ActionCopy Action = iota
	// ActionConstant replaces the value with a fixed placeholder.
	ActionConstant
	// ActionIdentity substitutes a resolved synthetic identity value.
	ActionIdentity
	// ActionComputed substitutes a value derived per record.
	ActionComputed
)

// Field names the identity or computed value an ActionIdentity/ActionComputed
// rule draws from.
type Field int

const (
	FieldNone Field = iota
	FieldPatient
	FieldStudy
	FieldSeries
	FieldInstance
	FieldAccession
	FieldAge
	FieldManufacturer
)

// Rule is one row of the policy table.
type Rule struct {
	Action   Action
	Constant string
	Field    Field
}

func copyRule() Rule             { return Rule{Action: ActionCopy} }
func constant(value string) Rule { return Rule{Action: ActionConstant, Constant: value} }
func fromIdentity(f Field) Rule  { return Rule{Action: ActionIdentity, Field: f} }
func computed(f Field) Rule      { return Rule{Action: ActionComputed, Field: f} }

// Policy is the fixed attribute policy. The retained attribute set and the
// placeholder constants follow the secondary-capture output convention: all
// imaging geometry and exposure attributes survive, every identity-bearing or
// temporal attribute is blanked or replaced with its synthetic counterpart.
var Policy = map[string]Rule{
	record.TagPatientID:         fromIdentity(FieldPatient),
	record.TagPatientName:       fromIdentity(FieldPatient),
	record.TagAccessionNumber:   fromIdentity(FieldAccession),
	record.TagStudyInstanceUID:  fromIdentity(FieldStudy),
	record.TagStudyID:           fromIdentity(FieldStudy),
	record.TagSeriesInstanceUID: fromIdentity(FieldSeries),
	record.TagSOPInstanceUID:    fromIdentity(FieldInstance),

	record.TagPatientAge: computed(FieldAge),
	record.TagSecondaryCaptureDeviceManufacturer: computed(FieldManufacturer),

	record.TagSOPClassUID:            constant("Secondary Capture Image Storage"),
	record.TagStudyDate:              constant("000000"),
	record.TagStudyTime:              constant("000000"),
	record.TagPatientBirthDate:       constant("00000000"),
	record.TagPatientBirthTime:       constant("000000.000000"),
	record.TagReferringPhysicianName: constant(""),
	record.TagBurnedInAnnotation:     constant(""),

	record.TagModality:                                 copyRule(),
	record.TagPatientSex:                               copyRule(),
	record.TagPatientOrientation:                       copyRule(),
	record.TagSpecificCharacterSet:                     copyRule(),
	record.TagStudyDescription:                         copyRule(),
	record.TagSeriesDescription:                        copyRule(),
	record.TagViewPosition:                             copyRule(),
	record.TagSeriesNumber:                             copyRule(),
	record.TagInstanceNumber:                           copyRule(),
	record.TagPlanarConfiguration:                      copyRule(),
	record.TagSamplesPerPixel:                          copyRule(),
	record.TagPhotometricInterpretation:                copyRule(),
	record.TagPixelRepresentation:                      copyRule(),
	record.TagHighBit:                                  copyRule(),
	record.TagBitsStored:                               copyRule(),
	record.TagBitsAllocated:                            copyRule(),
	record.TagColumns:                                  copyRule(),
	record.TagRows:                                     copyRule(),
	record.TagImagerPixelSpacing:                       copyRule(),
	record.TagPixelData:                                copyRule(),
	record.TagPresentationLUTShape:                     copyRule(),
	record.TagKVP:                                      copyRule(),
	record.TagXRayTubeCurrent:                          copyRule(),
	record.TagExposureTime:                             copyRule(),
	record.TagExposure:                                 copyRule(),
	record.TagFocalSpots:                               copyRule(),
	record.TagAnodeTargetMaterial:                      copyRule(),
	record.TagBodyPartThickness:                        copyRule(),
	record.TagCompressionForce:                         copyRule(),
	record.TagPaddleDescription:                        copyRule(),
	record.TagExposureControlMode:                      copyRule(),
	record.TagDistanceSourceToDetector:                 copyRule(),
	record.TagDistanceSourceToPatient:                  copyRule(),
	record.TagPositionerPrimaryAngle:                   copyRule(),
	record.TagPositionerPrimaryAngleDirection:          copyRule(),
	record.TagPositionerSecondaryAngle:                 copyRule(),
	record.TagImageLaterality:                          copyRule(),
	record.TagBreastImplantPresent:                     copyRule(),
	record.TagManufacturer:                             copyRule(),
	record.TagManufacturerModelName:                    copyRule(),
	record.TagEstimatedRadiographicMagnificationFactor: copyRule(),
	record.TagDateOfLastDetectorCalibration:            copyRule(),
}

// Apply produces the final attribute set for one record.
func Apply(tags record.Tags, id identity.Bundle) record.Tags {
	out := make(record.Tags, len(Policy))
	for name, rule := range Policy {
		switch rule.Action {
		case ActionCopy:
			out[name] = tags.Get(name)
		case ActionConstant:
			out[name] = rule.Constant
		case ActionIdentity, ActionComputed:
			out[name] = identityValue(id, rule.Field)
		}
	}
	return out
}

func identityValue(id identity.Bundle, field Field) string {
	switch field {
	case FieldPatient:
		return strconv.FormatInt(id.Patient, 10)
	case FieldStudy:
		return strconv.FormatInt(id.Study, 10)
	case FieldSeries:
		return strconv.FormatInt(id.Series, 10)
	case FieldInstance:
		return strconv.FormatInt(id.Instance, 10)
	case FieldAccession:
		return strconv.FormatInt(id.Accession, 10)
	case FieldAge:
		return id.PatientAge
	case FieldManufacturer:
		return id.Manufacturer
	default:
		return ""
	}
}
