package record

import (
	"context"
	"errors"
)

// ErrUnreadableRecord marks a file the codec could not parse. Unreadable
// records are skipped and logged; they never abort a batch.
var ErrUnreadableRecord = errors.New("unreadable record")

// Tags holds a record's attribute values keyed by attribute name. Absent
// attributes are simply missing keys; values are always strings, matching the
// text representation the codec exposes.
type Tags map[string]string

// Lookup returns the value for an attribute name and whether it was present.
func (t Tags) Lookup(name string) (string, bool) {
	value, ok := t[name]
	return value, ok
}

// Get returns the attribute value, or the empty string when absent.
func (t Tags) Get(name string) string {
	return t[name]
}

// Source supplies a record's tag values given a file path.
type Source interface {
	ReadTags(ctx context.Context, path string) (Tags, error)
}

// Writer persists a transformed attribute set to the given path and reports
// the number of bytes written, which feeds space accounting.
type Writer interface {
	WriteRecord(ctx context.Context, path string, attrs Tags) (int64, error)
}

// Attribute names understood by the transform policy. The codec contract is
// name-based, so these double as the wire keys.
const (
	TagPatientID                                = "PatientID"
	TagPatientName                              = "PatientName"
	TagAccessionNumber                          = "AccessionNumber"
	TagStudyInstanceUID                         = "StudyInstanceUID"
	TagSeriesInstanceUID                        = "SeriesInstanceUID"
	TagSOPInstanceUID                           = "SOPInstanceUID"
	TagSOPClassUID                              = "SOPClassUID"
	TagStudyID                                  = "StudyID"
	TagStudyDate                                = "StudyDate"
	TagStudyTime                                = "StudyTime"
	TagPatientBirthDate                         = "PatientBirthDate"
	TagPatientBirthTime                         = "PatientBirthTime"
	TagPatientAge                               = "PatientAge"
	TagPatientSex                               = "PatientSex"
	TagPatientOrientation                       = "PatientOrientation"
	TagReferringPhysicianName                   = "ReferringPhysicianName"
	TagSpecificCharacterSet                     = "SpecificCharacterSet"
	TagSecondaryCaptureDeviceManufacturer       = "SecondaryCaptureDeviceManufacturer"
	TagModality                                 = "Modality"
	TagStudyDescription                         = "StudyDescription"
	TagSeriesDescription                        = "SeriesDescription"
	TagViewPosition                             = "ViewPosition"
	TagSeriesNumber                             = "SeriesNumber"
	TagInstanceNumber                           = "InstanceNumber"
	TagPlanarConfiguration                      = "PlanarConfiguration"
	TagSamplesPerPixel                          = "SamplesPerPixel"
	TagPhotometricInterpretation                = "PhotometricInterpretation"
	TagPixelRepresentation                      = "PixelRepresentation"
	TagHighBit                                  = "HighBit"
	TagBitsStored                               = "BitsStored"
	TagBitsAllocated                            = "BitsAllocated"
	TagColumns                                  = "Columns"
	TagRows                                     = "Rows"
	TagImagerPixelSpacing                       = "ImagerPixelSpacing"
	TagPixelData                                = "PixelData"
	TagPresentationLUTShape                     = "PresentationLUTShape"
	TagKVP                                      = "KVP"
	TagXRayTubeCurrent                          = "XRayTubeCurrent"
	TagExposureTime                             = "ExposureTime"
	TagExposure                                 = "Exposure"
	TagFocalSpots                               = "FocalSpots"
	TagAnodeTargetMaterial                      = "AnodeTargetMaterial"
	TagBodyPartThickness                        = "BodyPartThickness"
	TagCompressionForce                         = "CompressionForce"
	TagPaddleDescription                        = "PaddleDescription"
	TagExposureControlMode                      = "ExposureControlMode"
	TagBurnedInAnnotation                       = "BurnedInAnnotation"
	TagDistanceSourceToDetector                 = "DistanceSourceToDetector"
	TagDistanceSourceToPatient                  = "DistanceSourceToPatient"
	TagPositionerPrimaryAngle                   = "PositionerPrimaryAngle"
	TagPositionerPrimaryAngleDirection          = "PositionerPrimaryAngleDirection"
	TagPositionerSecondaryAngle                 = "PositionerSecondaryAngle"
	TagImageLaterality                          = "ImageLaterality"
	TagBreastImplantPresent                     = "BreastImplantPresent"
	TagManufacturer                             = "Manufacturer"
	TagManufacturerModelName                    = "ManufacturerModelName"
	TagEstimatedRadiographicMagnificationFactor = "EstimatedRadiographicMagnificationFactor"
	TagDateOfLastDetectorCalibration            = "DateOfLastDetectorCalibration"
)
