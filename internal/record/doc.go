// Package record defines the narrow contract between the pipeline and the
// record codec collaborator.
//
// The pipeline never touches the binary image format itself: it asks a Source
// for a record's tag values by name and hands a Writer the final attribute
// set. Codec is a flat-file JSON implementation of both sides used by the CLI
// and the test suite; deployments with real binary records plug in their own
// Source/Writer pair.
package record
