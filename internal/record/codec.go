package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Codec reads and writes records stored as flat JSON attribute maps. It
// exists so the pipeline remains runnable end to end without owning a binary
// image codec; the value representation (string per attribute) matches what a
// real codec exposes through the Source/Writer contract.
type Codec struct{}

// NewCodec returns the flat-file JSON codec.
func NewCodec() *Codec {
	return &Codec{}
}

// ReadTags parses the record at path into a tag map. Numeric and boolean
// JSON values are converted to their text form; nested values are rejected as
// unreadable, mirroring how a codec rejects structurally invalid records.
func (c *Codec) ReadTags(ctx context.Context, path string) (Tags, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableRecord, path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableRecord, path, err)
	}

	tags := make(Tags, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			tags[name] = v
		case float64:
			tags[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			tags[name] = strconv.FormatBool(v)
		case nil:
			// Absent value; leave the attribute out.
		default:
			return nil, fmt.Errorf("%w: %s: attribute %q is not a scalar", ErrUnreadableRecord, path, name)
		}
	}
	return tags, nil
}

// WriteRecord persists attrs to path atomically (temp file + rename) and
// returns the bytes written. A partially written record is never observable
// at the target path.
func (c *Codec) WriteRecord(ctx context.Context, path string, attrs Tags) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".scrub-*")
	if err != nil {
		return 0, fmt.Errorf("create temp record: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("finalize record: %w", err)
	}
	return int64(len(data)), nil
}
