// Package records loads dataset files and persists result sets.
package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/urdufact-go/internal/models"
)

// Sentinel errors for dataset parsing.
var (
	// ErrEmpty indicates the file holds no records at all.
	ErrEmpty = errors.New("no records")

	// ErrNotObject indicates a record that is not a JSON object.
	ErrNotObject = errors.New("record is not an object")
)

// FormatError reports a dataset file that cannot be used as input.
type FormatError struct {
	Path  string
	Index int // -1 when the error is not tied to one record
	Err   error
}

func (e *FormatError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("format error in %s (record %d): %v", e.Path, e.Index, e.Err)
	}
	return fmt.Sprintf("format error in %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Load reads a dataset file. It accepts a single object, an array of
// objects, or a stream of concatenated objects (JSON Lines).
func Load(path string) ([]models.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	items, err := Decode(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	return items, nil
}

// Decode parses dataset bytes using the same rules as Load.
func Decode(data []byte) ([]models.WorkItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &FormatError{Index: -1, Err: ErrEmpty}
	}

	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)
	case '{':
		return decodeStream(trimmed)
	default:
		return nil, &FormatError{Index: -1, Err: fmt.Errorf("expected object or array, got %q", trimmed[0])}
	}
}

func decodeArray(data []byte) ([]models.WorkItem, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &FormatError{Index: -1, Err: err}
	}
	if len(raws) == 0 {
		return nil, &FormatError{Index: -1, Err: ErrEmpty}
	}

	items := make([]models.WorkItem, 0, len(raws))
	for i, raw := range raws {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, &FormatError{Index: i, Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeStream(data []byte) ([]models.WorkItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var items []models.WorkItem
	for i := 0; ; i++ {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Index: i, Err: err}
		}
		item, err := decodeItem(raw)
		if err != nil {
			return nil, &FormatError{Index: i, Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(raw json.RawMessage) (models.WorkItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.WorkItem{}, ErrNotObject
	}
	var item models.WorkItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return models.WorkItem{}, err
	}
	return item, nil
}

// Persist overwrites path with the full result set. The file is written to
// a temporary sibling and renamed into place so readers never observe a
// partially written array. A new file gets mode 0644; an existing file keeps
// its mode.
func Persist(path string, items []models.WorkItem) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	if err := Encode(w, items); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// Encode writes items as an indented JSON array with non-ASCII text and
// HTML characters left unescaped.
func Encode(w io.Writer, items []models.WorkItem) error {
	if items == nil {
		items = []models.WorkItem{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
