package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is append-only persistence for receipts. Records are never updated or
// deleted.
type Store interface {
	Append(ctx context.Context, r *Receipt) error
}

// FileStore writes one JSON file per receipt into a directory, named
// <status>_<unix-ms>_<receipt-id-prefix>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("receipt: create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Append(_ context.Context, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("receipt: marshal: %w", err)
	}
	idPrefix := r.ReceiptID
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}
	name := fmt.Sprintf("%s_%d_%s.json",
		strings.ToLower(string(r.Status)), r.Timestamp.UnixMilli(), idPrefix)

	// O_EXCL: a receipt file is written once, never overwritten.
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("receipt: open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("receipt: write %s: %w", name, err)
	}
	return nil
}

// List returns all stored receipts ordered by filename (chronological for a
// single process).
func (s *FileStore) List(_ context.Context) ([]*Receipt, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("receipt: read store dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*Receipt, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("receipt: read %s: %w", name, err)
		}
		var r Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("receipt: decode %s: %w", name, err)
		}
		out = append(out, &r)
	}
	return out, nil
}
