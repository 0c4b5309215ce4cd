package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hypolab/domain/core"
)

// FileStore keeps sealed records as JSON files under records/{session}/{id}.json
type FileStore struct {
	basePath string
}

// NewFileStore creates a store rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Save writes r, replacing any record with the same id
func (fs *FileStore) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if issues := Validate(r); len(issues) > 0 {
		return fmt.Errorf("%w: %s", core.ErrMalformedID, strings.Join(issues, "; "))
	}

	filePath := fs.keyToPath(recordKey(r.SessionID, r.ID))
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
	}

	// write then rename so readers never see a partial file
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filePath, err)
	}
	return nil
}

// Load reads one record
func (fs *FileStore) Load(ctx context.Context, sessionID string, id core.RecordID) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	data, err := os.ReadFile(fs.keyToPath(recordKey(sessionID, id)))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, core.NewNotFoundError("session record", string(id))
		}
		return Record{}, fmt.Errorf("failed to read record %s: %w", id, err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return r, nil
}

// List returns the record ids stored for a session, oldest first
func (fs *FileStore) List(ctx context.Context, sessionID string) ([]core.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fs.keyToPath("records/" + sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var ids []core.RecordID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, core.RecordID(strings.TrimSuffix(name, ".json")))
	}
	// ids end in unix seconds; compare by length first so 999 sorts before 1000
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

// Delete removes a record; deleting a missing record is not an error
func (fs *FileStore) Delete(ctx context.Context, sessionID string, id core.RecordID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath := fs.keyToPath(recordKey(sessionID, id))
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

func recordKey(sessionID string, id core.RecordID) string {
	return fmt.Sprintf("records/%s/%s.json", sessionID, id)
}

// keyToPath converts a slash-separated key to a filesystem path
func (fs *FileStore) keyToPath(key string) string {
	return filepath.Join(fs.basePath, filepath.FromSlash(key))
}
