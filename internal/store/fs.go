package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileKV persists each (store, namespace) mapping as one pretty-printed
// JSON file under root. Writes are staged to a temp file in the target
// directory and renamed into place, so an interrupted write leaves the
// prior file intact.
type FileKV struct {
	root string
}

func NewFileKV(root string) (*FileKV, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileKV{root: root}, nil
}

func (s *FileKV) path(store, namespace string) string {
	if namespace == GlobalNamespace {
		return filepath.Join(s.root, store+".json")
	}
	return filepath.Join(s.root, namespace, store+".json")
}

func (s *FileKV) Load(ctx context.Context, store, namespace string) (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(s.path(store, namespace))
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", namespace, store, err)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		// Corrupt store files are treated as empty rather than fatal.
		return map[string]json.RawMessage{}, nil
	}
	if data == nil {
		data = map[string]json.RawMessage{}
	}
	return data, nil
}

func (s *FileKV) Save(ctx context.Context, store, namespace string, data map[string]json.RawMessage) error {
	target := s.path(store, namespace)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create namespace dir: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", namespace, store, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+store+"-*.tmp")
	if err != nil {
		return fmt.Errorf("stage %s/%s: %w", namespace, store, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s/%s: %w", namespace, store, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s/%s: %w", namespace, store, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap %s/%s: %w", namespace, store, err)
	}
	return nil
}

func (s *FileKV) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("data dir unavailable: %w", err)
	}
	return nil
}
