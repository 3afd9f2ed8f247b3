// internal/configstore/yaml.go
package configstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrDeviceNotFound is returned when the device id is not in the store.
var ErrDeviceNotFound = errors.New("configstore: device not found")

// YAMLStore persists unit id changes back into the YAML config file.
// The document is edited as a node tree so comments and key order survive.
type YAMLStore struct {
	path string
	mu   sync.Mutex
}

func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// PersistUnitID sets devices[id==deviceID].unit_id and atomically replaces the file.
func (s *YAMLStore) PersistUnitID(ctx context.Context, deviceID string, unitID uint8) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("configstore: parse %s: %w", s.path, err)
	}

	dev, err := findDevice(&doc, deviceID)
	if err != nil {
		return err
	}
	setScalar(dev, "unit_id", strconv.Itoa(int(unitID)), "!!int")

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("configstore: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	return writeAtomic(s.path, buf.Bytes())
}

func findDevice(doc *yaml.Node, deviceID string) (*yaml.Node, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("configstore: empty document")
	}
	root := doc.Content[0]

	devices := mappingValue(root, "devices")
	if devices == nil || devices.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: %s (no devices list)", ErrDeviceNotFound, deviceID)
	}

	for _, d := range devices.Content {
		if id := mappingValue(d, "id"); id != nil && id.Value == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setScalar(m *yaml.Node, key, value, tag string) {
	if v := mappingValue(m, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = tag
		v.Value = value
		v.Style = 0
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}

func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
