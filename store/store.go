// Package store persists trained model artifacts as gob blobs in a local
// directory, keyed by fixed names. Absence of an artifact is a normal state,
// not an error: the service runs rule-based-only until a first training.
package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Fixed artifact names. The directory holds at most these three files,
// overwritten wholesale on each successful training run.
const (
	NameClassifier      = "classifier"
	NameScaler          = "scaler"
	NameAnomalyDetector = "anomaly_detector"
)

type ModelStore struct {
	dir    string
	logger *zap.Logger
}

func NewModelStore(dir string, logger *zap.Logger) (*ModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating model dir %s: %w", dir, err)
	}
	return &ModelStore{dir: dir, logger: logger}, nil
}

// Save gob-encodes artifact under the given name. The write goes to a temp
// file first and is renamed into place so readers never see a partial blob.
func (s *ModelStore) Save(name string, artifact interface{}) error {
	path := s.path(name)

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(artifact); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	s.logger.Info("model artifact saved", zap.String("name", name), zap.String("path", path))
	return nil
}

// Load decodes the named artifact into the given pointer. It returns
// (false, nil) when the artifact does not exist.
func (s *ModelStore) Load(name string, artifact interface{}) (bool, error) {
	f, err := os.Open(s.path(name))
	if os.IsNotExist(err) {
		s.logger.Info("model artifact absent", zap.String("name", name))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(artifact); err != nil {
		return false, fmt.Errorf("decoding %s: %w", name, err)
	}

	s.logger.Info("model artifact loaded", zap.String("name", name))
	return true, nil
}

func (s *ModelStore) path(name string) string {
	return filepath.Join(s.dir, name+".gob")
}
