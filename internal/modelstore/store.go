// Package modelstore persists trained models per region.
//
// Layout under the store root:
//
//	<region>/<parameter>.json                          current model
//	<region>/history/<parameter>-<trained_at>-<id>.json previous models
//
// Files that cannot be decoded, or that were written for another store format
// or feature schema, are treated as absent.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/storage"
)

const (
	formatVersion = 1
	historyDir    = "history"
	historyStamp  = "20060102T150405.000000000Z"
)

// Options configures a Store
type Options struct {
	Dir             string
	MaxHistory      int
	SchemaVersion   int
	Parameters      []models.Parameter
	FilePermissions os.FileMode
	DirPermissions  os.FileMode
}

// Store is a file-backed model store
type Store struct {
	dir           *storage.Dir
	maxHistory    int
	schemaVersion int
	parameters    []models.Parameter
}

// modelFile is the on-disk layout of one model
type modelFile struct {
	Version int                  `json:"version"`
	SavedAt time.Time            `json:"saved_at"`
	Model   *models.TrainedModel `json:"model"`
}

// New opens a store, removing temp files left by earlier crashes
func New(opts Options) (*Store, error) {
	if opts.SchemaVersion < 1 {
		return nil, fmt.Errorf("schema version must be at least 1")
	}
	params := opts.Parameters
	if len(params) == 0 {
		params = models.TargetParameters
	}

	d := storage.New(opts.Dir, opts.FilePermissions, opts.DirPermissions)
	if removed, err := d.CleanupTemp(); err != nil {
		return nil, err
	} else if removed > 0 {
		logger.Warn("Removed %d stale temp files from model store %s", removed, d.Root())
	}

	return &Store{
		dir:           d,
		maxHistory:    opts.MaxHistory,
		schemaVersion: opts.SchemaVersion,
		parameters:    params,
	}, nil
}

func currentPath(key string, p models.Parameter) string {
	return filepath.Join(key, string(p)+".json")
}

func historyPath(key string, m *models.TrainedModel) string {
	name := fmt.Sprintf("%s-%s-%s.json", m.Parameter, m.TrainedAt.UTC().Format(historyStamp), m.ID)
	return filepath.Join(key, historyDir, name)
}

// Get returns the current models of a region. found is false when no parameter
// has a usable model; a partial bundle has Ready false.
func (s *Store) Get(key string) (*models.RegionModelBundle, bool) {
	l := s.dir.Lock(key)
	l.RLock()
	defer l.RUnlock()

	bundle := models.NewBundle(key)
	for _, p := range s.parameters {
		m, err := s.read(currentPath(key, p), key, p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Ignoring model %s/%s: %v", key, p, err)
			}
			continue
		}
		bundle.Models[p] = m
	}

	if len(bundle.Models) == 0 {
		return nil, false
	}
	bundle.Ready = bundle.Complete(s.parameters)
	return bundle, true
}

// read decodes and checks one model file
func (s *Store) read(rel, key string, p models.Parameter) (*models.TrainedModel, error) {
	data, err := s.dir.Read(rel)
	if err != nil {
		return nil, err
	}

	corrupt := func(err error) error {
		return &models.CorruptArtifactError{Path: s.dir.Path(rel), Err: err}
	}

	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, corrupt(fmt.Errorf("failed to unmarshal model: %w", err))
	}
	if f.Version != formatVersion {
		return nil, corrupt(fmt.Errorf("unsupported store format %d", f.Version))
	}
	if f.Model == nil {
		return nil, corrupt(errors.New("file has no model"))
	}
	if err := f.Model.Validate(); err != nil {
		return nil, corrupt(err)
	}
	if f.Model.RegionKey != key || f.Model.Parameter != p {
		return nil, corrupt(fmt.Errorf("file holds %s/%s", f.Model.RegionKey, f.Model.Parameter))
	}
	if f.Model.InputSchemaVersion != s.schemaVersion {
		return nil, corrupt(fmt.Errorf("input schema %d, expected %d", f.Model.InputSchemaVersion, s.schemaVersion))
	}
	return f.Model, nil
}

// Put makes model the current model of its parameter. The previous current
// model moves to history. A model without an ID is given one.
func (s *Store) Put(key string, model *models.TrainedModel) error {
	if model == nil {
		return errors.New("model must not be nil")
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if err := model.Validate(); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	if model.RegionKey != key {
		return fmt.Errorf("model belongs to region %s, expected %s", model.RegionKey, key)
	}

	l := s.dir.Lock(key)
	l.Lock()
	defer l.Unlock()

	cur := currentPath(key, model.Parameter)
	if prev, err := s.read(cur, key, model.Parameter); err == nil {
		if s.maxHistory > 0 && prev.ID != model.ID {
			if err := s.dir.SaveJSON(historyPath(key, prev), modelFile{Version: formatVersion, SavedAt: time.Now().UTC(), Model: prev}); err != nil {
				logger.Warn("Failed to archive model %s/%s: %v", key, prev.Parameter, err)
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Replacing unreadable model %s/%s: %v", key, model.Parameter, err)
	}

	if err := s.dir.SaveJSON(cur, modelFile{Version: formatVersion, SavedAt: time.Now().UTC(), Model: model}); err != nil {
		return fmt.Errorf("failed to save model %s/%s: %w", key, model.Parameter, err)
	}

	s.pruneHistory(key, model.Parameter)
	return nil
}

// pruneHistory keeps the newest maxHistory archived models of a parameter
func (s *Store) pruneHistory(key string, p models.Parameter) {
	names, err := s.History(key, p)
	if err != nil {
		logger.Warn("Failed to list model history for %s/%s: %v", key, p, err)
		return
	}
	for len(names) > s.maxHistory {
		if err := s.dir.Remove(filepath.Join(key, historyDir, names[0])); err != nil {
			logger.Warn("Failed to prune model history: %v", err)
			return
		}
		names = names[1:]
	}
}

// History lists archived model files of a parameter, oldest first
func (s *Store) History(key string, p models.Parameter) ([]string, error) {
	names, err := s.dir.List(filepath.Join(key, historyDir), ".json")
	if err != nil {
		return nil, err
	}
	prefix := string(p) + "-"
	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Clear removes every model of a region. Clearing a missing region is not an error.
func (s *Store) Clear(key string) error {
	l := s.dir.Lock(key)
	l.Lock()
	defer l.Unlock()

	return s.dir.RemoveAll(key)
}
