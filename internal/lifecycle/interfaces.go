package lifecycle

import (
	"context"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/datacache"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

// Registry resolves region keys
type Registry interface {
	Get(key string) (models.RegionDescriptor, error)
	Keys() []string
}

// Cache is the raw data cache
type Cache interface {
	Get(key string, now time.Time) datacache.Lookup
	Put(key string, dataset *models.RawDataset, now time.Time) (time.Time, error)
	Clear(key string) error
	Info(key string, now time.Time) datacache.Info
}

// Store is the model store
type Store interface {
	Get(key string) (*models.RegionModelBundle, bool)
	Put(key string, model *models.TrainedModel) error
	Clear(key string) error
}

// Fetcher retrieves fresh measurements for a region
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, region models.RegionDescriptor) (*models.RawDataset, error)
}

// Trainer fits and loads models
type Trainer interface {
	Train(ctx context.Context, records []models.RawDataRecord, parameter models.Parameter) (*models.TrainedModel, error)
	Load(model *models.TrainedModel) (models.Predictor, error)
}

// Notifier is told about committed outcomes. Calls run on their own goroutine.
type Notifier interface {
	RegionReady(bundle *models.RegionModelBundle)
	RegionFailed(key string, err error)
}
