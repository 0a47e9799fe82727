package lifecycle

import (
	"sync"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

// State is the lifecycle state of a region
type State string

const (
	Unloaded State = "unloaded"
	Fetching State = "fetching"
	Training State = "training"
	Ready    State = "ready"
	Failed   State = "failed"
)

// flight is one in-progress load of a region
type flight struct {
	generation uint64
	started    time.Time
	done       chan struct{}

	// set before done is closed
	bundle *models.RegionModelBundle
	err    error
}

// regionState is the in-memory record of one region. mu also serializes every
// persisting step of a flight against Clear.
type regionState struct {
	mu sync.RWMutex

	state      State
	generation uint64
	bundle     *models.RegionModelBundle
	flight     *flight
	// done channel of a flight discarded by Clear that is still running
	draining   chan struct{}
	lastErr    error
	lastErrAt  time.Time
	updatedAt  time.Time
}
