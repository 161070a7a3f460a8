package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DetectorRepository is the read seam between the dispatch engine and
// the persistence layer. Implementations must eagerly attach each
// detector's condition group and conditions, and must resolve the
// whole batch in a bounded number of backing-store round trips
// regardless of how many source ids are requested.
type DetectorRepository interface {
	// BulkFetchEnabledDetectors returns the enabled detectors for every
	// data source matching queryType whose source id is in sourceIDs,
	// keyed by source id. Source ids with no match are simply absent
	// from the result. Detectors are ordered by persisted insertion
	// order (creation time, then id).
	BulkFetchEnabledDetectors(ctx context.Context, queryType string, sourceIDs []string) (map[string][]Detector, error)
}

// InMemoryDetectorRepository implements DetectorRepository with maps.
// Thread-safe with RWMutex. Used in tests and as a standalone mode;
// the mutators model the configuration-management flows that own data
// sources and detectors.
type InMemoryDetectorRepository struct {
	sources   map[string]*DataSource
	detectors map[string]*Detector
	links     map[string][]string // data source ID -> detector IDs in attach order
	mu        sync.RWMutex
}

// NewInMemoryDetectorRepository creates an empty in-memory repository.
func NewInMemoryDetectorRepository() *InMemoryDetectorRepository {
	return &InMemoryDetectorRepository{
		sources:   make(map[string]*DataSource),
		detectors: make(map[string]*Detector),
		links:     make(map[string][]string),
	}
}

// CreateDataSource adds a new data source, setting its timestamps.
func (r *InMemoryDetectorRepository) CreateDataSource(ds *DataSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[ds.ID]; exists {
		return fmt.Errorf("data source with ID %s already exists", ds.ID)
	}
	for _, existing := range r.sources {
		if existing.SourceID == ds.SourceID && existing.Type == ds.Type {
			return fmt.Errorf("data source %s of type %s already exists", ds.SourceID, ds.Type)
		}
	}

	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	r.sources[ds.ID] = ds
	return nil
}

// UpdateDataSourceType changes the type tag of an existing data source.
func (r *InMemoryDetectorRepository) UpdateDataSourceType(id, sourceType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, exists := r.sources[id]
	if !exists {
		return fmt.Errorf("data source with ID %s not found", id)
	}

	ds.Type = sourceType
	ds.UpdatedAt = time.Now()
	return nil
}

// DeleteDataSource removes a data source and its detector links.
func (r *InMemoryDetectorRepository) DeleteDataSource(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[id]; !exists {
		return fmt.Errorf("data source with ID %s not found", id)
	}

	delete(r.sources, id)
	delete(r.links, id)
	return nil
}

// CreateDetector adds a new detector, setting its timestamps.
func (r *InMemoryDetectorRepository) CreateDetector(d *Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.detectors[d.ID]; exists {
		return fmt.Errorf("detector with ID %s already exists", d.ID)
	}

	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.detectors[d.ID] = d
	return nil
}

// SetDetectorEnabled flips the enabled flag of an existing detector.
func (r *InMemoryDetectorRepository) SetDetectorEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.detectors[id]
	if !exists {
		return fmt.Errorf("detector with ID %s not found", id)
	}

	d.Enabled = enabled
	d.UpdatedAt = time.Now()
	return nil
}

// AttachDetector links a detector to a data source. Attach order is
// preserved and determines dispatch result order.
func (r *InMemoryDetectorRepository) AttachDetector(dataSourceID, detectorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[dataSourceID]; !exists {
		return fmt.Errorf("data source with ID %s not found", dataSourceID)
	}
	if _, exists := r.detectors[detectorID]; !exists {
		return fmt.Errorf("detector with ID %s not found", detectorID)
	}
	for _, id := range r.links[dataSourceID] {
		if id == detectorID {
			return fmt.Errorf("detector %s already attached to data source %s", detectorID, dataSourceID)
		}
	}

	r.links[dataSourceID] = append(r.links[dataSourceID], detectorID)
	return nil
}

// ClearDetectors removes all detector links from a data source.
func (r *InMemoryDetectorRepository) ClearDetectors(dataSourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[dataSourceID]; !exists {
		return fmt.Errorf("data source with ID %s not found", dataSourceID)
	}

	delete(r.links, dataSourceID)
	return nil
}

// BulkFetchEnabledDetectors resolves the batch against the in-memory
// maps in a single pass.
func (r *InMemoryDetectorRepository) BulkFetchEnabledDetectors(ctx context.Context, queryType string, sourceIDs []string) (map[string][]Detector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requested := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		requested[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]Detector)
	for _, ds := range r.sources {
		if ds.Type != queryType {
			continue
		}
		if _, ok := requested[ds.SourceID]; !ok {
			continue
		}

		for _, detectorID := range r.links[ds.ID] {
			d := r.detectors[detectorID]
			if d == nil || !d.Enabled {
				continue
			}
			// Copy to keep callers from mutating stored state.
			result[ds.SourceID] = append(result[ds.SourceID], *d)
		}
	}

	return result, nil
}
