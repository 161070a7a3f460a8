package dispatch

import (
	"context"
	"fmt"

	"github.com/liamcoop/dispatch/internal/logger"
)

// Engine resolves batches of inbound data packets to the enabled
// detectors that should evaluate them. It is stateless and re-entrant;
// concurrent invocations are independent and require no locking here.
type Engine struct {
	registry *SourceTypeRegistry
	repo     DetectorRepository
	metrics  MetricsEmitter
}

// NewEngine creates a dispatch engine. A nil metrics emitter disables
// metric emission.
func NewEngine(registry *SourceTypeRegistry, repo DetectorRepository, metrics MetricsEmitter) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("source type registry is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("detector repository is required")
	}
	if metrics == nil {
		metrics = NopEmitter{}
	}

	return &Engine{
		registry: registry,
		repo:     repo,
		metrics:  metrics,
	}, nil
}

// ProcessDataSources resolves each packet to its set of enabled
// detectors in one batched repository fetch. The result preserves the
// input packet order; packets resolving to zero enabled detectors are
// omitted rather than returned with an empty set, and a source id with
// no matching data source of the given type is not an error.
//
// Failures propagate unchanged: an unregistered queryType or a
// repository error aborts the whole invocation with no partial result.
func (e *Engine) ProcessDataSources(ctx context.Context, packets []DataPacket, queryType string) ([]PacketDetectors, error) {
	tags := Tags{"query_type": queryType}
	e.metrics.Incr(MetricInvocations, 1, tags)

	handler, err := e.registry.Lookup(queryType)
	if err != nil {
		return nil, err
	}

	// Deduplicate source ids for the fetch while remembering each
	// packet's key, so duplicate ids in one batch cost nothing extra.
	keys := make([]string, 0, len(packets))
	keyByPacket := make([]string, len(packets))
	seen := make(map[string]struct{}, len(packets))
	for i, p := range packets {
		key := handler.ExtractSourceID(p)
		keyByPacket[i] = key
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	var detectorsBySource map[string][]Detector
	if len(keys) > 0 {
		detectorsBySource, err = e.repo.BulkFetchEnabledDetectors(ctx, queryType, keys)
		if err != nil {
			return nil, err
		}
	}

	results := make([]PacketDetectors, 0, len(packets))
	totalDetectors := 0
	for i, p := range packets {
		detectors := detectorsBySource[keyByPacket[i]]
		if len(detectors) == 0 {
			// Expected and common on the hot path; recorded via the
			// no-detectors counter when the whole batch misses.
			logger.Debug("no detectors for data packet",
				"source_id", p.SourceID, "query_type", queryType)
			continue
		}

		results = append(results, PacketDetectors{Packet: p, Detectors: detectors})
		totalDetectors += len(detectors)
	}

	if totalDetectors > 0 {
		e.metrics.Incr(MetricDetectorsFound, int64(totalDetectors), tags)
	} else {
		e.metrics.Incr(MetricNoDetectors, 1, tags)
	}

	return results, nil
}
