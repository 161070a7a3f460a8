package dispatch

import (
	"context"
	"testing"
)

func TestDetectorRepositoryInterface(t *testing.T) {
	var _ DetectorRepository = (*InMemoryDetectorRepository)(nil)
	var _ DetectorRepository = (*PostgresDetectorRepository)(nil)
}

func seedRepository(t *testing.T) *InMemoryDetectorRepository {
	t.Helper()

	repo := NewInMemoryDetectorRepository()

	detectors := []*Detector{
		{ID: "detector-a", Name: "a", Type: "metric_issue", Enabled: true},
		{ID: "detector-b", Name: "b", Type: "metric_issue", Enabled: true},
		{ID: "detector-c", Name: "c", Type: "metric_issue", Enabled: false},
	}
	for _, d := range detectors {
		if err := repo.CreateDetector(d); err != nil {
			t.Fatalf("Failed to create detector %s: %v", d.ID, err)
		}
	}

	ds := &DataSource{ID: "ds-1", SourceID: "query-1", Type: "test"}
	if err := repo.CreateDataSource(ds); err != nil {
		t.Fatalf("Failed to create data source: %v", err)
	}
	for _, id := range []string{"detector-a", "detector-b", "detector-c"} {
		if err := repo.AttachDetector("ds-1", id); err != nil {
			t.Fatalf("Failed to attach detector %s: %v", id, err)
		}
	}

	return repo
}

func TestInMemoryRepositoryFiltersDisabled(t *testing.T) {
	repo := seedRepository(t)

	result, err := repo.BulkFetchEnabledDetectors(context.Background(), "test", []string{"query-1"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}

	assertDetectorIDs(t, result["query-1"], "detector-a", "detector-b")
}

func TestInMemoryRepositoryAttachOrder(t *testing.T) {
	repo := NewInMemoryDetectorRepository()

	// Attach in an order that differs from creation order.
	for _, id := range []string{"detector-1", "detector-2", "detector-3"} {
		if err := repo.CreateDetector(&Detector{ID: id, Name: id, Type: "test", Enabled: true}); err != nil {
			t.Fatalf("Failed to create detector %s: %v", id, err)
		}
	}
	if err := repo.CreateDataSource(&DataSource{ID: "ds-1", SourceID: "query-1", Type: "test"}); err != nil {
		t.Fatalf("Failed to create data source: %v", err)
	}
	for _, id := range []string{"detector-3", "detector-1", "detector-2"} {
		if err := repo.AttachDetector("ds-1", id); err != nil {
			t.Fatalf("Failed to attach detector %s: %v", id, err)
		}
	}

	result, err := repo.BulkFetchEnabledDetectors(context.Background(), "test", []string{"query-1"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}

	assertDetectorIDs(t, result["query-1"], "detector-3", "detector-1", "detector-2")
}

func TestInMemoryRepositoryTypeFilter(t *testing.T) {
	repo := seedRepository(t)

	result, err := repo.BulkFetchEnabledDetectors(context.Background(), "other", []string{"query-1"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}

	if len(result) != 0 {
		t.Errorf("Expected empty result for non-matching type, got %v", result)
	}
}

func TestInMemoryRepositoryUnknownSourceIDs(t *testing.T) {
	repo := seedRepository(t)

	result, err := repo.BulkFetchEnabledDetectors(context.Background(), "test", []string{"query-1", "missing"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}

	if _, ok := result["missing"]; ok {
		t.Error("Unknown source id should be absent from the result, not empty")
	}
	if len(result["query-1"]) == 0 {
		t.Error("Known source id should still resolve")
	}
}

func TestInMemoryRepositoryDuplicateCreate(t *testing.T) {
	repo := seedRepository(t)

	if err := repo.CreateDataSource(&DataSource{ID: "ds-1", SourceID: "query-9", Type: "test"}); err == nil {
		t.Error("CreateDataSource() with a duplicate ID should fail")
	}
	// The source_id+type pair is unique, same as the schema constraint.
	if err := repo.CreateDataSource(&DataSource{ID: "ds-2", SourceID: "query-1", Type: "test"}); err == nil {
		t.Error("CreateDataSource() with a duplicate source_id and type should fail")
	}
	if err := repo.CreateDataSource(&DataSource{ID: "ds-3", SourceID: "query-1", Type: "other"}); err != nil {
		t.Errorf("CreateDataSource() with the same source_id but a different type should succeed: %v", err)
	}
	if err := repo.CreateDetector(&Detector{ID: "detector-a", Name: "dup", Type: "test"}); err == nil {
		t.Error("CreateDetector() with a duplicate ID should fail")
	}
	if err := repo.AttachDetector("ds-1", "detector-a"); err == nil {
		t.Error("AttachDetector() for an existing link should fail")
	}
}

func TestInMemoryRepositoryMissingTargets(t *testing.T) {
	repo := NewInMemoryDetectorRepository()

	if err := repo.AttachDetector("missing", "missing"); err == nil {
		t.Error("AttachDetector() with unknown ids should fail")
	}
	if err := repo.SetDetectorEnabled("missing", true); err == nil {
		t.Error("SetDetectorEnabled() with an unknown id should fail")
	}
	if err := repo.UpdateDataSourceType("missing", "test"); err == nil {
		t.Error("UpdateDataSourceType() with an unknown id should fail")
	}
	if err := repo.DeleteDataSource("missing"); err == nil {
		t.Error("DeleteDataSource() with an unknown id should fail")
	}
	if err := repo.ClearDetectors("missing"); err == nil {
		t.Error("ClearDetectors() with an unknown id should fail")
	}
}

func TestInMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := seedRepository(t)

	result, err := repo.BulkFetchEnabledDetectors(context.Background(), "test", []string{"query-1"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}

	// Mutating the returned detector must not affect stored state.
	result["query-1"][0].Enabled = false

	again, err := repo.BulkFetchEnabledDetectors(context.Background(), "test", []string{"query-1"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}
	if len(again["query-1"]) != 2 {
		t.Errorf("Stored detector state was mutated through the result")
	}
}

func TestInMemoryRepositoryDeleteDataSource(t *testing.T) {
	repo := seedRepository(t)

	if err := repo.DeleteDataSource("ds-1"); err != nil {
		t.Fatalf("DeleteDataSource() failed: %v", err)
	}

	result, err := repo.BulkFetchEnabledDetectors(context.Background(), "test", []string{"query-1"})
	if err != nil {
		t.Fatalf("BulkFetchEnabledDetectors() failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected no results after deleting the data source, got %v", result)
	}
}
