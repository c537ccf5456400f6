package store

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func unitVec(axis int) []float64 {
	v := make([]float64, EmbeddingDim)
	v[axis] = 1.0
	return v
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	// Start Postgres Container with pgvector
	// We use the official pgvector image to ensure the extension is available.
	pgContainer, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("facegate_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	// Empty table never matches
	if _, ok, err := s.FindClosest(ctx, unitVec(0), 0.6); err != nil || ok {
		t.Fatalf("Expected no match on empty table, got ok=%v err=%v", ok, err)
	}

	entries := []gallery.Entry{
		{Name: "alice", Source: "known_faces/alice.jpg", Embedding: unitVec(0)},
		{Name: "bob", Source: "known_faces/bob.jpg", Embedding: unitVec(1)},
		{Name: "alice", Source: "known_faces/alice.png", Embedding: unitVec(2)},
	}
	n, err := s.ReplaceGallery(ctx, entries)
	if err != nil {
		t.Fatalf("ReplaceGallery failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows exported, got %d", n)
	}

	// Exact match
	m, ok, err := s.FindClosest(ctx, unitVec(1), 0.6)
	if err != nil {
		t.Fatalf("FindClosest failed: %v", err)
	}
	if !ok || m.Name != "bob" || m.Distance > 1e-6 {
		t.Errorf("Expected exact match on bob, got %+v ok=%v", m, ok)
	}

	// Orthogonal unit vectors are sqrt(2) apart, beyond the threshold.
	m, ok, err = s.FindClosest(ctx, unitVec(5), 0.6)
	if err != nil {
		t.Fatalf("FindClosest error: %v", err)
	}
	if ok {
		t.Errorf("Expected no match, got %+v", m)
	}
	if math.Abs(m.Distance-math.Sqrt2) > 1e-4 {
		t.Errorf("Expected nearest distance ~%f, got %f", math.Sqrt2, m.Distance)
	}

	// Duplicates survive, order is preserved.
	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 || records[0].Name != "alice" || records[2].Source != "known_faces/alice.png" {
		t.Fatalf("Unexpected records %+v", records)
	}
	if len(records[0].Embedding) != EmbeddingDim || records[0].Embedding[0] != 1.0 {
		t.Errorf("Embedding did not round trip: %v", records[0].Embedding[:3])
	}

	// Replacing twice does not accumulate rows.
	if _, err := s.ReplaceGallery(ctx, entries[:1]); err != nil {
		t.Fatalf("second ReplaceGallery failed: %v", err)
	}
	if c, err := s.Count(ctx); err != nil || c != 1 {
		t.Errorf("Expected 1 row after replace, got %d (%v)", c, err)
	}

	// Wrong dimension rolls back the whole export.
	bad := append(entries[:1:1], gallery.Entry{Name: "short", Embedding: []float64{1, 2}})
	if _, err := s.ReplaceGallery(ctx, bad); err == nil {
		t.Fatal("Expected dimension error")
	}
	if c, _ := s.Count(ctx); c != 1 {
		t.Errorf("Expected failed export to roll back, got %d rows", c)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to reconnect after reset: %v", err)
	}
	defer s2.Close(ctx)
	if c, err := s2.Count(ctx); err != nil || c != 0 {
		t.Errorf("Expected empty table after reset, got %d (%v)", c, err)
	}
}

func TestToFloat32(t *testing.T) {
	got := toFloat32([]float64{0.5, -1.25})
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1.25 {
		t.Errorf("toFloat32 = %v", got)
	}
}
