package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/repository/firestore"
	"github.com/secmon-lab/moderato/pkg/repository/memory"
	"github.com/secmon-lab/moderato/pkg/repository/postgres"
	"github.com/secmon-lab/moderato/pkg/repository/rediscache"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite/db"
)

type backend struct {
	name    string
	newRepo func(t *testing.T) interfaces.Repository
}

func backends() []backend {
	return []backend{
		{"memory", newMemoryRepository},
		{"sqlite", newSQLiteRepository},
		{"rediscache", newRedisCacheRepository},
		{"firestore", newFirestoreRepository},
		{"postgres", newPostgresRepository},
	}
}

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newSQLiteRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	repo, err := sqlite.New(context.Background(), db.Config{
		Path:     "repotest_" + uuid.NewString(),
		InMemory: true,
	})
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func newRedisCacheRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return rediscache.New(memory.New(), client)
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("MODERATO_TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("MODERATO_TEST_FIRESTORE_PROJECT_ID not set")
	}
	databaseID := os.Getenv("MODERATO_TEST_FIRESTORE_DATABASE_ID")

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID,
		firestore.WithCollectionPrefix("test_"+uuid.NewString()[:8]))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func newPostgresRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	dsn := os.Getenv("MODERATO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MODERATO_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	repo, err := postgres.New(ctx, dsn)
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Migrate(ctx)).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func TestActionRecordRepository(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			runActionRecordRepositoryTest(t, b.newRepo)
		})
	}
}

func TestModlogRepository(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			runModlogRepositoryTest(t, b.newRepo)
		})
	}
}
