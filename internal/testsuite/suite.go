// Package testsuite starts throwaway infrastructure for integration tests. Every constructor
// skips the test when Docker is not reachable.
package testsuite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	expireDuration  = 120
	maxWaitDuration = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"

	postgresPort     = "5432/tcp"
	postgresImage    = "postgres"
	postgresTag      = "16-alpine"
	postgresPassword = "secret"
	postgresDB       = "sto"
)

type Suite struct {
	*testing.T
	Logger *logrus.Logger

	Redis    *redis.Client
	Postgres *pgxpool.Pool
}

// NewRedis starts a disposable Redis container.
func NewRedis(t *testing.T) (context.Context, *Suite) {
	t.Helper()
	ctx, pool := setup(t)

	resource := run(t, pool, &dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	})
	redisHost := resource.GetHostPort(redisPort)

	var client *redis.Client
	if err := pool.Retry(func() error {
		client = redis.NewClient(&redis.Options{Addr: redisHost})
		return client.Ping(ctx).Err()
	}); err != nil {
		t.Fatalf("could not connect to redis: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return ctx, newSuite(t, func(s *Suite) { s.Redis = client })
}

// NewPostgres starts a disposable Postgres container.
func NewPostgres(t *testing.T) (context.Context, *Suite) {
	t.Helper()
	ctx, pool := setup(t)

	resource := run(t, pool, &dockertest.RunOptions{
		Repository: postgresImage,
		Tag:        postgresTag,
		Env: []string{
			"POSTGRES_PASSWORD=" + postgresPassword,
			"POSTGRES_DB=" + postgresDB,
		},
	})
	url := fmt.Sprintf("postgres://postgres:%s@%s/%s?sslmode=disable",
		postgresPassword, resource.GetHostPort(postgresPort), postgresDB)

	var db *pgxpool.Pool
	if err := pool.Retry(func() error {
		var err error
		db, err = pgxpool.New(ctx, url)
		if err != nil {
			return err
		}
		if err = db.Ping(ctx); err != nil {
			db.Close()
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	t.Cleanup(db.Close)

	return ctx, newSuite(t, func(s *Suite) { s.Postgres = db })
}

func newSuite(t *testing.T, with func(*Suite)) *Suite {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s := &Suite{T: t, Logger: logger}
	with(s)
	return s
}

func setup(t *testing.T) (context.Context, *dockertest.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping docker-backed test in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not construct docker pool: %v", err)
	}
	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}
	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	pool.MaxWait = maxWaitDuration
	return ctx, pool
}

// run pulls an image, creates a container based on it and runs it. The container is purged
// when the test ends.
func run(t *testing.T, pool *dockertest.Pool, opts *dockertest.RunOptions) *dockertest.Resource {
	t.Helper()
	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	// never returns error
	_ = resource.Expire(expireDuration)

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Errorf("could not purge resource: %v", err)
		}
	})
	return resource
}
