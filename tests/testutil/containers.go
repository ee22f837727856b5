package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Endpoint is a started container and the host/port it is reachable on
type Endpoint struct {
	Container testcontainers.Container
	Host      string
	Port      int
	URL       string
}

// Terminate stops the container
func (e *Endpoint) Terminate(ctx context.Context) error {
	if e == nil || e.Container == nil {
		return nil
	}
	return e.Container.Terminate(ctx)
}

// TestContainers holds all test containers
type TestContainers struct {
	Postgres *Endpoint
	Redis    *Endpoint
	NATS     *Endpoint
}

// StartPostgres starts a PostgreSQL container
func StartPostgres(ctx context.Context) (*Endpoint, error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	ep, err := endpoint(ctx, pgContainer, "5432/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve postgres endpoint: %w", err)
	}
	ep.URL = fmt.Sprintf("postgres://testuser:testpass@%s:%d/testdb?sslmode=disable", ep.Host, ep.Port)
	return ep, nil
}

// StartRedis starts a Redis container
func StartRedis(ctx context.Context) (*Endpoint, error) {
	redisContainer, err := redis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
		redis.WithLogLevel(redis.LogLevelDebug),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	ep, err := endpoint(ctx, redisContainer, "6379/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve redis endpoint: %w", err)
	}
	ep.URL = fmt.Sprintf("redis://%s:%d", ep.Host, ep.Port)
	return ep, nil
}

// StartNATS starts a NATS server container
func StartNATS(ctx context.Context) (*Endpoint, error) {
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start nats container: %w", err)
	}

	ep, err := endpoint(ctx, natsContainer, "4222/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve nats endpoint: %w", err)
	}
	ep.URL = fmt.Sprintf("nats://%s:%d", ep.Host, ep.Port)
	return ep, nil
}

// StartContainers starts all required containers for testing
func StartContainers(ctx context.Context) (*TestContainers, error) {
	tc := &TestContainers{}
	var err error

	if tc.Postgres, err = StartPostgres(ctx); err != nil {
		return nil, err
	}
	if tc.Redis, err = StartRedis(ctx); err != nil {
		tc.Cleanup(ctx)
		return nil, err
	}
	if tc.NATS, err = StartNATS(ctx); err != nil {
		tc.Cleanup(ctx)
		return nil, err
	}
	return tc, nil
}

// Cleanup terminates all containers
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	if err := tc.Postgres.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate postgres: %w", err))
	}
	if err := tc.Redis.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate redis: %w", err))
	}
	if err := tc.NATS.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate nats: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

func endpoint(ctx context.Context, c testcontainers.Container, port string) (*Endpoint, error) {
	host, err := c.Host(ctx)
	if err != nil {
		c.Terminate(ctx)
		return nil, err
	}

	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		c.Terminate(ctx)
		return nil, err
	}

	return &Endpoint{
		Container: c,
		Host:      host,
		Port:      mapped.Int(),
	}, nil
}
