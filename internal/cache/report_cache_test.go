package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/visual-health-insight/internal/domain"
)

func sampleReport(id string) domain.PatientReport {
	return domain.PatientReport{
		Patient:     domain.Patient{ID: id, Name: "John Smith", Gender: "Male"},
		Summary:     domain.Summary{PatientID: id, PatientName: "John Smith", RiskFactors: []string{"Blood pressure concerns"}},
		Systems:     domain.SystemsView{PatientID: id, Affected: []string{"Cardiovascular"}, Monitored: []string{}},
		Diagram:     domain.DiagramView{PatientID: id, Available: true, Markup: "<svg/>", Recolored: 2},
		GeneratedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestReportCache_MemoryOnly(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, err := New(Config{MaxItems: 2}, logger)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, ok := c.Get(ctx, "P001")
	assert.False(t, ok)

	c.Add(ctx, "P001", sampleReport("P001"))
	c.Add(ctx, "P002", sampleReport("P002"))
	c.Add(ctx, "P003", sampleReport("P003"))
	assert.Equal(t, 2, c.Len())

	_, _, ok = c.Get(ctx, "P001")
	assert.False(t, ok, "least recently used entry is evicted")

	report, tier, ok := c.Get(ctx, "P003")
	require.True(t, ok)
	assert.Equal(t, TierMemory, tier)
	assert.Equal(t, "P003", report.Patient.ID)

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Equal(t, RedisDisabled, c.Check(ctx))
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(Config{MaxItems: 0}, logrus.New())
	assert.Error(t, err)
}

func TestReportCache_RedisUnavailableDegrades(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c, err := New(Config{MaxItems: 4, RedisClient: client, TTL: time.Minute, KeyPrefix: "test:"}, logger)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, ok := c.Get(ctx, "P001")
	assert.False(t, ok)

	c.Add(ctx, "P001", sampleReport("P001"))
	report, tier, ok := c.Get(ctx, "P001")
	require.True(t, ok, "memory tier still serves")
	assert.Equal(t, TierMemory, tier)
	assert.Equal(t, "John Smith", report.Patient.Name)

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, RedisUnreachable, c.Check(ctx))
}

func TestReportCache_RedisTier(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	logger, _ := test.NewNullLogger()
	writer, err := New(Config{MaxItems: 4, RedisClient: client, TTL: time.Minute, KeyPrefix: "health-insight:report:"}, logger)
	require.NoError(t, err)
	writer.Add(ctx, "P001", sampleReport("P001"))

	ttl, err := client.TTL(ctx, "health-insight:report:P001").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	reader, err := New(Config{MaxItems: 4, RedisClient: client, TTL: time.Minute, KeyPrefix: "health-insight:report:"}, logger)
	require.NoError(t, err)

	report, tier, ok := reader.Get(ctx, "P001")
	require.True(t, ok)
	assert.Equal(t, TierRedis, tier)
	assert.Equal(t, sampleReport("P001"), report)

	_, tier, ok = reader.Get(ctx, "P001")
	require.True(t, ok)
	assert.Equal(t, TierMemory, tier, "redis hit is promoted to memory")
}
