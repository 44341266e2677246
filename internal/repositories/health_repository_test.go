package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/commerce/internal/domain"
)

func TestProbeHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return nil }},
	}, func() time.Time { return now })
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, now, report.Checks["postgres"].CheckedAt)
}

func TestProbeHealthRepositoryDegradedAndTimeout(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "broker", Check: func(context.Context) error { return errors.New("connection refused") }},
		{Name: "postgres", Timeout: 10 * time.Millisecond, Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}, nil)
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.Equal(t, domain.HealthStatusDegraded, report.Checks["broker"].Status)
	assert.Equal(t, "connection refused", report.Checks["broker"].Detail)
	assert.Equal(t, "timeout", report.Checks["postgres"].Detail)
}

func TestNewProbeHealthRepositoryValidatesProbes(t *testing.T) {
	_, err := NewProbeHealthRepository(nil, nil)
	require.Error(t, err)

	_, err = NewProbeHealthRepository([]DependencyProbe{{Name: "db"}}, nil)
	require.Error(t, err)
}
