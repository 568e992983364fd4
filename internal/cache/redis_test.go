package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppg-vitals/internal/measurement"
	"ppg-vitals/internal/vitals"
)

func newTestCache(t *testing.T, capacity int) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), mr.Addr(), "", 0, time.Hour, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisCache(context.Background(), addr, "", 0, time.Hour, 10)
	assert.Error(t, err)
}

func TestStoreMeasurement_BoundedNewestFirst(t *testing.T) {
	c, mr := newTestCache(t, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.StoreMeasurement(ctx, measurement.Measurement{
			ID:           fmt.Sprintf("m-%d", i),
			DeviceID:     "device-1",
			HeartRateBpm: 60 + i,
		}))
	}

	history, err := c.GetHistory(ctx, "device-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "m-5", history[0].ID)
	assert.Equal(t, "m-3", history[2].ID)
	assert.Equal(t, 65, history[0].HeartRateBpm)

	assert.Equal(t, time.Hour, mr.TTL("history:device-1"))
}

func TestGetHistory_Limit(t *testing.T) {
	c, _ := newTestCache(t, 10)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, c.StoreMeasurement(ctx, measurement.Measurement{ID: fmt.Sprint(i), DeviceID: "d"}))
	}

	history, err := c.GetHistory(ctx, "d", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestGetHistory_RoundTripOptionalFields(t *testing.T) {
	c, _ := newTestCache(t, 10)
	ctx := context.Background()

	spo2 := 97
	stored := measurement.Measurement{
		ID:           "m-1",
		DeviceID:     "d",
		Timestamp:    time.Date(2024, 5, 1, 10, 0, 15, 0, time.UTC),
		HeartRateBpm: 72,
		SpO2Percent:  &spo2,
		HRV:          &vitals.HRV{SDNN: 40, RMSSD: 35, PNN50: 12},
		QualityFlags: []string{},
	}
	require.NoError(t, c.StoreMeasurement(ctx, stored))

	history, err := c.GetHistory(ctx, "d", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, stored, history[0])
	assert.Nil(t, history[0].RespirationRateBpm)
}

func TestGetHistory_Empty(t *testing.T) {
	c, _ := newTestCache(t, 10)

	history, err := c.GetHistory(context.Background(), "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetHistory_Corrupted(t *testing.T) {
	c, mr := newTestCache(t, 10)
	_, err := mr.Lpush("history:d", "{not json")
	require.NoError(t, err)

	_, err = c.GetHistory(context.Background(), "d", 5)
	assert.Error(t, err)
}

func TestCounters(t *testing.T) {
	c, _ := newTestCache(t, 10)
	ctx := context.Background()

	v, err := c.GetCounter(ctx, "measurements:complete")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, c.IncrementCounter(ctx, "measurements:complete"))
	require.NoError(t, c.IncrementCounter(ctx, "measurements:complete"))

	v, err = c.GetCounter(ctx, "measurements:complete")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	assert.NoError(t, c.Ping(ctx))
	assert.Contains(t, c.GetStats(), "total_conns")
}
