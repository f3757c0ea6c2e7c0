package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"chartfeed/config"
	"chartfeed/internal/market"
	"chartfeed/pkg/storage/gormstore"
	"chartfeed/pkg/storage/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localConfig returns the connection settings of a test server, skipping
// the test unless CHARTFEED_TEST_POSTGRES_PASSWORD is set.
func localConfig(t *testing.T) config.PostgresConfig {
	t.Helper()
	pw := os.Getenv("CHARTFEED_TEST_POSTGRES_PASSWORD")
	if pw == "" {
		t.Skip("CHARTFEED_TEST_POSTGRES_PASSWORD not set")
	}
	return config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: pw,
		DBName:   "chartfeed_test",
		SSLMode:  "disable",
		TimeZone: "UTC",

		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=127.0.0.1 port=1 user=fail password=fail dbname=fail sslmode=disable connect_timeout=1"

	_, err := postgres.NewClient(invalidDSN)
	assert.Error(t, err)
}

// go test -v --run ^TestInitializeChartStore$
func TestInitializeChartStore(t *testing.T) {
	cfg := localConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := postgres.InitializeChartStore(ctx, cfg, nil, true)
	require.NoError(t, err)
	defer store.Close()
	assert.True(t, store.IsHealthy(ctx))

	s := market.Series{Pair: "BTC_ETH", Freq: 5 * time.Minute, Candles: []market.Candle{
		{Time: time.Unix(1700000100, 0).UTC(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3, WeightedAverage: 1.2},
	}}
	require.NoError(t, store.Save(ctx, s))
	got, err := store.Load(ctx, "BTC_ETH", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	require.NoError(t, store.DB.WithContext(ctx).Where("pair = ?", "BTC_ETH").Delete(&gormstore.CandleRecord{}).Error)
}
