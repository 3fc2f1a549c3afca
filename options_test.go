package livegrid

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	lg, err := New(WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Equal(t, 8080, lg.Port())
	assert.Equal(t, 5*time.Second, lg.RefreshInterval())
	assert.Equal(t, 5*time.Second, lg.InitialDelay())
	assert.Equal(t, 8, lg.Store().Len())
	assert.Equal(t, 0, lg.Broadcaster().Len())

	records := lg.Store().FindAll()
	assert.Equal(t, "Opal", records[0].Name)
	for _, r := range records {
		assert.True(t, r.Amount.IsZero(), "%s should start at zero", r.Name)
	}
}

func TestWithPort(t *testing.T) {
	lg, err := New(WithPort(9090), WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Equal(t, 9090, lg.Port())
}

func TestWithPort_Invalid(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		_, err := New(WithPort(port))
		assert.Error(t, err, "port %d", port)
	}
}

func TestWithPort_ValidEdgeCases(t *testing.T) {
	for _, port := range []int{1, 65535} {
		lg, err := New(WithPort(port), WithLogger(testLogger()))
		require.NoError(t, err, "port %d", port)
		lg.Broadcaster().Cancel()
	}
}

func TestWithRefreshInterval(t *testing.T) {
	lg, err := New(WithRefreshInterval(2*time.Second), WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Equal(t, 2*time.Second, lg.RefreshInterval())
	assert.Equal(t, 2*time.Second, lg.InitialDelay(), "initial delay follows the interval")
}

func TestWithRefreshInterval_Invalid(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, err := New(WithRefreshInterval(d))
		assert.Error(t, err, "interval %s", d)
	}
}

func TestWithInitialDelay(t *testing.T) {
	lg, err := New(WithInitialDelay(0), WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Equal(t, time.Duration(0), lg.InitialDelay())

	_, err = New(WithInitialDelay(-time.Second))
	assert.Error(t, err)
}

func TestWithProbabilities_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"skip below zero", WithSkipProbability(-0.1)},
		{"skip above one", WithSkipProbability(1.1)},
		{"new below zero", WithNewProbability(-0.1)},
		{"new above one", WithNewProbability(1.5)},
		{"zero delta", WithMaxDelta(0)},
		{"negative dispatch timeout", WithDispatchTimeout(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestWithSeedNames(t *testing.T) {
	lg, err := New(WithSeedNames("Garnet", "Jade"), WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	records := lg.Store().FindAll()
	require.Len(t, records, 2)
	assert.Equal(t, "Garnet", records[0].Name)
	assert.Equal(t, "Jade", records[1].Name)
}

func TestWithSeedNames_Invalid(t *testing.T) {
	_, err := New(WithSeedNames("Garnet", "Garnet"))
	assert.ErrorContains(t, err, "duplicate name")

	_, err = New(WithSeedNames("Garnet", ""))
	assert.ErrorContains(t, err, "cannot be empty")

	_, err = New(WithSampleNames("Jade", "Jade"))
	assert.ErrorContains(t, err, "duplicate name")
}

func TestWithSweepSchedule_Invalid(t *testing.T) {
	_, err := New(WithSweepSchedule("whenever"))
	assert.ErrorContains(t, err, "invalid cron schedule")
}

func TestWithRedisRelay_EmptyAddr(t *testing.T) {
	_, err := New(WithRedisRelay("", "changes"))
	assert.Error(t, err)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	lg, err := New(WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Same(t, logger, lg.logger)
}

func TestWithLogger_Nil(t *testing.T) {
	_, err := New(WithLogger(nil))
	assert.Error(t, err)
}

func TestWithLogger_DefaultsToSlogDefault(t *testing.T) {
	lg, err := New()
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Same(t, slog.Default(), lg.logger)
}

func TestWithTitle(t *testing.T) {
	lg, err := New(WithTitle("Precious Stones"), WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(lg.Broadcaster().Cancel)

	assert.Equal(t, "Precious Stones", lg.title)
}

func TestWithRandomSourceAndClock_Nil(t *testing.T) {
	_, err := New(WithRandomSource(nil))
	assert.Error(t, err)

	_, err = New(WithClock(nil))
	assert.Error(t, err)
}
