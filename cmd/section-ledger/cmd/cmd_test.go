package cmd

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonworks-llc/section-ledger/pkg/db"
	"github.com/pigeonworks-llc/section-ledger/pkg/store"
	"github.com/pigeonworks-llc/section-ledger/pkg/tenant"
)

func TestBaseTokens(t *testing.T) {
	got := baseTokens([]tenant.Context{
		{Key: "a", BaseID: "app1", Token: "t1"},
		{Key: "b", BaseID: "app2", Token: "t2"},
		{Key: "c", BaseID: "app1", Token: "t3"},
	})
	assert.Equal(t, map[string][]string{
		"app1": {"t1", "t3"},
		"app2": {"t2"},
	}, got)
}

func TestParseDay(t *testing.T) {
	assert.True(t, parseDay("from", "").IsZero())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), parseDay("from", "2024-02-29"))
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"contexts", "reconcile", "export", "stats", "exports", "emulate"} {
		assert.Contains(t, names, want)
	}
}

func TestParseKind(t *testing.T) {
	k, err := parseKind("reversal")
	require.NoError(t, err)
	assert.Equal(t, db.KindReversal, k)

	_, err = parseKind("refund")
	assert.Error(t, err)
}

func TestStoreCountsOfUnusedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	store.NewMetrics(reg)
	assert.Equal(t, store.Counts{}, storeCounts(reg))
}
