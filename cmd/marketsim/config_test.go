package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim.com/internal/cli"
)

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, v, err := loadConfig(filepath.Join("..", "..", "config", "marketsim.yaml"))
	require.NoError(t, err)
	require.NotNil(t, v)

	d, err := cfg.MinSpread()
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, []cli.Seed{
		{Side: "buy", Price: "100.00", Qty: 10},
		{Side: "buy", Price: "99.00", Qty: 15},
		{Side: "sell", Price: "102.00", Qty: 8},
		{Side: "sell", Price: "103.00", Qty: 12},
	}, cfg.Market.Seed)

	ec := cfg.EngineConfig()
	assert.Equal(t, 1024, ec.Actor.MailboxSize)
	assert.Equal(t, 4096, ec.EventBusSize)
	assert.False(t, ec.Metrics)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, _, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Market.MinSpreadPercent)
	assert.Empty(t, cfg.Market.Seed)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"negative spread": "market:\n  min_spread_percent: \"-1\"\n",
		"spread too big":  "market:\n  min_spread_percent: \"100\"\n",
		"not a number":    "market:\n  min_spread_percent: abc\n",
		"negative size":   "engine:\n  mailbox_size: -1\n",
		"metrics no addr": "metrics:\n  enabled: true\n  addr: \"\"\n",
		"bad format":      "events:\n  format: csv\n",
		"bad exporter":    "trace:\n  exporter: zipkin\n",
		"bad ratio":       "trace:\n  sample_ratio: 2\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "marketsim.yaml")
			require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			_, _, err := loadConfig(p)
			assert.Error(t, err)
		})
	}
}

func TestEventWriter(t *testing.T) {
	w, closeFn, err := eventWriter("")
	require.NoError(t, err)
	closeFn()
	_, err = w.Write([]byte("x"))
	assert.NoError(t, err)

	p := filepath.Join(t.TempDir(), "sub", "events.jsonl")
	w, closeFn, err = eventWriter(p)
	require.NoError(t, err)
	_, err = w.Write([]byte("{}\n"))
	require.NoError(t, err)
	closeFn()

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(b))
}
