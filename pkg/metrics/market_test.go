package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_AllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	// 重复注册要报错
	assert.Error(t, Register(reg))

	OrdersTotal.WithLabelValues("buy", ResultAccepted).Inc()
	BookLevels.WithLabelValues("bid").Set(2)

	n, err := testutil.GatherAndCount(reg, "marketsim_orders_total", "marketsim_book_levels")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSpreadGauge(t *testing.T) {
	SpreadPercent.Set(1.9608)
	expected := `
# HELP marketsim_spread_percent Current (ask-bid)/ask*100; 0 when one side is empty.
# TYPE marketsim_spread_percent gauge
marketsim_spread_percent 1.9608
`
	assert.NoError(t, testutil.CollectAndCompare(SpreadPercent, strings.NewReader(expected)))
}
