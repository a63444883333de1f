package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.OpsTotal.WithLabelValues("buyItem", "ok").Inc()
	m.OpsTotal.WithLabelValues("buyItem", "ok").Inc()
	m.OpsTotal.WithLabelValues("buyItem", "price not met").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("buyItem", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("buyItem", "price not met")))
}

func TestRecordEvent(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.UnitsSold)
	RecordEvent("ItemBought")
	RecordEvent("ItemListed")
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.UnitsSold))
}

func TestCodeLabel(t *testing.T) {
	assert.Equal(t, "ok", codeLabel(0))
	assert.Equal(t, "-32001", codeLabel(-32001))
}
