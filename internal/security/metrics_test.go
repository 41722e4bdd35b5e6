package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("BOURRACHO_TEST_POD", "pod-7")

	labels, err := ParseMetricsLabels("service=bourracho,pod=${BOURRACHO_TEST_POD}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "bourracho", "pod": "pod-7"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseMetricsLabels("service")
	assert.Error(t, err)

	_, err = ParseMetricsLabels("9lives=yes")
	assert.Error(t, err)
}

func TestHelpersTolerateUninitializedMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		IncCounter(nil)
		SetGauge(nil, 3)
	})
}
