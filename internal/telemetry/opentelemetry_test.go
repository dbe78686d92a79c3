package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/log"
)

func TestInitMeterProvider(t *testing.T) {
	reg := prometheus.NewRegistry()

	mp, err := InitMeterProvider(reg)
	require.NoError(t, err)

	counter, err := mp.Meter("test").Int64Counter("credential_checks")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "credential_checks_total")

	Shutdown(context.Background(), log.NewNopLogger(), nil, mp)
}
