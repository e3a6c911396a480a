package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveLedgerCall("stake", "ok", time.Now())
	m.ObserveCompensation("join", nil)
	m.ObserveCompensation("join", errors.New("store down"))
	m.Eliminations.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerCalls.WithLabelValues("stake", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("join", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("join", "failed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["challenge_ledger_calls_total"])
	assert.True(t, names["challenge_eliminations_total"])
}

func TestNewWithNilRegisterer(t *testing.T) {
	m := New(nil)
	m.Divergences.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Divergences))
}
