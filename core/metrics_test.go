package core

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOutcome(t *testing.T) {
	assert.Equal(t, "ok", fetchOutcome(nil))
	assert.Equal(t, "upstream-status", fetchOutcome(&FetchError{Reason: "status 503"}))
	assert.Equal(t, ReasonInvalidArgument, fetchOutcome(&FetchError{Reason: ReasonInvalidArgument}))
	assert.Equal(t, ReasonEmptyDataset, fetchOutcome(&FetchError{Reason: ReasonEmptyDataset, Err: ErrEmptyDataset}))
	assert.Equal(t, "error", fetchOutcome(errors.New("boom")))
}

func TestInstrumentSource(t *testing.T) {
	m := NewMetrics()
	inner := &fakeSource{grid: employeeGrid()}
	src := m.InstrumentSource(inner)

	grid, err := src.Fetch(context.Background(), "s", "A:C", "k")
	require.NoError(t, err)
	assert.Equal(t, employeeGrid(), grid)

	inner.err = &FetchError{Reason: "status 404"}
	_, err = src.Fetch(context.Background(), "s", "A:C", "k")
	assert.Error(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.FetchDuration))
	assert.Equal(t, 2, inner.Calls())
}

func TestMetricsRegistryIsPrivate(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ObserveLogin(KindSuccess)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.LoginAttempts.WithLabelValues(string(KindSuccess))))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.LoginAttempts.WithLabelValues(string(KindSuccess))))
}
