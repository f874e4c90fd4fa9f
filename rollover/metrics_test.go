// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"errors"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	require := require.New(t)

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(err)

	h := newHarness(t, 100, WithMetrics(metrics))
	h.fundWithdrawal([]common.Address{testTokenA}, us(100))
	h.dst.stakeErr = errors.New("gauge paused")

	_, err = h.m.RolloverLiquidity(h.state, testUser, h.request(10, us(0), 101))
	require.ErrorIs(err, ErrSlippageExceeded)
	_, err = h.m.RolloverLiquidity(h.state, testUser, h.request(0, us(0), 0))
	require.ErrorIs(err, ErrInvalidRequest)
	_, err = h.m.RolloverLiquidity(h.state, testUser, h.request(10, us(0), 0))
	require.NoError(err)

	require.Equal(1.0, testutil.ToFloat64(metrics.Migrations.WithLabelValues("failure", "slippage_exceeded")))
	require.Equal(1.0, testutil.ToFloat64(metrics.Migrations.WithLabelValues("failure", "invalid_request")))
	require.Equal(1.0, testutil.ToFloat64(metrics.Migrations.WithLabelValues("success", "")))
	require.Equal(1.0, testutil.ToFloat64(metrics.StakeFailures))
	// Counters are not rolled back with state: the reverted call forwarded a fee too
	require.Equal(2.0, testutil.ToFloat64(metrics.FeesForwarded))
	require.Zero(testutil.ToFloat64(metrics.FeesDeferred))
	require.Equal(1, testutil.CollectAndCount(metrics.MigrationLatency))
}

func TestMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	require.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.migration(nil)
	m.migration(ErrReentrant)
	m.stakeFailed()
	m.feeForwarded()
	m.feeDeferred()
	m.feeClaimed()
	m.timer().ObserveDuration()
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{ErrInvalidRequest, "invalid_request"},
		{ErrReentrant, "reentrant"},
		{ErrFeeTransferMismatch, "fee_transfer_mismatch"},
		{ErrNoPendingFees, "no_pending_fees"},
		{errors.New("venue exploded"), "adapter"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.kind, KindOf(tt.err))
	}
}
