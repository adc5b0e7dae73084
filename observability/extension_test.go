package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

func newTestExtension(t *testing.T) (*MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetricsExtension(NewPrometheusFactory(reg)), reg
}

func counterValue(t *testing.T, c Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	if !ok {
		t.Fatalf("counter %T is not a prometheus.Counter", c)
	}
	return testutil.ToFloat64(pc)
}

func TestSettlementCounters(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestExtension(t)

	claim := &settlement.Settlement{Kind: settlement.KindClaim, Amount: types.NewAmount(250)}
	_ = m.OnSettlementStarted(ctx, claim)
	claim.Status = settlement.StatusSucceeded
	_ = m.OnSettlementSucceeded(ctx, claim)

	reg := &settlement.Settlement{Kind: settlement.KindRegister, Status: settlement.StatusRejected}
	_ = m.OnSettlementStarted(ctx, reg)
	_ = m.OnSettlementFailed(ctx, reg)

	revoke := &settlement.Settlement{Kind: settlement.KindRevoke, Status: settlement.StatusAbandoned}
	_ = m.OnSettlementFailed(ctx, revoke)

	tests := []struct {
		name string
		c    Counter
		want float64
	}{
		{"claims started", m.ClaimsStarted, 1},
		{"claims settled", m.ClaimsSettled, 1},
		{"claims reverted", m.ClaimsReverted, 0},
		{"registrations started", m.RegistrationsStarted, 1},
		{"registrations rejected", m.RegistrationsRejected, 1},
		{"revokes reverted", m.RevokesReverted, 0},
		{"abandoned", m.SettlementsAbandoned, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaleCounters(t *testing.T) {
	ctx := context.Background()
	m, reg := newTestExtension(t)

	acct := &allocation.Account{Participant: "alice"}
	_ = m.OnSaleAccountOpened(ctx, "alice")
	_ = m.OnParticipantRegistered(ctx, acct)
	_ = m.OnPurchase(ctx, acct, types.NewAmount(10), types.NewAmount(40))
	_ = m.OnPurchase(ctx, acct, types.NewAmount(5), types.NewAmount(20))

	if got := counterValue(t, m.Purchases); got != 2 {
		t.Errorf("purchases = %v, want 2", got)
	}
	if got := counterValue(t, m.ParticipantsRegistered); got != 1 {
		t.Errorf("registered = %v, want 1", got)
	}
	n, err := testutil.GatherAndCount(reg, "grant_sale_purchased_tokens")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected purchased tokens histogram to be registered, got %d", n)
	}
}

func TestAccountsCreatedAddsBatchSize(t *testing.T) {
	m, _ := newTestExtension(t)
	accounts := []*vesting.Account{{Participant: "a"}, {Participant: "b"}, {Participant: "c"}}

	_ = m.OnAccountsCreated(context.Background(), accounts)

	if got := counterValue(t, m.AccountsCreated); got != 3 {
		t.Errorf("accounts created = %v, want 3", got)
	}
}

func TestPrometheusFactoryReusesRegisteredCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusFactory(reg)

	first := f.Counter("grant.test.counter")
	second := f.Counter("grant.test.counter")
	first.Inc()
	second.Inc()

	if got := counterValue(t, first); got != 2 {
		t.Errorf("shared counter = %v, want 2", got)
	}
}

func TestMetricName(t *testing.T) {
	if got := metricName("grant.settlement.protocol-violations"); got != "grant_settlement_protocol_violations" {
		t.Errorf("metricName = %q", got)
	}
}
