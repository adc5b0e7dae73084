package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/grant/id"
	"github.com/xraph/grant/types"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]Settlement

	// failWrites fails the next n updates that would write status failOn.
	failOn     Status
	failWrites int
}

var errConnReset = errors.New("connection reset")

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]Settlement)} }

func (f *fakeStore) CreateSettlement(_ context.Context, s *Settlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[s.ID.String()] = *s
	return nil
}

func (f *fakeStore) GetSettlement(_ context.Context, sid id.SettlementID) (*Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[sid.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) UpdateSettlement(_ context.Context, s *Settlement, expected Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[s.ID.String()]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrStatusConflict
	}
	if f.failWrites > 0 && s.Status == f.failOn {
		f.failWrites--
		return errConnReset
	}
	f.rows[s.ID.String()] = *s
	return nil
}

func (f *fakeStore) ListSettlements(context.Context, ListOpts) ([]*Settlement, error) {
	return nil, nil
}

// counterHandler applies Amount to a balance, mirroring a claim.
type counterHandler struct {
	balance     types.Amount
	dispatched  []Correlation
	reply       func(Outcome)
	dispatchErr error
	finalizeErr error
	applyErr    error

	compensateFailures int
}

func (h *counterHandler) Kind() Kind { return KindClaim }

func (h *counterHandler) Apply(_ context.Context, s *Settlement) error {
	if h.applyErr != nil {
		return h.applyErr
	}
	next, err := h.balance.Add(s.Amount)
	if err != nil {
		return err
	}
	h.balance = next
	return nil
}

func (h *counterHandler) Dispatch(_ context.Context, s *Settlement, reply func(Outcome)) error {
	if h.dispatchErr != nil {
		return h.dispatchErr
	}
	h.dispatched = append(h.dispatched, s.Correlation())
	h.reply = reply
	return nil
}

func (h *counterHandler) Finalize(context.Context, *Settlement, Outcome) error { return h.finalizeErr }

func (h *counterHandler) Compensate(_ context.Context, s *Settlement) error {
	if h.compensateFailures > 0 {
		h.compensateFailures--
		return errConnReset
	}
	next, err := h.balance.Sub(s.Amount)
	if err != nil {
		return err
	}
	h.balance = next
	return nil
}

func newTestCoordinator(h *counterHandler) *Coordinator {
	return NewCoordinator(newFakeStore(),
		WithHandler(h),
		WithDelivery(func(Outcome) {}),
	)
}

func TestBeginAndSucceed(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{}
	c := newTestCoordinator(h)

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(100)})
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusPending || s.ID.Prefix() != id.PrefixSettlement {
		t.Fatalf("unexpected settlement: %+v", s)
	}
	if len(h.dispatched) != 1 {
		t.Fatalf("expected exactly one external call, got %d", len(h.dispatched))
	}
	if pending, _ := c.IsPending(ctx, "alice"); !pending {
		t.Error("participant should be pending")
	}

	resolved, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation(), Reference: "tx-1"})
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusSucceeded || resolved.Reference != "tx-1" || resolved.ResolvedAt == nil {
		t.Errorf("unexpected resolution: %+v", resolved)
	}
	if !h.balance.Equal(types.NewAmount(100)) {
		t.Errorf("balance = %s, want 100", h.balance)
	}
	if pending, _ := c.IsPending(ctx, "alice"); pending {
		t.Error("participant should be idle after resolution")
	}
}

func TestFailureCompensatesExactly(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{balance: types.NewAmount(40)}
	c := newTestCoordinator(h)

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(60)})
	if err != nil {
		t.Fatal(err)
	}
	if !h.balance.Equal(types.NewAmount(100)) {
		t.Fatalf("optimistic balance = %s, want 100", h.balance)
	}

	resolved, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation(), Err: errors.New("transfer refused")})
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusCompensated || resolved.Failure != "transfer refused" {
		t.Errorf("unexpected resolution: %+v", resolved)
	}
	if !h.balance.Equal(types.NewAmount(40)) {
		t.Errorf("balance after compensation = %s, want 40", h.balance)
	}

	_, err = c.Resolve(ctx, Outcome{Correlation: s.Correlation()})
	if !errors.Is(err, ErrDuplicateResolution) {
		t.Fatalf("expected ErrDuplicateResolution, got %v", err)
	}
	if !h.balance.Equal(types.NewAmount(40)) {
		t.Errorf("duplicate resolution changed balance to %s", h.balance)
	}
}

func TestResolveUnknownCorrelation(t *testing.T) {
	c := newTestCoordinator(&counterHandler{})

	_, err := c.Resolve(context.Background(), Outcome{Correlation: Correlation{
		Participant: "ghost",
		Kind:        KindClaim,
		Settlement:  id.NewSettlementID(),
	}})
	if !errors.Is(err, ErrDuplicateResolution) {
		t.Errorf("expected ErrDuplicateResolution, got %v", err)
	}
}

func TestResolveMismatchedCorrelation(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(&counterHandler{})

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(1)})
	if err != nil {
		t.Fatal(err)
	}
	corr := s.Correlation()
	corr.Participant = "mallory"
	if _, err := c.Resolve(ctx, Outcome{Correlation: corr}); !errors.Is(err, ErrDuplicateResolution) {
		t.Errorf("expected ErrDuplicateResolution, got %v", err)
	}
}

func TestPendingGuard(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{}
	c := newTestCoordinator(h)

	if _, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(10)}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(10)})
	if !errors.Is(err, ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
	if !h.balance.Equal(types.NewAmount(10)) {
		t.Errorf("rejected settlement mutated balance: %s", h.balance)
	}

	if _, err := c.Begin(ctx, &Settlement{Participant: "bob", Kind: KindClaim, Amount: types.NewAmount(5)}); err != nil {
		t.Errorf("other participants must not be blocked: %v", err)
	}
}

func TestApplyErrorReleasesLock(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{applyErr: errors.New("nothing to claim")}
	c := newTestCoordinator(h)

	if _, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim}); err == nil {
		t.Fatal("expected apply error")
	}
	if pending, _ := c.IsPending(ctx, "alice"); pending {
		t.Error("failed apply must leave participant idle")
	}
	if len(h.dispatched) != 0 {
		t.Error("failed apply must not dispatch")
	}
}

func TestDispatchFailureResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{dispatchErr: errors.New("service down")}
	c := newTestCoordinator(h)

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(25)})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	if s == nil || s.Status != StatusCompensated {
		t.Fatalf("expected compensated settlement, got %+v", s)
	}
	if !h.balance.IsZero() {
		t.Errorf("balance = %s, want 0", h.balance)
	}
	if pending, _ := c.IsPending(ctx, "alice"); pending {
		t.Error("participant should be idle")
	}
}

func TestFinalizeRejectionCompensates(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{finalizeErr: errors.New("wrong token")}
	c := newTestCoordinator(h)

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(7)})
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation()})
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusRejected || resolved.Failure != "wrong token" {
		t.Errorf("unexpected resolution: %+v", resolved)
	}
	if !h.balance.IsZero() {
		t.Errorf("balance = %s, want 0", h.balance)
	}
}

func TestInterruptedResolutionCompensatesOnce(t *testing.T) {
	ctx := context.Background()

	for _, retry := range []string{"resolve", "unstick"} {
		t.Run(retry, func(t *testing.T) {
			st := newFakeStore()
			h := &counterHandler{balance: types.NewAmount(200)}
			c := NewCoordinator(st, WithHandler(h), WithDelivery(func(Outcome) {}))

			s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(200)})
			if err != nil {
				t.Fatal(err)
			}

			st.failOn, st.failWrites = StatusCompensated, 1
			if _, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation(), Err: errors.New("refused")}); !errors.Is(err, errConnReset) {
				t.Fatalf("expected record write failure, got %v", err)
			}
			if !h.balance.Equal(types.NewAmount(200)) {
				t.Fatalf("balance = %s, want 200 after compensation", h.balance)
			}
			got, _ := st.GetSettlement(ctx, s.ID)
			if got.Status != StatusResolving || got.Resolution != StatusCompensated {
				t.Fatalf("record = %s/%s, want resolving/compensated", got.Status, got.Resolution)
			}
			if pending, _ := c.IsPending(ctx, "alice"); !pending {
				t.Fatal("participant should stay pending until the record is written")
			}

			var resolved *Settlement
			if retry == "resolve" {
				resolved, err = c.Resolve(ctx, Outcome{Correlation: s.Correlation(), Err: errors.New("refused")})
			} else {
				resolved, err = c.Unstick(ctx, "alice", false)
			}
			if err != nil {
				t.Fatal(err)
			}
			if resolved.Status != StatusCompensated {
				t.Errorf("status = %s, want compensated", resolved.Status)
			}
			if !h.balance.Equal(types.NewAmount(200)) {
				t.Errorf("balance = %s, want 200: compensation ran twice", h.balance)
			}
			if pending, _ := c.IsPending(ctx, "alice"); pending {
				t.Error("participant should be idle")
			}
			if _, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation()}); !errors.Is(err, ErrDuplicateResolution) {
				t.Errorf("expected ErrDuplicateResolution, got %v", err)
			}
		})
	}
}

func TestFailedCompensationCanBeRetried(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	h := &counterHandler{compensateFailures: 1}
	c := NewCoordinator(st, WithHandler(h), WithDelivery(func(Outcome) {}))

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(30)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation(), Err: errors.New("refused")}); !errors.Is(err, errConnReset) {
		t.Fatalf("expected compensation failure, got %v", err)
	}
	got, _ := st.GetSettlement(ctx, s.ID)
	if got.Status != StatusPending {
		t.Fatalf("status = %s, want pending after failed compensation", got.Status)
	}

	resolved, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation(), Err: errors.New("refused")})
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusCompensated || !h.balance.IsZero() {
		t.Errorf("status = %s balance = %s, want compensated and 0", resolved.Status, h.balance)
	}
}

func TestUnstick(t *testing.T) {
	ctx := context.Background()

	t.Run("not pending", func(t *testing.T) {
		c := newTestCoordinator(&counterHandler{})
		if _, err := c.Unstick(ctx, "alice", false); !errors.Is(err, ErrNotPending) {
			t.Errorf("expected ErrNotPending, got %v", err)
		}
	})

	for _, keep := range []bool{true, false} {
		name := "compensate"
		want := types.Amount{}
		if keep {
			name = "keep"
			want = types.NewAmount(50)
		}
		t.Run(name, func(t *testing.T) {
			h := &counterHandler{}
			c := newTestCoordinator(h)

			s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(50)})
			if err != nil {
				t.Fatal(err)
			}
			abandoned, err := c.Unstick(ctx, "alice", keep)
			if err != nil {
				t.Fatal(err)
			}
			if abandoned.Status != StatusAbandoned {
				t.Errorf("status = %s, want abandoned", abandoned.Status)
			}
			if !h.balance.Equal(want) {
				t.Errorf("balance = %s, want %s", h.balance, want)
			}
			if _, err := c.Resolve(ctx, Outcome{Correlation: s.Correlation()}); !errors.Is(err, ErrDuplicateResolution) {
				t.Errorf("late reply: expected ErrDuplicateResolution, got %v", err)
			}
		})
	}
}

func TestDefaultDeliveryResolves(t *testing.T) {
	ctx := context.Background()
	h := &counterHandler{}
	c := NewCoordinator(newFakeStore(), WithHandler(h))

	s, err := c.Begin(ctx, &Settlement{Participant: "alice", Kind: KindClaim, Amount: types.NewAmount(3)})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.reply(Outcome{Correlation: s.Correlation(), Err: errors.New("nope")})
		for {
			if pending, _ := c.IsPending(ctx, "alice"); !pending {
				return
			}
		}
	}()
	<-done

	got, err := c.store.GetSettlement(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompensated {
		t.Errorf("status = %s, want compensated", got.Status)
	}
}

func TestParseCorrelation(t *testing.T) {
	want := Correlation{Participant: "team:alice.near", Kind: KindRevoke, Settlement: id.NewSettlementID()}

	got, err := ParseCorrelation(want.Key())
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != want.Key() {
		t.Errorf("round trip: %q != %q", got.Key(), want.Key())
	}

	for _, bad := range []string{"", "claim", "claim:stl_x", "claim:notanid:alice"} {
		if _, err := ParseCorrelation(bad); !errors.Is(err, ErrInvalidCorrelation) {
			t.Errorf("ParseCorrelation(%q): expected ErrInvalidCorrelation, got %v", bad, err)
		}
	}
}
