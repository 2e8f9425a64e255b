package budget_test

import (
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/solana-sniper/internal/budget"
	"go.uber.org/zap"
)

func newGovernor(t *testing.T) *budget.Governor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "budget.json")
	g, err := budget.New(zap.NewNop(), path, 100, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestMayCallAdmitsUntilBudgetExhausted(t *testing.T) {
	// A budget of 10 stays inside the burst limiter's allowance of 15, so the
	// refusal checked below comes from calls_used alone.
	g, err := budget.New(zap.NewNop(), filepath.Join(t.TempDir(), "budget.json"), 10, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if !g.MayCall("getBalance") {
			t.Fatalf("expected call %d to be admitted within budget", i)
		}
		g.Record("getBalance")
	}
	if g.MayCall("getBalance") {
		t.Fatal("expected MayCall to refuse once calls_used reaches total_budget")
	}
	if !g.Exhausted() {
		t.Fatal("expected Exhausted to report true")
	}
}

func TestMayCallThrottlesBurstsIndependentlyOfDailyBudget(t *testing.T) {
	g := newGovernor(t)
	admitted := 0
	for i := 0; i < 100; i++ {
		if g.MayCall("getBalance") {
			admitted++
			g.Record("getBalance")
		}
	}
	if admitted >= 100 {
		t.Fatalf("expected the burst limiter to refuse some of 100 near-instant calls, admitted all %d", admitted)
	}
	if admitted == 0 {
		t.Fatal("expected the burst limiter to admit at least its initial burst size")
	}
}

func TestSnapshotReturnsIndependentPerMethodCopy(t *testing.T) {
	g := newGovernor(t)
	g.Record("getBalance")
	snap := g.Snapshot()
	snap.PerMethod["getBalance"] = 999

	fresh := g.Snapshot()
	if fresh.PerMethod["getBalance"] != 1 {
		t.Fatalf("expected Snapshot to return a copy unaffected by caller mutation, got %d", fresh.PerMethod["getBalance"])
	}
}
