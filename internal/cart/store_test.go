package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avolkov/skycart/internal/errs"
	"github.com/avolkov/skycart/internal/kvstore"
	"github.com/avolkov/skycart/internal/model"
	"github.com/avolkov/skycart/internal/session"
)

type recordingNotifier struct {
	msgs []string
}

func (n *recordingNotifier) Notify(msg string) { n.msgs = append(n.msgs, msg) }

func (n *recordingNotifier) last() string {
	if len(n.msgs) == 0 {
		return ""
	}
	return n.msgs[len(n.msgs)-1]
}

// newFixture wires bridge -> session store -> cart store without hydrating,
// so tests control the resolution point themselves.
func newFixture(t *testing.T) (*kvstore.Memory, *session.Store, *Store, *recordingNotifier) {
	t.Helper()
	kv := kvstore.NewMemory()
	sessions := session.New(kv, nil)
	n := &recordingNotifier{}
	c := New(sessions, kv, n, nil)
	return kv, sessions, c, n
}

func login(ctx context.Context, sessions *session.Store, id string) {
	sessions.Set(ctx, &model.User{ID: id}, "tok-"+id)
}

func product(id string, price int64) model.Product {
	return model.Product{ID: id, Title: "product " + id, Price: decimal.NewFromInt(price)}
}

func TestAdd_RejectedWhileSessionPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, _, c, n := newFixture(t)

	err := c.Add(ctx, product("p1", 100), 1)
	if !errors.Is(err, errs.ErrSessionPending) {
		t.Fatalf("want ErrSessionPending, got %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("cart must stay empty")
	}
	if !strings.Contains(n.last(), "wait") {
		t.Fatalf("want a please-wait notification, got %q", n.last())
	}
}

func TestAdd_RejectedForAnonymous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, n := newFixture(t)
	sessions.Hydrate(ctx)

	err := c.Add(ctx, product("p1", 100), 1)
	if !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("want ErrAccessDenied, got %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("cart must stay empty")
	}
	if !strings.Contains(n.last(), "login") {
		t.Fatalf("want a please-login notification, got %q", n.last())
	}
}

func TestAdd_RejectsProductWithoutID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	if err := c.Add(ctx, model.Product{Price: decimal.NewFromInt(5)}, 1); !errors.Is(err, errs.ErrInvalidProduct) {
		t.Fatalf("want ErrInvalidProduct, got %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("invalid product must not create a line")
	}
}

func TestAdd_MergesQuantityAndKeepsPriceSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, n := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	if err := c.Add(ctx, product("p1", 100), 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.Contains(n.last(), "added") {
		t.Fatalf("want added notification, got %q", n.last())
	}

	items := c.Items()
	if len(items) != 1 || items[0].Quantity != 1 || items[0].UserID != "u1" || items[0].AddedAt.IsZero() {
		t.Fatalf("first add: %+v", items)
	}
	if !c.Total().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Total=%v, want 100", c.Total())
	}

	// re-add with a different catalog price: quantity merges, snapshot price stays
	if err := c.Add(ctx, product("p1", 999), 2); err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	if !strings.Contains(n.last(), "updated") {
		t.Fatalf("want updated notification, got %q", n.last())
	}
	items = c.Items()
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("merge failed: %+v", items)
	}
	if !items[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("price snapshot overwritten: %v", items[0].Price)
	}
	if !c.Total().Equal(decimal.NewFromInt(300)) {
		t.Fatalf("Total=%v, want 300", c.Total())
	}
}

func TestAdd_QuantityFloorsToOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	if err := c.Add(ctx, product("p1", 10), 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if items := c.Items(); len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("qty 0 must behave as 1: %+v", items)
	}
}

func TestUpdateQuantity_FloorAndNoCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	_ = c.Add(ctx, product("p1", 10), 2)
	_ = c.Add(ctx, product("p2", 20), 1)

	if err := c.UpdateQuantity(ctx, "p1", 0); err != nil {
		t.Fatalf("UpdateQuantity(0): %v", err)
	}
	if items := c.Items(); len(items) != 1 || items[0].ProductID != "p2" {
		t.Fatalf("qty 0 must remove the line: %+v", items)
	}

	if err := c.UpdateQuantity(ctx, "p2", -5); err != nil {
		t.Fatalf("UpdateQuantity(-5): %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("negative qty must remove the line")
	}

	if err := c.UpdateQuantity(ctx, "ghost", 3); err != nil {
		t.Fatalf("UpdateQuantity unknown id: %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("update of unknown id must not create a line")
	}

	_ = c.Add(ctx, product("p3", 7), 1)
	if err := c.UpdateQuantity(ctx, "p3", 4); err != nil {
		t.Fatalf("UpdateQuantity(4): %v", err)
	}
	if items := c.Items(); items[0].Quantity != 4 {
		t.Fatalf("absolute set failed: %+v", items)
	}
}

func TestRemove_MissingIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	_ = c.Add(ctx, product("p1", 10), 1)
	if err := c.Remove(ctx, "ghost"); err != nil {
		t.Fatalf("Remove of absent id must be a no-op: %v", err)
	}
	if err := c.Remove(ctx, "p1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("item survived removal")
	}
}

func TestTotalsOverMixedLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	if !c.Total().Equal(decimal.Zero) || c.Count() != 0 {
		t.Fatalf("empty cart: total=%v count=%d", c.Total(), c.Count())
	}

	_ = c.Add(ctx, model.Product{ID: "a", Price: decimal.RequireFromString("19.99")}, 2)
	_ = c.Add(ctx, model.Product{ID: "b", Price: decimal.RequireFromString("5.50")}, 3)

	if !c.Total().Equal(decimal.RequireFromString("56.48")) {
		t.Fatalf("Total=%v, want 56.48", c.Total())
	}
	if c.Count() != 5 {
		t.Fatalf("Count=%d, want 5", c.Count())
	}
}

func TestPersistOnChange_EmptyListDeletesSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	_ = c.Add(ctx, product("p1", 10), 1)
	raw, ok, _ := kv.Get(ctx, kvstore.CartKey("u1"))
	if !ok {
		t.Fatalf("snapshot must be written after a mutation")
	}
	var stored []model.CartItem
	if err := json.Unmarshal(raw, &stored); err != nil || len(stored) != 1 {
		t.Fatalf("stored snapshot: %v %v", stored, err)
	}

	_ = c.Remove(ctx, "p1")
	if _, ok, _ := kv.Get(ctx, kvstore.CartKey("u1")); ok {
		t.Fatalf("empty list must delete the snapshot, not write []")
	}
}

func TestLogoutKeepsSnapshotAndReloginRestores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	_ = c.Add(ctx, model.Product{ID: "p1", Price: decimal.NewFromInt(50)}, 2)

	sessions.Clear(ctx)
	if len(c.Items()) != 0 {
		t.Fatalf("logout must drop the in-memory list")
	}
	raw, ok, _ := kv.Get(ctx, kvstore.CartKey("u1"))
	if !ok {
		t.Fatalf("logout must not touch the durable snapshot")
	}
	var stored []model.CartItem
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("snapshot unmarshal: %v", err)
	}
	if len(stored) != 1 || stored[0].Quantity != 2 || !stored[0].Price.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("snapshot changed by logout: %+v", stored)
	}

	login(ctx, sessions, "u1")
	items := c.Items()
	if len(items) != 1 || items[0].ProductID != "p1" || items[0].Quantity != 2 {
		t.Fatalf("re-login must restore the cart: %+v", items)
	}
	if !c.Total().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("restored Total=%v, want 100", c.Total())
	}
}

func TestPerUserIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)

	login(ctx, sessions, "alice")
	_ = c.Add(ctx, product("drone-x", 100), 1)

	login(ctx, sessions, "bob")
	if len(c.Items()) != 0 {
		t.Fatalf("bob must not see alice's items: %+v", c.Items())
	}
	_ = c.Add(ctx, product("battery", 25), 4)

	login(ctx, sessions, "alice")
	items := c.Items()
	if len(items) != 1 || items[0].ProductID != "drone-x" {
		t.Fatalf("alice's cart polluted: %+v", items)
	}
	for _, it := range items {
		if it.UserID != "alice" {
			t.Fatalf("line owned by %q in alice's cart", it.UserID)
		}
	}
}

func TestClear_DeletesActiveUsersSnapshotOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)

	login(ctx, sessions, "u1")
	_ = c.Add(ctx, product("p1", 10), 1)
	login(ctx, sessions, "u2")
	_ = c.Add(ctx, product("p2", 20), 1)

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(c.Items()) != 0 {
		t.Fatalf("Clear must empty the list")
	}
	if _, ok, _ := kv.Get(ctx, kvstore.CartKey("u2")); ok {
		t.Fatalf("Clear must delete the active snapshot")
	}
	if _, ok, _ := kv.Get(ctx, kvstore.CartKey("u1")); !ok {
		t.Fatalf("Clear must not touch other users' snapshots")
	}
}

func TestCorruptCartSnapshotRecovered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv, sessions, c, _ := newFixture(t)
	_ = kv.Set(ctx, kvstore.CartKey("u1"), []byte(`[{"broken"`))

	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	if len(c.Items()) != 0 {
		t.Fatalf("corrupt snapshot must hydrate as empty")
	}
	if _, ok, _ := kv.Get(ctx, kvstore.CartKey("u1")); ok {
		t.Fatalf("corrupt snapshot must be deleted")
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, sessions, c, _ := newFixture(t)
	sessions.Hydrate(ctx)
	login(ctx, sessions, "u1")

	_ = c.Add(ctx, product("p1", 10), 1)
	items := c.Items()
	items[0].Quantity = 99
	if c.Items()[0].Quantity != 1 {
		t.Fatalf("internal state mutated through Items() result")
	}
}
