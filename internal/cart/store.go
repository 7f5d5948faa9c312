// Package cart implements the per-identity cart store with gated mutations
// and persist-on-change snapshots.
package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avolkov/skycart/internal/errs"
	"github.com/avolkov/skycart/internal/kvstore"
	"github.com/avolkov/skycart/internal/model"
	"github.com/avolkov/skycart/internal/session"
)

// Notifier is the fire-and-forget user-facing message surface. Implementations
// must not block.
type Notifier interface {
	Notify(msg string)
}

// NopNotifier drops all messages.
var NopNotifier Notifier = nopNotifier{}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Store holds the active user's cart lines. Mutations require a resolved,
// authenticated session; identity changes swap the backing snapshot key.
// Durable writes happen after the in-memory commit and are fire-and-forget:
// failures are logged, never returned.
type Store struct {
	sessions *session.Store
	kv       kvstore.Store
	notify   Notifier
	log      *zap.Logger

	mu     sync.Mutex
	userID string // "" when anonymous
	items  []model.CartItem

	now func() time.Time
}

// New constructs a cart store and subscribes it to identity changes. Must be
// called before the session store hydrates so the initial transition is seen.
func New(sessions *session.Store, kv kvstore.Store, notify Notifier, log *zap.Logger) *Store {
	if notify == nil {
		notify = NopNotifier
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{sessions: sessions, kv: kv, notify: notify, log: log, now: time.Now}
	sessions.Subscribe(func(sess model.Session) {
		s.onIdentity(context.Background(), sess)
	})
	return s
}

// onIdentity reloads or drops the in-memory list when the active identity
// changes. Other users' snapshots are never touched.
func (s *Store) onIdentity(ctx context.Context, sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Anonymous() {
		s.userID = ""
		s.items = nil
		return
	}
	s.userID = sess.User.ID
	s.items = s.loadLocked(ctx, sess.User.ID)
}

// loadLocked reads a user's snapshot; corrupt snapshots are deleted and yield
// an empty cart.
func (s *Store) loadLocked(ctx context.Context, userID string) []model.CartItem {
	key := kvstore.CartKey(userID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("cart hydrate read failed", zap.String("user", userID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var items []model.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log.Warn("discarding cart snapshot", zap.String("user", userID), zap.Error(errs.ErrBadSnapshot))
		if err := s.kv.Delete(ctx, key); err != nil {
			s.log.Warn("delete cart snapshot", zap.Error(err))
		}
		return nil
	}
	return items
}

// persistLocked writes the current list for the active user. An empty list
// deletes the snapshot instead of storing an empty array.
func (s *Store) persistLocked(ctx context.Context) {
	if s.userID == "" {
		return
	}
	key := kvstore.CartKey(s.userID)
	if len(s.items) == 0 {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.log.Warn("delete cart snapshot", zap.String("user", s.userID), zap.Error(err))
		}
		return
	}
	raw, err := json.Marshal(s.items)
	if err != nil {
		s.log.Warn("encode cart snapshot", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.log.Warn("persist cart snapshot", zap.String("user", s.userID), zap.Error(err))
	}
}

// guard enforces the access precondition for mutations. The pending state is
// distinguished from denial so users are not told to log in mid-hydration.
func (s *Store) guard() error {
	sess, loading := s.sessions.Current()
	if loading {
		s.notify.Notify("please wait, restoring your session")
		return errs.ErrSessionPending
	}
	if sess.Anonymous() {
		s.notify.Notify("please login to manage your cart")
		return errs.ErrAccessDenied
	}
	return nil
}

// Add inserts a product or merges quantity into an existing line. qty values
// below 1 count as 1. The price snapshot of an existing line is preserved.
func (s *Store) Add(ctx context.Context, p model.Product, qty int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if p.ID == "" {
		s.notify.Notify("this product cannot be added to the cart")
		return errs.ErrInvalidProduct
	}
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	merged := false
	for i := range s.items {
		if s.items[i].ProductID == p.ID {
			s.items[i].Quantity += qty
			s.items[i].UserID = s.userID
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, model.CartItem{
			ProductID: p.ID,
			Quantity:  qty,
			Price:     p.Price,
			UserID:    s.userID,
			AddedAt:   s.now(),
		})
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	if merged {
		s.notify.Notify("cart quantity updated")
	} else {
		s.notify.Notify("added to cart")
	}
	return nil
}

// Remove deletes the line for productID. A missing line is a no-op.
func (s *Store) Remove(ctx context.Context, productID string) error {
	if err := s.guard(); err != nil {
		return err
	}

	s.mu.Lock()
	kept := s.items[:0]
	removed := false
	for _, it := range s.items {
		if it.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	if removed {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if removed {
		s.notify.Notify("removed from cart")
	}
	return nil
}

// UpdateQuantity sets the line's quantity to exactly n; n <= 0 removes the
// line. An unknown productID is a no-op and creates nothing.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, n int) error {
	if n <= 0 {
		return s.Remove(ctx, productID)
	}
	if err := s.guard(); err != nil {
		return err
	}

	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items[i].Quantity = n
			s.items[i].UserID = s.userID
			changed = true
			break
		}
	}
	if changed {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if changed {
		s.notify.Notify("cart quantity updated")
	}
	return nil
}

// Clear empties the list and deletes the active user's snapshot only.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}

	s.mu.Lock()
	s.items = nil
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify.Notify("cart cleared")
	return nil
}

// Items returns a copy of the current lines.
func (s *Store) Items() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CartItem(nil), s.items...)
}

// Total returns the sum of price*quantity over all lines.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Count returns the sum of quantities over all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}
