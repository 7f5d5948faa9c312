// Package session holds the single source of truth for the active identity,
// with durable hydration from the key-value bridge.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/avolkov/skycart/internal/errs"
	"github.com/avolkov/skycart/internal/kvstore"
	"github.com/avolkov/skycart/internal/model"
)

// Store owns the "auth" namespace of the bridge. It starts in the loading
// state; Hydrate must be called once after subscribers are registered.
type Store struct {
	kv  kvstore.Store
	log *zap.Logger

	mu      sync.Mutex
	sess    model.Session
	loading bool
	subs    []func(model.Session)
}

// New constructs a Store in the loading state. A nil logger defaults to Nop.
func New(kv kvstore.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, log: log, loading: true}
}

// Current returns the active session and whether hydration is still in flight.
func (s *Store) Current() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, s.loading
}

// Subscribe registers fn to run after every identity change, including the one
// produced by Hydrate. Must be called before Hydrate.
func (s *Store) Subscribe(fn func(model.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Hydrate reads the durable snapshot and resolves the loading state. A missing
// snapshot means anonymous; a corrupt or expired snapshot is deleted and also
// treated as anonymous. Hydrate never fails the caller.
func (s *Store) Hydrate(ctx context.Context) {
	sess := model.Session{}

	raw, ok, err := s.kv.Get(ctx, kvstore.AuthKey)
	switch {
	case err != nil:
		s.log.Warn("session hydrate read failed", zap.Error(err))
	case ok:
		if restored, valid := decodeSnapshot(raw); valid {
			sess = restored
		} else {
			s.log.Warn("discarding session snapshot", zap.Error(errs.ErrBadSnapshot))
			if err := s.kv.Delete(ctx, kvstore.AuthKey); err != nil {
				s.log.Warn("delete session snapshot", zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	s.sess = sess
	s.loading = false
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(sess)
	}
}

// decodeSnapshot parses a stored session and rejects shapes that violate the
// identity/token coupling or carry an expired token.
func decodeSnapshot(raw []byte) (model.Session, bool) {
	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return model.Session{}, false
	}
	if (sess.User == nil) != (sess.Token == "") {
		return model.Session{}, false
	}
	if sess.User != nil && sess.User.ID == "" {
		return model.Session{}, false
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return model.Session{}, false
	}
	return sess, true
}

// Set replaces the identity wholesale, persists the snapshot, and notifies
// subscribers. Passing a nil user with a non-empty token (or the reverse) is
// coerced to anonymous to keep the coupling invariant.
func (s *Store) Set(ctx context.Context, user *model.User, token string) {
	sess := model.Session{User: user, Token: token}
	if user == nil || token == "" {
		sess = model.Session{}
	} else {
		sess.ExpiresAt = tokenExpiry(token)
	}

	s.mu.Lock()
	s.sess = sess
	subs := s.subs
	s.mu.Unlock()

	if sess.Anonymous() {
		if err := s.kv.Delete(ctx, kvstore.AuthKey); err != nil {
			s.log.Warn("delete session snapshot", zap.Error(err))
		}
	} else if raw, err := json.Marshal(sess); err != nil {
		s.log.Warn("encode session snapshot", zap.Error(err))
	} else if err := s.kv.Set(ctx, kvstore.AuthKey, raw); err != nil {
		s.log.Warn("persist session snapshot", zap.Error(err))
	}

	for _, fn := range subs {
		fn(sess)
	}
}

// Clear drops the identity and removes the durable snapshot.
func (s *Store) Clear(ctx context.Context) {
	s.Set(ctx, nil, "")
}

// tokenExpiry extracts the exp claim from a bearer token without validating
// the signature. Tokens that are not JWTs or carry no exp yield zero.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
