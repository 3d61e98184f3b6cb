// Package cart aggregates the line items of the active identity and persists
// them per identity.
package cart

import (
	"context"
	"strings"
	"sync"

	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Store holds the cart of the last observed identity.
type Store struct {
	kv      kv.Store
	logg    *logger.Logger
	metrics *metrics.ClientMetrics

	mu       sync.Mutex
	identity string
	synced   bool
	lines    []Line
}

// Option configures optional store behavior.
type Option func(*Store)

func WithLogger(logg *logger.Logger) Option {
	return func(s *Store) { s.logg = logg }
}

func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New builds an empty cart with no identity.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{kv: store}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s
}

// Sync applies an identity change. A present identity loads its persisted
// cart; an empty identity yields an empty in-memory cart. Repeating the same
// identity is a no-op.
func (s *Store) Sync(ctx context.Context, userID string) {
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synced && s.identity == userID {
		return
	}
	previous := s.identity
	s.identity = userID
	s.synced = true

	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID, "previous_user_id": previous})
	if userID == "" {
		s.lines = nil
		s.logg.Debug(ctx, "cart reset for anonymous client")
		return
	}
	s.lines = s.load(ctx, userID)
	s.logg.Debug(ctx, "cart loaded for identity")
}

// Identity returns the last observed identity, empty when anonymous.
func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// AddItem increments the existing line for item or appends a new one.
func (s *Store) AddItem(ctx context.Context, item Item) error {
	item.ItemID = strings.TrimSpace(item.ItemID)
	if item.ItemID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "itemId is required")
	}
	if item.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unitPrice must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(item.ItemID); i >= 0 {
		s.lines[i].Quantity++
	} else {
		s.lines = append(s.lines, lineFromItem(item))
	}
	s.persist(ctx)
	s.metrics.IncCartMutation("add")
	return nil
}

// RemoveItem deletes the line for itemID if present.
func (s *Store) RemoveItem(ctx context.Context, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(ctx, itemID)
}

// SetQuantity sets an absolute quantity. Quantities <= 0 remove the line and
// absent items are ignored.
func (s *Store) SetQuantity(ctx context.Context, itemID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quantity <= 0 {
		s.removeLocked(ctx, itemID)
		return
	}
	i := s.indexOf(itemID)
	if i < 0 {
		return
	}
	s.lines[i].Quantity = quantity
	s.persist(ctx)
	s.metrics.IncCartMutation("set_quantity")
}

// Clear empties the cart and deletes the persisted record of the identity.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
	s.metrics.IncCartMutation("clear")
}

// Lines returns a copy of the cart in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Total is the sum of line subtotals.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalOf(s.lines)
}

// Count is the sum of quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countOf(s.lines)
}

func (s *Store) removeLocked(ctx context.Context, itemID string) {
	i := s.indexOf(itemID)
	if i < 0 {
		return
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
	s.metrics.IncCartMutation("remove")
}

func (s *Store) clearLocked(ctx context.Context) {
	s.lines = nil
	if s.identity == "" {
		return
	}
	if err := s.kv.Remove(ctx, identityKey(s.identity)); err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, s.identity), "removing persisted cart", err)
	}
}

func (s *Store) indexOf(itemID string) int {
	for i, l := range s.lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

// persist requires mu. Anonymous carts stay in memory.
func (s *Store) persist(ctx context.Context) {
	if s.identity == "" {
		return
	}
	raw, err := encodeLines(s.lines)
	if err != nil {
		s.logg.Error(ctx, "encoding cart", err)
		return
	}
	if err := s.kv.Set(ctx, identityKey(s.identity), raw); err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, s.identity), "persisting cart", err)
	}
}

func (s *Store) load(ctx context.Context, userID string) []Line {
	raw, ok, err := s.kv.Get(ctx, identityKey(userID))
	if err != nil {
		s.logg.Error(ctx, "reading persisted cart", err)
		return nil
	}
	if !ok {
		return nil
	}
	lines, valid := decodeLines(raw)
	if !valid {
		s.logg.Warn(ctx, "ignoring malformed persisted cart")
		return nil
	}
	return lines
}

func totalOf(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func countOf(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
