// Package catalog is the card template registry: templates, pack types, adventures and quests.
//
// The catalog is published as an immutable snapshot. Readers load the current pointer without
// locking; writers serialise, persist the change and then publish a new snapshot.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

// MinAdventureDuration is the shortest allowed adventure.
const MinAdventureDuration = time.Minute

type snapshot struct {
	templates  map[uint32]model.CardTemplate
	packs      map[uint32]model.PackType
	adventures map[uint32]model.Adventure
	quests     map[uint32]model.Quest
	byRarity   [3][]model.CardTemplate // active templates per tier, ordered by id
}

func newSnapshot() *snapshot {
	return &snapshot{
		templates:  map[uint32]model.CardTemplate{},
		packs:      map[uint32]model.PackType{},
		adventures: map[uint32]model.Adventure{},
		quests:     map[uint32]model.Quest{},
	}
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		templates:  maps.Clone(s.templates),
		packs:      maps.Clone(s.packs),
		adventures: maps.Clone(s.adventures),
		quests:     maps.Clone(s.quests),
	}
}

func (s *snapshot) index() *snapshot {
	for r := range s.byRarity {
		s.byRarity[r] = nil
	}
	for _, t := range s.templates {
		if t.Active && t.Rarity.Valid() {
			s.byRarity[t.Rarity] = append(s.byRarity[t.Rarity], t)
		}
	}
	for r := range s.byRarity {
		slices.SortFunc(s.byRarity[r], func(a, b model.CardTemplate) int { return cmp.Compare(a.ID, b.ID) })
	}
	return s
}

func nextID[T any](m map[uint32]T) uint32 {
	var hi uint32
	for id := range m {
		hi = max(hi, id)
	}
	return hi + 1
}

func sortedValues[T any](m map[uint32]T, keep func(T) bool) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if keep == nil || keep(m[id]) {
			out = append(out, m[id])
		}
	}
	return out
}

// Registry is the published catalog.
type Registry struct {
	store repository.CatalogStore
	log   *zap.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New returns an empty registry persisting through store.
func New(store repository.CatalogStore, log *zap.Logger) *Registry {
	r := &Registry{store: store, log: log}
	r.snap.Store(newSnapshot().index())
	return r
}

func (r *Registry) load() *snapshot { return r.snap.Load() }

// Load publishes the stored catalog.
func (r *Registry) Load(ctx context.Context) error {
	c, err := r.store.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(fromCatalog(c).index())
	r.log.Info("catalog loaded",
		zap.Int("templates", len(c.Templates)),
		zap.Int("packs", len(c.PackTypes)),
		zap.Int("adventures", len(c.Adventures)),
		zap.Int("quests", len(c.Quests)),
	)
	return nil
}

func fromCatalog(c repository.Catalog) *snapshot {
	s := newSnapshot()
	for _, t := range c.Templates {
		s.templates[t.ID] = t
	}
	for _, p := range c.PackTypes {
		s.packs[p.ID] = p
	}
	for _, a := range c.Adventures {
		s.adventures[a.ID] = a
	}
	for _, q := range c.Quests {
		s.quests[q.ID] = q
	}
	return s
}

// Empty reports whether nothing is published.
func (r *Registry) Empty() bool {
	s := r.load()
	return len(s.templates) == 0 && len(s.packs) == 0 && len(s.adventures) == 0 && len(s.quests) == 0
}

// Seed persists and publishes c when the registry is empty. Ids in c are kept as given.
func (r *Registry) Seed(ctx context.Context, c repository.Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.load()
	if len(cur.templates)+len(cur.packs)+len(cur.adventures)+len(cur.quests) > 0 {
		return nil
	}
	next := fromCatalog(c)
	if err := validateCatalog(next, c); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	if err := r.store.SaveCatalog(ctx, c); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	r.snap.Store(next.index())
	r.log.Info("catalog seeded", zap.Int("templates", len(c.Templates)), zap.Int("packs", len(c.PackTypes)))
	return nil
}

// validateCatalog checks every entry of c against s, the snapshot built from c.
func validateCatalog(s *snapshot, c repository.Catalog) error {
	for _, t := range c.Templates {
		if err := validateTemplate(t); err != nil {
			return fmt.Errorf("template %d: %w", t.ID, err)
		}
	}
	for _, p := range c.PackTypes {
		if err := validatePackType(p); err != nil {
			return fmt.Errorf("pack %d: %w", p.ID, err)
		}
	}
	for _, a := range c.Adventures {
		if err := validateAdventure(s, a); err != nil {
			return fmt.Errorf("adventure %d: %w", a.ID, err)
		}
	}
	for _, q := range c.Quests {
		if err := validateQuest(s, q); err != nil {
			return fmt.Errorf("quest %d: %w", q.ID, err)
		}
	}
	return nil
}

// mutate applies fn to a copy of the snapshot and publishes it after save succeeds.
func (r *Registry) mutate(fn func(s *snapshot) (save func() error, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.load().clone()
	save, err := fn(next)
	if err != nil {
		return err
	}
	if err := save(); err != nil {
		return err
	}
	r.snap.Store(next.index())
	return nil
}

// --- templates ---

func validateTemplate(t model.CardTemplate) error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty template name", errs.ErrInvalidInput)
	}
	if !t.Rarity.Valid() {
		return fmt.Errorf("%w: unknown rarity", errs.ErrInvalidInput)
	}
	return nil
}

// CreateTemplate registers a new active template and returns its id.
func (r *Registry) CreateTemplate(ctx context.Context, t model.CardTemplate) (uint32, error) {
	if err := validateTemplate(t); err != nil {
		return 0, err
	}
	err := r.mutate(func(s *snapshot) (func() error, error) {
		t.ID = nextID(s.templates)
		t.Active = true
		s.templates[t.ID] = t
		return func() error { return r.store.SaveTemplate(ctx, t) }, nil
	})
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// SetTemplateActive toggles whether new cards may be minted from the template.
func (r *Registry) SetTemplateActive(ctx context.Context, id uint32, active bool) error {
	return r.mutate(func(s *snapshot) (func() error, error) {
		t, ok := s.templates[id]
		if !ok {
			return nil, errs.ErrNotFound
		}
		t.Active = active
		s.templates[id] = t
		return func() error { return r.store.SaveTemplate(ctx, t) }, nil
	})
}

// GetTemplate returns a template by id.
func (r *Registry) GetTemplate(id uint32) (model.CardTemplate, error) {
	t, ok := r.load().templates[id]
	if !ok {
		return model.CardTemplate{}, errs.ErrNotFound
	}
	return t, nil
}

// Templates returns all templates ordered by id.
func (r *Registry) Templates() []model.CardTemplate { return sortedValues(r.load().templates, nil) }

// ActiveByRarity returns the active templates of a tier ordered by id.
func (r *Registry) ActiveByRarity(rarity model.Rarity) []model.CardTemplate {
	if !rarity.Valid() {
		return nil
	}
	return r.load().byRarity[rarity]
}

// HasActiveTemplates reports whether any tier can mint.
func (r *Registry) HasActiveTemplates() bool {
	s := r.load()
	return len(s.byRarity[0])+len(s.byRarity[1])+len(s.byRarity[2]) > 0
}

// --- pack types ---

func validatePackType(p model.PackType) error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty pack name", errs.ErrInvalidInput)
	}
	if int(p.Chances[0])+int(p.Chances[1])+int(p.Chances[2]) != 100 {
		return errs.ErrInvalidOdds
	}
	return nil
}

// CreatePackType registers a pack type. Odds must sum to exactly 100 and are never edited later.
func (r *Registry) CreatePackType(ctx context.Context, name string, price uint64, chances [3]uint8) (uint32, error) {
	p := model.PackType{Name: name, Price: price, Chances: chances, Active: true}
	if err := validatePackType(p); err != nil {
		return 0, err
	}
	err := r.mutate(func(s *snapshot) (func() error, error) {
		p.ID = nextID(s.packs)
		s.packs[p.ID] = p
		return func() error { return r.store.SavePackType(ctx, p) }, nil
	})
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

// SetPackTypeActive toggles whether the pack type can be purchased.
func (r *Registry) SetPackTypeActive(ctx context.Context, id uint32, active bool) error {
	return r.mutate(func(s *snapshot) (func() error, error) {
		p, ok := s.packs[id]
		if !ok {
			return nil, errs.ErrNotFound
		}
		p.Active = active
		s.packs[id] = p
		return func() error { return r.store.SavePackType(ctx, p) }, nil
	})
}

// GetPackType returns a pack type by id.
func (r *Registry) GetPackType(id uint32) (model.PackType, error) {
	p, ok := r.load().packs[id]
	if !ok {
		return model.PackType{}, errs.ErrNotFound
	}
	return p, nil
}

// PackTypes returns all pack types ordered by id.
func (r *Registry) PackTypes() []model.PackType { return sortedValues(r.load().packs, nil) }

// --- adventures ---

func validateAdventure(s *snapshot, a model.Adventure) error {
	switch {
	case a.Name == "":
		return fmt.Errorf("%w: empty adventure name", errs.ErrInvalidInput)
	case a.MinReward > a.MaxReward:
		return fmt.Errorf("%w: min reward above max reward", errs.ErrInvalidInput)
	case a.Duration < MinAdventureDuration:
		return fmt.Errorf("%w: duration below %s", errs.ErrInvalidInput, MinAdventureDuration)
	case a.PackDropChance > 100:
		return fmt.Errorf("%w: pack drop chance above 100", errs.ErrInvalidInput)
	}
	if a.PackDropChance > 0 {
		if _, ok := s.packs[a.RewardPackType]; !ok {
			return fmt.Errorf("%w: unknown reward pack type %d", errs.ErrInvalidInput, a.RewardPackType)
		}
	}
	return nil
}

// CreateAdventure registers an active adventure and returns its id.
func (r *Registry) CreateAdventure(ctx context.Context, a model.Adventure) (uint32, error) {
	err := r.mutate(func(s *snapshot) (func() error, error) {
		if err := validateAdventure(s, a); err != nil {
			return nil, err
		}
		a.ID = nextID(s.adventures)
		a.Active = true
		s.adventures[a.ID] = a
		return func() error { return r.store.SaveAdventure(ctx, a) }, nil
	})
	if err != nil {
		return 0, err
	}
	return a.ID, nil
}

// UpdateAdventure toggles an adventure.
func (r *Registry) UpdateAdventure(ctx context.Context, id uint32, active bool) error {
	return r.mutate(func(s *snapshot) (func() error, error) {
		a, ok := s.adventures[id]
		if !ok {
			return nil, errs.ErrNotFound
		}
		a.Active = active
		s.adventures[id] = a
		return func() error { return r.store.SaveAdventure(ctx, a) }, nil
	})
}

// GetAdventure returns an adventure by id.
func (r *Registry) GetAdventure(id uint32) (model.Adventure, error) {
	a, ok := r.load().adventures[id]
	if !ok {
		return model.Adventure{}, errs.ErrNotFound
	}
	return a, nil
}

// Adventures returns all adventures ordered by id.
func (r *Registry) Adventures() []model.Adventure { return sortedValues(r.load().adventures, nil) }

// ActiveAdventures returns active adventures ordered by id.
func (r *Registry) ActiveAdventures() []model.Adventure {
	return sortedValues(r.load().adventures, func(a model.Adventure) bool { return a.Active })
}

// --- quests ---

func validateQuest(s *snapshot, q model.Quest) error {
	switch {
	case !q.Type.Valid():
		return fmt.Errorf("%w: unknown quest type %q", errs.ErrInvalidInput, q.Type)
	case q.Title == "":
		return fmt.Errorf("%w: empty quest title", errs.ErrInvalidInput)
	case q.Target == 0:
		return fmt.Errorf("%w: quest target must be positive", errs.ErrInvalidInput)
	}
	if q.IsPackReward {
		if _, ok := s.packs[q.RewardPackType]; !ok {
			return fmt.Errorf("%w: unknown reward pack type %d", errs.ErrInvalidInput, q.RewardPackType)
		}
	}
	return nil
}

// CreateQuest registers an active quest and returns its id.
func (r *Registry) CreateQuest(ctx context.Context, q model.Quest) (uint32, error) {
	err := r.mutate(func(s *snapshot) (func() error, error) {
		if err := validateQuest(s, q); err != nil {
			return nil, err
		}
		q.ID = nextID(s.quests)
		q.Active = true
		s.quests[q.ID] = q
		return func() error { return r.store.SaveQuest(ctx, q) }, nil
	})
	if err != nil {
		return 0, err
	}
	return q.ID, nil
}

// SetQuestActive toggles a quest.
func (r *Registry) SetQuestActive(ctx context.Context, id uint32, active bool) error {
	return r.mutate(func(s *snapshot) (func() error, error) {
		q, ok := s.quests[id]
		if !ok {
			return nil, errs.ErrNotFound
		}
		q.Active = active
		s.quests[id] = q
		return func() error { return r.store.SaveQuest(ctx, q) }, nil
	})
}

// GetQuest returns a quest by id.
func (r *Registry) GetQuest(id uint32) (model.Quest, error) {
	q, ok := r.load().quests[id]
	if !ok {
		return model.Quest{}, errs.ErrNotFound
	}
	return q, nil
}

// Quests returns all quests ordered by id.
func (r *Registry) Quests() []model.Quest { return sortedValues(r.load().quests, nil) }

// ActiveQuests returns active quests, optionally filtered by type ("" for all).
func (r *Registry) ActiveQuests(typ model.QuestType) []model.Quest {
	return sortedValues(r.load().quests, func(q model.Quest) bool {
		return q.Active && (typ == "" || q.Type == typ)
	})
}
