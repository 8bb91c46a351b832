// Package convert maps domain models to and from the api wire types.
package convert

import (
	"fmt"
	"maps"
	"math"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/service"
)

// --- scalars ---

// ParseWei parses a decimal wei amount. Empty means zero.
func ParseWei(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad wei amount %q", errs.ErrInvalidInput, s)
	}
	return v, nil
}

// ParseUUID parses a request id.
func ParseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id: %v", errs.ErrInvalidInput, err)
	}
	return id, nil
}

// ParseSignature decodes a 0x-prefixed hex signature.
func ParseSignature(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature: %v", errs.ErrInvalidInput, err)
	}
	return b, nil
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- catalog ---

func ToAPITemplate(t model.CardTemplate) api.CardTemplate {
	return api.CardTemplate{
		ID: t.ID, Name: t.Name, Rarity: t.Rarity.String(),
		Attack: t.Attack, Defense: t.Defense, Agility: t.Agility, HP: t.HP, Active: t.Active,
	}
}

// FromAPITemplate converts a template, validating the rarity name.
func FromAPITemplate(in *api.CardTemplate) (model.CardTemplate, error) {
	var r model.Rarity
	if err := r.UnmarshalText([]byte(in.Rarity)); err != nil {
		return model.CardTemplate{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return model.CardTemplate{
		Name: in.Name, Rarity: r,
		Attack: in.Attack, Defense: in.Defense, Agility: in.Agility, HP: in.HP,
	}, nil
}

func ToAPIPackType(p model.PackType) api.PackType {
	return api.PackType{ID: p.ID, Name: p.Name, Price: p.Price, Chances: p.Chances, Active: p.Active}
}

func ToAPIAdventure(a model.Adventure) api.Adventure {
	return api.Adventure{
		ID: a.ID, Name: a.Name, Description: a.Description,
		EntryFee: a.EntryFee, MinReward: a.MinReward, MaxReward: a.MaxReward,
		DurationSeconds: int64(a.Duration / time.Second),
		PackDropChance:  a.PackDropChance, RewardPackType: a.RewardPackType, Active: a.Active,
	}
}

func FromAPIAdventure(in *api.Adventure) (model.Adventure, error) {
	if in.DurationSeconds < 0 {
		return model.Adventure{}, fmt.Errorf("%w: negative duration", errs.ErrInvalidInput)
	}
	if in.DurationSeconds > math.MaxInt64/int64(time.Second) {
		return model.Adventure{}, fmt.Errorf("%w: duration too long", errs.ErrInvalidInput)
	}
	return model.Adventure{
		Name: in.Name, Description: in.Description,
		EntryFee: in.EntryFee, MinReward: in.MinReward, MaxReward: in.MaxReward,
		Duration:       time.Duration(in.DurationSeconds) * time.Second,
		PackDropChance: in.PackDropChance, RewardPackType: in.RewardPackType,
	}, nil
}

func ToAPIQuest(q model.Quest) api.Quest {
	return api.Quest{
		ID: q.ID, Type: string(q.Type), Title: q.Title, Description: q.Description,
		RewardAmount: q.RewardAmount, IsPackReward: q.IsPackReward, RewardPackType: q.RewardPackType,
		Target: q.Target, WindowDays: q.WindowDays, Active: q.Active,
	}
}

func FromAPIQuest(in *api.Quest) model.Quest {
	return model.Quest{
		Type: model.QuestType(in.Type), Title: in.Title, Description: in.Description,
		RewardAmount: in.RewardAmount, IsPackReward: in.IsPackReward, RewardPackType: in.RewardPackType,
		Target: in.Target, WindowDays: in.WindowDays,
	}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

// ToAPICatalog converts the catalog view.
func ToAPICatalog(c service.CatalogView) *api.Catalog {
	return &api.Catalog{
		Templates:  mapSlice(c.Templates, ToAPITemplate),
		PackTypes:  mapSlice(c.PackTypes, ToAPIPackType),
		Adventures: mapSlice(c.Adventures, ToAPIAdventure),
		Quests:     mapSlice(c.Quests, ToAPIQuest),
	}
}

// --- player state ---

func ToAPICard(c model.Card) api.Card {
	return api.Card{
		TokenID: c.TokenID, TemplateID: c.TemplateID, Owner: c.Owner.Hex(), Rarity: c.Rarity.String(),
		Attack: c.Attack, Defense: c.Defense, Agility: c.Agility, HP: c.HP, MintedAt: c.MintedAt,
	}
}

// ToAPISession converts an adventure session; duration is the adventure's length (0 if unknown).
func ToAPISession(s model.AdventureSession, duration time.Duration) api.Session {
	out := api.Session{
		AdventureID: s.AdventureID,
		StartedAt:   s.StartedAt,
		CardIDs:     slices.Clone(s.CardIDs),
		RequestID:   s.RequestID.String(),
		Resolved:    s.Randomness != nil,
		Claimed:     s.Claimed,
		Reward:      s.Reward,
		PackDropped: s.PackDropped,
	}
	if duration > 0 {
		out.ReadyAt = s.StartedAt.Add(duration)
	}
	return out
}

func ToAPIQuestProgress(p model.QuestProgress) api.QuestProgress {
	return api.QuestProgress{
		QuestID: p.QuestID, Progress: p.Progress, Completed: p.Completed,
		Claimed: p.Claimed, WindowStart: p.WindowStart,
	}
}

func toAPIQuestView(v service.QuestView) api.QuestProgress {
	out := ToAPIQuestProgress(v.Progress)
	out.QuestID = v.Quest.ID
	out.Title = v.Quest.Title
	out.Target = v.Quest.Target
	out.ResetsAt = v.ResetsAt
	return out
}

// ToAPIStats converts the player read model. adventures resolves session ready times.
func ToAPIStats(st service.PlayerStats, adventures []model.Adventure) *api.Stats {
	a := st.Account
	durations := make(map[uint32]time.Duration, len(adventures))
	for _, adv := range adventures {
		durations[adv.ID] = adv.Duration
	}

	out := &api.Stats{
		Address:          a.Address.Hex(),
		Tokens:           a.Tokens,
		Energy:           a.Energy,
		NextEnergyReset:  st.NextReset,
		MaxDeckSlots:     a.MaxDeckSlots,
		Decks:            []api.Deck{},
		Cards:            make([]api.Card, 0, len(st.Cards)),
		Packs:            []api.PackBalance{},
		Sessions:         []api.Session{},
		Quests:           mapSlice(st.Quests, toAPIQuestView),
		WeeklyQuestSlots: a.WeeklyQuestSlots,
		Paused:           st.GamePaused,
	}
	for i, d := range a.Decks {
		if !d.Empty() {
			out.Decks = append(out.Decks, api.Deck{Slot: i, Name: d.Name, CardIDs: slices.Clone(d.CardIDs)})
		}
	}
	for _, c := range st.Cards {
		ac := ToAPICard(c)
		_, ac.Locked = st.LockedCards[c.TokenID]
		out.Cards = append(out.Cards, ac)
	}
	for _, id := range slices.Sorted(maps.Keys(a.Packs)) {
		if n := a.Packs[id]; n > 0 {
			out.Packs = append(out.Packs, api.PackBalance{PackTypeID: id, Count: n})
		}
	}
	for _, id := range slices.Sorted(maps.Keys(a.Sessions)) {
		out.Sessions = append(out.Sessions, ToAPISession(*a.Sessions[id], durations[id]))
	}
	return out
}

func ToAPIEvent(e model.Event) api.Event {
	return api.Event{ID: e.ID.String(), Kind: string(e.Kind), Player: e.Player.Hex(), Data: e.Data, At: e.At}
}

func ToAPIEvents(evs []model.Event) *api.ListEventsResponse {
	return &api.ListEventsResponse{Events: mapSlice(evs, ToAPIEvent)}
}

func ToAPIRequest(r model.RandomnessRequest) *api.RandomnessRequest {
	return &api.RandomnessRequest{
		ID: r.ID.String(), Kind: string(r.Kind), Status: string(r.Status), Emergency: r.Emergency,
		PackTypeID: r.PackTypeID, AdventureID: r.AdventureID, CardIDs: slices.Clone(r.CardIDs),
		RequestedAt: r.RequestedAt, FulfilledAt: optTime(r.FulfilledAt),
	}
}

func ToAPITreasury(t model.Treasury) *api.Treasury {
	return &api.Treasury{
		CollectedWei: weiString(t.Collected),
		WithdrawnWei: weiString(t.Withdrawn),
		AvailableWei: t.Available().String(),
	}
}
