package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/catalog"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository/memory"
	"github.com/and161185/avamon/internal/rng"
	"github.com/and161185/avamon/internal/schedule"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// start is a Monday anchor boundary (05:30 UTC).
var start = time.Date(2025, 3, 10, 5, 30, 0, 0, time.UTC)

// Seeded catalog ids.
const (
	starterPack    = 1
	forest         = 1
	earthGolem     = 3
	questCheckin   = 1
	questWin       = 2
	questOpenPacks = 3
)

type fakeProvider struct {
	mu   sync.Mutex
	reqs []rng.Request
	err  error
}

var _ rng.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) RequestRandomness(_ context.Context, r rng.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, r)
	return p.err
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs)
}

type fixture struct {
	e   *Engine
	st  *memory.Store
	clk *schedule.ManualClock
	rp  *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	cat := catalog.New(st, zap.NewNop())
	seed, err := catalog.LoadSeed("")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := cat.Seed(ctx, seed); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	clk := schedule.NewManualClock(start)
	led := ledger.New(st, clk, schedule.Anchor{Hour: 5, Minute: 30, Loc: time.UTC}, zap.NewNop())
	if err := led.Load(ctx); err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	rp := &fakeProvider{}
	return &fixture{e: New(cat, led, rp, zap.NewNop()), st: st, clk: clk, rp: rp}
}

func (f *fixture) mintDeck(t *testing.T, who common.Address) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, model.DeckSize)
	for i := 0; i < model.DeckSize; i++ {
		c, err := f.e.MintCard(context.Background(), who, earthGolem)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		ids = append(ids, c.TokenID)
	}
	return ids
}

func (f *fixture) countEvents(kind model.EventKind) int {
	n := 0
	for _, ev := range f.st.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func word(b byte) []rng.Word { return []rng.Word{{b, 0xaa, 0x55}} }

// --- packs ---

func TestDrawTier(t *testing.T) {
	ch := [3]uint8{70, 25, 5}
	cases := []struct {
		roll uint64
		want model.Rarity
	}{
		{0, model.Common}, {69, model.Common}, {70, model.Rare}, {94, model.Rare}, {95, model.Mythic}, {99, model.Mythic},
	}
	for _, tc := range cases {
		if got := DrawTier(ch, tc.roll); got != tc.want {
			t.Fatalf("roll %d: got %s want %s", tc.roll, got, tc.want)
		}
	}
}

func TestDrawTemplates_Distribution(t *testing.T) {
	pools := map[model.Rarity][]model.CardTemplate{
		model.Common: {{ID: 1, Rarity: model.Common}, {ID: 2, Rarity: model.Common}},
		model.Rare:   {{ID: 3, Rarity: model.Rare}},
		model.Mythic: {{ID: 4, Rarity: model.Mythic}, {ID: 5, Rarity: model.Mythic}},
	}
	active := func(r model.Rarity) []model.CardTemplate { return pools[r] }
	p := model.PackType{Chances: [3]uint8{70, 25, 5}}

	var counts [3]int
	seed := rng.Word{42}
	const packs = 10000
	for i := uint64(0); i < packs; i++ {
		tpls, err := drawTemplates(p, rng.Derive(seed, i), active)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if len(tpls) != model.PackSize {
			t.Fatalf("pack %d has %d cards", i, len(tpls))
		}
		for _, tpl := range tpls {
			counts[tpl.Rarity]++
		}
	}
	// 50,000 draws at 5% -> mean 2,500, sd ~49.
	if m := counts[model.Mythic]; m < 2250 || m > 2750 {
		t.Fatalf("mythic count %d outside [2250, 2750]", m)
	}
	if c := counts[model.Common]; c < 34000 || c > 36000 {
		t.Fatalf("common count %d outside [34000, 36000]", c)
	}
}

func TestDrawTemplates_Fallback(t *testing.T) {
	if got := fallbackOrder(model.Mythic); len(got) != 3 || got[1] != model.Rare || got[2] != model.Common {
		t.Fatalf("mythic fallback: %v", got)
	}
	if got := fallbackOrder(model.Common); got[1] != model.Rare || got[2] != model.Mythic {
		t.Fatalf("common fallback: %v", got)
	}

	onlyCommon := func(r model.Rarity) []model.CardTemplate {
		if r == model.Common {
			return []model.CardTemplate{{ID: 7, Rarity: model.Common}}
		}
		return nil
	}
	tpls, err := drawTemplates(model.PackType{Chances: [3]uint8{0, 0, 100}}, rng.Word{1}, onlyCommon)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	for _, tpl := range tpls {
		if tpl.ID != 7 {
			t.Fatalf("expected fallback to common, got %+v", tpl)
		}
	}

	onlyMythic := func(r model.Rarity) []model.CardTemplate {
		if r == model.Mythic {
			return []model.CardTemplate{{ID: 9, Rarity: model.Mythic}}
		}
		return nil
	}
	tpls, err = drawTemplates(model.PackType{Chances: [3]uint8{100, 0, 0}}, rng.Word{1}, onlyMythic)
	if err != nil || tpls[0].ID != 9 {
		t.Fatalf("expected upward fallback, got %v %v", tpls, err)
	}

	none := func(model.Rarity) []model.CardTemplate { return nil }
	if _, err := drawTemplates(model.PackType{Chances: [3]uint8{100, 0, 0}}, rng.Word{1}, none); !errors.Is(err, errs.ErrNoActiveTemplates) {
		t.Fatalf("want ErrNoActiveTemplates, got %v", err)
	}
}

func TestOpenPack_TwoPhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.e.GrantPacks(ctx, alice, starterPack, 2); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := f.e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if f.rp.count() != 1 || f.rp.reqs[0].ID != id {
		t.Fatalf("provider not asked: %+v", f.rp.reqs)
	}
	if got := f.e.Account(alice).Packs[starterPack]; got != 1 {
		t.Fatalf("pack balance %d, want 1", got)
	}
	if n := len(f.e.Cards(alice)); n != 0 {
		t.Fatalf("cards minted before randomness: %d", n)
	}
	req, _ := f.e.GetRequest(ctx, id)
	if req.Status != model.StatusPending {
		t.Fatalf("status %s", req.Status)
	}

	if err := f.e.FulfillRandomness(ctx, id, word(7)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	cards := f.e.Cards(alice)
	if len(cards) != model.PackSize {
		t.Fatalf("got %d cards", len(cards))
	}
	for _, c := range cards {
		tpl, err := f.e.Catalog().GetTemplate(c.TemplateID)
		if err != nil || c.Rarity != tpl.Rarity || c.HP != tpl.HP || c.Owner != alice {
			t.Fatalf("card does not match template: %+v %+v", c, tpl)
		}
	}
	req, _ = f.e.GetRequest(ctx, id)
	if req.Status != model.StatusFulfilled || len(req.CardIDs) != model.PackSize {
		t.Fatalf("request not resolved: %+v", req)
	}

	// Duplicate delivery is a no-op.
	if err := f.e.FulfillRandomness(ctx, id, word(8)); err != nil {
		t.Fatalf("duplicate fulfill: %v", err)
	}
	if n := len(f.e.Cards(alice)); n != model.PackSize {
		t.Fatalf("duplicate delivery minted cards: %d", n)
	}
	if n := f.countEvents(model.EventPackOpened); n != 1 {
		t.Fatalf("PackOpened events %d", n)
	}

	for _, qs := range f.e.Quests(alice) {
		if qs.Quest.ID == questOpenPacks && qs.Progress.Progress != 1 {
			t.Fatalf("open packs quest progress %d", qs.Progress.Progress)
		}
	}
}

func TestOpenPack_NoPacksOwned(t *testing.T) {
	f := newFixture(t)
	_, err := f.e.OpenPack(context.Background(), alice, starterPack)
	if !errors.Is(err, errs.ErrNoPacksOwned) || !errors.Is(err, errs.ErrInsufficientPackBalance) {
		t.Fatalf("want ErrNoPacksOwned, got %v", err)
	}
	if f.rp.count() != 0 {
		t.Fatalf("provider must not be called")
	}
	if _, err := f.e.OpenPack(context.Background(), alice, 99); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestOpenPack_ConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.e.GrantPacks(ctx, alice, starterPack, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := f.e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			if err := f.e.FulfillRandomness(ctx, id, word(b)); err != nil {
				t.Errorf("fulfill: %v", err)
			}
		}(byte(i))
	}
	wg.Wait()
	if n := len(f.e.Cards(alice)); n != model.PackSize {
		t.Fatalf("got %d cards, want exactly one batch", n)
	}
}

func TestPurchasePack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.e.PurchasePack(ctx, alice, starterPack, 1); !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}
	if err := f.e.CreditTokens(ctx, alice, 250); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := f.e.PurchasePack(ctx, alice, starterPack, 2); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	a := f.e.Account(alice)
	if a.Tokens != 50 || a.Packs[starterPack] != 2 {
		t.Fatalf("unexpected account: tokens=%d packs=%v", a.Tokens, a.Packs)
	}
	if err := f.e.Catalog().SetPackTypeActive(ctx, starterPack, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.e.PurchasePack(ctx, alice, starterPack, 1); !errors.Is(err, errs.ErrInactive) {
		t.Fatalf("want ErrInactive, got %v", err)
	}
	// Owned packs of a deactivated type can still be opened.
	if _, err := f.e.OpenPack(ctx, alice, starterPack); err != nil {
		t.Fatalf("open: %v", err)
	}
}

// --- adventures ---

func TestJoinAdventure_ZeroEnergy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deck := f.mintDeck(t, alice)
	if err := f.e.CreditTokens(ctx, alice, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := f.e.Ledger().Update(ctx, alice, func(tx *ledger.Tx) error {
		tx.Account().Energy = 0
		tx.Touch()
		return nil
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if _, err := f.e.JoinAdventure(ctx, alice, forest, deck); !errors.Is(err, errs.ErrInsufficientEnergy) {
		t.Fatalf("want ErrInsufficientEnergy, got %v", err)
	}
	a := f.e.Account(alice)
	if a.Tokens != 100 || len(a.Sessions) != 0 || len(a.LockedCards()) != 0 {
		t.Fatalf("failed join mutated state: %+v", a)
	}
}

func TestJoinAdventure_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deck := f.mintDeck(t, alice)

	if _, err := f.e.JoinAdventure(ctx, alice, 42, deck); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, forest, deck); !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if err := f.e.CreditTokens(ctx, alice, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, forest, deck[:3]); !errors.Is(err, errs.ErrDeckNotFound) {
		t.Fatalf("want ErrDeckNotFound, got %v", err)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, forest, deck); err != nil {
		t.Fatalf("join: %v", err)
	}
	a := f.e.Account(alice)
	if a.Tokens != 90 || a.Energy != model.DailyEnergy-1 {
		t.Fatalf("fee/energy not charged: tokens=%d energy=%d", a.Tokens, a.Energy)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, forest, deck); !errors.Is(err, errs.ErrSessionActive) {
		t.Fatalf("want ErrSessionActive, got %v", err)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, 2, deck); !errors.Is(err, errs.ErrCardLocked) {
		t.Fatalf("want ErrCardLocked, got %v", err)
	}
	if err := f.e.TransferCard(ctx, alice, bob, deck[0]); !errors.Is(err, errs.ErrCardLocked) {
		t.Fatalf("locked card transferred: %v", err)
	}

	if err := f.e.Catalog().UpdateAdventure(ctx, 3, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, 3, deck); !errors.Is(err, errs.ErrInactive) {
		t.Fatalf("want ErrInactive, got %v", err)
	}
}

func TestClaimAdventure_Timing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deck := f.mintDeck(t, alice)
	if err := f.e.CreditTokens(ctx, alice, 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := f.e.ClaimAdventure(ctx, alice, forest); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound without session, got %v", err)
	}
	id, err := f.e.JoinAdventure(ctx, alice, forest, deck)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	f.clk.Advance(599 * time.Second)
	if _, err := f.e.ClaimAdventure(ctx, alice, forest); !errors.Is(err, errs.ErrNotReady) {
		t.Fatalf("want ErrNotReady at 599s, got %v", err)
	}
	f.clk.Advance(time.Second)
	if _, err := f.e.ClaimAdventure(ctx, alice, forest); !errors.Is(err, errs.ErrRandomnessPending) {
		t.Fatalf("want ErrRandomnessPending, got %v", err)
	}

	if err := f.e.FulfillRandomness(ctx, id, word(3)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	s, err := f.e.ClaimAdventure(ctx, alice, forest)
	if err != nil {
		t.Fatalf("claim at 600s: %v", err)
	}
	if s.Reward < 5 || s.Reward > 25 || !s.Claimed {
		t.Fatalf("unexpected session: %+v", s)
	}
	a := f.e.Account(alice)
	if a.Tokens != s.Reward {
		t.Fatalf("tokens %d, want reward %d", a.Tokens, s.Reward)
	}
	if s.PackDropped != (a.Packs[starterPack] == 1) {
		t.Fatalf("pack drop mismatch: dropped=%v packs=%v", s.PackDropped, a.Packs)
	}
	if len(a.LockedCards()) != 0 {
		t.Fatalf("cards still locked")
	}
	if _, err := f.e.ClaimAdventure(ctx, alice, forest); !errors.Is(err, errs.ErrAlreadyClaimed) {
		t.Fatalf("want ErrAlreadyClaimed, got %v", err)
	}
	for _, qs := range f.e.Quests(alice) {
		if qs.Quest.ID == questWin && qs.Progress.Progress != 1 {
			t.Fatalf("win battles progress %d", qs.Progress.Progress)
		}
	}

	// A claimed session can be replaced by a new run.
	if err := f.e.CreditTokens(ctx, alice, 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := f.e.JoinAdventure(ctx, alice, forest, deck); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
}

// --- quests ---

func TestQuest_ProgressClampAndDoubleClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.e.ClaimQuest(ctx, alice, questWin); !errors.Is(err, errs.ErrNotCompleted) {
		t.Fatalf("want ErrNotCompleted, got %v", err)
	}
	var p model.QuestProgress
	for i := 0; i < 3; i++ {
		var err error
		if p, err = f.e.UpdateProgress(ctx, alice, questWin, 1); err != nil {
			t.Fatalf("progress: %v", err)
		}
		if want := i == 2; p.Completed != want {
			t.Fatalf("after %d updates completed=%v", i+1, p.Completed)
		}
	}
	if p, _ = f.e.UpdateProgress(ctx, alice, questWin, 5); p.Progress != 3 {
		t.Fatalf("progress not clamped: %d", p.Progress)
	}
	if n := f.countEvents(model.EventQuestCompleted); n != 1 {
		t.Fatalf("QuestCompleted events %d", n)
	}

	if _, err := f.e.ClaimQuest(ctx, alice, questWin); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.e.ClaimQuest(ctx, alice, questWin); !errors.Is(err, errs.ErrAlreadyClaimed) {
		t.Fatalf("want ErrAlreadyClaimed, got %v", err)
	}
	if got := f.e.Account(alice).Tokens; got != 50 {
		t.Fatalf("reward credited %d, want 50", got)
	}

	// Next daily window starts fresh.
	f.clk.Advance(24 * time.Hour)
	for _, qs := range f.e.Quests(alice) {
		if qs.Quest.ID == questWin && (qs.Progress.Progress != 0 || qs.Progress.Claimed) {
			t.Fatalf("window did not reset: %+v", qs.Progress)
		}
	}
	if _, err := f.e.ClaimQuest(ctx, alice, questWin); !errors.Is(err, errs.ErrNotCompleted) {
		t.Fatalf("want ErrNotCompleted in new window, got %v", err)
	}
}

func TestCompleteDailyCheckin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	out, err := f.e.CompleteDailyCheckin(ctx, alice)
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if len(out) != 1 || out[0].QuestID != questCheckin || !out[0].Claimed {
		t.Fatalf("unexpected result: %+v", out)
	}
	if got := f.e.Account(alice).Tokens; got != 10 {
		t.Fatalf("tokens %d", got)
	}
	if _, err := f.e.CompleteDailyCheckin(ctx, alice); !errors.Is(err, errs.ErrAlreadyClaimed) {
		t.Fatalf("want ErrAlreadyClaimed, got %v", err)
	}
	f.clk.Advance(24 * time.Hour)
	if _, err := f.e.CompleteDailyCheckin(ctx, alice); err != nil {
		t.Fatalf("next day checkin: %v", err)
	}
}

func TestWeeklyQuestSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	second, err := f.e.Catalog().CreateQuest(ctx, model.Quest{
		Type: model.QuestCustom, Title: "Weekly bonus", RewardAmount: 5, Target: 1, WindowDays: 7,
	})
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	if _, err := f.e.UpdateProgress(ctx, alice, questOpenPacks, 2); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := f.e.UpdateProgress(ctx, alice, second, 1); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := f.e.ClaimQuest(ctx, alice, questOpenPacks); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.e.Account(alice).Packs[starterPack]; got != 1 {
		t.Fatalf("pack reward not granted: %d", got)
	}
	if _, err := f.e.ClaimQuest(ctx, alice, second); !errors.Is(err, errs.ErrQuestSlotsFull) {
		t.Fatalf("want ErrQuestSlotsFull, got %v", err)
	}
	if err := f.e.BuyWeeklyQuestSlot(ctx, alice, big.NewInt(1)); !errors.Is(err, errs.ErrInsufficientPayment) {
		t.Fatalf("want ErrInsufficientPayment, got %v", err)
	}
	if err := f.e.BuyWeeklyQuestSlot(ctx, alice, model.WeeklyQuestSlotCost); err != nil {
		t.Fatalf("buy slot: %v", err)
	}
	if _, err := f.e.ClaimQuest(ctx, alice, second); err != nil {
		t.Fatalf("claim with slot: %v", err)
	}
	if got := f.e.Treasury().Collected; got.Cmp(model.WeeklyQuestSlotCost) != 0 {
		t.Fatalf("treasury %s", got)
	}
}

// --- pause, emergency, recovery ---

func TestPause_BlocksPlayerMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.e.GrantPacks(ctx, alice, starterPack, 2); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := f.e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.e.Pause()
	if !f.e.Paused() {
		t.Fatalf("not paused")
	}
	if _, err := f.e.OpenPack(ctx, alice, starterPack); !errors.Is(err, errs.ErrPaused) {
		t.Fatalf("want ErrPaused, got %v", err)
	}
	if _, err := f.e.CompleteDailyCheckin(ctx, alice); !errors.Is(err, errs.ErrPaused) {
		t.Fatalf("want ErrPaused, got %v", err)
	}
	if err := f.e.FulfillRandomness(ctx, id, word(1)); err != nil {
		t.Fatalf("fulfilment must continue while paused: %v", err)
	}
	f.e.Unpause()
	if _, err := f.e.OpenPack(ctx, alice, starterPack); err != nil {
		t.Fatalf("open after unpause: %v", err)
	}
}

func TestEmergencyComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.e.GrantPacks(ctx, alice, starterPack, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := f.e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	req, err := f.e.EmergencyComplete(ctx, id)
	if err != nil {
		t.Fatalf("emergency: %v", err)
	}
	if !req.Emergency || req.Status != model.StatusFulfilled || len(req.CardIDs) != model.PackSize {
		t.Fatalf("unexpected request: %+v", req)
	}
	if f.countEvents(model.EventEmergencyCompleted) != 1 {
		t.Fatalf("EmergencyCompleted not emitted")
	}
	if _, err := f.e.EmergencyComplete(ctx, id); !errors.Is(err, errs.ErrAlreadyResolved) {
		t.Fatalf("want ErrAlreadyResolved, got %v", err)
	}
	if _, err := f.e.EmergencyComplete(ctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRecover_ResubmitsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rp.err = errors.New("provider down")
	if err := f.e.GrantPacks(ctx, alice, starterPack, 2); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// The pack is burned and the request is pending even though the provider failed.
	id, err := f.e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.rp.err = nil

	f.clk.Advance(time.Minute)
	if _, err := f.e.OpenPack(ctx, alice, starterPack); err != nil {
		t.Fatalf("open: %v", err)
	}
	before := f.rp.count()

	n, err := f.e.ResubmitStale(ctx, 30*time.Second)
	if err != nil || n != 1 {
		t.Fatalf("stale resubmit: n=%d err=%v", n, err)
	}
	if last := f.rp.reqs[len(f.rp.reqs)-1]; last.ID != id {
		t.Fatalf("resubmitted wrong request %s", last.ID)
	}
	n, err = f.e.Recover(ctx)
	if err != nil || n != 2 {
		t.Fatalf("recover: n=%d err=%v", n, err)
	}
	if f.rp.count() != before+3 {
		t.Fatalf("provider calls %d", f.rp.count())
	}
}

func TestRecover_AfterRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.e.MintCard(ctx, bob, earthGolem)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.e.GrantPacks(ctx, alice, starterPack, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := f.e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// A fresh engine over the same store sees the pending request and can resolve it.
	cat := catalog.New(f.st, zap.NewNop())
	if err := cat.Load(ctx); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	led := ledger.New(f.st, f.clk, schedule.Anchor{Hour: 5, Minute: 30, Loc: time.UTC}, zap.NewNop())
	if err := led.Load(ctx); err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	rp := &fakeProvider{}
	e := New(cat, led, rp, zap.NewNop())
	if n, err := e.Recover(ctx); err != nil || n != 1 || rp.reqs[0].ID != id {
		t.Fatalf("recover: n=%d err=%v reqs=%v", n, err, rp.reqs)
	}
	if err := e.FulfillRandomness(ctx, id, word(9)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if n := len(e.Cards(alice)); n != model.PackSize {
		t.Fatalf("got %d cards", n)
	}
	// Minted ids continue after the persisted maximum.
	for _, own := range e.Cards(alice) {
		if own.TokenID <= first.TokenID {
			t.Fatalf("token id %d reused after restart (persisted max %d)", own.TokenID, first.TokenID)
		}
	}
}

func TestLocalProvider_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	local := rng.NewLocal(zap.NewNop(), 0)
	defer local.Close()
	e := New(f.e.Catalog(), f.e.Ledger(), local, zap.NewNop())
	local.Bind(e)

	if err := e.GrantPacks(ctx, alice, starterPack, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := e.OpenPack(ctx, alice, starterPack)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		req, err := e.GetRequest(ctx, id)
		if err == nil && req.Status == model.StatusFulfilled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request not fulfilled in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(e.Cards(alice)); n != model.PackSize {
		t.Fatalf("got %d cards", n)
	}
}
