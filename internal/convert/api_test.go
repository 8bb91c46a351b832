package convert

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/engine"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/service"
)

func TestParseWei(t *testing.T) {
	t.Parallel()

	v, err := ParseWei("")
	if err != nil || v.Sign() != 0 {
		t.Fatalf("empty: got %v, %v", v, err)
	}
	v, err = ParseWei("100000000000000000")
	if err != nil || v.String() != "100000000000000000" {
		t.Fatalf("decimal: got %v, %v", v, err)
	}
	for _, bad := range []string{"-1", "0x10", "1.5", "abc"} {
		if _, err := ParseWei(bad); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("%q: want ErrInvalidInput, got %v", bad, err)
		}
	}
}

func TestParseUUIDAndSignature(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	got, err := ParseUUID(id.String())
	if err != nil || got != id {
		t.Fatalf("uuid roundtrip: %v %v", got, err)
	}
	if _, err := ParseUUID("nope"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}

	sig, err := ParseSignature("0x0102ff")
	if err != nil || len(sig) != 3 || sig[2] != 0xff {
		t.Fatalf("signature: %x %v", sig, err)
	}
	if _, err := ParseSignature("0102"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("missing prefix: want ErrInvalidInput, got %v", err)
	}
}

func TestTemplateConversion(t *testing.T) {
	t.Parallel()

	tpl := model.CardTemplate{ID: 4, Name: "Earth Golem", Rarity: model.Rare, Attack: 1, Defense: 2, Agility: 3, HP: 4, Active: true}
	out := ToAPITemplate(tpl)
	if out.Rarity != "rare" || out.ID != 4 || !out.Active {
		t.Fatalf("unexpected api template: %+v", out)
	}

	back, err := FromAPITemplate(&out)
	if err != nil {
		t.Fatalf("FromAPITemplate: %v", err)
	}
	if back.ID != 0 || back.Active {
		t.Fatalf("id and active are assigned by the registry: %+v", back)
	}
	if back.Rarity != model.Rare || back.HP != 4 {
		t.Fatalf("fields lost: %+v", back)
	}

	out.Rarity = "legendary"
	if _, err := FromAPITemplate(&out); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestAdventureDuration(t *testing.T) {
	t.Parallel()

	a := ToAPIAdventure(model.Adventure{ID: 1, Name: "Forest", Duration: 10 * time.Minute})
	if a.DurationSeconds != 600 {
		t.Fatalf("duration: %d", a.DurationSeconds)
	}
	back, err := FromAPIAdventure(&a)
	if err != nil || back.Duration != 10*time.Minute {
		t.Fatalf("back: %+v %v", back, err)
	}
	for _, secs := range []int64{-1, math.MaxInt64/int64(time.Second) + 1, math.MaxInt64} {
		a.DurationSeconds = secs
		if _, err := FromAPIAdventure(&a); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("%d seconds: want ErrInvalidInput, got %v", secs, err)
		}
	}
	a.DurationSeconds = math.MaxInt64 / int64(time.Second)
	if back, err := FromAPIAdventure(&a); err != nil || back.Duration <= 0 {
		t.Fatalf("max duration: %v %v", back.Duration, err)
	}
}

func TestToAPIStats(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	acct := model.NewAccount(addr, now)
	acct.Tokens = 90
	acct.Decks[1] = model.Deck{Name: "main", CardIDs: []uint64{1, 2, 3, 4}}
	acct.Packs[2] = 1
	acct.Packs[1] = 3
	acct.Packs[5] = 0
	w := [32]byte{1}
	acct.Sessions[7] = &model.AdventureSession{AdventureID: 7, StartedAt: now, CardIDs: []uint64{1, 2, 3, 4}, Randomness: &w}

	st := service.PlayerStats{
		Account: *acct,
		Cards: []model.Card{
			{TokenID: 1, Owner: addr, Rarity: model.Mythic},
			{TokenID: 9, Owner: addr},
		},
		Quests: []service.QuestView{{
			QuestStatus: engine.QuestStatus{
				Quest:    model.Quest{ID: 3, Title: "Check in", Target: 1},
				Progress: model.QuestProgress{Progress: 1, Completed: true},
			},
			ResetsAt: now.Add(time.Hour),
		}},
		NextReset:   now.Add(2 * time.Hour),
		LockedCards: acct.LockedCards(),
	}

	out := ToAPIStats(st, []model.Adventure{{ID: 7, Duration: time.Hour}})

	if out.Address != addr.Hex() || out.Tokens != 90 {
		t.Fatalf("header: %+v", out)
	}
	if len(out.Decks) != 1 || out.Decks[0].Slot != 1 {
		t.Fatalf("decks: %+v", out.Decks)
	}
	if len(out.Packs) != 2 || out.Packs[0].PackTypeID != 1 || out.Packs[1].PackTypeID != 2 {
		t.Fatalf("packs must be sorted and skip zero balances: %+v", out.Packs)
	}
	if !out.Cards[0].Locked || out.Cards[1].Locked {
		t.Fatalf("locked flags: %+v", out.Cards)
	}
	if out.Cards[0].Rarity != "mythic" {
		t.Fatalf("rarity: %s", out.Cards[0].Rarity)
	}
	if len(out.Sessions) != 1 || !out.Sessions[0].Resolved || !out.Sessions[0].ReadyAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("sessions: %+v", out.Sessions)
	}
	q := out.Quests[0]
	if q.QuestID != 3 || q.Title != "Check in" || !q.Completed || !q.ResetsAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("quests: %+v", q)
	}
}

func TestToAPIRequestAndTreasury(t *testing.T) {
	t.Parallel()

	r := model.RandomnessRequest{ID: uuid.Must(uuid.NewV4()), Kind: model.KindPackOpening, Status: model.StatusPending}
	out := ToAPIRequest(r)
	if out.FulfilledAt != nil || out.Status != "pending" {
		t.Fatalf("pending request: %+v", out)
	}
	r.FulfilledAt = time.Now()
	if ToAPIRequest(r).FulfilledAt == nil {
		t.Fatalf("fulfilled_at dropped")
	}

	tr := ToAPITreasury(model.Treasury{})
	if tr.CollectedWei != "0" || tr.AvailableWei != "0" {
		t.Fatalf("zero treasury: %+v", tr)
	}
}
