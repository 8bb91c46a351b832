package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

var player = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var requestCols = []string{"id", "kind", "player", "pack_type_id", "adventure_id", "num_words", "status", "emergency", "card_ids", "requested_at", "fulfilled_at"}

func TestLedgerRepo_Commit_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLedgerRepo(db)

	ctx := context.Background()
	now := time.Now().UTC()
	reqID := uuid.Must(uuid.NewV4())
	acct := model.NewAccount(player, now)
	cs := repository.Changeset{
		Accounts:  []model.Account{*acct},
		Cards:     []model.Card{{TokenID: 7, TemplateID: 3, Owner: player, Rarity: model.Rare, Attack: 1, Defense: 2, Agility: 3, HP: 4, MintedAt: now}},
		Requests:  []model.RandomnessRequest{{ID: reqID, Kind: model.KindPackOpening, Player: player, PackTypeID: 1, NumWords: 1, Status: model.StatusPending, RequestedAt: now}},
		Events:    []model.Event{{ID: uuid.Must(uuid.NewV4()), Kind: model.EventPackPurchased, Player: player, Data: map[string]any{"amount": 1}, At: now}},
		Collected: big.NewInt(1e16),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO randomness_requests`).
		WithArgs(reqID, "pack_opening", player.Hex(), int64(1), int64(0), 1, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs(player.Hex(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cards`).
		WithArgs(int64(7), int64(3), player.Hex(), int16(model.Rare), int64(1), int64(2), int64(3), int64(4), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO game_events`).
		WithArgs(pgxmock.AnyArg(), player.Hex(), "PackPurchased", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE treasury SET collected`).
		WithArgs("10000000000000000", "0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Commit(ctx, cs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Commit_AlreadyResolved_RollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLedgerRepo(db)

	now := time.Now().UTC()
	req := model.RandomnessRequest{ID: uuid.Must(uuid.NewV4()), Kind: model.KindPackOpening, Player: player,
		Status: model.StatusFulfilled, CardIDs: []uint64{1, 2, 3, 4, 5}, FulfilledAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE randomness_requests SET status = 'fulfilled'`).
		WithArgs(req.ID, false, []int64{1, 2, 3, 4, 5}, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := r.Commit(context.Background(), repository.Changeset{
		Requests: []model.RandomnessRequest{req},
		Accounts: []model.Account{*model.NewAccount(player, now)},
	})
	require.ErrorIs(t, err, errs.ErrAlreadyResolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Commit_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLedgerRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO game_events`).
		WithArgs(pgxmock.AnyArg(), player.Hex(), "DeckSaved", pgxmock.AnyArg(), now).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.Commit(context.Background(), repository.Changeset{
		Events: []model.Event{{ID: uuid.Must(uuid.NewV4()), Kind: model.EventDeckSaved, Player: player, At: now}},
	})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestLedgerRepo_Load(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLedgerRepo(db)

	now := time.Now().UTC()
	reqID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT state FROM accounts`).
		WillReturnRows(pgxmock.NewRows([]string{"state"}).
			AddRow([]byte(`{"address":"` + player.Hex() + `","tokens":42,"energy":7,"max_deck_slots":3,"cards":[9,11]}`)))
	mock.ExpectQuery(`FROM cards ORDER BY token_id ASC`).
		WillReturnRows(pgxmock.NewRows([]string{"token_id", "template_id", "owner", "rarity", "attack", "defense", "agility", "hp", "minted_at"}).
			AddRow(int64(9), int64(1), player.Hex(), int16(2), int64(95), int64(70), int64(60), int64(900), now).
			AddRow(int64(11), int64(3), player.Hex(), int16(0), int64(40), int64(85), int64(15), int64(700), now))
	mock.ExpectQuery(`FROM randomness_requests WHERE status = 'pending'`).
		WillReturnRows(pgxmock.NewRows(requestCols).
			AddRow(reqID, "adventure", player.Hex(), int64(0), int64(2), 1, "pending", false, []int64(nil), now, (*time.Time)(nil)))
	mock.ExpectQuery(`SELECT collected::text, withdrawn::text FROM treasury`).
		WillReturnRows(pgxmock.NewRows([]string{"collected", "withdrawn"}).AddRow("300000000000000000", "100000000000000000"))

	st, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Accounts, 1)
	require.Equal(t, player, st.Accounts[0].Address)
	require.EqualValues(t, 42, st.Accounts[0].Tokens)
	require.Len(t, st.Cards, 2)
	require.Equal(t, model.Mythic, st.Cards[0].Rarity)
	require.EqualValues(t, 11, st.MaxTokenID)
	require.Len(t, st.Pending, 1)
	require.Equal(t, model.KindAdventure, st.Pending[0].Kind)
	require.EqualValues(t, 2, st.Pending[0].AdventureID)
	require.Equal(t, "200000000000000000", st.Treasury.Available().String())
}

func TestLedgerRepo_GetRequest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLedgerRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM randomness_requests WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(requestCols).
			AddRow(id, "pack_opening", player.Hex(), int64(1), int64(0), 1, "fulfilled", true, []int64{1, 2, 3, 4, 5}, now, &now))
	req, err := r.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusFulfilled, req.Status)
	require.True(t, req.Emergency)
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, req.CardIDs)
	require.Equal(t, now, req.FulfilledAt)

	mock.ExpectQuery(`FROM randomness_requests WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetRequest(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLedgerRepo_ListEvents(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLedgerRepo(db)
	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, kind, data, at FROM game_events WHERE player = \$1 ORDER BY at DESC LIMIT \$2`).
		WithArgs(player.Hex(), 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "data", "at"}).
			AddRow(id, "PackOpened", []byte(`{"pack_type_id":1}`), now))

	out, err := r.ListEvents(context.Background(), player, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.EventPackOpened, out[0].Kind)
	require.Equal(t, player, out[0].Player)
	require.EqualValues(t, 1, out[0].Data["pack_type_id"])
}
