package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

var (
	_ repository.LedgerStore = (*LedgerRepo)(nil)
	_ repository.EventReader = (*LedgerRepo)(nil)
)

// LedgerRepo implements LedgerStore and EventReader using PostgreSQL.
// Accounts are stored as JSONB documents; cards, requests and events are rows.
type LedgerRepo struct{ db *DB }

// NewLedgerRepo constructs a ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo { return &LedgerRepo{db: db} }

const (
	upsertAccount = `
INSERT INTO accounts (address, state, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (address) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`

	upsertCard = `
INSERT INTO cards (token_id, template_id, owner, rarity, attack, defense, agility, hp, minted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (token_id) DO UPDATE SET owner = EXCLUDED.owner`

	insertRequest = `
INSERT INTO randomness_requests (id, kind, player, pack_type_id, adventure_id, num_words, status, requested_at)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
ON CONFLICT (id) DO NOTHING`

	resolveRequest = `
UPDATE randomness_requests SET status = 'fulfilled', emergency = $2, card_ids = $3, fulfilled_at = $4
WHERE id = $1 AND status = 'pending'`

	insertEvent = `INSERT INTO game_events (id, player, kind, data, at) VALUES ($1, $2, $3, $4, $5)`

	updateTreasury = `
UPDATE treasury SET collected = collected + $1::numeric, withdrawn = withdrawn + $2::numeric WHERE id = 1`

	selectRequestCols = `id, kind, player, pack_type_id, adventure_id, num_words, status, emergency, card_ids, requested_at, fulfilled_at`
)

// Commit applies the changeset in one transaction. Resolving a request that is no
// longer pending aborts the whole transaction with errs.ErrAlreadyResolved.
func (r *LedgerRepo) Commit(ctx context.Context, cs repository.Changeset) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	for _, req := range cs.Requests {
		if req.Status == model.StatusFulfilled {
			tag, e := tx.Exec(ctx, resolveRequest, req.ID, req.Emergency, tokenIDs(req.CardIDs), req.FulfilledAt)
			if e != nil {
				return e
			}
			if tag.RowsAffected() == 0 {
				return errs.ErrAlreadyResolved
			}
			continue
		}
		if _, err = tx.Exec(ctx, insertRequest, req.ID, string(req.Kind), req.Player.Hex(),
			int64(req.PackTypeID), int64(req.AdventureID), req.NumWords, req.RequestedAt); err != nil {
			return err
		}
	}
	for i := range cs.Accounts {
		a := &cs.Accounts[i]
		state, e := json.Marshal(a)
		if e != nil {
			return fmt.Errorf("encode account %s: %w", a.Address.Hex(), e)
		}
		if _, err = tx.Exec(ctx, upsertAccount, a.Address.Hex(), state, a.UpdatedAt); err != nil {
			return err
		}
	}
	for _, c := range cs.Cards {
		if _, err = tx.Exec(ctx, upsertCard, int64(c.TokenID), int64(c.TemplateID), c.Owner.Hex(), int16(c.Rarity),
			int64(c.Attack), int64(c.Defense), int64(c.Agility), int64(c.HP), c.MintedAt); err != nil {
			return translate(err)
		}
	}
	for _, ev := range cs.Events {
		data, e := json.Marshal(ev.Data)
		if e != nil {
			return fmt.Errorf("encode event %s: %w", ev.Kind, e)
		}
		if _, err = tx.Exec(ctx, insertEvent, ev.ID, ev.Player.Hex(), string(ev.Kind), data, ev.At); err != nil {
			return translate(err)
		}
	}
	if cs.Collected != nil || cs.Withdrawn != nil {
		if _, err = tx.Exec(ctx, updateTreasury, weiString(cs.Collected), weiString(cs.Withdrawn)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the complete persisted ledger.
func (r *LedgerRepo) Load(ctx context.Context) (repository.LedgerState, error) {
	var st repository.LedgerState

	rows, err := r.db.Pool.Query(ctx, `SELECT state FROM accounts`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			rows.Close()
			return st, err
		}
		var a model.Account
		if err = json.Unmarshal(raw, &a); err != nil {
			rows.Close()
			return st, fmt.Errorf("decode account: %w", err)
		}
		st.Accounts = append(st.Accounts, a)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return st, err
	}

	const selCards = `
SELECT token_id, template_id, owner, rarity, attack, defense, agility, hp, minted_at
FROM cards ORDER BY token_id ASC`
	rows, err = r.db.Pool.Query(ctx, selCards)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		c, e := scanCard(rows)
		if e != nil {
			rows.Close()
			return st, e
		}
		st.Cards = append(st.Cards, c)
		st.MaxTokenID = max(st.MaxTokenID, c.TokenID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return st, err
	}

	rows, err = r.db.Pool.Query(ctx, `SELECT `+selectRequestCols+` FROM randomness_requests WHERE status = 'pending' ORDER BY requested_at ASC`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		req, e := scanRequest(rows)
		if e != nil {
			rows.Close()
			return st, e
		}
		st.Pending = append(st.Pending, req)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return st, err
	}

	var collected, withdrawn string
	if err = r.db.Pool.QueryRow(ctx, `SELECT collected::text, withdrawn::text FROM treasury WHERE id = 1`).
		Scan(&collected, &withdrawn); err != nil {
		return st, translate(err)
	}
	c, ok1 := new(big.Int).SetString(collected, 10)
	w, ok2 := new(big.Int).SetString(withdrawn, 10)
	if !ok1 || !ok2 {
		return st, fmt.Errorf("decode treasury %q/%q", collected, withdrawn)
	}
	st.Treasury = model.Treasury{Collected: c, Withdrawn: w}
	return st, nil
}

// GetRequest loads a randomness request by id.
func (r *LedgerRepo) GetRequest(ctx context.Context, id uuid.UUID) (*model.RandomnessRequest, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+selectRequestCols+` FROM randomness_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// ListEvents returns the player's newest events first.
func (r *LedgerRepo) ListEvents(ctx context.Context, player common.Address, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, kind, data, at
FROM game_events
WHERE player = $1
ORDER BY at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, player.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			ev   model.Event
			kind string
			data []byte
		)
		if err = rows.Scan(&ev.ID, &kind, &data, &ev.At); err != nil {
			return nil, err
		}
		ev.Kind = model.EventKind(kind)
		ev.Player = player
		if len(data) > 0 {
			if err = json.Unmarshal(data, &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanCard(row pgx.Row) (model.Card, error) {
	var (
		c                            model.Card
		tokenID, templateID          int64
		owner                        string
		rarity                       int16
		attack, defense, agility, hp int64
	)
	if err := row.Scan(&tokenID, &templateID, &owner, &rarity, &attack, &defense, &agility, &hp, &c.MintedAt); err != nil {
		return c, err
	}
	c.TokenID = uint64(tokenID)
	c.TemplateID = uint32(templateID)
	c.Owner = common.HexToAddress(owner)
	c.Rarity = model.Rarity(rarity)
	c.Attack, c.Defense, c.Agility, c.HP = uint32(attack), uint32(defense), uint32(agility), uint32(hp)
	return c, nil
}

func scanRequest(row pgx.Row) (model.RandomnessRequest, error) {
	var (
		req                 model.RandomnessRequest
		kind, player, state string
		packID, advID       int64
		cardIDs             []int64
		fulfilledAt         *time.Time
	)
	if err := row.Scan(&req.ID, &kind, &player, &packID, &advID, &req.NumWords, &state,
		&req.Emergency, &cardIDs, &req.RequestedAt, &fulfilledAt); err != nil {
		return req, err
	}
	req.Kind = model.RequestKind(kind)
	req.Player = common.HexToAddress(player)
	req.PackTypeID = uint32(packID)
	req.AdventureID = uint32(advID)
	req.Status = model.RequestStatus(state)
	for _, id := range cardIDs {
		req.CardIDs = append(req.CardIDs, uint64(id))
	}
	if fulfilledAt != nil {
		req.FulfilledAt = *fulfilledAt
	}
	return req, nil
}

func tokenIDs(ids []uint64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
