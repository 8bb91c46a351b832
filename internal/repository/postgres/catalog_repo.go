package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

var _ repository.CatalogStore = (*CatalogRepo)(nil)

// CatalogRepo implements CatalogStore using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	upsertTemplate = `
INSERT INTO card_templates (id, name, rarity, attack, defense, agility, hp, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`
	upsertPackType = `
INSERT INTO pack_types (id, name, price, chance_common, chance_rare, chance_mythic, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`
	upsertAdventure = `
INSERT INTO adventures (id, name, description, entry_fee, min_reward, max_reward, duration_seconds, pack_drop_chance, reward_pack_type, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`
	upsertQuest = `
INSERT INTO quests (id, type, title, description, reward_amount, is_pack_reward, reward_pack_type, target, window_days, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`
)

func saveTemplate(ctx context.Context, ex execer, t model.CardTemplate) error {
	_, err := ex.Exec(ctx, upsertTemplate, int64(t.ID), t.Name, int16(t.Rarity),
		int64(t.Attack), int64(t.Defense), int64(t.Agility), int64(t.HP), t.Active)
	return translate(err)
}

func savePackType(ctx context.Context, ex execer, p model.PackType) error {
	_, err := ex.Exec(ctx, upsertPackType, int64(p.ID), p.Name, int64(p.Price),
		int16(p.Chances[0]), int16(p.Chances[1]), int16(p.Chances[2]), p.Active)
	return translate(err)
}

func saveAdventure(ctx context.Context, ex execer, a model.Adventure) error {
	_, err := ex.Exec(ctx, upsertAdventure, int64(a.ID), a.Name, a.Description, int64(a.EntryFee),
		int64(a.MinReward), int64(a.MaxReward), int64(a.Duration/time.Second),
		int16(a.PackDropChance), int64(a.RewardPackType), a.Active)
	return translate(err)
}

func saveQuest(ctx context.Context, ex execer, q model.Quest) error {
	_, err := ex.Exec(ctx, upsertQuest, int64(q.ID), string(q.Type), q.Title, q.Description,
		int64(q.RewardAmount), q.IsPackReward, int64(q.RewardPackType), int64(q.Target), int64(q.WindowDays), q.Active)
	return translate(err)
}

// SaveTemplate upserts a card template.
func (r *CatalogRepo) SaveTemplate(ctx context.Context, t model.CardTemplate) error {
	return saveTemplate(ctx, r.db.Pool, t)
}

// SavePackType upserts a pack type. Odds and price are fixed once inserted.
func (r *CatalogRepo) SavePackType(ctx context.Context, p model.PackType) error {
	return savePackType(ctx, r.db.Pool, p)
}

// SaveAdventure upserts an adventure.
func (r *CatalogRepo) SaveAdventure(ctx context.Context, a model.Adventure) error {
	return saveAdventure(ctx, r.db.Pool, a)
}

// SaveQuest upserts a quest.
func (r *CatalogRepo) SaveQuest(ctx context.Context, q model.Quest) error {
	return saveQuest(ctx, r.db.Pool, q)
}

// SaveCatalog upserts every entry of c in one transaction.
func (r *CatalogRepo) SaveCatalog(ctx context.Context, c repository.Catalog) (err error) {
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

	for _, t := range c.Templates {
		if err = saveTemplate(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, p := range c.PackTypes {
		if err = savePackType(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, a := range c.Adventures {
		if err = saveAdventure(ctx, tx, a); err != nil {
			return err
		}
	}
	for _, q := range c.Quests {
		if err = saveQuest(ctx, tx, q); err != nil {
			return err
		}
	}
	return nil
}

// LoadCatalog reads all catalog tables.
func (r *CatalogRepo) LoadCatalog(ctx context.Context) (repository.Catalog, error) {
	var c repository.Catalog

	rows, err := r.db.Pool.Query(ctx, `
SELECT id, name, rarity, attack, defense, agility, hp, active
FROM card_templates ORDER BY id ASC`)
	if err != nil {
		return c, err
	}
	for rows.Next() {
		var (
			t                            model.CardTemplate
			id                           int64
			rarity                       int16
			attack, defense, agility, hp int64
		)
		if err = rows.Scan(&id, &t.Name, &rarity, &attack, &defense, &agility, &hp, &t.Active); err != nil {
			rows.Close()
			return c, err
		}
		t.ID, t.Rarity = uint32(id), model.Rarity(rarity)
		t.Attack, t.Defense, t.Agility, t.HP = uint32(attack), uint32(defense), uint32(agility), uint32(hp)
		c.Templates = append(c.Templates, t)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return c, err
	}

	rows, err = r.db.Pool.Query(ctx, `
SELECT id, name, price, chance_common, chance_rare, chance_mythic, active
FROM pack_types ORDER BY id ASC`)
	if err != nil {
		return c, err
	}
	for rows.Next() {
		var (
			p          model.PackType
			id, price  int64
			cc, cr, cm int16
		)
		if err = rows.Scan(&id, &p.Name, &price, &cc, &cr, &cm, &p.Active); err != nil {
			rows.Close()
			return c, err
		}
		p.ID, p.Price = uint32(id), uint64(price)
		p.Chances = [3]uint8{uint8(cc), uint8(cr), uint8(cm)}
		c.PackTypes = append(c.PackTypes, p)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return c, err
	}

	rows, err = r.db.Pool.Query(ctx, `
SELECT id, name, description, entry_fee, min_reward, max_reward, duration_seconds, pack_drop_chance, reward_pack_type, active
FROM adventures ORDER BY id ASC`)
	if err != nil {
		return c, err
	}
	for rows.Next() {
		var (
			a                                 model.Adventure
			id, fee, minR, maxR, secs, packID int64
			chance                            int16
		)
		if err = rows.Scan(&id, &a.Name, &a.Description, &fee, &minR, &maxR, &secs, &chance, &packID, &a.Active); err != nil {
			rows.Close()
			return c, err
		}
		a.ID, a.EntryFee, a.MinReward, a.MaxReward = uint32(id), uint64(fee), uint64(minR), uint64(maxR)
		a.Duration = time.Duration(secs) * time.Second
		a.PackDropChance, a.RewardPackType = uint8(chance), uint32(packID)
		c.Adventures = append(c.Adventures, a)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return c, err
	}

	rows, err = r.db.Pool.Query(ctx, `
SELECT id, type, title, description, reward_amount, is_pack_reward, reward_pack_type, target, window_days, active
FROM quests ORDER BY id ASC`)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			q                                  model.Quest
			typ                                string
			id, reward, packID, target, window int64
		)
		if err = rows.Scan(&id, &typ, &q.Title, &q.Description, &reward, &q.IsPackReward, &packID, &target, &window, &q.Active); err != nil {
			return c, err
		}
		q.ID, q.Type, q.RewardAmount = uint32(id), model.QuestType(typ), uint64(reward)
		q.RewardPackType, q.Target, q.WindowDays = uint32(packID), uint32(target), uint32(window)
		c.Quests = append(c.Quests, q)
	}
	return c, rows.Err()
}
