package catalog

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

//go:embed seed.toml
var defaultSeed []byte

type seedAdventure struct {
	ID              uint32 `toml:"id"`
	Name            string `toml:"name"`
	Description     string `toml:"description"`
	EntryFee        uint64 `toml:"entry_fee"`
	MinReward       uint64 `toml:"min_reward"`
	MaxReward       uint64 `toml:"max_reward"`
	DurationSeconds int64  `toml:"duration_seconds"`
	PackDropChance  uint8  `toml:"pack_drop_chance"`
	RewardPackType  uint32 `toml:"reward_pack_type"`
	Active          bool   `toml:"active"`
}

type seedFile struct {
	Templates  []model.CardTemplate `toml:"templates"`
	Packs      []model.PackType     `toml:"packs"`
	Adventures []seedAdventure      `toml:"adventures"`
	Quests     []model.Quest        `toml:"quests"`
}

// ParseSeed decodes a TOML catalog.
func ParseSeed(b []byte) (repository.Catalog, error) {
	var f seedFile
	if err := toml.Unmarshal(b, &f); err != nil {
		return repository.Catalog{}, fmt.Errorf("decode catalog seed: %w", err)
	}
	c := repository.Catalog{Templates: f.Templates, PackTypes: f.Packs, Quests: f.Quests}
	for _, a := range f.Adventures {
		if a.DurationSeconds < 0 || a.DurationSeconds > math.MaxInt64/int64(time.Second) {
			return repository.Catalog{}, fmt.Errorf("%w: adventure %d: duration_seconds out of range", errs.ErrInvalidInput, a.ID)
		}
		c.Adventures = append(c.Adventures, model.Adventure{
			ID:             a.ID,
			Name:           a.Name,
			Description:    a.Description,
			EntryFee:       a.EntryFee,
			MinReward:      a.MinReward,
			MaxReward:      a.MaxReward,
			Duration:       time.Duration(a.DurationSeconds) * time.Second,
			PackDropChance: a.PackDropChance,
			RewardPackType: a.RewardPackType,
			Active:         a.Active,
		})
	}
	return c, nil
}

// LoadSeed reads a TOML catalog from path, or the built-in one when path is empty.
func LoadSeed(path string) (repository.Catalog, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return repository.Catalog{}, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseSeed(b)
}
