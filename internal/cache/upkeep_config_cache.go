package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	settingsdomain "github.com/smallbiznis/claimward/internal/settings/domain"
)

const defaultUpkeepConfigTTL = 5 * time.Minute

// UpkeepConfigCache stores hot-path per-claim upkeep settings lookups so the
// billing scans do not hit the store once per claim per tick.
type UpkeepConfigCache interface {
	Get(claimID snowflake.ID) (settingsdomain.UpkeepConfig, bool)
	Set(claimID snowflake.ID, cfg settingsdomain.UpkeepConfig)
	Invalidate(claimID snowflake.ID)
}

type upkeepConfigCache struct {
	configs Cache[snowflake.ID, settingsdomain.UpkeepConfig]
	ttl     time.Duration
}

// NewUpkeepConfigCache returns an in-memory cache tuned for billing scans.
func NewUpkeepConfigCache() UpkeepConfigCache {
	return &upkeepConfigCache{
		configs: NewTTLCache[snowflake.ID, settingsdomain.UpkeepConfig](),
		ttl:     defaultUpkeepConfigTTL,
	}
}

func (c *upkeepConfigCache) Get(claimID snowflake.ID) (settingsdomain.UpkeepConfig, bool) {
	return c.configs.Get(claimID)
}

func (c *upkeepConfigCache) Set(claimID snowflake.ID, cfg settingsdomain.UpkeepConfig) {
	if cfg.ID == 0 {
		return
	}
	c.configs.Set(claimID, cfg, c.ttl)
}

func (c *upkeepConfigCache) Invalidate(claimID snowflake.ID) {
	c.configs.Delete(claimID)
}
