package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/models"
)

// ChainLoader returns the first non-empty result among its loaders
type ChainLoader struct {
	loaders []Loader
	logger  arbor.ILogger
}

// NewChainLoader creates a loader trying each loader in order
func NewChainLoader(logger arbor.ILogger, loaders ...Loader) *ChainLoader {
	return &ChainLoader{loaders: loaders, logger: common.OrSilent(logger)}
}

// Load tries each loader until one returns entries
func (c *ChainLoader) Load(ctx context.Context) ([]models.CatalogEntry, error) {
	var errs []error
	for i, l := range c.loaders {
		entries, err := l.Load(ctx)
		if err != nil {
			c.logger.Warn().Int("loader", i).Err(err).Msg("Catalog loader failed, trying next")
			errs = append(errs, err)
			continue
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoEntries
}

// RedisLoader serves a catalog snapshot from Redis, filling it from next on a miss
type RedisLoader struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	next   Loader
	logger arbor.ILogger
}

// DefaultRedisKey is the key holding the catalog snapshot
const DefaultRedisKey = "twstock:catalog"

// NewRedisLoader creates a read-through loader. next may be nil.
func NewRedisLoader(client *redis.Client, key string, ttl time.Duration, next Loader, logger arbor.ILogger) *RedisLoader {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLoader{client: client, key: key, ttl: ttl, next: next, logger: common.OrSilent(logger)}
}

// Load returns the snapshot stored in Redis, or loads and stores one from next
func (r *RedisLoader) Load(ctx context.Context) ([]models.CatalogEntry, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	switch {
	case err == nil:
		var entries []models.CatalogEntry
		if err := json.Unmarshal(data, &entries); err == nil && len(entries) > 0 {
			return entries, nil
		}
		r.logger.Warn().Str("key", r.key).Msg("Discarding unreadable catalog snapshot")
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn().Str("key", r.key).Err(err).Msg("Failed to read catalog snapshot")
	}

	if r.next == nil {
		return nil, ErrNoEntries
	}
	entries, err := r.next.Load(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, payload, r.ttl).Err(); err != nil {
		r.logger.Warn().Str("key", r.key).Err(err).Msg("Failed to store catalog snapshot")
	}
	return entries, nil
}

// BackupLoader serves the built-in list of heavily traded symbols, indices and ETFs
type BackupLoader struct{}

// Load returns the built-in catalog
func (BackupLoader) Load(context.Context) ([]models.CatalogEntry, error) {
	out := make([]models.CatalogEntry, 0, len(backupListed)+len(backupOTC)+len(marketIndices))
	for _, list := range [][]models.CatalogEntry{backupListed, backupOTC, marketIndices} {
		out = append(out, list...)
	}
	return out, nil
}

func listed(symbol, name string) models.CatalogEntry {
	return models.CatalogEntry{Symbol: symbol, Name: name, Market: models.MarketListed}
}

func otc(symbol, name string) models.CatalogEntry {
	return models.CatalogEntry{Symbol: symbol, Name: name, Market: models.MarketOTC}
}

var backupListed = []models.CatalogEntry{
	listed("2330.TW", "台積電"), listed("2317.TW", "鴻海"), listed("2454.TW", "聯發科"),
	listed("2881.TW", "富邦金"), listed("2882.TW", "國泰金"), listed("2886.TW", "兆豐金"),
	listed("2891.TW", "中信金"), listed("2892.TW", "第一金"), listed("2303.TW", "聯電"),
	listed("2308.TW", "台達電"), listed("2382.TW", "廣達"), listed("2412.TW", "中華電"),
	listed("2474.TW", "可成"), listed("3008.TW", "大立光"), listed("3711.TW", "日月光投控"),
	listed("5880.TW", "合庫金"), listed("6505.TW", "台塑化"), listed("1301.TW", "台塑"),
	listed("1303.TW", "南亞"), listed("1326.TW", "台化"), listed("2002.TW", "中鋼"),
	listed("2207.TW", "和泰車"), listed("2357.TW", "華碩"), listed("2395.TW", "研華"),
	listed("2408.TW", "南亞科"), listed("2409.TW", "友達"), listed("2603.TW", "長榮"),
	listed("2609.TW", "陽明"), listed("2615.TW", "萬海"), listed("3034.TW", "聯詠"),
	listed("3045.TW", "台灣大"), listed("4904.TW", "遠傳"), listed("6415.TW", "矽力-KY"),
	listed("2327.TW", "國巨"), listed("2379.TW", "瑞昱"), listed("2884.TW", "玉山金"),
	listed("2885.TW", "元大金"), listed("3231.TW", "緯創"), listed("3481.TW", "群創"),
	listed("6669.TW", "緯穎"), listed("1216.TW", "統一"), listed("1101.TW", "台泥"),
	listed("1102.TW", "亞泥"), listed("2105.TW", "正新"), listed("2201.TW", "裕隆"),
	listed("2301.TW", "光寶科"), listed("2324.TW", "仁寶"), listed("2356.TW", "英業達"),
	listed("2801.TW", "彰銀"), listed("2880.TW", "華南金"),
}

var backupOTC = []models.CatalogEntry{
	otc("1565.TWO", "精華"), otc("3529.TWO", "力旺"), otc("4966.TWO", "譜瑞-KY"),
	otc("6446.TWO", "藥華藥"), otc("6488.TWO", "環球晶"), otc("8299.TWO", "群聯"),
}

var marketIndices = []models.CatalogEntry{
	{Symbol: models.BroadMarketIndex, Name: "台灣加權指數", Market: models.MarketIndex},
	{Symbol: "0050.TW", Name: "元大台灣50", Market: models.MarketETF},
	{Symbol: "0056.TW", Name: "元大高股息", Market: models.MarketETF},
	{Symbol: "0051.TW", Name: "元大中型100", Market: models.MarketETF},
	{Symbol: "006208.TW", Name: "富邦台50", Market: models.MarketETF},
}
