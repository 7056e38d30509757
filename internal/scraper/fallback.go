package scraper

import (
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
)

type fallbackSeed struct {
	suffix     string
	title      string
	content    string
	category   string
	importance string
	tags       []string
	ageHours   int
}

// fallbackSeeds hold per-exchange curated datasets served when every live
// strategy fails. Records are marked synthetic to distinguish them from
// live data.
var fallbackSeeds = map[string][]fallbackSeed{
	model.ExchangeBinance: {
		{
			suffix:     "fallback_1",
			title:      "币安将上线新币种并开放现货交易 (Binance Will List New Tokens)",
			content:    "币安将上线新的现货交易对，充值与提现通道将陆续开放，详情请以官方公告为准。",
			category:   model.CategoryNewListings,
			importance: model.ImportanceMedium,
			tags:       []string{"listing"},
			ageHours:   2,
		},
		{
			suffix:     "fallback_2",
			title:      "币安合约交易系统升级维护公告 (Futures System Maintenance)",
			content:    "为提供更稳定的服务，合约交易系统将进行升级维护，期间开平仓可能短暂受限。",
			category:   model.CategoryMaintenance,
			importance: model.ImportanceMedium,
			tags:       []string{"maintenance", "futures"},
			ageHours:   8,
		},
		{
			suffix:     "fallback_3",
			title:      "关于调整部分杠杆交易对的公告 (Margin Pair Adjustment)",
			content:    "平台将调整部分杠杆交易对的借贷利率与风控参数。",
			category:   model.CategoryMarginTrading,
			importance: model.ImportanceLow,
			tags:       []string{"margin"},
			ageHours:   24,
		},
	},
	model.ExchangeOKX: {
		{
			suffix:     "fallback_1",
			title:      "OKX 将上线新项目并开放充值 (OKX New Listing)",
			content:    "OKX 即将上线新项目，现已开放充值，交易开放时间请关注后续公告。",
			category:   model.CategoryNewListings,
			importance: model.ImportanceMedium,
			tags:       []string{"listing"},
			ageHours:   3,
		},
		{
			suffix:     "fallback_2",
			title:      "OKX 系统例行维护通知 (Scheduled Maintenance)",
			content:    "OKX 将进行例行系统维护，维护期间部分功能可能暂时无法使用。",
			category:   model.CategoryMaintenance,
			importance: model.ImportanceMedium,
			tags:       []string{"maintenance"},
			ageHours:   12,
		},
	},
	model.ExchangeBybit: {
		{
			suffix:     "fallback_1",
			title:      "Bybit 新币上线公告 (Bybit New Listing)",
			content:    "Bybit 将上线新的现货交易对，详情请查看官方公告。",
			category:   model.CategoryNewListings,
			importance: model.ImportanceMedium,
			tags:       []string{"listing"},
			ageHours:   6,
		},
	},
	model.ExchangeHTX: {
		{
			suffix:     "fallback_1",
			title:      "HTX 关于新增交易对的公告 (HTX New Trading Pairs)",
			content:    "HTX 将新增交易对并开放交易，详情请查看官方公告。",
			category:   model.CategoryNewListings,
			importance: model.ImportanceMedium,
			tags:       []string{"listing"},
			ageHours:   6,
		},
	},
}

// StaticFallback returns the curated dataset for an exchange, timestamped
// relative to now so it sorts plausibly against live data from other
// exchanges.
func StaticFallback(exchange string, now time.Time) []model.Announcement {
	seeds := fallbackSeeds[exchange]
	if len(seeds) == 0 {
		seeds = []fallbackSeed{{
			suffix:     "fallback_1",
			title:      "平台公告 (Exchange Notice)",
			content:    model.PlaceholderContent,
			category:   model.CategoryGeneral,
			importance: model.ImportanceLow,
			tags:       []string{"announcement"},
			ageHours:   6,
		}}
	}

	anns := make([]model.Announcement, 0, len(seeds))
	for _, seed := range seeds {
		anns = append(anns, model.Announcement{
			ID:          exchange + "_" + seed.suffix,
			Exchange:    exchange,
			ExchangeID:  seed.suffix,
			Title:       seed.title,
			Content:     seed.content,
			Category:    seed.category,
			Importance:  seed.importance,
			PublishTime: now.Add(-time.Duration(seed.ageHours) * time.Hour).UnixMilli(),
			Tags:        seed.tags,
			URL:         "https://www." + exchange + ".com",
			Synthetic:   true,
		})
	}
	return anns
}
