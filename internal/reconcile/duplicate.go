package reconcile

import (
	"sort"
	"strconv"
	"time"

	"ticketrecon/internal/model"
	"ticketrecon/pkg/money"
)

// DuplicateCandidate 疑似重复提交的记录及其指向的最早一条
type DuplicateCandidate struct {
	Duplicate *model.SaleRecord
	Canonical *model.SaleRecord
}

// DetectDuplicates 按 (活动, 平台, 客户, 金额, 币种) 分组，组内按购买时间排序。
// 与前一条间隔不超过 window 的记录判为重复，指向该链条的第一条记录；
// 组内最早的记录永远不会被标记。无法识别客户的记录不参与查重。
func DetectDuplicates(local []*model.SaleRecord, window time.Duration) []DuplicateCandidate {
	groups := make(map[string][]*model.SaleRecord)
	var keys []string
	for _, s := range local {
		customer := s.CustomerKey()
		if customer == "" {
			continue
		}
		key := s.EventID + "|" + s.Platform + "|" + customer + "|" +
			strconv.FormatInt(s.TotalAmount, 10) + "|" + money.NormalizeCurrency(s.Currency)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], s)
	}
	sort.Strings(keys)

	var out []DuplicateCandidate
	for _, key := range keys {
		g := groups[key]
		if len(g) < 2 {
			continue
		}
		sortChronological(g)

		canonical := g[0]
		for i := 1; i < len(g); i++ {
			if g[i].PurchasedAt.Sub(g[i-1].PurchasedAt) <= window {
				out = append(out, DuplicateCandidate{Duplicate: g[i], Canonical: canonical})
				continue
			}
			canonical = g[i]
		}
	}
	return out
}
