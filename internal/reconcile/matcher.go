package reconcile

import (
	"sort"
	"strconv"

	"ticketrecon/internal/model"
	"ticketrecon/pkg/money"
)

// Pair 按平台订单号配对成功的一对记录
type Pair struct {
	Local    *model.SaleRecord
	Platform *model.PlatformSaleRecord
}

// Mismatch 配对成功但金额或币种不一致
type Mismatch struct {
	Pair
	Difference model.Difference
	Impact     int64
}

// MatchResult 每条本地和平台记录恰好落入一个桶。
// 没有平台订单号的人工售票不参与匹配，单独放在 Unlinked。
type MatchResult struct {
	Clean        []Pair
	Mismatched   []Mismatch
	Missing      []*model.PlatformSaleRecord // 平台有、本地无
	Unrecognized []*model.SaleRecord         // 本地有、平台不认可
	Unlinked     []*model.SaleRecord
}

// MatchedLocalIDs 与平台记录配对成功的本地记录
func (m *MatchResult) MatchedLocalIDs() map[int64]bool {
	ids := make(map[int64]bool, len(m.Clean)+len(m.Mismatched))
	for _, p := range m.Clean {
		ids[p.Local.ID] = true
	}
	for _, p := range m.Mismatched {
		ids[p.Local.ID] = true
	}
	return ids
}

// Match 以平台订单号为键配对。
// 同一订单号在本地有多条时，按购买时间最早的一条参与配对，其余视为平台不认可。
func Match(local []*model.SaleRecord, remote []*model.PlatformSaleRecord, tolerance int64) *MatchResult {
	res := &MatchResult{}
	remote = UniquePlatformSales(remote)

	queues := make(map[string][]*model.SaleRecord)
	for _, s := range local {
		id := s.OrderID()
		if id == "" {
			res.Unlinked = append(res.Unlinked, s)
			continue
		}
		queues[id] = append(queues[id], s)
	}
	for id := range queues {
		sortChronological(queues[id])
	}

	for _, p := range remote {
		q := queues[p.OrderID]
		if len(q) == 0 {
			res.Missing = append(res.Missing, p)
			continue
		}
		l := q[0]
		queues[p.OrderID] = q[1:]

		if diff, impact, ok := compare(l, p, tolerance); ok {
			res.Clean = append(res.Clean, Pair{Local: l, Platform: p})
		} else {
			res.Mismatched = append(res.Mismatched, Mismatch{
				Pair:       Pair{Local: l, Platform: p},
				Difference: diff,
				Impact:     impact,
			})
		}
	}

	for _, q := range queues {
		res.Unrecognized = append(res.Unrecognized, q...)
	}
	sort.Slice(res.Unrecognized, func(i, j int) bool {
		return res.Unrecognized[i].ID < res.Unrecognized[j].ID
	})
	return res
}

// UniquePlatformSales 分页重叠时平台可能返回同一订单多次，只保留第一次出现的记录
func UniquePlatformSales(remote []*model.PlatformSaleRecord) []*model.PlatformSaleRecord {
	seen := make(map[string]bool, len(remote))
	out := make([]*model.PlatformSaleRecord, 0, len(remote))
	for _, p := range remote {
		if p.OrderID != "" {
			if seen[p.OrderID] {
				continue
			}
			seen[p.OrderID] = true
		}
		out = append(out, p)
	}
	return out
}

// compare 币种不同时金额影响取两者较大值；同币种取差额绝对值
func compare(l *model.SaleRecord, p *model.PlatformSaleRecord, tolerance int64) (model.Difference, int64, bool) {
	lc, pc := money.NormalizeCurrency(l.Currency), money.NormalizeCurrency(p.Currency)
	if lc != pc && pc != "" {
		impact := l.TotalAmount
		if p.TotalAmount > impact {
			impact = p.TotalAmount
		}
		return model.Difference{Field: "currency", LocalValue: lc, PlatformValue: pc}, impact, false
	}
	delta := money.Abs(l.TotalAmount - p.TotalAmount)
	if delta <= tolerance {
		return model.Difference{}, 0, true
	}
	return model.Difference{
		Field:         "total_amount",
		LocalValue:    strconv.FormatInt(l.TotalAmount, 10),
		PlatformValue: strconv.FormatInt(p.TotalAmount, 10),
	}, delta, false
}

func sortChronological(sales []*model.SaleRecord) {
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].PurchasedAt.Equal(sales[j].PurchasedAt) {
			return sales[i].PurchasedAt.Before(sales[j].PurchasedAt)
		}
		return sales[i].ID < sales[j].ID
	})
}
