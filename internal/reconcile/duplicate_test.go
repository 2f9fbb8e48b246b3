package reconcile

import (
	"reflect"
	"testing"
	"time"

	"ticketrecon/internal/model"
)

func sale(id int64, email string, amount int64, at string) *model.SaleRecord {
	ts, err := time.Parse("15:04", at)
	if err != nil {
		panic(err)
	}
	return &model.SaleRecord{
		ID:            id,
		EventID:       "evt-1",
		Platform:      model.PlatformHumanitix,
		CustomerEmail: email,
		TotalAmount:   amount,
		Currency:      "AUD",
		PurchasedAt:   baseTime.Add(time.Duration(ts.Hour()-10)*time.Hour + time.Duration(ts.Minute())*time.Minute),
	}
}

func TestDetectDuplicates(t *testing.T) {
	window := 10 * time.Minute
	cases := []struct {
		name  string
		sales []*model.SaleRecord
		want  map[int64]int64 // duplicate -> canonical
	}{
		{
			name: "re-submission within window",
			sales: []*model.SaleRecord{
				sale(1, "a@x.com", 2000, "10:00"),
				sale(2, "a@x.com", 2000, "10:05"),
			},
			want: map[int64]int64{2: 1},
		},
		{
			name: "input order does not matter",
			sales: []*model.SaleRecord{
				sale(2, "a@x.com", 2000, "10:05"),
				sale(1, "a@x.com", 2000, "10:00"),
			},
			want: map[int64]int64{2: 1},
		},
		{
			name: "window boundary is inclusive",
			sales: []*model.SaleRecord{
				sale(1, "a@x.com", 2000, "10:00"),
				sale(2, "a@x.com", 2000, "10:10"),
				sale(3, "a@x.com", 2000, "10:21"),
			},
			want: map[int64]int64{2: 1},
		},
		{
			name: "chain points at its first record",
			sales: []*model.SaleRecord{
				sale(1, "a@x.com", 2000, "10:00"),
				sale(2, "a@x.com", 2000, "10:08"),
				sale(3, "a@x.com", 2000, "10:16"),
			},
			want: map[int64]int64{2: 1, 3: 1},
		},
		{
			name: "email compared case-insensitively",
			sales: []*model.SaleRecord{
				sale(1, "A@X.com", 2000, "10:00"),
				sale(2, "a@x.com ", 2000, "10:03"),
			},
			want: map[int64]int64{2: 1},
		},
		{
			name: "different amount or customer",
			sales: []*model.SaleRecord{
				sale(1, "a@x.com", 2000, "10:00"),
				sale(2, "a@x.com", 2500, "10:01"),
				sale(3, "b@x.com", 2000, "10:02"),
			},
			want: map[int64]int64{},
		},
		{
			name: "unknown customer skipped",
			sales: []*model.SaleRecord{
				sale(1, "", 2000, "10:00"),
				sale(2, "", 2000, "10:01"),
			},
			want: map[int64]int64{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := make(map[int64]int64)
			for _, c := range DetectDuplicates(tc.sales, window) {
				got[c.Duplicate.ID] = c.Canonical.ID
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("duplicates = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDetectDuplicates_Idempotent(t *testing.T) {
	sales := []*model.SaleRecord{
		sale(1, "a@x.com", 2000, "10:00"),
		sale(2, "a@x.com", 2000, "10:05"),
		sale(3, "b@x.com", 1000, "10:00"),
		sale(4, "b@x.com", 1000, "10:02"),
	}
	first := DetectDuplicates(sales, 10*time.Minute)
	second := DetectDuplicates(sales, 10*time.Minute)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("detection not reproducible: %v vs %v", first, second)
	}
	for _, c := range first {
		if c.Duplicate.ID == 1 || c.Duplicate.ID == 3 {
			t.Fatalf("first record of a group flagged: %d", c.Duplicate.ID)
		}
	}
}
