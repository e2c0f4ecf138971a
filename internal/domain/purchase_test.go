package domain

import (
	"testing"
	"time"
)

func TestPurchase_SameRequest(t *testing.T) {
	t.Parallel()

	base := Purchase{ID: "a", EventID: 1, BuyerName: "Ann", Quantity: 2, CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	retry := base
	retry.CreatedAt = base.CreatedAt.Add(time.Second)

	tests := []struct {
		name string
		q    Purchase
		want bool
	}{
		{name: "identical", q: base, want: true},
		{name: "later timestamp", q: retry, want: true},
		{name: "other event", q: Purchase{ID: "a", EventID: 2, BuyerName: "Ann", Quantity: 2}},
		{name: "other buyer", q: Purchase{ID: "a", EventID: 1, BuyerName: "Budi", Quantity: 2}},
		{name: "other quantity", q: Purchase{ID: "a", EventID: 1, BuyerName: "Ann", Quantity: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.SameRequest(tt.q); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
