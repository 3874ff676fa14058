package models

import "testing"

func TestAuctionHasBid(t *testing.T) {
	auction := &Auction{
		Bids: []Bid{
			{Bidder: "0x01", Amount: "100"},
			{Bidder: "0x02", Amount: "150"},
		},
	}

	tests := []struct {
		name   string
		bidder string
		amount string
		want   bool
	}{
		{name: "Recorded", bidder: "0x02", amount: "150", want: true},
		{name: "SameBidderOtherAmount", bidder: "0x02", amount: "100", want: false},
		{name: "SameAmountOtherBidder", bidder: "0x03", amount: "150", want: false},
		{name: "Unknown", bidder: "0x03", amount: "999", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := auction.HasBid(tt.bidder, tt.amount); got != tt.want {
				t.Errorf("HasBid(%q, %q) = %v, want %v", tt.bidder, tt.amount, got, tt.want)
			}
		})
	}
}

func TestAuctionHasBidEmpty(t *testing.T) {
	auction := &Auction{}
	if auction.HasBid("0x01", "100") {
		t.Error("HasBid() = true on an auction with no bids")
	}
}
