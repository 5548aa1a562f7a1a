package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// PremiumIndex is one symbol's funding snapshot from /fapi/v1/premiumIndex.
type PremiumIndex struct {
	Symbol          string          `json:"symbol"`
	MarkPrice       decimal.Decimal `json:"markPrice"`
	LastFundingRate decimal.Decimal `json:"lastFundingRate"`
	NextFundingTime int64           `json:"nextFundingTime"`
	Time            int64           `json:"time"`
}

// LongShortRatio is one bucket of the global long/short account ratio series.
type LongShortRatio struct {
	Symbol         string          `json:"symbol"`
	LongShortRatio decimal.Decimal `json:"longShortRatio"`
	LongAccount    decimal.Decimal `json:"longAccount"`
	ShortAccount   decimal.Decimal `json:"shortAccount"`
	Timestamp      int64           `json:"timestamp"`
}

// OpenInterest is a symbol's current open interest from /fapi/v1/openInterest.
type OpenInterest struct {
	Symbol       string          `json:"symbol"`
	OpenInterest decimal.Decimal `json:"openInterest"`
	Time         int64           `json:"time"`
}

// TickerPrice is a symbol's latest price from /fapi/v1/ticker/price.
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   int64           `json:"time"`
}

// Announcement is one CMS article from the exchange announcement feed.
type Announcement struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	ReleaseDate int64  `json:"releaseDate"`
}

// ReleaseTime converts the millisecond release date to a time.Time.
func (a Announcement) ReleaseTime() time.Time {
	return time.UnixMilli(a.ReleaseDate)
}
