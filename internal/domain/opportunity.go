package domain

// ArbitrageOpportunity is a (buy venue, sell venue) pair whose percentage
// spread meets the per-ticker threshold. Buy always refers to the cheaper
// side, so Buy.Price <= Sell.Price holds for every emitted opportunity.
type ArbitrageOpportunity struct {
	ID            string      `json:"id"`
	Ticker        string      `json:"ticker"`
	Buy           PriceSample `json:"buy"`
	Sell          PriceSample `json:"sell"`
	SpreadPercent float64     `json:"spreadPercent"`
	Profit        float64     `json:"profit"` // absolute per-unit profit, Sell.Price - Buy.Price
	Timestamp     int64       `json:"timestamp"`
}
