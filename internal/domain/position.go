package domain

import "github.com/shopspring/decimal"

// OpenPosition is an unrealized trade with a recorded cost basis.
// BuyingPrice is the price per unit of Pair.Base denominated in Pair.Quote.
type OpenPosition struct {
	ID          string          `json:"id"`
	Pair        Pair            `json:"pair"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyingPrice decimal.Decimal `json:"buyingPrice"`
}

// CostBasis returns Quantity * BuyingPrice in the quote currency.
func (p OpenPosition) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.BuyingPrice)
}

// ClosedPosition is an immutable record of a realized (full or partial) trade.
// OriginalTradeID is the id of the open position it was carved from.
type ClosedPosition struct {
	ID              string          `json:"id"`
	OriginalTradeID string          `json:"originalTradeId"`
	Pair            Pair            `json:"pair"`
	Quantity        decimal.Decimal `json:"quantity"`
	BuyingPrice     decimal.Decimal `json:"buyingPrice"`
	SellingPrice    decimal.Decimal `json:"sellingPrice"`
}

// RealizedPnL returns (SellingPrice - BuyingPrice) * Quantity in the quote currency.
func (c ClosedPosition) RealizedPnL() decimal.Decimal {
	return c.SellingPrice.Sub(c.BuyingPrice).Mul(c.Quantity)
}

// OpenRequest asks the ledger to open (or add to) a position.
// ID is informational only: a fresh position always gets a minted id,
// and an existing one is matched by Pair.
type OpenRequest struct {
	ID          string          `json:"id,omitempty"`
	Pair        Pair            `json:"pair"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyingPrice decimal.Decimal `json:"buyingPrice"`
}

// CloseRequest asks the ledger to close part or all of position ID.
type CloseRequest struct {
	ID           string          `json:"id"`
	Pair         Pair            `json:"pair"`
	Quantity     decimal.Decimal `json:"quantity"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
}
