package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"paper_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// WirePair accepts either "btc/usd" or {"base":"btc","quote":"usd"}.
type WirePair struct {
	domain.Pair
	set bool
}

func (p *WirePair) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		pair, err := domain.ParsePair(s)
		if err != nil {
			return err
		}
		p.Pair, p.set = pair, true
		return nil
	}

	var obj struct {
		Base  string `json:"base"`
		Quote string `json:"quote"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Pair = domain.Pair{Base: normalizeSymbol(obj.Base), Quote: normalizeSymbol(obj.Quote)}
	p.set = true
	return nil
}

// AssetRequest is the body of /assets/add and /assets/remove.
type AssetRequest struct {
	Symbol   string              `json:"symbol"`
	Quantity decimal.NullDecimal `json:"quantity"`
}

// OpenPositionRequest is the body of POST /positions/open.
type OpenPositionRequest struct {
	ID          string              `json:"id,omitempty"`
	Pair        WirePair            `json:"pair"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	BuyingPrice decimal.NullDecimal `json:"buyingPrice"`
}

// ClosePositionRequest is the body of POST /positions/close.
type ClosePositionRequest struct {
	ID           string              `json:"id"`
	Pair         WirePair            `json:"pair"`
	Quantity     decimal.NullDecimal `json:"quantity"`
	SellingPrice decimal.NullDecimal `json:"sellingPrice"`
}

func (r AssetRequest) toAsset() (domain.Asset, error) {
	symbol := normalizeSymbol(r.Symbol)
	if symbol == "" {
		return domain.Asset{}, missing("symbol")
	}
	if !r.Quantity.Valid {
		return domain.Asset{}, missing("quantity")
	}
	return domain.NewAsset(symbol, r.Quantity.Decimal), nil
}

func (r OpenPositionRequest) toDomain() (domain.OpenRequest, error) {
	if err := requirePair(r.Pair); err != nil {
		return domain.OpenRequest{}, err
	}
	if !r.Quantity.Valid {
		return domain.OpenRequest{}, missing("quantity")
	}
	if !r.BuyingPrice.Valid {
		return domain.OpenRequest{}, missing("buyingPrice")
	}
	return domain.OpenRequest{
		ID:          r.ID,
		Pair:        r.Pair.Pair,
		Quantity:    r.Quantity.Decimal,
		BuyingPrice: r.BuyingPrice.Decimal,
	}, nil
}

func (r ClosePositionRequest) toDomain() (domain.CloseRequest, error) {
	if strings.TrimSpace(r.ID) == "" {
		return domain.CloseRequest{}, missing("id")
	}
	if err := requirePair(r.Pair); err != nil {
		return domain.CloseRequest{}, err
	}
	if !r.Quantity.Valid {
		return domain.CloseRequest{}, missing("quantity")
	}
	if !r.SellingPrice.Valid {
		return domain.CloseRequest{}, missing("sellingPrice")
	}
	return domain.CloseRequest{
		ID:           strings.TrimSpace(r.ID),
		Pair:         r.Pair.Pair,
		Quantity:     r.Quantity.Decimal,
		SellingPrice: r.SellingPrice.Decimal,
	}, nil
}

func requirePair(p WirePair) error {
	if !p.set || p.Base == "" || p.Quote == "" {
		return missing("pair")
	}
	return nil
}

func normalizeSymbol(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func missing(field string) error {
	return &domain.RequestError{Field: field, Err: fmt.Errorf("%w: missing or empty", domain.ErrInvalidRequest)}
}
