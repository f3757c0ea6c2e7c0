package poloniex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// APIError is the {"error": "..."} body the exchange returns on failure.
type APIError struct {
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("poloniex error: %s", e.Message)
}

// ChartRow is one element of the returnChartData array.
type ChartRow struct {
	Date            int64   `json:"date"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Open            float64 `json:"open"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	QuoteVolume     float64 `json:"quoteVolume"`
	WeightedAverage float64 `json:"weightedAverage"`
}

// TickerRow is one value of the returnTicker map. The exchange sends numbers as strings.
type TickerRow struct {
	ID            int    `json:"id"`
	Last          string `json:"last"`
	LowestAsk     string `json:"lowestAsk"`
	HighestBid    string `json:"highestBid"`
	PercentChange string `json:"percentChange"`
	BaseVolume    string `json:"baseVolume"`
	QuoteVolume   string `json:"quoteVolume"`
	IsFrozen      string `json:"isFrozen"`
	High24h       string `json:"high24hr"`
	Low24h        string `json:"low24hr"`
}

// BalanceRow is one value of the returnCompleteBalances map.
type BalanceRow struct {
	Available string `json:"available"`
	OnOrders  string `json:"onOrders"`
	BTCValue  string `json:"btcValue"`
}

// OrderResponse is the reply to a buy or sell command.
type OrderResponse struct {
	OrderNumber     flexString `json:"orderNumber"`
	ResultingTrades []struct {
		Amount  string     `json:"amount"`
		Date    string     `json:"date"`
		Rate    string     `json:"rate"`
		Total   string     `json:"total"`
		TradeID flexString `json:"tradeID"`
		Type    string     `json:"type"`
	} `json:"resultingTrades"`
}

// flexString decodes a JSON string or number into its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// errorBody returns the exchange error carried by body, if any.
func errorBody(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var e APIError
	if err := json.Unmarshal(trimmed, &e); err != nil || e.Message == "" {
		return nil
	}
	return &e
}
