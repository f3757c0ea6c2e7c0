package backtest

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Result summarises one finished run.
type Result struct {
	RunID        string          `json:"runId"`
	Pair         string          `json:"pair"`
	Strategy     string          `json:"strategy"`
	Freq         time.Duration   `json:"freq"`
	Steps        int             `json:"steps"`
	Trades       []Trade         `json:"trades"`
	Buys         int             `json:"buys"`
	Sells        int             `json:"sells"`
	InitialValue decimal.Decimal `json:"initialValue"`
	FinalValue   decimal.Decimal `json:"finalValue"`
	ProfitPct    decimal.Decimal `json:"profitPct"`
	// Insufficient is set when the series was shorter than the strategy warm-up
	// and no step was taken.
	Insufficient bool      `json:"insufficient"`
	Stats        Stats     `json:"stats"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Stats describe the per-step portfolio value curve.
type Stats struct {
	MeanReturnPct   float64 `json:"meanReturnPct"`
	StdDevReturnPct float64 `json:"stdDevReturnPct"`
	MaxDrawdownPct  float64 `json:"maxDrawdownPct"`
}

func computeStats(equity []float64) Stats {
	var out Stats
	if len(equity) < 2 {
		return out
	}

	returns := make(stats.Float64Data, 0, len(equity)-1)
	peak := equity[0]
	for i := 1; i < len(equity); i++ {
		if prev := equity[i-1]; prev != 0 {
			returns = append(returns, (equity[i]-prev)/prev*100)
		}
		peak = math.Max(peak, equity[i])
		if peak > 0 {
			out.MaxDrawdownPct = math.Max(out.MaxDrawdownPct, (peak-equity[i])/peak*100)
		}
	}
	if len(returns) == 0 {
		return out
	}
	out.MeanReturnPct, _ = stats.Mean(returns)
	out.StdDevReturnPct, _ = stats.StandardDeviation(returns)
	return out
}

// PrintResults renders a summary table of results to w.
func PrintResults(w io.Writer, results ...Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pair", "Strategy", "Steps", "Buys", "Sells", "Initial", "Final", "Profit %", "Max DD %"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range results {
		table.Append([]string{
			r.Pair,
			r.Strategy,
			strconv.Itoa(r.Steps),
			strconv.Itoa(r.Buys),
			strconv.Itoa(r.Sells),
			r.InitialValue.StringFixed(8),
			r.FinalValue.StringFixed(8),
			r.ProfitPct.StringFixed(2),
			strconv.FormatFloat(r.Stats.MaxDrawdownPct, 'f', 2, 64),
		})
	}
	table.Render()
}

// TradeRow is one line of an exported trade log.
type TradeRow struct {
	RunID      string `csv:"run_id"`
	Pair       string `csv:"pair"`
	Strategy   string `csv:"strategy"`
	Step       int    `csv:"step"`
	Time       string `csv:"time"`
	Side       string `csv:"side"`
	Price      string `csv:"price"`
	Quote      string `csv:"quote"`
	Base       string `csv:"base"`
	QuoteAfter string `csv:"quote_after"`
	BaseAfter  string `csv:"base_after"`
}

// TradeRows flattens the trades of results for export.
func TradeRows(results ...Result) []*TradeRow {
	var rows []*TradeRow
	for _, r := range results {
		for _, t := range r.Trades {
			rows = append(rows, &TradeRow{
				RunID:      r.RunID,
				Pair:       r.Pair,
				Strategy:   r.Strategy,
				Step:       t.Step,
				Time:       t.Time.UTC().Format(time.RFC3339),
				Side:       string(t.Side),
				Price:      strconv.FormatFloat(t.Price, 'f', -1, 64),
				Quote:      t.Quote.String(),
				Base:       t.Base.String(),
				QuoteAfter: t.QuoteAfter.String(),
				BaseAfter:  t.BaseAfter.String(),
			})
		}
	}
	return rows
}

// WriteTradesCSV writes the trades of results to a CSV file at path.
func WriteTradesCSV(path string, results ...Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trade log: %w", err)
	}
	defer file.Close()

	rows := TradeRows(results...)
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("write trade log: %w", err)
	}
	return nil
}
