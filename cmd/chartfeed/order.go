package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"chartfeed/config"
	"chartfeed/internal/market"
	"chartfeed/pkg/poloniex"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func orderCmd() *cobra.Command {
	var price, amount string
	cmd := &cobra.Command{
		Use:   "order buy|sell PAIR",
		Short: "Place a limit order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := market.ParseSide(strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			pair := strings.ToUpper(args[1])
			if _, _, err := market.SplitPair(pair); err != nil {
				return err
			}
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price: %w", err)
			}
			a, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			params, err := config.Parameters(ctx, cfg.Environment)
			if err != nil {
				return err
			}
			key, secret, err := cfg.Exchange.Credentials(ctx, params)
			if err != nil {
				return err
			}
			client := poloniex.NewRESTClient(poloniex.Options{
				PublicURL:  cfg.Exchange.REST.PublicURL,
				TradingURL: cfg.Exchange.REST.TradingURL,
				Timeout:    cfg.Exchange.REST.Timeout,
				RateLimit:  cfg.Exchange.REST.RateLimit,
				APIKey:     key,
				APISecret:  secret,
			})

			res, err := client.PlaceOrder(ctx, pair, side, p, a)
			if err != nil {
				log.Error("order failed", zap.String("pair", pair), zap.String("side", string(side)), zap.Error(err))
				return err
			}
			log.Info("order placed", zap.String("pair", pair), zap.String("order", res.OrderNumber))

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Trade", "Rate", "Amount", "Total", "Date"})
			for _, f := range res.Fills {
				table.Append([]string{f.TradeID, f.Rate.String(), f.Amount.String(), f.Total.String(), f.Date.Format(time.DateTime)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "limit price in the primary currency")
	cmd.Flags().StringVar(&amount, "amount", "", "amount of the coin")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
