package market

import (
	"fmt"
	"sort"
	"strings"
)

// SplitPair splits "BTC_ETH" into its primary currency and its coin.
func SplitPair(pair string) (primary, coin string, err error) {
	parts := strings.SplitN(pair, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed pair %q", pair)
	}
	return parts[0], parts[1], nil
}

// GroupMarkets maps every primary currency to the sorted coins quoted in it.
// Malformed pairs are skipped.
func GroupMarkets(pairs []string) map[string][]string {
	out := make(map[string][]string)
	for _, p := range pairs {
		primary, coin, err := SplitPair(p)
		if err != nil {
			continue
		}
		out[primary] = append(out[primary], coin)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}
