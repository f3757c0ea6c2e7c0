package stream

// Positions of the fields inside the payload of a ticker update frame
// [1002, null, [pairID, last, lowestAsk, ..., low24hr]].
const (
	fieldPairID = iota
	fieldLast
	fieldLowestAsk
	fieldHighestBid
	fieldPercentChange
	fieldBaseVolume
	fieldQuoteVolume
	fieldIsFrozen
	fieldHigh24h
	fieldLow24h

	tickerFieldCount
)
