package ledger

import "sort"

// Position is an open holding derived from the transaction log.
type Position struct {
	Ticker    string  `json:"ticker"`
	Quantity  int64   `json:"quantity"`
	AvgPrice  float64 `json:"avgPrice"`
	TotalCost float64 `json:"totalCost"`
}

// CalculatePositions replays transactions in order. Buys move the average
// price; sells reduce quantity and cost at the current average. Closed and
// short positions are dropped. The result is sorted by ticker.
func CalculatePositions(txs []Transaction) []Position {
	byTicker := make(map[string]*Position)
	for _, tx := range txs {
		pos, ok := byTicker[tx.Ticker]
		if !ok {
			pos = &Position{Ticker: tx.Ticker}
			byTicker[tx.Ticker] = pos
		}

		switch tx.Side {
		case Buy:
			newTotal := pos.TotalCost + float64(tx.Quantity)*tx.Price
			newQty := pos.Quantity + tx.Quantity
			if newQty > 0 {
				pos.AvgPrice = newTotal / float64(newQty)
			} else {
				pos.AvgPrice = 0
			}
			pos.Quantity = newQty
			pos.TotalCost = newTotal
		case Sell:
			pos.Quantity -= tx.Quantity
			pos.TotalCost -= float64(tx.Quantity) * pos.AvgPrice
		}
	}

	out := make([]Position, 0, len(byTicker))
	for _, pos := range byTicker {
		if pos.Quantity > 0 {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
