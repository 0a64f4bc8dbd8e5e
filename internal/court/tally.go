package court

import (
	"github.com/eigerco/tribunal/internal/primitives"
)

// Tally is the aggregated result of the current cycle.
type Tally struct {
	Winner primitives.VoteItem
	// WinnerWeight is the revealed weight behind Winner, zero when nothing was revealed.
	WinnerWeight primitives.Balance
	// PanelWeight is the weight of every draw of the cycle.
	PanelWeight primitives.Balance
	Revealed    int
}

type score struct {
	item   primitives.VoteItem
	weight primitives.Balance
}

// tally returns the plurality item among revealed votes. Draws are walked in
// draw order and the leader only changes on a strictly greater weight, so a
// tie goes to the item that reached the winning weight first. Without any
// revealed vote the last appealed item, or else the court's default, wins.
func tally(c *Court) Tally {
	var (
		result Tally
		scores []score
		best   = -1
	)
	for i := range c.Draws {
		d := &c.Draws[i]
		result.PanelWeight += d.Weight
		revealed, ok := d.Vote.Inner.(Revealed)
		if !ok {
			continue
		}
		result.Revealed++

		j := 0
		for j < len(scores) && scores[j].item != revealed.Item {
			j++
		}
		if j == len(scores) {
			scores = append(scores, score{item: revealed.Item})
		}
		scores[j].weight += d.Weight
		if best < 0 || scores[j].weight > scores[best].weight {
			best = j
		}
	}

	if best >= 0 {
		result.Winner = scores[best].item
		result.WinnerWeight = scores[best].weight
		return result
	}
	if n := len(c.Appeals); n > 0 {
		result.Winner = c.Appeals[n-1].AppealedItem
	} else {
		result.Winner = c.Market.DefaultItem()
	}
	return result
}
