package processor

import "github.com/pauljones0/bfmr-deal-bot/internal/models"

// Capacity is how many units one validated retailer can take per order.
type Capacity struct {
	Retailer    models.Retailer
	MaxPerOrder int
}

type Allocation struct {
	Retailer models.Retailer
	Quantity int
}

// Allocate spreads reserved units over retailers in order, each taking up to
// its per-order maximum. It returns one allocation per retailer and the units
// left over.
func Allocate(reserved int, retailers []Capacity) ([]Allocation, int) {
	remaining := max(reserved, 0)
	out := make([]Allocation, 0, len(retailers))
	for _, r := range retailers {
		qty := min(remaining, max(r.MaxPerOrder, 0))
		remaining -= qty
		out = append(out, Allocation{Retailer: r.Retailer, Quantity: qty})
	}
	return out, remaining
}
