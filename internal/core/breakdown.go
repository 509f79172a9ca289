package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

const (
	// MaxNamedSlices is how many categories keep their own slice before the
	// remainder is folded into the Other bucket.
	MaxNamedSlices = 5
	OtherLabel     = "Other"
	// StartAngle is where the first slice begins, in degrees (12 o'clock).
	StartAngle = -90.0
)

// Palette holds the slice colors, indexed by slice position modulo its length.
var Palette = [...]string{
	"#4CAF50", // green
	"#2196F3", // blue
	"#FFC107", // amber
	"#E91E63", // pink
	"#9C27B0", // purple
	"#607D8B", // blue gray, normally the Other bucket
}

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("no data")

type (
	// Slice is one chart-ready category summary.
	Slice struct {
		Label      string  `json:"label"`
		Value      Money   `json:"value"`
		Percent    int     `json:"percent"` // Truncated share of the total
		ColorIndex int     `json:"color_index"`
		Color      string  `json:"color"`
		StartAngle float64 `json:"start_angle"`
		SweepAngle float64 `json:"sweep_angle"`
		// Synthetic marks the folded remainder bucket. A real category that
		// happens to be called "Other" is never synthetic.
		Synthetic bool `json:"synthetic"`
	}

	// Breakdown is the aggregated view of a single-type transaction list.
	Breakdown struct {
		Total  Money   `json:"total"`
		Slices []Slice `json:"slices"`
	}
)

type categoryGroup struct {
	label     string
	value     decimal.Decimal
	synthetic bool
}

// Aggregate groups txs by exact category label, orders the groups by summed
// amount (descending, ties in first-seen order), keeps the top
// MaxNamedSlices and folds the rest into a synthetic Other bucket. It
// returns ErrNoData for an empty input or a zero total.
//
// The caller is expected to pass transactions of a single type.
func Aggregate(txs []Transaction) (Breakdown, error) {
	var (
		groups []categoryGroup
		index  = make(map[string]int)
		total  = decimal.Zero
	)
	for _, tx := range txs {
		i, ok := index[tx.Category]
		if !ok {
			i = len(groups)
			index[tx.Category] = i
			groups = append(groups, categoryGroup{label: tx.Category, value: decimal.Zero})
		}
		groups[i].value = groups[i].value.Add(tx.Amount.Decimal)
		total = total.Add(tx.Amount.Decimal)
	}
	if len(groups) == 0 || total.IsZero() {
		return Breakdown{}, ErrNoData
	}

	slices.SortStableFunc(groups, func(a, b categoryGroup) int {
		return b.value.Cmp(a.value)
	})

	if len(groups) > MaxNamedSlices {
		rest := decimal.Zero
		for _, g := range groups[MaxNamedSlices:] {
			rest = rest.Add(g.value)
		}
		groups = append(groups[:MaxNamedSlices:MaxNamedSlices], categoryGroup{
			label:     OtherLabel,
			value:     rest,
			synthetic: true,
		})
	}

	out := Breakdown{
		Total:  Money{Decimal: total},
		Slices: make([]Slice, 0, len(groups)),
	}
	start := StartAngle
	for i, g := range groups {
		sweep := g.value.Mul(decimal.NewFromInt(360)).Div(total).InexactFloat64()
		colorIdx := i % len(Palette)
		out.Slices = append(out.Slices, Slice{
			Label:      g.label,
			Value:      Money{Decimal: g.value},
			Percent:    int(g.value.Mul(decimal.NewFromInt(100)).Div(total).IntPart()),
			ColorIndex: colorIdx,
			Color:      Palette[colorIdx],
			StartAngle: start,
			SweepAngle: sweep,
			Synthetic:  g.synthetic,
		})
		start += sweep
	}
	return out, nil
}

// AggregateType filters txs to t and aggregates the result.
func AggregateType(txs []Transaction, t TransactionType) (Breakdown, error) {
	return Aggregate(FilterByType(txs, t))
}

// Legend renders a slice as "Label: 1,234 (80%)".
func (s Slice) Legend() string {
	return fmt.Sprintf("%s: %s (%d%%)", s.Label, FormatWhole(s.Value), s.Percent)
}
