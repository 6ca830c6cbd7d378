package quotes

// RubroTotal is quantity times unit price.
func RubroTotal(r Rubro) float64 {
	return r.Quantity * r.UnitPrice
}

// ItemSubtotal sums the rubro totals of an item; zero when it has none.
func ItemSubtotal(item Item) float64 {
	var sum float64
	for _, r := range item.Rubros {
		sum += RubroTotal(r)
	}
	return sum
}

// QuoteCost sums item subtotals.
func QuoteCost(items []Item) float64 {
	var sum float64
	for _, item := range items {
		sum += ItemSubtotal(item)
	}
	return sum
}

// Margin returns (sale-cost)/sale as a percentage. ok is false when sale <= 0.
func Margin(sale, cost float64) (pct float64, ok bool) {
	if sale <= 0 {
		return 0, false
	}
	return (sale - cost) / sale * 100, true
}

// LaborHours sums quantities of labor-category rubros.
func LaborHours(items []Item) float64 {
	var hours float64
	for _, item := range items {
		for _, r := range item.Rubros {
			if r.Category.IsLabor() {
				hours += r.Quantity
			}
		}
	}
	return hours
}

// Recalculate refreshes every cached total of q in place. Flash quotes carry
// no cost or margin.
func Recalculate(q *Quote) {
	if q.Mode != ModeDetailed {
		q.CostTotal = nil
		q.MarginPct = nil
		return
	}
	for i := range q.Items {
		item := &q.Items[i]
		for j := range item.Rubros {
			item.Rubros[j].Total = RubroTotal(item.Rubros[j])
		}
		item.Subtotal = ItemSubtotal(*item)
	}
	cost := QuoteCost(q.Items)
	q.CostTotal = &cost
	if pct, ok := Margin(q.Total, cost); ok {
		q.MarginPct = &pct
	} else {
		q.MarginPct = nil
	}
}

// Clone deep-copies the quote and its item/rubro tree.
func (q Quote) Clone() Quote {
	out := q
	if q.Description != nil {
		desc := *q.Description
		out.Description = &desc
	}
	if q.CostTotal != nil {
		cost := *q.CostTotal
		out.CostTotal = &cost
	}
	if q.MarginPct != nil {
		pct := *q.MarginPct
		out.MarginPct = &pct
	}
	out.Items = make([]Item, len(q.Items))
	for i, item := range q.Items {
		item.Rubros = append([]Rubro(nil), item.Rubros...)
		out.Items[i] = item
	}
	return out
}
