package analytics

import (
	"github.com/shopspring/decimal"
)

// Decomposition splits the revenue change between windows into a price
// effect at fixed prior quantity and a volume effect at fixed prior price.
// InteractionEffect is what the two effects leave unexplained, so
// PriceEffect + VolumeEffect + InteractionEffect always equals
// TotalRevenueChange.
type Decomposition struct {
	Windows             Windows             `json:"windows"`
	CurrentRevenue      decimal.Decimal     `json:"current_revenue"`
	PriorRevenue        decimal.Decimal     `json:"prior_revenue"`
	TotalRevenueChange  decimal.Decimal     `json:"total_revenue_change"`
	PriceEffect         decimal.Decimal     `json:"price_effect"`
	VolumeEffect        decimal.Decimal     `json:"volume_effect"`
	DecompositionTotal  decimal.Decimal     `json:"decomposition_total"`
	InteractionEffect   decimal.Decimal     `json:"interaction_effect"`
	PriceEffectPct      decimal.NullDecimal `json:"price_effect_pct"`
	VolumeEffectPct     decimal.NullDecimal `json:"volume_effect_pct"`
	CurrentQuantity     int64               `json:"current_quantity"`
	PriorQuantity       int64               `json:"prior_quantity"`
	TotalQuantityChange int64               `json:"total_quantity_change"`
	Products            int                 `json:"products"`
}

type productTotals struct {
	curRevenue, priRevenue decimal.Decimal
	curQty, priQty         int64
}

// avgPrice is revenue/quantity, or null for zero quantity.
func avgPrice(revenue decimal.Decimal, qty int64) decimal.NullDecimal {
	if qty == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(revenue.Div(decimal.NewFromInt(qty)))
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

// DecomposePriceVolume computes per stock code average prices and
// quantities for both windows and aggregates
//
//	price_effect  = Σ (current_avg_price - prior_avg_price) × prior_quantity
//	volume_effect = Σ prior_avg_price × (current_quantity - prior_quantity)
//
// with a missing average price counted as zero.
func DecomposePriceVolume(rows []FactRow, w Windows) *Decomposition {
	products := make(map[string]*productTotals)
	partition(rows, w, func(row FactRow, current bool) {
		p, ok := products[row.StockCode]
		if !ok {
			p = &productTotals{}
			products[row.StockCode] = p
		}
		if current {
			p.curRevenue = p.curRevenue.Add(row.Revenue())
			p.curQty += row.Quantity
		} else {
			p.priRevenue = p.priRevenue.Add(row.Revenue())
			p.priQty += row.Quantity
		}
	})

	d := &Decomposition{Windows: w, Products: len(products)}
	for _, p := range products {
		cur := orZero(avgPrice(p.curRevenue, p.curQty))
		pri := orZero(avgPrice(p.priRevenue, p.priQty))
		priQty := decimal.NewFromInt(p.priQty)

		d.PriceEffect = d.PriceEffect.Add(cur.Sub(pri).Mul(priQty))
		d.VolumeEffect = d.VolumeEffect.Add(pri.Mul(decimal.NewFromInt(p.curQty - p.priQty)))
		d.CurrentRevenue = d.CurrentRevenue.Add(p.curRevenue)
		d.PriorRevenue = d.PriorRevenue.Add(p.priRevenue)
		d.CurrentQuantity += p.curQty
		d.PriorQuantity += p.priQty
	}

	d.TotalRevenueChange = d.CurrentRevenue.Sub(d.PriorRevenue)
	d.TotalQuantityChange = d.CurrentQuantity - d.PriorQuantity
	d.DecompositionTotal = d.PriceEffect.Add(d.VolumeEffect)
	d.InteractionEffect = d.TotalRevenueChange.Sub(d.DecompositionTotal)
	d.PriceEffectPct = share(d.PriceEffect, d.TotalRevenueChange)
	d.VolumeEffectPct = share(d.VolumeEffect, d.TotalRevenueChange)
	return d
}
