package reporting

import (
	"fmt"

	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

// Insight is one observation about a reporting period. Date is set
// when the observation points at a specific day.
type Insight struct {
	Date    string `json:"date,omitempty"`
	Message string `json:"message"`
}

// buildInsights derives period observations from per-day summaries.
// Days must be ordered by date; an empty period yields no insights.
func buildInsights(days []*storage.DailySummary) []Insight {
	if len(days) == 0 {
		return []Insight{}
	}

	var totalCosts, totalConversions float64
	highestCost := days[0]
	highestConv := days[0]
	var bestCPA *storage.DailySummary
	for _, d := range days {
		totalCosts += d.Costs
		totalConversions += d.Conversions
		if d.Costs > highestCost.Costs {
			highestCost = d
		}
		if d.Conversions > highestConv.Conversions {
			highestConv = d
		}
		if d.Conversions > 0 && (bestCPA == nil || d.CostPerConversion < bestCPA.CostPerConversion) {
			bestCPA = d
		}
	}

	avgCPA := models.Ratio(totalCosts, totalConversions)

	first, last := days[0], days[len(days)-1]
	var costChangePct float64
	if first.Costs != 0 {
		costChangePct = (last.Costs - first.Costs) / first.Costs * 100
	}

	insights := []Insight{
		{
			Date:    highestCost.Date,
			Message: fmt.Sprintf("Highest costs were on %s with CHF %.2f.", highestCost.Date, highestCost.Costs),
		},
		{
			Message: fmt.Sprintf("Average cost per conversion for the period: CHF %.2f.", avgCPA),
		},
		{
			Message: fmt.Sprintf("Cost trend from %s to %s: %+.2f%%.", first.Date, last.Date, costChangePct),
		},
		{
			Date:    highestConv.Date,
			Message: fmt.Sprintf("Most conversions were on %s (%.0f conversions).", highestConv.Date, highestConv.Conversions),
		},
	}
	if bestCPA != nil {
		insights = append(insights, Insight{
			Date:    bestCPA.Date,
			Message: fmt.Sprintf("Best cost per conversion was on %s: CHF %.2f.", bestCPA.Date, bestCPA.CostPerConversion),
		})
	}
	return insights
}
