package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
)

// =============================================================================
// CONSOLIDATED VIEW - One year, twelve months
// =============================================================================

// MonthSummary is one month's line in the consolidated report. Source
// tells whether the numbers came from a frozen snapshot or were recomputed.
type MonthSummary struct {
	Month        int             `json:"month"`
	Label        string          `json:"label"`
	Status       PeriodStatus    `json:"status"`
	Source       Source          `json:"source"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	TotalEntries int             `json:"total_entries"`
}

// ConsolidatedReport aggregates a full year, each month resolved through
// the same live/snapshot selection as the monthly view.
type ConsolidatedReport struct {
	Year         int             `json:"year"`
	Months       []MonthSummary  `json:"months"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	TotalEntries int             `json:"total_entries"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// Consolidated builds the year view. Months resolve in calendar order, so
// the output is as deterministic as the underlying monthly reports.
func (w *Workflow) Consolidated(ctx context.Context, year int, view View) (*ConsolidatedReport, error) {
	if year <= 0 {
		return nil, &ValidationError{Field: "year", Message: "must be positive"}
	}

	out := &ConsolidatedReport{
		Year:        year,
		Months:      make([]MonthSummary, 0, 12),
		GrandTotal:  decimal.Zero,
		GeneratedAt: w.Generator.Now(),
	}

	for month := 1; month <= 12; month++ {
		m := ledger.Month{Year: year, Month: time.Month(month)}

		data, source, err := w.Resolve(ctx, m, view)
		if err != nil {
			return nil, err
		}

		status := PeriodDraft
		if period, err := w.Periods.Period(ctx, m); err != nil {
			return nil, err
		} else if period != nil {
			status = period.Status
		}

		out.Months = append(out.Months, MonthSummary{
			Month:        month,
			Label:        m.Label(),
			Status:       status,
			Source:       source,
			GrandTotal:   data.GrandTotal,
			TotalEntries: data.TotalEntries,
		})
		out.GrandTotal = out.GrandTotal.Add(data.GrandTotal)
		out.TotalEntries += data.TotalEntries
	}

	return out, nil
}
