package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"expense-approval/internal/apperr"
	"expense-approval/internal/models"
)

// CategorySummary aggregates a caller's spending for one category, in the
// reporting currency.
type CategorySummary struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// SummaryResponse is the payload of the expense summary endpoint. Totals
// use normalized amounts so expenses filed in different currencies are
// comparable.
type SummaryResponse struct {
	ReportingCurrency string                    `json:"reporting_currency"`
	Total             float64                   `json:"total"`
	ByStatus          map[models.Status]float64 `json:"by_status"`
	ByCategory        []CategorySummary         `json:"by_category"`
}

// Summary reports the caller's own expense totals grouped by status and
// category.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if user == nil {
		writeError(w, apperr.ErrAuthRequired)
		return
	}

	expenses, err := h.db.ListByOwner(user.ID)
	if err != nil {
		slog.Error("failed to summarize expenses", "error", err, "owner_id", user.ID)
		writeError(w, err)
		return
	}

	resp := SummaryResponse{
		ReportingCurrency: h.db.Converter().Reporting(),
		ByStatus:          make(map[models.Status]float64),
		ByCategory:        []CategorySummary{},
	}

	byCategory := make(map[string]*CategorySummary)
	for _, e := range expenses {
		resp.Total += e.NormalizedAmount
		resp.ByStatus[e.Status] += e.NormalizedAmount

		cat, ok := byCategory[e.Category]
		if !ok {
			cat = &CategorySummary{Category: e.Category}
			byCategory[e.Category] = cat
		}
		cat.Total += e.NormalizedAmount
		cat.Count++
	}

	for _, cat := range byCategory {
		resp.ByCategory = append(resp.ByCategory, *cat)
	}
	sort.Slice(resp.ByCategory, func(i, j int) bool {
		return resp.ByCategory[i].Total > resp.ByCategory[j].Total
	})

	writeJSON(w, http.StatusOK, resp)
}
