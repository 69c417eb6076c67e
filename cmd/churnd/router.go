package main

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lessonloop/churnkit/pkg/dataset"
	"github.com/lessonloop/churnkit/pkg/logger"
	"github.com/lessonloop/churnkit/svc/analysis"
)

func newRouter(a *analysis.Analyzer, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := &handlers{analyzer: a, log: log}

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/overview", h.overview)
		r.Get("/churn", h.churn)
		r.Get("/billing", h.billing)
		r.Get("/revenue", h.revenue)
		r.Get("/rrl", h.rrl)
		r.Get("/plans", h.plans)
		r.Get("/duplicates", h.duplicates)
	})
	return r
}

type handlers struct {
	analyzer *analysis.Analyzer
	log      *slog.Logger
}

// wantsCSV honors an explicit ?format=csv and falls back to the Accept
// header; JSON is the default.
func wantsCSV(r *http.Request) bool {
	if r.URL.Query().Get("format") == "csv" {
		return true
	}
	return r.Header.Get("Accept") == "text/csv"
}

func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.ErrorContext(r.Context(), "encode response", logger.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, map[string]string{"status": "ok", "run_id": h.analyzer.RunID().String()})
}

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	o, err := h.analyzer.Overview()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	h.writeJSON(w, r, o)
}

// churnRow mirrors churn.MonthlyMetrics for the wire: an undefined rate
// (NaN) becomes null, which encoding/json cannot express for a float64.
type churnRow struct {
	Month         string   `json:"month"`
	Starts        int      `json:"starts"`
	Cancellations int      `json:"cancellations"`
	Actives       int      `json:"actives"`
	ChurnRate     *float64 `json:"churn_rate"`
}

func (h *handlers) churn(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analyzer.ChurnSummary()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := dataset.WriteChurnSummary(w, summary.Rows); err != nil {
			h.log.ErrorContext(r.Context(), "write churn csv", logger.Error(err))
		}
		return
	}

	rows := make([]churnRow, len(summary.Rows))
	for i, row := range summary.Rows {
		out := churnRow{
			Month:         row.Month.String(),
			Starts:        row.Starts,
			Cancellations: row.Cancellations,
			Actives:       row.Actives,
		}
		if !math.IsNaN(row.ChurnRate) {
			rate := row.ChurnRate
			out.ChurnRate = &rate
		}
		rows[i] = out
	}
	h.writeJSON(w, r, rows)
}

func (h *handlers) billing(w http.ResponseWriter, r *http.Request) {
	rows, err := h.analyzer.BillingRows()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := dataset.WriteBillingRows(w, rows); err != nil {
			h.log.ErrorContext(r.Context(), "write billing csv", logger.Error(err))
		}
		return
	}

	type billingRow struct {
		CustomerID   string `json:"customer_id"`
		Month        string `json:"month"`
		PlanLabel    string `json:"plan_label"`
		LessonType   string `json:"lesson_type"`
		MonthlyPrice string `json:"monthly_price"`
	}
	out := make([]billingRow, len(rows))
	for i, row := range rows {
		out[i] = billingRow{
			CustomerID:   string(row.CustomerID),
			Month:        row.Month.String(),
			PlanLabel:    row.PlanLabel,
			LessonType:   string(row.LessonType),
			MonthlyPrice: row.MonthlyPrice.String(),
		}
	}
	h.writeJSON(w, r, out)
}

func (h *handlers) revenue(w http.ResponseWriter, r *http.Request) {
	series, err := h.analyzer.RevenueSeries()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := dataset.WriteRevenueSeries(w, series); err != nil {
			h.log.ErrorContext(r.Context(), "write revenue csv", logger.Error(err))
		}
		return
	}

	type monthRevenue struct {
		Month   string `json:"month"`
		Revenue string `json:"revenue"`
	}
	out := struct {
		Months  []monthRevenue `json:"months"`
		Total   string         `json:"total"`
		Average string         `json:"average"`
	}{
		Months:  make([]monthRevenue, len(series.Months)),
		Total:   series.Total.String(),
		Average: series.Average.String(),
	}
	for i, m := range series.Months {
		out.Months[i] = monthRevenue{Month: m.Month.String(), Revenue: m.Revenue.String()}
	}
	h.writeJSON(w, r, out)
}

func (h *handlers) rrl(w http.ResponseWriter, r *http.Request) {
	result, err := h.analyzer.ChurnedRevenue()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := dataset.WriteRRL(w, result); err != nil {
			h.log.ErrorContext(r.Context(), "write rrl csv", logger.Error(err))
		}
		return
	}

	type monthLoss struct {
		LossMonth string `json:"loss_month"`
		Lost      string `json:"lost"`
	}
	out := struct {
		ByMonth []monthLoss `json:"by_month"`
		Total   string      `json:"total"`
	}{
		ByMonth: make([]monthLoss, len(result.ByMonth)),
		Total:   result.Total.String(),
	}
	for i, m := range result.ByMonth {
		out.ByMonth[i] = monthLoss{LossMonth: m.LossMonth.String(), Lost: m.Lost.String()}
	}
	h.writeJSON(w, r, out)
}

func (h *handlers) plans(w http.ResponseWriter, r *http.Request) {
	usage, err := h.analyzer.PlanUsageSummary()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	type planUsage struct {
		Label      string `json:"label"`
		LessonType string `json:"lesson_type"`
		Customers  int    `json:"customers"`
		Months     int    `json:"months"`
		Revenue    string `json:"revenue"`
	}
	out := make([]planUsage, len(usage))
	for i, u := range usage {
		out[i] = planUsage{
			Label:      u.Label,
			LessonType: string(u.LessonType),
			Customers:  u.Customers,
			Months:     u.Months,
			Revenue:    u.Revenue.String(),
		}
	}
	h.writeJSON(w, r, out)
}

func (h *handlers) duplicates(w http.ResponseWriter, r *http.Request) {
	dup, err := h.analyzer.Duplication()
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	type groupSummary struct {
		GroupID       int    `json:"group_id"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		Disposition   string `json:"disposition"`
		DuplicateRows int    `json:"duplicate_rows"`
	}
	out := struct {
		Groups           []groupSummary `json:"groups"`
		UnresolvedGroups int            `json:"unresolved_groups"`
		RowsCollapsed    int            `json:"rows_collapsed"`
	}{
		Groups:           make([]groupSummary, len(dup.Groups)),
		UnresolvedGroups: dup.UnresolvedGroups,
		RowsCollapsed:    dup.RowsCollapsed,
	}
	for i, g := range dup.Groups {
		out.Groups[i] = groupSummary{
			GroupID:       g.GroupID,
			Name:          g.Name,
			Email:         g.Email,
			Disposition:   string(g.Disposition),
			DuplicateRows: g.DuplicateRows,
		}
	}
	h.writeJSON(w, r, out)
}
