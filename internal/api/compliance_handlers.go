/**
 * @description
 * This file contains the admin-facing handlers for reliability monitoring and
 * compliance reporting: the failure-rate dashboard, the aggregated compliance
 * report and the audit-log export. Exports are themselves audited.
 */

package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/app"
	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
)

// exportQueryLimit bounds how many audit rows a single export can pull.
const exportQueryLimit = 10000

// ComplianceHandlers holds the services backing the admin endpoints.
type ComplianceHandlers struct {
	tracker *app.Tracker
	repo    store.Repository
	audit   *app.AuditLogger
}

// NewComplianceHandlers creates a new instance of ComplianceHandlers.
func NewComplianceHandlers(tracker *app.Tracker, repo store.Repository, audit *app.AuditLogger) *ComplianceHandlers {
	return &ComplianceHandlers{tracker: tracker, repo: repo, audit: audit}
}

// ReliabilityHandler handles GET /admin/reliability. The window is given in
// days (?days=N) and converted to hours for the tracker.
func (h *ComplianceHandlers) ReliabilityHandler(w http.ResponseWriter, r *http.Request) {
	days := 1
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 90 {
			h.writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = parsed
	}

	stats, err := h.tracker.GetFailureRateStats(r.Context(), days*24)
	if err != nil {
		log.Printf("level=error component=api msg=\"reliability stats failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not compute reliability stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// ComplianceReportHandler handles GET /admin/compliance/report for a date
// range (?start=YYYY-MM-DD&end=YYYY-MM-DD, default trailing 30 days).
func (h *ComplianceHandlers) ComplianceReportHandler(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.repo.ComplianceCounts(r.Context(), start, end)
	if err != nil {
		log.Printf("level=error component=api msg=\"compliance report failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not build compliance report")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// exportRequest is the body for POST /admin/compliance/export.
type exportRequest struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Format string `json:"format"`
	UserID string `json:"user_id,omitempty"`
	Action string `json:"action,omitempty"`
}

// ExportAuditLogsHandler handles POST /admin/compliance/export. The export is
// written as an attachment in CSV or JSON, and the act of exporting is itself
// recorded in the audit log.
func (h *ComplianceHandlers) ExportAuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Format != "csv" && req.Format != "json" {
		h.writeError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}

	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		h.writeError(w, http.StatusBadRequest, "end must not precede start")
		return
	}

	filter := domain.AuditFilter{
		StartDate: start,
		EndDate:   end.AddDate(0, 0, 1),
		Action:    req.Action,
	}
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "user_id must be a UUID")
			return
		}
		filter.UserID = &id
	}

	entries, err := h.repo.QueryAuditLogs(r.Context(), filter, exportQueryLimit)
	if err != nil {
		log.Printf("level=error component=api msg=\"audit export query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not export audit logs")
		return
	}

	h.audit.Log(r.Context(), domain.AuditEntry{
		UserID:     &adminID,
		Action:     domain.AuditAdminComplianceExport,
		Resource:   "audit_logs",
		ResourceID: fmt.Sprintf("%s_%s", req.Start, req.End),
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		Metadata: map[string]any{
			"format":  req.Format,
			"entries": len(entries),
		},
	})

	filename := fmt.Sprintf("audit_logs_%s_%s.%s", req.Start, req.End, req.Format)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if req.Format == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.Printf("level=error component=api msg=\"audit export encode failed\" err=%v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	writer.Write([]string{"id", "created_at", "user_id", "action", "resource", "resource_id", "ip_address"})
	for _, entry := range entries {
		userID := ""
		if entry.UserID != nil {
			userID = entry.UserID.String()
		}
		writer.Write([]string{
			entry.ID.String(),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			userID,
			entry.Action,
			entry.Resource,
			entry.ResourceID,
			entry.IPAddress,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Printf("level=error component=api msg=\"audit export csv write failed\" err=%v", err)
	}
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start must be YYYY-MM-DD")
		}
		start = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be YYYY-MM-DD")
		}
		end = parsed.AddDate(0, 0, 1)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end must not precede start")
	}
	return start, end, nil
}

func (h *ComplianceHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *ComplianceHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
