package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicegate/voicegate/internal/database/models"
	"github.com/voicegate/voicegate/internal/gateway"
	"github.com/voicegate/voicegate/internal/sip"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	listLimit       = 100
)

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trunkView is the registration snapshot exposed to the dashboard.
type trunkView struct {
	Status       string     `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// handleStatus returns the full system snapshot: call, trunk, firewall and
// accumulated call statistics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}

	if info, ok := s.deps.Gateway.ActiveCallInfo(); ok {
		status["active_call"] = info
	} else {
		status["active_call"] = nil
	}

	if s.deps.Registrar != nil {
		st := s.deps.Registrar.State()
		status["trunk"] = trunkView{
			Status:       string(st.Status),
			LastError:    st.LastError,
			RegisteredAt: st.RegisteredAt,
			ExpiresAt:    st.ExpiresAt,
		}
	} else {
		status["trunk"] = trunkView{Status: string(sip.StatusUnregistered)}
	}

	if s.deps.Firewall != nil {
		status["firewall"] = map[string]any{
			"enabled":  s.deps.Firewall.Enabled(),
			"networks": s.deps.Firewall.Networks(),
		}
	}

	if s.deps.Hub != nil {
		status["connected_clients"] = s.deps.Hub.ClientCount()
	}

	if s.deps.Calls != nil {
		counts, err := s.deps.Calls.CountByOutcome(r.Context())
		if err == nil {
			cost, costErr := s.deps.Calls.TotalCost(r.Context())
			if costErr == nil {
				status["stats"] = map[string]any{
					"calls_by_outcome": counts,
					"total_cost_usd":   cost,
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// handleHangup terminates the active call.
func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Gateway.HangupActive(); err != nil {
		if errors.Is(err, gateway.ErrNoActiveCall) {
			writeError(w, http.StatusConflict, "no active call")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hung_up": true})
}

// handleSwitchAgent hands the active call to another agent. The security
// agent is not a valid target.
func (s *Server) handleSwitchAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent string `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Agent) == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}
	if req.Agent == "security" {
		writeError(w, http.StatusBadRequest, "cannot switch to the security agent")
		return
	}

	if err := s.deps.Gateway.SwitchActiveAgent(req.Agent); err != nil {
		if errors.Is(err, gateway.ErrNoActiveCall) {
			writeError(w, http.StatusConflict, "no active call")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent": req.Agent})
}

// handleMute toggles assistant audio towards the caller.
func (s *Server) handleMute(muted bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Gateway.SetAIMuted(muted); err != nil {
			if errors.Is(err, gateway.ErrNoActiveCall) {
				writeError(w, http.StatusConflict, "no active call")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
	}
}

// blacklistEntryView is a blocked caller in API form.
type blacklistEntryView struct {
	CallerID  string    `json:"caller_id"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Screening.ListBlacklist(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing blacklist failed")
		return
	}
	views := make([]blacklistEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, blacklistEntryView{CallerID: e.CallerID, Reason: e.Reason, BlockedAt: e.BlockedAt})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallerID string `json:"caller_id"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.CallerID) == "" {
		writeError(w, http.StatusBadRequest, "caller_id is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "Manuell blockiert"
	}

	if err := s.deps.Screening.AddToBlacklist(r.Context(), req.CallerID, req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, "adding to blacklist failed")
		return
	}
	s.deps.Broadcast.Broadcast(gateway.EventBlacklistUpdated, map[string]any{
		"caller": req.CallerID, "action": "added",
	})
	writeJSON(w, http.StatusCreated, map[string]string{"caller_id": req.CallerID})
}

func (s *Server) handleRemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	callerID := chi.URLParam(r, "callerID")
	removed, err := s.deps.Screening.RemoveFromBlacklist(r.Context(), callerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "removing from blacklist failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "caller not blacklisted")
		return
	}
	s.deps.Broadcast.Broadcast(gateway.EventBlacklistUpdated, map[string]any{
		"caller": callerID, "action": "removed",
	})
	writeJSON(w, http.StatusOK, map[string]string{"caller_id": callerID})
}

// whitelistEntryView is a trusted caller in API form.
type whitelistEntryView struct {
	CallerID string    `json:"caller_id"`
	Note     string    `json:"note"`
	AddedAt  time.Time `json:"added_at"`
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Screening.ListWhitelist(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing whitelist failed")
		return
	}
	views := make([]whitelistEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, whitelistEntryView{CallerID: e.CallerID, Note: e.Note, AddedAt: e.AddedAt})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallerID string `json:"caller_id"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.CallerID) == "" {
		writeError(w, http.StatusBadRequest, "caller_id is required")
		return
	}

	if err := s.deps.Screening.AddToWhitelist(r.Context(), req.CallerID, req.Note); err != nil {
		writeError(w, http.StatusInternalServerError, "adding to whitelist failed")
		return
	}
	s.deps.Broadcast.Broadcast(gateway.EventWhitelistUpdated, map[string]any{
		"caller": req.CallerID, "action": "added",
	})
	writeJSON(w, http.StatusCreated, map[string]string{"caller_id": req.CallerID})
}

func (s *Server) handleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	callerID := chi.URLParam(r, "callerID")
	removed, err := s.deps.Screening.RemoveFromWhitelist(r.Context(), callerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "removing from whitelist failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "caller not whitelisted")
		return
	}
	s.deps.Broadcast.Broadcast(gateway.EventWhitelistUpdated, map[string]any{
		"caller": callerID, "action": "removed",
	})
	writeJSON(w, http.StatusOK, map[string]string{"caller_id": callerID})
}

func (s *Server) handleFirewallStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  s.deps.Firewall.Enabled(),
		"networks": s.deps.Firewall.Networks(),
	})
}

func (s *Server) handleFirewallSet(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.deps.Firewall.SetEnabled(enabled)
		s.deps.Broadcast.Broadcast(gateway.EventFirewallStatus, map[string]any{
			"enabled": enabled,
		})
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
	}
}

// callView is one call history entry in API form.
type callView struct {
	ID              string     `json:"id"`
	CallerID        string     `json:"caller_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	AgentsUsed      []string   `json:"agents_used"`
	Outcome         string     `json:"outcome"`
	CostUSD         float64    `json:"cost_usd"`
}

func toCallView(c models.Call) callView {
	var agents []string
	if err := json.Unmarshal([]byte(c.AgentsUsed), &agents); err != nil || agents == nil {
		agents = []string{}
	}
	return callView{
		ID:              c.ID,
		CallerID:        c.CallerID,
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		DurationSeconds: c.DurationSeconds,
		AgentsUsed:      agents,
		Outcome:         c.Outcome,
		CostUSD:         c.CostUSD,
	}
}

// handleListCalls returns the call history, newest first, paginated via
// limit and offset query parameters.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	calls, total, err := s.deps.Calls.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing calls failed")
		return
	}
	views := make([]callView, 0, len(calls))
	for _, c := range calls {
		views = append(views, toCallView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls":  views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// taskView is one agent task in API form.
type taskView struct {
	ID          string    `json:"id"`
	AgentName   string    `json:"agent_name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Progress    float64   `json:"progress"`
	CallerID    string    `json:"caller_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.Tasks.List(r.Context(), listLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing tasks failed")
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView{
			ID: t.ID, AgentName: t.AgentName, Description: t.Description,
			Status: t.Status, Result: t.Result, Error: t.Error,
			Progress: t.Progress, CallerID: t.CallerID,
			CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// ideaView is one captured idea in API form.
type ideaView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	Notes       []string  `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.deps.Ideas.List(r.Context(), listLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing ideas failed")
		return
	}
	views := make([]ideaView, 0, len(ideas))
	for _, i := range ideas {
		var notes []string
		if err := json.Unmarshal([]byte(i.Notes), &notes); err != nil || notes == nil {
			notes = []string{}
		}
		views = append(views, ideaView{
			ID: i.ID, Title: i.Title, Description: i.Description,
			Category: i.Category, Priority: i.Priority, Status: i.Status,
			Notes: notes, CreatedAt: i.CreatedAt, UpdatedAt: i.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// projectView is one project in API form.
type projectView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Plan        string    `json:"plan,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Projects.List(r.Context(), listLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing projects failed")
		return
	}
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectView{
			ID: p.ID, Title: p.Title, Description: p.Description,
			Status: p.Status, Plan: p.Plan,
			CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// orderView is one phoned-in order in API form.
type orderView struct {
	ID        string             `json:"id"`
	Customer  string             `json:"customer"`
	CallerID  string             `json:"caller_id,omitempty"`
	Status    string             `json:"status"`
	Items     []models.OrderItem `json:"items"`
	Note      string             `json:"note,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.deps.Orders.List(r.Context(), listLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing orders failed")
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		var items []models.OrderItem
		if err := json.Unmarshal([]byte(o.Items), &items); err != nil || items == nil {
			items = []models.OrderItem{}
		}
		views = append(views, orderView{
			ID: o.ID, Customer: o.Customer, CallerID: o.CallerID,
			Status: o.Status, Items: items, Note: o.Note,
			CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
