package handlers

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/models"
	"chat-relay/internal/services"
	ws "chat-relay/internal/websocket"
	"chat-relay/pkg/logger"
)

//go:embed templates/group.html
var templateFS embed.FS

type GroupHandlers struct {
	groupService *services.GroupService
	page         *template.Template
}

// NewGroupHandlers renders message times in loc.
func NewGroupHandlers(groupService *services.GroupService, loc *time.Location) *GroupHandlers {
	if loc == nil {
		loc = time.UTC
	}
	page := template.Must(template.New("group.html").Funcs(template.FuncMap{
		"clock": func(t time.Time) string { return t.In(loc).Format(ws.DisplayTimeLayout) },
	}).ParseFS(templateFS, "templates/group.html"))

	return &GroupHandlers{groupService: groupService, page: page}
}

// GroupPage serves GET /groups/{group}: the group's recent history, as HTML
// or as JSON when the client asks for it.
func (h *GroupHandlers) GroupPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.groupService.Page(r.Context(), r.PathValue("group"))
	if err != nil {
		if errors.Is(err, models.ErrInvalidGroupName) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("failed to load group page", "group", r.PathValue("group"), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, page)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, page); err != nil {
		logger.Error("failed to render group page", "group", page.Group.Name, "error", err)
	}
}

// ActiveSessions serves GET /groups/{group}/active.
func (h *GroupHandlers) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	count, err := h.groupService.Active(r.PathValue("group"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
