package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/recap/internal/handler/views"
	"github.com/pavelanni/recap/internal/model"
)

func (h *Handler) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.LoadSettings()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.renderSettings(w, r, http.StatusOK, st, false, "")
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	st := model.Settings{
		APIKey:    strings.TrimSpace(r.FormValue("api_key")),
		ModelName: r.FormValue("model"),
	}
	if st.ModelName == "" {
		st.ModelName = model.DefaultModel
	}
	if !model.IsAllowedModel(st.ModelName) {
		h.renderSettings(w, r, http.StatusBadRequest, st, false, "unknown model: "+st.ModelName)
		return
	}

	// Configure fails while a request is in flight; nothing is stored then.
	if err := h.gateway.Configure(st.APIKey, st.ModelName); err != nil {
		h.renderSettings(w, r, sessionStatus(err), st, false, err.Error())
		return
	}
	if err := h.store.SaveSettings(st); err != nil {
		slog.Error("failed to save settings", "error", err)
		h.renderSettings(w, r, http.StatusInternalServerError, st, false, err.Error())
		return
	}
	slog.Info("settings saved", "model", st.ModelName, "has_key", st.APIKey != "")
	h.renderSettings(w, r, http.StatusOK, st, true, "")
}

func (h *Handler) renderSettings(w http.ResponseWriter, r *http.Request, status int, st model.Settings, saved bool, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.SettingsPage(st, saved, errMsg).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
