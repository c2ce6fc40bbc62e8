package cabling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type HTTP struct{ mgr *Manager }

func NewHTTP(m *Manager) *HTTP { return &HTTP{mgr: m} }

// Батчевые маршруты проводки. С query change_plan {id} — тень (AssetCP),
// без него — живой ассет.
func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/assets/{id}/network-connections", h.networkConnections).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/power-connections", h.powerConnections).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/mac-addresses", h.macAddresses).Methods(http.MethodPost)
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), faults.HTTPStatus(err))
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

// planFromQuery: (nil, nil) — живой скоуп, change_plan не передан.
func (h *HTTP) planFromQuery(r *http.Request) (*models.ChangePlan, error) {
	raw := r.URL.Query().Get("change_plan")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, faults.New(faults.Validation, "invalid change_plan id '%s'", raw)
	}
	var p models.ChangePlan
	if err := h.mgr.db.First(&p, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing change plan with id=%d", id)
		}
		return nil, err
	}
	if p.Executed() {
		return nil, faults.New(faults.AlreadyExecuted,
			"change plan '%s' has already been executed and is read-only", p.Name)
	}
	return &p, nil
}

func (h *HTTP) networkConnections(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var conns []NetworkConnection
	if err := json.NewDecoder(r.Body).Decode(&conns); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := h.mgr.ApplyNetworkConnections(pathID(r), conns, plan); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) powerConnections(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var conns map[string]*PowerConnection
	if err := json.NewDecoder(r.Body).Decode(&conns); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := h.mgr.ApplyPowerConnections(pathID(r), conns, plan); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) macAddresses(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var macs map[string]string
	if err := json.NewDecoder(r.Body).Decode(&macs); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := h.mgr.ApplyMACAddresses(pathID(r), macs, plan); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
