package changeplan

import (
	"encoding/json"
	"net/http"
	"strconv"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ svc *Service }

func NewHTTP(s *Service) *HTTP { return &HTTP{svc: s} }

// RegisterRoutes. Маршруты /assets с query change_plan должны быть
// зарегистрированы раньше живых /assets инвентаря: mux матчит по порядку.
func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/change-plans", h.create).Methods(http.MethodPost)
	api.HandleFunc("/change-plans", h.list).Methods(http.MethodGet)
	api.HandleFunc("/change-plans/{id}", h.detail).Methods(http.MethodGet)
	api.HandleFunc("/change-plans/{id}", h.rename).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/change-plans/{id}", h.discard).Methods(http.MethodDelete)
	api.HandleFunc("/change-plans/{id}/execute", h.execute).Methods(http.MethodPost)
	api.HandleFunc("/change-plans/{id}/resolve-conflict", h.resolveConflict).Methods(http.MethodPost)
	api.HandleFunc("/change-plans/{id}/remove-asset", h.removeAsset).Methods(http.MethodPost)

	// staged-скоуп живых маршрутов ассетов
	api.HandleFunc("/assets", h.createStaged).
		Queries("change_plan", "{plan:[0-9]+}").Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}", h.updateStaged).
		Queries("change_plan", "{plan:[0-9]+}").Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/assets/{id}/stage", h.stageLive).
		Queries("change_plan", "{plan:[0-9]+}").Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/decommission", h.decommissionStaged).
		Queries("change_plan", "{plan:[0-9]+}").Methods(http.MethodPost)

	api.HandleFunc("/assets/{id}/decommission", h.decommissionLive).Methods(http.MethodPost)
	api.HandleFunc("/decommissioned-assets", h.listDecommissioned).Methods(http.MethodGet)
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), faults.HTTPStatus(err))
}

// currentUser — идентификация по заголовку X-User; схемы аутентификации
// здесь нет, владельцем операций считается названный пользователь.
func (h *HTTP) currentUser(r *http.Request) *models.User {
	username := r.Header.Get("X-User")
	if username == "" {
		return nil
	}
	var u models.User
	if err := h.svc.db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil
	}
	return &u
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

func (h *HTTP) planFromQuery(r *http.Request) (*models.ChangePlan, error) {
	id, _ := strconv.ParseUint(r.URL.Query().Get("change_plan"), 10, 64)
	return h.svc.GetPlan(uint(id))
}

// ── Plan CRUD ───────────────────────────────────────────────

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	u := h.currentUser(r)
	if u == nil {
		http.Error(w, "unknown user", 403)
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	p, err := h.svc.CreatePlan(in.Name, u.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) {
	u := h.currentUser(r)
	if u == nil {
		http.Error(w, "unknown user", 403)
		return
	}
	plans, err := h.svc.ListPlans(u.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(plans)
}

// modification — одна строка detail-ответа: тень, её живой прототип
// (если есть) и классифицированные конфликты.
type modification struct {
	Title     string          `json:"title"`
	Asset     *models.Asset   `json:"live_asset,omitempty"`
	AssetCP   *models.AssetCP `json:"staged_asset"`
	Conflicts []Conflict      `json:"conflicts,omitempty"`
}

func (h *HTTP) detail(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlan(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	u := h.currentUser(r)
	if !CanAccess(u, p) {
		http.Error(w, "access denied", 403)
		return
	}
	shadows, err := h.svc.planShadows(p.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	mods := make([]modification, 0, len(shadows))
	for i := range shadows {
		cp := &shadows[i]
		m := modification{AssetCP: cp, Conflicts: h.svc.Conflicts(cp)}
		if cp.RelatedAssetID != nil {
			var live models.Asset
			if err := h.svc.db.First(&live, *cp.RelatedAssetID).Error; err == nil {
				m.Asset = &live
			}
		}
		name := ""
		if cp.Hostname != nil {
			name = *cp.Hostname
		}
		switch {
		case cp.IsDecommissioned:
			m.Title = "Decommission asset " + name
		case cp.RelatedAssetID == nil && cp.RelatedDecommissionedAssetID == nil:
			m.Title = "Create asset " + name
		default:
			m.Title = "Modify asset " + name
		}
		mods = append(mods, m)
	}
	_ = json.NewEncoder(w).Encode(struct {
		*models.ChangePlan
		Modifications []modification `json:"modifications"`
	}{p, mods})
}

func (h *HTTP) rename(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlan(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	p, err = h.svc.RenamePlan(p.ID, in.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) discard(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlan(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	if err := h.svc.DeletePlan(p.ID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) execute(w http.ResponseWriter, r *http.Request) {
	u := h.currentUser(r)
	if u == nil {
		http.Error(w, "unknown user", 403)
		return
	}
	res, err := h.svc.Execute(pathID(r), u)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

func (h *HTTP) resolveConflict(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlan(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	var in struct {
		AssetCPID    uint `json:"asset_cp_id"`
		OverrideLive bool `json:"override_live"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := h.svc.ResolveConflict(in.AssetCPID, in.OverrideLive); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) removeAsset(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlan(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	var in struct {
		AssetCPID uint `json:"asset_cp_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := h.svc.RemoveAssetFromPlan(in.AssetCPID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Staged asset CRUD ───────────────────────────────────────

type stagedAssetInput struct {
	Hostname     *string `json:"hostname"`
	AssetNumber  *int    `json:"asset_number"`
	ModelID      *uint   `json:"model_id"`
	RackID       *uint   `json:"rack_id"`
	RackPosition *int    `json:"rack_position"`
	Owner        *string `json:"owner"`
	Comment      *string `json:"comment"`
}

func (in *stagedAssetInput) apply(cp *models.AssetCP) {
	if in.Hostname != nil {
		cp.Hostname = in.Hostname
	}
	if in.AssetNumber != nil {
		cp.AssetNumber = in.AssetNumber
	}
	if in.ModelID != nil {
		cp.ModelID = in.ModelID
	}
	if in.RackID != nil {
		cp.RackID = in.RackID
	}
	if in.RackPosition != nil {
		cp.RackPosition = *in.RackPosition
	}
	if in.Owner != nil {
		cp.Owner = in.Owner
	}
	if in.Comment != nil {
		cp.Comment = *in.Comment
	}
}

func (h *HTTP) createStaged(w http.ResponseWriter, r *http.Request) {
	p, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	var in stagedAssetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	cp := &models.AssetCP{ChangePlanID: p.ID}
	in.apply(cp)
	if err := h.svc.SaveShadow(cp, p); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(cp)
}

func (h *HTTP) updateStaged(w http.ResponseWriter, r *http.Request) {
	p, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	cp, err := h.svc.getShadow(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if cp.ChangePlanID != p.ID {
		http.Error(w, "staged asset belongs to another change plan", 400)
		return
	}
	var in stagedAssetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	in.apply(cp)
	if err := h.svc.SaveShadow(cp, p); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(cp)
}

// stageLive затягивает живой ассет {id} в план без изменений.
func (h *HTTP) stageLive(w http.ResponseWriter, r *http.Request) {
	p, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	cp, err := h.svc.StageAsset(pathID(r), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(cp)
}

// decommissionStaged: {id} — живой ассет; тень создаётся при необходимости
// и помечается на вывод при execute.
func (h *HTTP) decommissionStaged(w http.ResponseWriter, r *http.Request) {
	p, err := h.planFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !CanAccess(h.currentUser(r), p) {
		http.Error(w, "access denied", 403)
		return
	}
	cp, err := h.svc.StageAsset(pathID(r), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.svc.MarkDecommission(cp.ID); err != nil {
		writeErr(w, err)
		return
	}
	cp.IsDecommissioned = true
	_ = json.NewEncoder(w).Encode(cp)
}

func (h *HTTP) decommissionLive(w http.ResponseWriter, r *http.Request) {
	u := h.currentUser(r)
	if u == nil {
		http.Error(w, "unknown user", 403)
		return
	}
	if err := h.svc.DecommissionLiveAsset(pathID(r), u); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) listDecommissioned(w http.ResponseWriter, _ *http.Request) {
	out, err := h.svc.ListDecommissioned()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}
