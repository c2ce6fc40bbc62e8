package inventory

import (
	"encoding/json"
	"net/http"
	"strconv"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ repo *Repo }

func NewHTTP(r *Repo) *HTTP { return &HTTP{repo: r} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	// живые ассеты; plan-скоуп этих маршрутов регистрирует changeplan
	api.HandleFunc("/assets", h.createAsset).Methods(http.MethodPost)
	api.HandleFunc("/assets", h.listAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}", h.getAsset).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}", h.updateAsset).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/assets/{id}", h.deleteAsset).Methods(http.MethodDelete)

	api.HandleFunc("/datacenters", h.createDatacenter).Methods(http.MethodPost)
	api.HandleFunc("/datacenters", h.listDatacenters).Methods(http.MethodGet)

	api.HandleFunc("/racks", h.createRack).Methods(http.MethodPost)
	api.HandleFunc("/racks", h.listRacks).Methods(http.MethodGet)
	api.HandleFunc("/racks/{id}", h.deleteRack).Methods(http.MethodDelete)

	api.HandleFunc("/models", h.createModel).Methods(http.MethodPost)
	api.HandleFunc("/models", h.listModels).Methods(http.MethodGet)
	api.HandleFunc("/models/{id}", h.deleteModel).Methods(http.MethodDelete)

	api.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	api.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), faults.HTTPStatus(err))
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

// ── Assets ──────────────────────────────────────────────────

type assetInput struct {
	Hostname     *string `json:"hostname"`
	AssetNumber  *int    `json:"asset_number"`
	ModelID      *uint   `json:"model_id"`
	RackID       *uint   `json:"rack_id"`
	RackPosition *int    `json:"rack_position"`
	Owner        *string `json:"owner"`
	Comment      *string `json:"comment"`
}

func (in *assetInput) apply(a *models.Asset) {
	if in.Hostname != nil {
		a.Hostname = in.Hostname
	}
	if in.AssetNumber != nil {
		a.AssetNumber = *in.AssetNumber
	}
	if in.ModelID != nil {
		a.ModelID = *in.ModelID
	}
	if in.RackID != nil {
		a.RackID = *in.RackID
	}
	if in.RackPosition != nil {
		a.RackPosition = *in.RackPosition
	}
	if in.Owner != nil {
		a.Owner = in.Owner
	}
	if in.Comment != nil {
		a.Comment = *in.Comment
	}
}

func (h *HTTP) createAsset(w http.ResponseWriter, r *http.Request) {
	var in assetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	a := &models.Asset{}
	in.apply(a)
	if err := h.repo.SaveAsset(a); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(a)
}

func (h *HTTP) listAssets(w http.ResponseWriter, _ *http.Request) {
	out, err := h.repo.ListAssets()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) getAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetAsset(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(a)
}

func (h *HTTP) updateAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetAsset(pathID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	var in assetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	in.apply(a)
	if err := h.repo.SaveAsset(a); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(a)
}

func (h *HTTP) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if _, err := h.repo.GetAsset(pathID(r)); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.repo.DeleteAsset(pathID(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Datacenters / Racks / Models / Users ────────────────────

func (h *HTTP) createDatacenter(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Abbreviation string `json:"abbreviation"`
		Name         string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	d := &models.Datacenter{Abbreviation: in.Abbreviation, Name: in.Name}
	if err := h.repo.CreateDatacenter(d); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) listDatacenters(w http.ResponseWriter, _ *http.Request) {
	out, err := h.repo.ListDatacenters()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) createRack(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DatacenterID uint   `json:"datacenter_id"`
		RowLetter    string `json:"row_letter"`
		RackNum      int    `json:"rack_num"`
		Height       int    `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	rack := &models.Rack{
		DatacenterID: in.DatacenterID,
		RowLetter:    in.RowLetter,
		RackNum:      in.RackNum,
		Height:       in.Height,
	}
	if err := h.repo.CreateRack(rack); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(rack)
}

func (h *HTTP) listRacks(w http.ResponseWriter, r *http.Request) {
	dcID, _ := strconv.ParseUint(r.URL.Query().Get("datacenter"), 10, 64)
	out, err := h.repo.ListRacks(uint(dcID))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) deleteRack(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteRack(pathID(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) createModel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Vendor        string   `json:"vendor"`
		ModelNumber   string   `json:"model_number"`
		Height        int      `json:"height"`
		NetworkPorts  []string `json:"network_ports"`
		NumPowerPorts int      `json:"num_power_ports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	ports, _ := json.Marshal(in.NetworkPorts)
	m := &models.ITModel{
		Vendor:        in.Vendor,
		ModelNumber:   in.ModelNumber,
		Height:        in.Height,
		NetworkPorts:  ports,
		NumPowerPorts: in.NumPowerPorts,
	}
	if err := h.repo.CreateModel(m); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) listModels(w http.ResponseWriter, _ *http.Request) {
	out, err := h.repo.ListModels()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) deleteModel(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteModel(pathID(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) createUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	u := &models.User{Username: in.Username, Email: in.Email, IsAdmin: in.IsAdmin}
	if err := h.repo.CreateUser(u); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

func (h *HTTP) listUsers(w http.ResponseWriter, _ *http.Request) {
	out, err := h.repo.ListUsers()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}
