package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/querykit/filterset/datasource"
	"github.com/querykit/filterset/definition"
	"github.com/querykit/filterset/query"
	"github.com/rs/zerolog"
)

// Router serves the filter sets built from definitions over HTTP. Each
// filter set queries the collection registered for its model.
type Router struct {
	service *definition.Service
	bases   map[string]datasource.Collection
	log     zerolog.Logger
}

func NewRouter(service *definition.Service, bases map[string]datasource.Collection, log zerolog.Logger) *Router {
	return &Router{
		service: service,
		bases:   bases,
		log:     log,
	}
}

func (rt *Router) SetupRoutes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/filtersets", rt.handleList).Methods("GET")
	r.HandleFunc("/filtersets/{name}", rt.handleDescribe).Methods("GET")
	r.HandleFunc("/query/{name}", rt.handleQuery).Methods("GET")
	return r
}

func (rt *Router) handleList(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"filtersets": rt.service.Names(),
	})
}

// handleDescribe renders a filter set's unbound form, so clients can
// discover the parameters, widgets and choices it accepts.
func (rt *Router) handleDescribe(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	fs, err := rt.service.FilterSet(name)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	binding := fs.Bind(r.Context(), url.Values{}, nil)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"name":  name,
		"model": fs.Model(),
		"form":  binding.Form(),
	})
}

func (rt *Router) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	params := r.URL.Query()

	fs, err := rt.service.FilterSet(name)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	base, exists := rt.bases[fs.Model()]
	if !exists {
		rt.log.Error().
			Str("filterset", name).
			Str("model", fs.Model()).
			Msg("No collection registered for model")
		respondWithError(w, http.StatusInternalServerError, "no data source for model "+fs.Model())
		return
	}

	binding := fs.Bind(r.Context(), params, base)
	if !binding.Form().IsValid() {
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"form":   binding.Form(),
			"errors": binding.Form().Errors(),
		})
		return
	}

	rows, err := binding.Result().All(r.Context())
	if err != nil {
		rt.log.Error().
			Err(err).
			Str("filterset", name).
			Msg("Query failed")
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := len(rows)
	rows = paginate(rows, params)

	respondWithJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"count": len(rows),
		"rows":  rows,
		"form":  binding.Form(),
	})
}

// paginate applies the optional _limit and _offset parameters.
func paginate(rows []query.Record, params url.Values) []query.Record {
	offset, _ := strconv.Atoi(params.Get("_offset"))
	limit, _ := strconv.Atoi(params.Get("_limit"))

	if offset > 0 {
		if offset >= len(rows) {
			return []query.Record{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}