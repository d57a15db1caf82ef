package api

import (
	"net/http"
	"strconv"

	"catch-forecast/internal/service"

	"github.com/goccy/go-json"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "catch forecast API",
		"endpoints": map[string]string{
			"historical":       "/api/historical",
			"visitor_averages": "/api/visitor-averages",
			"visitor_estimate": "/api/visitor-estimate",
			"predict":          "/api/predict",
			"status":           "/api/status",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

// Service failures are reported in the body with success=false and status
// 200; only malformed requests get a 4xx.

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.HistoricalQuery{
		Species:   q.Get("fish"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Weather:   q.Get("weather"),
		Tide:      q.Get("tide"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.Limit = limit
	}
	if msg := validateRequest(&query); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	respondJSON(w, http.StatusOK, s.svc.Historical(r.Context(), query))
}

func (s *Server) handleVisitorAverages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.VisitorAverages(r.Context()))
}

type estimateParams struct {
	Date    string `validate:"required"`
	Weather string `validate:"required"`
}

func (s *Server) handleVisitorEstimate(w http.ResponseWriter, r *http.Request) {
	p := estimateParams{
		Date:    r.URL.Query().Get("date"),
		Weather: r.URL.Query().Get("weather"),
	}
	if msg := validateRequest(&p); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	respondJSON(w, http.StatusOK, s.svc.VisitorEstimate(r.Context(), p.Date, p.Weather))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req service.PredictRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if msg := validateRequest(&req); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	respondJSON(w, http.StatusOK, s.svc.Predict(r.Context(), req))
}
