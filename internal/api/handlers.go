package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/rewired-gh/oceanoracle/internal/advisor"
	"github.com/rewired-gh/oceanoracle/internal/lifecycle"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/projector"
)

// maxDepth is the deepest prediction depth accepted, in metres
const maxDepth = 6000

type regionRequest struct {
	RegionKey string `json:"region_key"`
}

func (r regionRequest) validate() error {
	if strings.TrimSpace(r.RegionKey) == "" {
		return &models.ValidationError{Field: "region_key", Message: "is required"}
	}
	return nil
}

type predictRequest struct {
	RegionKey string   `json:"region_key"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Depth     *float64 `json:"depth"`
	Month     int      `json:"month"`
}

type fishingRequest struct {
	RegionKey string   `json:"region_key"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Month     int      `json:"month"`
}

type chatRequest struct {
	Message   string `json:"message"`
	RegionKey string `json:"region_key"`
}

// analysis is the payload of analyze
type analysis struct {
	Summary           models.Summary                                  `json:"summary"`
	ModelMetrics      map[models.Parameter]projector.ModelMetrics     `json:"model_metrics"`
	Visualizations    projector.Visualizations                        `json:"visualizations"`
	FeatureImportance map[models.Parameter][]models.FeatureImportance `json:"feature_importance"`
}

func (s *Server) regionNames() map[string]string {
	out := make(map[string]string)
	for _, d := range s.opts.Registry.All() {
		out[d.Key] = d.DisplayName
	}
	return out
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "Ocean Oracle API is running!",
		"available_regions": s.regionNames(),
		"endpoints": map[string]string{
			"analyze":        "/api/analyze",
			"visualizations": "/api/visualizations",
			"model_status":   "/api/model_status",
			"load_models":    "/api/load_models",
			"refresh":        "/api/refresh",
			"clear_cache":    "/api/clear_cache",
			"predict":        "/api/predict",
			"fishing_advice": "/api/fishing_advice",
			"water_masses":   "/api/water_masses",
			"chat":           "/api/chat",
			"health":         "/health",
		},
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"regions": s.regionNames()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"api_key_set": s.opts.Assistant.Available(),
	})
}

// readRegion decodes a region request and resolves its descriptor
func (s *Server) readRegion(r *http.Request) (models.RegionDescriptor, error) {
	var req regionRequest
	if err := decode(r, &req); err != nil {
		return models.RegionDescriptor{}, err
	}
	if err := req.validate(); err != nil {
		return models.RegionDescriptor{}, err
	}
	return s.opts.Registry.Get(req.RegionKey)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	region, err := s.readRegion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.opts.Lifecycle.EnsureReady(r.Context(), region.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis{
		Summary:           bundle.Summary,
		ModelMetrics:      projector.Metrics(bundle),
		Visualizations:    projector.BuildVisualizations(region, bundle.Dataset, s.opts.SampleSize),
		FeatureImportance: projector.FeatureImportance(bundle),
	})
}

func (s *Server) handleVisualizations(w http.ResponseWriter, r *http.Request) {
	region, err := s.readRegion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if s.opts.VisualizationWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.VisualizationWait)
		defer cancel()
	}

	bundle, err := s.opts.Lifecycle.Wait(ctx, region.Key)
	if err != nil {
		kind := models.KindOf(err)
		if kind != models.KindNotReady && kind != models.KindTimeout {
			writeError(w, r, err)
			return
		}
		state := lifecycle.Unloaded
		if st, statusErr := s.opts.Lifecycle.Status(region.Key); statusErr == nil {
			state = st.State
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":     "not_ready",
			"region_key": region.Key,
			"state":      state,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region_key":     region.Key,
		"visualizations": projector.BuildVisualizations(region, bundle.Dataset, s.opts.SampleSize),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	region, err := s.readRegion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.opts.Lifecycle.Clear(region.Key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "region_key": region.Key})
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"regions": s.opts.Lifecycle.StatusAll()})
}

func (s *Server) handleLoadModels(w http.ResponseWriter, r *http.Request) {
	region, err := s.readRegion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bundle, already, err := s.opts.Lifecycle.Load(r.Context(), region.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := "loaded"
	if already {
		status = "already_loaded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        status,
		"region_key":    region.Key,
		"model_metrics": projector.Metrics(bundle),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	region, err := s.readRegion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.opts.Lifecycle.Refresh(r.Context(), region.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "refreshed",
		"region_key":    region.Key,
		"summary":       bundle.Summary,
		"model_metrics": projector.Metrics(bundle),
	})
}

func validCoordinates(lat, lon *float64) error {
	if lat == nil || math.IsNaN(*lat) || *lat < -90 || *lat > 90 {
		return &models.ValidationError{Field: "lat", Message: "must be between -90 and 90"}
	}
	if lon == nil || math.IsNaN(*lon) || *lon < -180 || *lon > 180 {
		return &models.ValidationError{Field: "lon", Message: "must be between -180 and 180"}
	}
	return nil
}

func validMonth(month int) error {
	if month < 1 || month > 12 {
		return &models.ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}
	return nil
}

// boundsWarnings reports a point outside the region's bounding box
func boundsWarnings(region models.RegionDescriptor, lat, lon float64) []string {
	if region.BoundingBox.Contains(lat, lon) {
		return nil
	}
	b := region.BoundingBox
	return []string{fmt.Sprintf("(%.2f, %.2f) is outside %s (lat %.0f..%.0f, lon %.0f..%.0f); predictions are extrapolated",
		lat, lon, region.DisplayName, b.LatMin, b.LatMax, b.LonMin, b.LonMax)}
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := (regionRequest{RegionKey: req.RegionKey}).validate(); err != nil {
		writeError(w, r, err)
		return
	}
	region, err := s.opts.Registry.Get(req.RegionKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validCoordinates(req.Lat, req.Lon); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Depth == nil || math.IsNaN(*req.Depth) || *req.Depth < 0 || *req.Depth > maxDepth {
		writeError(w, r, &models.ValidationError{Field: "depth", Message: fmt.Sprintf("must be between 0 and %d", maxDepth)})
		return
	}
	if err := validMonth(req.Month); err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.opts.Lifecycle.Current(region.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	lat, lon, depth := *req.Lat, *req.Lon, *req.Depth
	resp := map[string]interface{}{
		"region_key":  region.Key,
		"predictions": advisor.Predict(bundle, lat, lon, depth, req.Month),
	}
	if warnings := boundsWarnings(region, lat, lon); len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFishingAdvice(w http.ResponseWriter, r *http.Request) {
	var req fishingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := (regionRequest{RegionKey: req.RegionKey}).validate(); err != nil {
		writeError(w, r, err)
		return
	}
	region, err := s.opts.Registry.Get(req.RegionKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validCoordinates(req.Lat, req.Lon); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validMonth(req.Month); err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.opts.Lifecycle.Current(region.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	temperature, ok := bundle.Predictor(models.Temperature)
	if !ok {
		writeError(w, r, &models.NotReadyError{RegionKey: region.Key, State: "no temperature model"})
		return
	}

	report := advisor.FishingAdvice(temperature, *req.Lat, *req.Lon, req.Month)
	resp := map[string]interface{}{
		"advice": report.Text(),
		"report": report,
	}
	if warnings := boundsWarnings(region, *req.Lat, *req.Lon); len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWaterMasses(w http.ResponseWriter, r *http.Request) {
	region, err := s.readRegion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.opts.Lifecycle.Current(region.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	masses := advisor.WaterMasses(bundle.Dataset)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region_key":   region.Key,
		"water_masses": masses,
		"analysis":     advisor.WaterMassText(masses),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, &models.ValidationError{Field: "message", Message: "is required"})
		return
	}
	if req.RegionKey == "" {
		req.RegionKey = s.opts.DefaultRegion
	}
	if !s.opts.Assistant.Available() {
		writeError(w, r, &models.ChatUnavailableError{Reason: "GEMINI_API_KEY is not set"})
		return
	}
	if _, err := s.opts.Registry.Get(req.RegionKey); err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.opts.Lifecycle.EnsureReady(r.Context(), req.RegionKey)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary := bundle.Summary
	answer, err := s.opts.Assistant.Ask(r.Context(), &summary, projector.Metrics(bundle), req.Message)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &models.TimeoutError{RegionKey: req.RegionKey, Err: err}
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": answer, "region": summary.Region})
}
