package http

import (
	"DeepLink-Backend/internal/repository"
	"DeepLink-Backend/internal/service"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LinksHandler serves link creation and stats
type LinksHandler struct {
	attribution *service.AttributionService
	log         *zap.Logger
}

// NewLinksHandler creates a new links handler
func NewLinksHandler(attribution *service.AttributionService, log *zap.Logger) *LinksHandler {
	return &LinksHandler{
		attribution: attribution,
		log:         log,
	}
}

// CreateLinkRequest is the link creation request body
type CreateLinkRequest struct {
	TargetURL      string                 `json:"targetUrl"`
	CampaignName   *string                `json:"campaignName,omitempty"`
	CampaignSource *string                `json:"campaignSource,omitempty"`
	CampaignMedium *string                `json:"campaignMedium,omitempty"`
	CustomData     map[string]interface{} `json:"customData,omitempty"`
	ExpiryDays     *int                   `json:"expiryDays,omitempty"`
}

// CreateLinkResponse is the link creation response body
type CreateLinkResponse struct {
	LinkID    string `json:"linkId"`
	ShortURL  string `json:"shortUrl"`
	TargetURL string `json:"targetUrl"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// StatsResponse is the link stats response body
type StatsResponse struct {
	LinkID         string  `json:"linkId"`
	ClickCount     int64   `json:"clickCount"`
	InstallCount   int64   `json:"installCount"`
	ConversionRate float64 `json:"conversionRate"`
}

// CreateLink handles POST /api/v1/links
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create link request", zap.Error(err))
		writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if req.TargetURL == "" {
		writeError(w, "targetUrl is required", http.StatusBadRequest)
		return
	}

	result, err := h.attribution.CreateLink(r.Context(), service.CreateLinkRequest{
		TargetURL:      req.TargetURL,
		CampaignName:   req.CampaignName,
		CampaignSource: req.CampaignSource,
		CampaignMedium: req.CampaignMedium,
		CustomData:     req.CustomData,
		ExpiryDays:     req.ExpiryDays,
	})
	if err != nil {
		h.log.Error("failed to create link", zap.Error(err))
		writeError(w, "Failed to create link", http.StatusInternalServerError)
		return
	}

	response := CreateLinkResponse{
		LinkID:    result.LinkID,
		ShortURL:  result.ShortURL,
		TargetURL: result.TargetURL,
		CreatedAt: result.CreatedAt.Format(time.RFC3339),
	}
	if result.ExpiresAt != nil {
		response.ExpiresAt = result.ExpiresAt.Format(time.RFC3339)
	}

	writeJSON(w, response, http.StatusCreated)
}

// GetStats handles GET /api/v1/links/{linkId}/stats
func (h *LinksHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /api/v1/links/{linkId}/stats
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/links/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "stats" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}
	linkID := parts[0]

	stats, err := h.attribution.GetStats(r.Context(), linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			writeError(w, "Link not found", http.StatusNotFound)
			return
		}
		h.log.Error("failed to get link stats", zap.String("link_id", linkID), zap.Error(err))
		writeError(w, "Failed to retrieve stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, StatsResponse{
		LinkID:         stats.LinkID,
		ClickCount:     stats.ClickCount,
		InstallCount:   stats.InstallCount,
		ConversionRate: stats.ConversionRate,
	}, http.StatusOK)
}
