package http

import (
	"DeepLink-Backend/internal/service"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// MatchHandler serves the device attribution endpoint
type MatchHandler struct {
	attribution *service.AttributionService
	log         *zap.Logger
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(attribution *service.AttributionService, log *zap.Logger) *MatchHandler {
	return &MatchHandler{
		attribution: attribution,
		log:         log,
	}
}

// MatchRequest is the device attribution request body. The ipAddress field is
// accepted for SDK compatibility but always overwritten with the connection's
// real address.
type MatchRequest struct {
	DeviceID         string  `json:"deviceId"`
	IPAddress        string  `json:"ipAddress"`
	UserAgent        string  `json:"userAgent"`
	DeviceModel      *string `json:"deviceModel,omitempty"`
	OSName           *string `json:"osName,omitempty"`
	OSVersion        *string `json:"osVersion,omitempty"`
	Language         *string `json:"language,omitempty"`
	Timezone         *string `json:"timezone,omitempty"`
	ScreenResolution *string `json:"screenResolution,omitempty"`
	Timestamp        int64   `json:"timestamp"`
}

// MatchResponse is the device attribution response body
type MatchResponse struct {
	Matched        bool                   `json:"matched"`
	LinkID         string                 `json:"linkId,omitempty"`
	TargetURL      string                 `json:"targetUrl,omitempty"`
	CampaignName   *string                `json:"campaignName,omitempty"`
	CampaignSource *string                `json:"campaignSource,omitempty"`
	CampaignMedium *string                `json:"campaignMedium,omitempty"`
	CustomData     map[string]interface{} `json:"customData,omitempty"`
	MatchScore     *float64               `json:"matchScore,omitempty"`
}

// MatchDevice handles POST /api/v1/match
func (h *MatchHandler) MatchDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid match request", zap.Error(err))
		writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if req.DeviceID == "" {
		writeError(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	// The client-reported address is never trusted.
	req.IPAddress = extractIPAddress(r)
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	outcome, err := h.attribution.MatchDevice(r.Context(), service.MatchRequest{
		DeviceID:         req.DeviceID,
		IPAddress:        req.IPAddress,
		UserAgent:        req.UserAgent,
		DeviceModel:      req.DeviceModel,
		OSName:           req.OSName,
		OSVersion:        req.OSVersion,
		Language:         req.Language,
		Timezone:         req.Timezone,
		ScreenResolution: req.ScreenResolution,
		Timestamp:        req.Timestamp,
	})
	if err != nil {
		h.log.Error("match request failed", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeError(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	if !outcome.Matched {
		writeJSON(w, MatchResponse{Matched: false}, http.StatusOK)
		return
	}

	response := MatchResponse{
		Matched:        true,
		LinkID:         outcome.Link.LinkID,
		TargetURL:      outcome.Link.TargetURL,
		CampaignName:   outcome.Link.CampaignName,
		CampaignSource: outcome.Link.CampaignSource,
		CampaignMedium: outcome.Link.CampaignMedium,
		MatchScore:     &outcome.Score,
	}

	if outcome.Link.CustomData != nil {
		var customData map[string]interface{}
		if err := json.Unmarshal([]byte(*outcome.Link.CustomData), &customData); err != nil {
			h.log.Warn("failed to decode stored custom data",
				zap.String("link_id", outcome.Link.LinkID),
				zap.Error(err))
		} else {
			response.CustomData = customData
		}
	}

	writeJSON(w, response, http.StatusOK)
}
