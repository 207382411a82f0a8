package http

import (
	"DeepLink-Backend/internal/repository"
	"DeepLink-Backend/internal/service"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Platform store fallbacks when the link cannot be served.
const (
	playStoreURL   = "https://play.google.com/store/apps"
	appStoreURL    = "https://apps.apple.com"
	defaultLanding = "https://example.com"
)

// RedirectHandler serves click redirects
type RedirectHandler struct {
	attribution *service.AttributionService
	log         *zap.Logger
}

// NewRedirectHandler creates a new redirect handler
func NewRedirectHandler(attribution *service.AttributionService, log *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		attribution: attribution,
		log:         log,
	}
}

// HandleClick handles GET /d/{linkId}: records the click fingerprint and
// redirects to the link target, or to a platform store when the link cannot
// be served.
func (h *RedirectHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	linkID := strings.TrimPrefix(r.URL.Path, "/d/")
	if linkID == "" || strings.Contains(linkID, "/") {
		http.NotFound(w, r)
		return
	}

	ipAddress := extractIPAddress(r)
	userAgent := r.UserAgent()

	click := service.ClickInfo{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		click.Language = &lang
	}

	targetURL, err := h.attribution.TrackClick(r.Context(), linkID, click)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) || errors.Is(err, repository.ErrLinkExpired) {
			storeURL := storeURLFor(userAgent)
			h.log.Info("link unavailable, redirecting to store",
				zap.String("link_id", linkID),
				zap.String("store_url", storeURL))
			http.Redirect(w, r, storeURL, http.StatusFound)
			return
		}
		h.log.Error("failed to process click", zap.String("link_id", linkID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.log.Info("successful redirect",
		zap.String("link_id", linkID),
		zap.String("target_url", targetURL),
		zap.String("ip", ipAddress))

	http.Redirect(w, r, targetURL, http.StatusFound)
}

// storeURLFor picks the platform store landing page from the User-Agent.
func storeURLFor(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "android"):
		return playStoreURL
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return appStoreURL
	default:
		return defaultLanding
	}
}

// extractIPAddress extracts the client IP, honoring proxy headers in a fixed
// precedence order. X-Forwarded-For may carry a comma-separated chain; the
// first entry is the originating client.
func extractIPAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if ip := r.Header.Get("X-Client-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
