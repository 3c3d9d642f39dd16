package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/takutakahashi/notify-relay/pkg/broadcast"
	"github.com/takutakahashi/notify-relay/pkg/mediastore"
	"github.com/takutakahashi/notify-relay/pkg/registry"
)

// SubscribeResponse is the body returned by POST /subscribe.
type SubscribeResponse struct {
	Success          bool `json:"success"`
	TotalSubscribers int  `json:"totalSubscribers"`
}

// NotifyRequest is the body accepted by POST /notify.
type NotifyRequest struct {
	Message        string `json:"message"`
	ImageURL       string `json:"imageUrl"`
	UseRandomImage bool   `json:"useRandomImage"`
}

// handleSubscribe handles POST /subscribe
func (s *Server) handleSubscribe(c echo.Context) error {
	var sub registry.Subscription
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid subscription payload.")
	}

	total, err := s.registry.Register(sub)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid subscription payload.")
	}

	return c.JSON(http.StatusCreated, SubscribeResponse{
		Success:          true,
		TotalSubscribers: total,
	})
}

// handleNotify handles POST /notify
func (s *Server) handleNotify(c echo.Context) error {
	var req NotifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}

	img := broadcast.ImageSource{
		URL:       req.ImageURL,
		UseRandom: req.UseRandomImage,
	}

	result, err := s.dispatcher.Broadcast(c.Request().Context(), req.Message, img, requestBaseURL(c))
	if err != nil {
		switch {
		case errors.Is(err, broadcast.ErrEmptyMessage):
			return echo.NewHTTPError(http.StatusBadRequest, "Message is required.")
		case errors.Is(err, broadcast.ErrImageTooLarge):
			return echo.NewHTTPError(http.StatusBadRequest, "Uploaded image is too large.")
		case errors.Is(err, broadcast.ErrInvalidImage):
			return echo.NewHTTPError(http.StatusBadRequest, "Image must be a valid URL or uploaded image.")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to send notification.")
		}
	}

	return c.JSON(http.StatusOK, result)
}

// handleMedia handles GET /:token/ by consuming the temp media entry.
// Unknown, expired or already consumed tokens fall through to the normal
// not-found handling.
func (s *Server) handleMedia(c echo.Context) error {
	entry, ok := s.media.Consume(c.Param("token"))
	if !ok {
		return echo.ErrNotFound
	}

	if entry.Kind == mediastore.KindRedirect {
		return c.Redirect(http.StatusFound, entry.Target)
	}

	return c.Blob(http.StatusOK, entry.ContentType, entry.Data)
}

// handleVAPIDPublicKey handles GET /vapidPublicKey
func (s *Server) handleVAPIDPublicKey(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"publicKey": s.vapid.PublicKey,
	})
}

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// requestBaseURL rebuilds the externally reachable origin of the request for
// temp media URLs. Scheme honors X-Forwarded-Proto when set.
func requestBaseURL(c echo.Context) string {
	return fmt.Sprintf("%s://%s", c.Scheme(), c.Request().Host)
}
