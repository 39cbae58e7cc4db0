// Package ice advertises STUN and TURN servers to clients so they can
// build an RTCPeerConnection configuration without hardcoding transport
// details into the frontend.
package ice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/config"
)

// Server is one entry of the iceServers list, shaped the way a browser's
// RTCPeerConnection expects it.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Response is the GET /ice payload. TTL tells clients how long the TURN
// credentials stay valid so they can refresh before expiry.
type Response struct {
	ICEServers []Server `json:"iceServers"`
	TTL        int      `json:"ttl,omitempty"`
}

// Handler builds ICE server lists from configuration.
type Handler struct {
	stunURLs   []string
	turnURL    string
	turnSecret string
	turnTTL    time.Duration
	now        func() time.Time
}

// NewHandler creates an ICE advertisement handler from the validated
// configuration. TURN entries are only emitted when both TURN_URL and
// TURN_SECRET are set.
func NewHandler(cfg *config.Config) *Handler {
	var stun []string
	for _, u := range strings.Split(cfg.StunURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			stun = append(stun, u)
		}
	}
	return &Handler{
		stunURLs:   stun,
		turnURL:    cfg.TurnURL,
		turnSecret: cfg.TurnSecret,
		turnTTL:    cfg.TurnTTL,
		now:        time.Now,
	}
}

// Servers handles GET /ice. The optional clientId query is folded into the
// TURN username so relay allocations can be correlated with signaling
// connections in coturn's logs.
func (h *Handler) Servers(c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	resp := Response{}
	if len(h.stunURLs) > 0 {
		resp.ICEServers = append(resp.ICEServers, Server{URLs: h.stunURLs})
	}
	if h.turnURL != "" && h.turnSecret != "" {
		username, credential := h.turnCredentials(clientID)
		resp.ICEServers = append(resp.ICEServers, Server{
			URLs:       []string{h.turnURL},
			Username:   username,
			Credential: credential,
		})
		resp.TTL = int(h.turnTTL.Seconds())
	}

	c.JSON(http.StatusOK, resp)
}

// turnCredentials derives short-lived TURN credentials the way coturn's
// REST API mode expects them: the username carries the expiry timestamp,
// and the credential is the base64 HMAC-SHA1 of that username under the
// shared secret.
func (h *Handler) turnCredentials(clientID string) (username, credential string) {
	expiry := h.now().Add(h.turnTTL).Unix()
	username = fmt.Sprintf("%d:%s", expiry, clientID)
	mac := hmac.New(sha1.New, []byte(h.turnSecret))
	mac.Write([]byte(username))
	credential = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return username, credential
}
