package session

import (
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/auth"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/hub"
)

// NewHandler gates the websocket endpoint behind bearer-token auth and
// hands accepted connections to a new session. Auth failures are answered
// with an explicit 401 before the upgrade, never silently dropped.
func NewHandler(h *hub.Hub, verifier auth.Verifier, logger *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		principal, err := verifier.Authenticate(token)
		if err != nil {
			logger.Info("Rejected unauthenticated connection", zap.String("remote", r.RemoteAddr), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Warn("Websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}

		client := NewClient(conn, h, principal, logger, opts)
		logger.Info("Client connected",
			zap.String("client_id", client.ID()),
			zap.String("principal", principal.Subject))
		client.Start()
	}
}
