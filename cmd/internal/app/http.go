package app

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetdeck/cmd/internal/auth/api"
	"fleetdeck/cmd/internal/auth/gateway"
	"fleetdeck/cmd/internal/directory"
	"fleetdeck/cmd/internal/realtime"
	v1 "fleetdeck/shared/contracts/push/v1"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	ws *realtime.Gateway,
	authAPI *api.Handler,
	auth *gateway.Service,
	router *realtime.Router,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	authAPI.Register(mux)

	mux.HandleFunc("/ws", ws.HandleWS)

	mux.HandleFunc("POST /push/broadcast", broadcastHandler(auth, router))
}

type broadcastRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"userId,omitempty"`
}

// broadcastHandler lets admins push an envelope to connected clients, either
// globally or scoped to one user.
func broadcastHandler(auth *gateway.Service, router *realtime.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := auth.Authenticate(bearerToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !directory.Role(actor.Role).Can(directory.PermBroadcastGlobal) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req broadcastRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		env := v1.Envelope{Type: req.Type, Payload: req.Payload, Timestamp: time.Now().UTC()}
		if err := env.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var delivered int
		if req.UserID != "" {
			delivered = router.BroadcastToUser(req.UserID, env)
		} else {
			delivered = router.BroadcastGlobal(env)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]int{"delivered": delivered})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
