package gateway

import (
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/relay/internal/outbox"
)

// Server upgrades HTTP requests to push-socket clients.
type Server struct {
	relay     Attacher
	query     Querier
	logger    *zap.Logger
	queueSize int
	policy    outbox.Policy
}

func NewServer(relay Attacher, query Querier, logger *zap.Logger, queueSize int, policy outbox.Policy) *Server {
	return &Server{
		relay:     relay,
		query:     query,
		logger:    logger,
		queueSize: queueSize,
		policy:    policy,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("Upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, outbox.New(s.queueSize, s.policy), s.relay, s.query, s.logger)
	client.Start()
	s.logger.Info("Client connected", zap.String("id", client.ID()))
}

// Handler serves the push socket on every path; MT4 bridges connect to the
// bare port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	return mux
}
