// Package websocket is the transport collaborator: it accepts connections,
// runs the per-connection read/write pumps and feeds frames into sessions.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vchub/relay/session"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize   = 10000
	defaultWebsocketWriteBufferSize  = 10000
	defaultWebSocketMaxMessageSize   = 1024 * 1024
	defaultWebSocketHandshakeTimeout = 3 * time.Second

	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	RelayService interface {
		CreateSession(roomName, remoteAddr string) (*session.Session, error)
		DestroySession(*session.Session)
	}

	Config struct {
		Logger       *zerolog.Logger
		RelayService RelayService
		ListenAddr   string
		TLSCertFile  string
		TLSKeyFile   string
	}

	Server struct {
		svc RelayService
		ws  *websocket.Upgrader
		*http.Server
		tlsCert string
		tlsKey  string

		baseCtx context.Context

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:  cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:     cfg.RelayService,
		tlsCert: cfg.TLSCertFile,
		tlsKey:  cfg.TLSKeyFile,
		baseCtx: context.Background(),
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/vc/room/{roomID}", srv.connect)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	srv.baseCtx = ctx

	errSrv := make(chan error)
	go func() {
		if srv.tlsCert != "" && srv.tlsKey != "" {
			errSrv <- srv.ListenAndServeTLS(srv.tlsCert, srv.tlsKey)
		} else {
			errSrv <- srv.ListenAndServe()
		}
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) connect(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	if roomID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger := srv.logger.With().
		Str("roomID", roomID).
		Str("connID", uuid.NewString()).
		Logger()

	// Register before completing the handshake so an accepted connection is
	// already a room member, and an unknown room fails the handshake.
	sess, err := srv.svc.CreateSession(roomID, r.RemoteAddr)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create session")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		srv.svc.DestroySession(sess)
		return
	}
	logger.Debug().Uint32("id", uint32(sess.ID())).Msg("session attached")

	go srv.handleWSConn(conn, sess, &logger)
}

func (srv *Server) handleWSConn(conn *websocket.Conn, sess *session.Session, logger *zerolog.Logger) {
	ctx, cancel := context.WithCancel(srv.baseCtx)
	wg := &sync.WaitGroup{}

	wg.Add(2)
	go func() {
		webSocketReceiver(ctx, wg, conn, sess, logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, sess, logger)
		cancel()
	}()

	wg.Wait()
	cancel()
	webSocketCloser(conn, logger)
	srv.svc.DestroySession(sess)
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	sess *session.Session,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case ev := <-sess.Events():
			data, text, err := sess.EncodeEvent(ev)
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode outgoing event")
				continue
			}
			msgType := websocket.BinaryMessage
			if text {
				msgType = websocket.TextMessage
			}

			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = conn.WriteMessage(msgType, data); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
		}
	}
}

func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	sess *session.Session,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			msgType, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			switch msgType {
			case websocket.BinaryMessage:
				if frameErr := sess.HandleFrame(msg); frameErr != nil {
					// Malformed frame: close this connection, never
					// forward garbage to the room.
					logger.Error().Err(frameErr).Msg("dropping connection")
					break RecvLoop
				}
			case websocket.TextMessage:
				logger.Trace().Msg("ignoring inbound text message")
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to close websocket connection")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
