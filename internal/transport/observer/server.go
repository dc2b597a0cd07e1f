package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"antcolony.ai/internal/observerproto"
	"antcolony.ai/internal/sim/colony"
)

// Server streams a colony to read-only viewers over WebSocket.
type Server struct {
	rt  *colony.Runtime
	log *log.Logger

	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(rt *colony.Runtime, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		rt:  rt,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.rt.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			ColonyID:        s.rt.ID(),
			Run:             s.rt.CurrentRun(),
			Tick:            s.rt.CurrentTick(),
			Params: observerproto.ColonyParams{
				TickRateHz:       s.rt.TickRateHz(),
				GridWidth:        cfg.GridWidth,
				GridHeight:       cfg.GridHeight,
				Seed:             cfg.Seed,
				MaxConcentration: cfg.MaxConcentration,
				FieldLevels:      observerproto.FieldLevels,
				Nest:             [2]float64{cfg.NestX, cfg.NestY},
				NestRadius:       cfg.NestRadius,
				Boundary:         string(cfg.Boundary),
			},
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		every, chans := normalizeSubscribe(sub)

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)
		dataOut := make(chan []byte, 16)

		joinReq := colony.ObserverJoinRequest{
			SessionID:       sid,
			TickOut:         tickOut,
			DataOut:         dataOut,
			FieldEveryTicks: every,
			Channels:        chans,
		}
		select {
		case s.rt.ObserverJoin() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer s.leave(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-dataOut:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				case b, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			every, chans := normalizeSubscribe(sub)
			req := colony.ObserverSubscribeRequest{
				SessionID:       sid,
				FieldEveryTicks: every,
				Channels:        chans,
			}
			select {
			case s.rt.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// leaveTimeout bounds how long a closing session waits for the colony loop to accept its
// leave. The loop drains the queue every tick, so only a stopped loop hits it.
var leaveTimeout = 2 * time.Second

func (s *Server) leave(sid string) {
	t := time.NewTimer(leaveTimeout)
	defer t.Stop()
	select {
	case s.rt.ObserverLeave() <- sid:
	case <-t.C:
		s.log.Printf("observer %s: leave not delivered (colony loop stopped?)", sid)
	}
}

// normalizeSubscribe clamps the FIELD cadence and drops unknown channel names.
// A zero cadence or empty channel list keeps the colony defaults.
func normalizeSubscribe(sub observerproto.SubscribeMsg) (int, []colony.Channel) {
	every := sub.FieldEveryTicks
	if every < 0 {
		every = 0
	}
	if every > 1000 {
		every = 1000
	}
	var chans []colony.Channel
	seen := map[colony.Channel]bool{}
	for _, name := range sub.Channels {
		ch, ok := colony.ParseChannel(strings.TrimSpace(name))
		if !ok || seen[ch] {
			continue
		}
		seen[ch] = true
		chans = append(chans, ch)
	}
	return every, chans
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
