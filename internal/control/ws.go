package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earpiece/internal/engine"
	"github.com/MrWong99/earpiece/internal/observe"
)

// Websocket command types sent by clients.
const (
	CommandStatus = "status"
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandParams = "params"
)

// Websocket event types sent by the server.
const (
	EventStatus = "status"
	EventError  = "error"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Command is a client message on /api/ws.
type Command struct {
	// Type is one of the Command* constants.
	Type string `json:"type"`

	// ID is echoed in the reply event.
	ID string `json:"id,omitempty"`

	// Params carries the changes of a "params" command.
	Params *ParamsRequest `json:"params,omitempty"`
}

// Event is a server message on /api/ws. Replies to a command carry its ID;
// periodic pushes do not.
type Event struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Status *engine.Status `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
	Stage  string         `json:"stage,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		observe.Logger(r.Context()).Debug("control: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	remote := r.RemoteAddr
	log := observe.Logger(r.Context())
	log.Debug("control: websocket connected", "remote", remote)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.readCommands(ctx, conn) })
	g.Go(func() error { return s.pushStatus(ctx, conn) })

	err = g.Wait()
	switch status := websocket.CloseStatus(err); {
	case err == nil, status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway,
		errors.Is(err, context.Canceled):
		log.Debug("control: websocket closed", "remote", remote)
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Warn("control: websocket failed", "remote", remote, "err", err)
		conn.Close(websocket.StatusInternalError, "internal error")
	}
}

// readCommands handles client commands until the connection closes. Each
// command is answered with exactly one event.
func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn) error {
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return err
		}
		ev := s.handleCommand(ctx, cmd)
		if err := write(ctx, conn, ev); err != nil {
			return err
		}
	}
}

func (s *Server) handleCommand(ctx context.Context, cmd Command) Event {
	var err error
	switch cmd.Type {
	case CommandStatus:
	case CommandStart:
		err = s.eng.Start(context.WithoutCancel(ctx))
	case CommandStop:
		s.eng.Stop()
	case CommandParams:
		if cmd.Params == nil {
			err = errNoParams
		} else {
			err = cmd.Params.apply(s.eng)
		}
	default:
		return Event{Type: EventError, ID: cmd.ID, Error: "unknown command " + cmd.Type}
	}
	if err != nil {
		_, body := startError(err)
		return Event{Type: EventError, ID: cmd.ID, Error: body.Error, Stage: body.Stage}
	}
	st := s.eng.Status()
	return Event{Type: EventStatus, ID: cmd.ID, Status: &st}
}

// pushStatus sends a status event every push interval.
func (s *Server) pushStatus(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st := s.eng.Status()
			if err := write(ctx, conn, Event{Type: EventStatus, Status: &st}); err != nil {
				return err
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
