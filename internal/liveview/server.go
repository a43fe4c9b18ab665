// Package liveview serves the running transcript to a browser: an HTML
// page, a JSON snapshot, a websocket feed of entry changes, and metrics.
package liveview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rbright/lectern/internal/ipc"
	"github.com/rbright/lectern/internal/session"
)

// Options wire the server to one live session.
type Options struct {
	Bind     string
	Snapshot func() session.Snapshot
	Status   func() *ipc.SessionStatus
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the live view HTTP server.
type Server struct {
	app  *fiber.App
	hub  *hub
	opts Options
	log  *slog.Logger
	ln   net.Listener
}

// New builds the routes; Start begins serving.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Snapshot == nil {
		opts.Snapshot = func() session.Snapshot { return session.Snapshot{} }
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			AppName:               "lectern",
		}),
		hub:  newHub(opts.Logger),
		opts: opts,
		log:  opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New())

	s.app.Get("/", func(c *fiber.Ctx) error {
		c.Type("html")
		return c.SendString(indexHTML)
	})

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "clients": s.hub.count()})
	})

	s.app.Get("/api/session", func(c *fiber.Ctx) error {
		resp := fiber.Map{"transcript": s.opts.Snapshot()}
		if s.opts.Status != nil {
			if status := s.opts.Status(); status != nil {
				resp["status"] = status
			}
		}
		return c.JSON(resp)
	})

	if s.opts.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.opts.Metrics))
	}

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.serveClient))
}

// serveClient sends a snapshot, then streams entry changes until the
// browser disconnects or the server shuts down.
func (s *Server) serveClient(conn *websocket.Conn) {
	defer conn.Close()

	c, ok := s.hub.register()
	if !ok {
		return
	}
	defer s.hub.unregister(c)

	snap := s.opts.Snapshot()
	first, err := json.Marshal(Message{Kind: KindSnapshot, Snapshot: &snap})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, first); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case data, ok := <-c.send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on opts.Bind and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Warn("live view server stopped", "error", err.Error())
		}
	}()
	s.log.Info("live view listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown disconnects clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.app.ShutdownWithContext(ctx)
}

// EntryAdded pushes a new draft entry to connected browsers.
func (s *Server) EntryAdded(entry session.Entry) {
	s.hub.broadcast(Message{Kind: KindAdded, Entry: &entry})
}

// EntryRefined pushes a refined entry to connected browsers.
func (s *Server) EntryRefined(entry session.Entry) {
	s.hub.broadcast(Message{Kind: KindRefined, Entry: &entry})
}

const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>lectern</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; line-height: 1.5; }
p.Streaming { color: #777; }
p.Refined { color: #111; }
small { color: #999; margin-right: .5rem; }
</style>
</head>
<body>
<h1>Lecture Transcript</h1>
<div id="entries"></div>
<script>
const entries = document.getElementById("entries");
function render(e) {
  let p = document.getElementById("e" + e.id);
  if (!p) {
    p = document.createElement("p");
    p.id = "e" + e.id;
    entries.appendChild(p);
  }
  p.className = e.status;
  p.innerHTML = "";
  const tag = document.createElement("small");
  tag.textContent = "[" + e.status + "]";
  p.appendChild(tag);
  p.appendChild(document.createTextNode(e.text));
  window.scrollTo(0, document.body.scrollHeight);
}
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.kind === "snapshot") {
    entries.innerHTML = "";
    (msg.snapshot.entries || []).forEach(render);
  } else if (msg.entry) {
    render(msg.entry);
  }
};
</script>
</body>
</html>
`
