package server

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/auth"
	"github.com/stonehall/stonehall/pkg/chat"
	"github.com/stonehall/stonehall/pkg/config"
	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/pool"
	"github.com/stonehall/stonehall/pkg/sched"
	"github.com/stonehall/stonehall/pkg/world"
)

const (
	// DefaultViewDistance is the chunk radius streamed around players.
	DefaultViewDistance = 7

	poolWorkers = 4
	netWorkers  = 2

	keepAliveInterval = 15 * time.Second
	grayCleanInterval = 1 * time.Second
)

// initStep is an init/finalize pair run during startup. Finalizers of
// completed steps run in reverse order on failure and on shutdown.
type initStep struct {
	name string
	init func() error
	fini func()
}

// Server wires every subsystem together: the worker pool, scheduler,
// lighting engine, worlds, net workers, the listener and the
// connection/player registries.
type Server struct {
	cfg config.Config
	log zerolog.Logger

	pool     *pool.Pool
	sched    *sched.Scheduler
	lighting *world.Lighting
	auth     *auth.Authenticator
	metrics  *Metrics

	key    *rsa.PrivateKey
	pubDER []byte

	listener net.Listener
	workers  []*netWorker

	mu      sync.Mutex
	conns   []*Connection
	gray    []*Connection
	players map[int32]*Player

	commands map[string]Command

	uuidMu    sync.Mutex
	uuidCache map[string]uuid.UUID

	worlds    map[string]*world.World
	mainWorld *world.World

	viewDistance int32
	nextEID      atomic.Int32

	completed []initStep
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a stopped server around a configuration.
func New(cfg config.Config, log zerolog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log,
		pool:         pool.New(),
		sched:        sched.New(),
		lighting:     world.NewLighting(log),
		auth:         auth.New(log),
		players:      make(map[int32]*Player),
		commands:     make(map[string]Command),
		uuidCache:    make(map[string]uuid.UUID),
		worlds:       make(map[string]*world.World),
		viewDistance: DefaultViewDistance,
		stopCh:       make(chan struct{}),
	}
	s.metrics = newMetrics(func() float64 { return float64(s.lighting.QueueLen()) })
	s.registerDefaultCommands()
	return s
}

// SetViewDistance overrides the streamed chunk radius.
func (s *Server) SetViewDistance(r int32) { s.viewDistance = r }

// StopChan is closed when the server shuts down.
func (s *Server) StopChan() <-chan struct{} { return s.stopCh }

// NextEntityID allocates a server-unique entity id.
func (s *Server) NextEntityID() int32 {
	return s.nextEID.Add(1)
}

// LookupUUID resolves a username to its identity, consulting the cache
// first. In offline mode the identity is the v3 UUID of the name.
func (s *Server) LookupUUID(username string) uuid.UUID {
	s.uuidMu.Lock()
	defer s.uuidMu.Unlock()
	if id, ok := s.uuidCache[username]; ok {
		return id
	}
	id := game.OfflineUUID(username)
	s.uuidCache[username] = id
	return id
}

// CacheUUID stores an authenticated identity for a username.
func (s *Server) CacheUUID(username string, id uuid.UUID) {
	s.uuidMu.Lock()
	s.uuidCache[username] = id
	s.uuidMu.Unlock()
}

// MainWorld returns the server's primary world.
func (s *Server) MainWorld() *world.World { return s.mainWorld }

// Start runs the init chain: pool, lighting, keypair, worlds, net
// workers, listener, scheduler, metrics. A failing step rolls back everything already
// initialized, in reverse order.
func (s *Server) Start() error {
	steps := []initStep{
		{
			name: "thread pool",
			init: func() error { s.pool.Init(poolWorkers); return nil },
			fini: func() { s.pool.Stop() },
		},
		{
			name: "lighting",
			init: func() error { s.lighting.Start(); return nil },
			fini: func() { s.lighting.Stop() },
		},
		{
			name: "keypair",
			init: s.initKeypair,
			fini: func() {},
		},
		{
			name: "worlds",
			init: s.initWorlds,
			fini: s.finiWorlds,
		},
		{
			name: "net workers",
			init: func() error {
				for i := 0; i < netWorkers; i++ {
					s.workers = append(s.workers, &netWorker{id: i})
				}
				return nil
			},
			fini: func() { s.workers = nil },
		},
		{
			name: "listener",
			init: s.initListener,
			fini: func() { s.listener.Close() },
		},
		{
			name: "scheduler",
			init: s.initScheduler,
			fini: func() { s.sched.Stop() },
		},
		{
			name: "metrics",
			init: s.initMetrics,
			fini: func() {},
		},
	}

	for _, step := range steps {
		if err := step.init(); err != nil {
			s.log.Error().Err(err).Str("step", step.name).Msg("startup failed, rolling back")
			for i := len(s.completed) - 1; i >= 0; i-- {
				s.completed[i].fini()
			}
			s.completed = nil
			return fmt.Errorf("server: init %s: %w", step.name, err)
		}
		s.completed = append(s.completed, step)
	}

	go s.acceptLoop()
	s.log.Info().Int("port", s.cfg.Net.Port).Msg("server started")
	return nil
}

// Stop shuts the server down, finalizing subsystems in reverse
// initialization order.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		conns := append([]*Connection(nil), s.conns...)
		s.mu.Unlock()
		for _, c := range conns {
			c.Disconnect()
		}

		for i := len(s.completed) - 1; i >= 0; i-- {
			s.completed[i].fini()
		}
		s.completed = nil
		s.log.Info().Msg("server stopped")
	})
}

func (s *Server) initKeypair() error {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return err
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}
	s.key = key
	s.pubDER = der
	return nil
}

// initWorlds loads the main world from disk when a provider recognizes
// its directory, otherwise creates a fresh one.
func (s *Server) initWorlds() error {
	name := s.cfg.Worlds.MainWorld

	if format := world.RecognizeProvider(name); format != "" {
		prov, err := world.NewProvider(format)
		if err != nil {
			return err
		}
		if err := prov.Open(name); err != nil {
			return err
		}
		data, err := prov.LoadData()
		if err != nil {
			return fmt.Errorf("world %s: %w", name, err)
		}
		gen, err := world.NewGenerator(data.GeneratorName, data.Seed)
		if err != nil {
			return err
		}
		w := world.New(data, gen, s.pool, s.lighting, s.log)
		w.SetProvider(prov)
		s.worlds[name] = w
		s.mainWorld = w
		s.log.Info().Str("world", name).Str("format", format).Msg("world loaded")
		return nil
	}

	data := world.Data{
		Name:          name,
		GeneratorName: "flatgrass",
		Seed:          time.Now().UnixNano(),
		SpawnX:        0.5,
		SpawnY:        66.0,
		SpawnZ:        0.5,
		Width:         -1,
		Depth:         -1,
	}
	gen, err := world.NewGenerator(data.GeneratorName, data.Seed)
	if err != nil {
		return err
	}
	w := world.New(data, gen, s.pool, s.lighting, s.log)

	if prov, perr := world.NewProvider("anvil"); perr == nil {
		if cerr := prov.Create(name, data); cerr != nil {
			s.log.Error().Err(cerr).Str("world", name).Msg("world directory creation failed")
		} else {
			w.SetProvider(prov)
		}
	}

	s.worlds[name] = w
	s.mainWorld = w
	s.log.Info().Str("world", name).Msg("world created")
	return nil
}

func (s *Server) finiWorlds() {
	for name, w := range s.worlds {
		if err := w.SaveAll(); err != nil {
			s.log.Error().Err(err).Str("world", name).Msg("world save failed")
		}
		w.AsyncGen().Release()
	}
}

func (s *Server) initListener() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Net.Port))
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

func (s *Server) initScheduler() error {
	s.sched.Start()
	s.sched.Create(func(*sched.Task) { s.keepAliveSweep() }, nil).
		Run(keepAliveInterval, keepAliveInterval)
	s.sched.Create(func(*sched.Task) { s.grayCleanup() }, nil).
		Run(grayCleanInterval, grayCleanInterval)
	return nil
}

func (s *Server) initMetrics() error {
	addr := s.cfg.Net.MetricsAddr
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			s.log.Error().Err(err).Msg("metrics listener failed")
		}
	}()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		sock, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}
		}

		host, _, _ := net.SplitHostPort(sock.RemoteAddr().String())
		c := NewConnection(s, sock, host)

		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.mu.Unlock()
		s.metrics.Connections.Inc()

		c.InferProtocol()
		c.StartIO()
	}
}

// connectionClosed moves a connection from the live list to the gray
// list; actual destruction waits until no background job references
// its player.
func (s *Server) connectionClosed(c *Connection) {
	s.mu.Lock()
	for i, x := range s.conns {
		if x == c {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	s.gray = append(s.gray, c)
	s.mu.Unlock()
	s.metrics.Connections.Dec()
}

// grayCleanup destroys gray connections whose player either does not
// exist or is no longer referenced by in-flight work.
func (s *Server) grayCleanup() {
	s.mu.Lock()
	var remaining []*Connection
	for _, c := range s.gray {
		p := c.Player()
		if p == nil || p.Refc().Zero() {
			continue // destroyed
		}
		remaining = append(remaining, c)
	}
	s.gray = remaining
	s.mu.Unlock()
}

// GrayCount returns the number of connections pending destruction.
func (s *Server) GrayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gray)
}

func (s *Server) keepAliveSweep() {
	s.forEachPlayer(func(p *Player) { p.SendKeepAlive() })
}

func (s *Server) addPlayer(p *Player) {
	s.mu.Lock()
	s.players[p.eid] = p
	s.mu.Unlock()
	s.metrics.Players.Inc()
}

func (s *Server) removePlayer(p *Player) {
	s.mu.Lock()
	if _, ok := s.players[p.eid]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.players, p.eid)
	s.mu.Unlock()
	s.metrics.Players.Dec()

	p.LeaveWorld()

	s.forEachPlayer(func(other *Player) {
		other.conn.Send(other.conn.Protocol().Builder.MakePlayerListRemove(p.uuid))
	})
	s.BroadcastChat(chat.Colored(p.username+" left the game", "yellow"))
	s.log.Info().Str("username", p.username).Msg("player disconnected")
}

// PlayerCount returns the number of logged-in players.
func (s *Server) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Server) forEachPlayer(fn func(*Player)) {
	s.mu.Lock()
	players := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.mu.Unlock()
	for _, p := range players {
		fn(p)
	}
}

// BroadcastChat sends a chat component to every player.
func (s *Server) BroadcastChat(msg chat.Message) {
	s.forEachPlayer(func(p *Player) { p.Message(msg) })
}

func (s *Server) broadcastEntityTeleport(p *Player) {
	x, y, z := p.Position()
	yaw, pitch := p.Yaw(), p.Pitch()
	s.forEachPlayer(func(other *Player) {
		if other == p {
			return
		}
		other.conn.Send(other.conn.Protocol().Builder.MakeEntityTeleport(
			p.eid, x, y, z, yaw, pitch, true))
	})
}

// StatusJSON renders the server-list status document.
func (s *Server) StatusJSON() string {
	doc := map[string]any{
		"version": map[string]any{
			"name":     "1.8",
			"protocol": 47,
		},
		"players": map[string]any{
			"max":    s.cfg.General.MaxPlayers,
			"online": s.PlayerCount(),
			"sample": []any{},
		},
		"description": map[string]any{
			"text": s.cfg.General.MOTD,
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		s.log.Error().Err(err).Msg("status marshal failed")
		return "{}"
	}
	return string(b)
}

// Banner logs the startup banner.
func (s *Server) Banner() {
	host, _ := os.Hostname()
	s.log.Info().Msg("stonehall - a block-world server for protocol 47")
	s.log.Info().Str("host", host).Int("max-players", s.cfg.General.MaxPlayers).Msg("starting up")
}
