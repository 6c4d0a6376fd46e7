// Package company is the library surface described in SPEC_FULL §6:
// the single entry point a host application (or the excluded CLI)
// uses to stand up a node, create agents, send messages, manage
// groups, connect to peers, and observe conversation activity. It
// wires together every core package — log, directory, groups, bus,
// router, transport, prompt view, tool runtime, LLM gateway, and agent
// runtime — into one cohesive node.
package company

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/boardroom-dev/boardroom/pkg/bus"
	"github.com/boardroom-dev/boardroom/pkg/colog"
	"github.com/boardroom-dev/boardroom/pkg/directory"
	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/groups"
	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/llm"
	"github.com/boardroom-dev/boardroom/pkg/promptview"
	"github.com/boardroom-dev/boardroom/pkg/router"
	"github.com/boardroom-dev/boardroom/pkg/runtime"
	"github.com/boardroom-dev/boardroom/pkg/telemetry"
	"github.com/boardroom-dev/boardroom/pkg/tool"
	"github.com/boardroom-dev/boardroom/pkg/transport"
)

// Mode is an agent's autonomy mode (§6: "mode: Passive|Active").
type Mode int

const (
	// Passive agents only run a turn in response to an inbound event.
	Passive Mode = iota
	// Active agents additionally self-wake on a bounded jittered
	// interval so they can initiate conversation unprompted.
	Active
)

// Config builds a Company (§6's "build a company" configuration).
type Config struct {
	// Self identifies this node in the federation.
	Self ident.NodeId
	// OwnEndpoint is this node's externally reachable transport
	// address. New does not use it, and it is not announced: announce
	// envelopes carry only this node's id and its local agents.
	OwnEndpoint string
	// ListenAddress is the local address the transport HTTP server
	// binds to. Empty disables serving inbound peer traffic —
	// appropriate for a single-node deployment with no SeedPeers.
	ListenAddress string
	// SeedPeers are remote nodes to gossip presence with from startup.
	SeedPeers []transport.Peer
	// DefaultLLMBinding is registered under its own Name() and used by
	// any agent whose AgentSpec doesn't name a different binding.
	DefaultLLMBinding llm.Binding
	// Log is the Append-Only Log driver. Nil defaults to an in-memory
	// log, matching §6's "swapping drivers must not change observable
	// behavior".
	Log eventlog.Log
	// Metrics is optional; nil disables metrics recording entirely.
	Metrics telemetry.Recorder
	// Logger is optional; nil uses colog's default.
	Logger *slog.Logger
	// MaxToolIterations overrides K in §4.10's bounded reasoning loop.
	// <= 0 uses runtime.DefaultMaxToolIterations.
	MaxToolIterations int
}

// Company is one running node of the federation.
type Company struct {
	self ident.NodeId

	dir       *directory.Directory
	groupReg  *groups.Registry
	bus       *bus.Bus
	log       eventlog.Log
	llmReg    *llm.Registry
	tools     *tool.Runtime
	views     *promptview.Builder
	router    *router.Router
	scheduler *runtime.Scheduler
	node      *transport.Node
	server    *transport.Server
	metrics   telemetry.Recorder
	logger    *slog.Logger

	defaultLLMBinding string
	listenAddress     string
	httpServer    *http.Server

	mu     sync.RWMutex
	agents map[ident.AgentId]runtime.AgentConfig
}

// New builds a Company from cfg, ready for CreateAgent and Start.
func New(cfg Config) (*Company, error) {
	if cfg.Self == "" {
		return nil, fmt.Errorf("company: Config.Self is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = colog.GetLogger()
	}

	log := cfg.Log
	if log == nil {
		log = eventlog.NewMemoryLog()
	}

	dir := directory.New()
	groupReg := groups.New(log)
	msgBus := bus.New(0, cfg.Metrics)

	client := transport.NewClient(cfg.Self, 5*time.Second)
	node := transport.NewNode(cfg.Self, client, dir, cfg.SeedPeers, logger)

	rtr := router.New(cfg.Self, dir, groupReg, msgBus, log, node, cfg.Metrics, logger)

	server := transport.NewServer(cfg.Self, rtr, dir, cfg.Metrics, logger)

	views, err := promptview.New(log, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("company: build context builder: %w", err)
	}

	llmReg := llm.NewRegistry()
	var defaultBindingName string
	if cfg.DefaultLLMBinding != nil {
		if err := llmReg.RegisterBinding(cfg.DefaultLLMBinding); err != nil {
			return nil, fmt.Errorf("company: register default LLM binding: %w", err)
		}
		defaultBindingName = cfg.DefaultLLMBinding.Name()
	}

	tools := tool.New(0)
	engine := runtime.NewEngine(views, llmReg, tools, rtr, log, cfg.Metrics, logger, cfg.MaxToolIterations)
	scheduler := runtime.NewScheduler(cfg.Self, engine, msgBus, logger)

	return &Company{
		self:          cfg.Self,
		dir:           dir,
		groupReg:      groupReg,
		bus:           msgBus,
		log:           log,
		llmReg:        llmReg,
		tools:         tools,
		views:         views,
		router:        rtr,
		scheduler:     scheduler,
		node:          node,
		server:        server,
		metrics:           cfg.Metrics,
		logger:            logger,
		defaultLLMBinding: defaultBindingName,
		listenAddress:     cfg.ListenAddress,
		agents:            make(map[ident.AgentId]runtime.AgentConfig),
	}, nil
}

// RegisterTool adds t to the node's Tool Runtime, making it available
// to any agent whose allow-list permits it.
func (c *Company) RegisterTool(t tool.Tool) error {
	return c.tools.Register(t)
}

// RegisterLLMBinding adds binding under its own Name(), so an
// AgentSpec can reference it via LLMBinding.
func (c *Company) RegisterLLMBinding(binding llm.Binding) error {
	return c.llmReg.RegisterBinding(binding)
}

// Start launches the transport HTTP server (if ListenAddress is set)
// and the peer presence-refresh loop, returning once both are
// running. It does not block; cancelling ctx stops the node.
func (c *Company) Start(ctx context.Context) error {
	if c.listenAddress != "" {
		c.httpServer = &http.Server{Addr: c.listenAddress, Handler: c.server.Handler()}
		errCh := make(chan error, 1)
		go func() {
			if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		select {
		case err := <-errCh:
			return fmt.Errorf("company: transport server failed to start: %w", err)
		case <-time.After(50 * time.Millisecond):
		}
	}

	go c.node.Run(ctx)

	go func() {
		<-ctx.Done()
		if c.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.httpServer.Shutdown(shutdownCtx)
		}
	}()

	return nil
}
