package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/abrezinsky/voterewards/internal/auth"
	"github.com/abrezinsky/voterewards/internal/config"
	"github.com/abrezinsky/voterewards/internal/handlers"
	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/metrics"
	"github.com/abrezinsky/voterewards/internal/repository"
	"github.com/abrezinsky/voterewards/internal/rewards"
	"github.com/abrezinsky/voterewards/internal/serverid"
	"github.com/abrezinsky/voterewards/internal/services"
	"github.com/abrezinsky/voterewards/internal/store"
	"github.com/abrezinsky/voterewards/internal/verification"
	"github.com/abrezinsky/voterewards/internal/websocket"
	"github.com/abrezinsky/voterewards/pkg/ipcompat"
)

// secretSetting stores the generated server id secret when none is configured
const secretSetting = "server_token_secret"

// shutdownTimeout bounds how long Run waits for in-flight requests
const shutdownTimeout = 10 * time.Second

// App holds all application dependencies
type App struct {
	log      logger.Logger
	cfg      *config.Config
	handlers *handlers.Handlers
	repo     *repository.Repository
	redis    *redis.Client
	hub      *websocket.Hub
	metrics  *metrics.Metrics
	cancel   context.CancelFunc
}

// New creates and initializes a new application instance
func New(log logger.Logger, cfg *config.Config, adminAuth *auth.Auth) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid reset timezone: %w", err)
	}

	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Background work (leaderboard pushes, store sweeps) stops on Close
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		log:     log,
		cfg:     cfg,
		repo:    repo,
		metrics: metrics.New(prometheus.NewRegistry()),
		cancel:  cancel,
	}

	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	cooldowns, flags, err := a.openStores()
	if err != nil {
		return fail(err)
	}

	sweepers := []sweeper{adminAuth}
	if s, ok := cooldowns.(sweeper); ok {
		sweepers = append(sweepers, s)
	}
	if s, ok := flags.(sweeper); ok {
		sweepers = append(sweepers, s)
	}
	go a.sweep(ctx, cfg.SweepInterval, sweepers...)

	registry, err := loadRegistry(cfg.VerifiersPath)
	if err != nil {
		return fail(err)
	}
	log.Info("Vote verifiers loaded", "count", len(registry.Domains()))

	secret, err := a.serverSecret(ctx)
	if err != nil {
		return fail(err)
	}

	var ips ipcompat.Client
	if cfg.IPCompat {
		ips = ipcompat.NewHTTPClient(cfg.IPCompatURL, log)
	}
	engine := verification.NewEngine(log, nil, ips, flags, verification.Config{
		IPCompatibility: cfg.IPCompat,
		FailOpen:        cfg.FailOpen,
		PingbackTTL:     cfg.PingbackTTL,
		Timeout:         cfg.VerifyTimeout,
	})
	engine.SetMetrics(a.metrics)

	// Initialize services
	dispatcher := services.NewCommandDispatcher(log, repo)
	admissionService := services.NewAdmissionService(log, repo, cooldowns, registry, engine,
		rewards.NewSelector(nil), dispatcher, services.AdmissionConfig{
			CooldownNamespace: store.DefaultCooldownNamespace,
			FixedResetHosts:   cfg.FixedResetHosts,
			ResetLocation:     loc,
		})
	admissionService.SetMetrics(a.metrics)
	admissionService.SetSealer(serverid.NewSealer(secret))
	pingbackService := services.NewPingbackService(log, repo, registry, engine)
	adminService := services.NewAdminService(log, repo, registry)

	// Initialize WebSocket hub with DI
	a.hub = websocket.New(log, admissionService)
	a.hub.Start()
	admissionService.SetBroadcaster(a.hub)
	go a.hub.StartLeaderboard(ctx, cfg.LeaderboardInterval)

	var tokens *auth.VoterTokens
	if cfg.JWTSecret != "" {
		tokens = auth.NewVoterTokens(cfg.JWTSecret, cfg.TokenTTL)
	} else {
		log.Info("Voter tokens disabled (no -jwtsecret)")
	}

	a.handlers = handlers.New(
		admissionService,
		pingbackService,
		dispatcher,
		adminService,
		adminAuth,
		tokens,
		a.hub,
		a.metrics,
		log,
	)
	a.handlers.SetTrustedProxies(cfg.TrustedProxies)
	return a, nil
}

// openStores picks the Redis stores when a Redis URL is configured and the
// in-memory stores otherwise
func (a *App) openStores() (store.CooldownStore, store.FlagStore, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("Using in-memory cooldown store")
		return store.NewMemoryCooldownStore(), store.NewMemoryFlagStore(), nil
	}

	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.redis = client
	a.log.Info("Using redis cooldown store", "addr", opts.Addr, "db", opts.DB)
	return store.NewRedisCooldownStore(client), store.NewRedisFlagStore(client), nil
}

// sweeper drops expired in-memory entries
type sweeper interface {
	Sweep() int
}

// sweep periodically runs every sweeper until ctx is done
func (a *App) sweep(ctx context.Context, interval time.Duration, stores ...sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			for _, s := range stores {
				removed += s.Sweep()
			}
			if removed > 0 {
				a.log.Debug("Swept expired entries", "removed", removed)
			}
		}
	}
}

// loadRegistry reads verifier definitions from path, or the built-in set when path is empty
func loadRegistry(path string) (*verification.Registry, error) {
	var (
		verifiers []*verification.Verifier
		err       error
	)
	if path == "" {
		verifiers, err = verification.Defaults()
	} else {
		verifiers, err = verification.LoadDefinitionsFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load verifiers: %w", err)
	}
	return verification.NewRegistry(verifiers...), nil
}

// serverSecret returns the configured sealing secret, or the one stored in
// the database, generating and storing it on first start
func (a *App) serverSecret(ctx context.Context) (string, error) {
	if a.cfg.Secret != "" {
		return a.cfg.Secret, nil
	}

	existing, err := a.repo.GetSetting(ctx, secretSetting)
	if err != nil {
		return "", fmt.Errorf("failed to read server secret: %w", err)
	}
	if existing != "" {
		return existing, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate server secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := a.repo.SetSetting(ctx, secretSetting, secret); err != nil {
		return "", fmt.Errorf("failed to store server secret: %w", err)
	}
	a.log.Info("Generated server id secret")
	return secret, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close redis client", "error", err)
		}
		a.redis = nil
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
		a.repo = nil
	}
}

// Run serves HTTP on addr until ctx is cancelled, then drains in-flight requests
func (a *App) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	ip := getPreferredIP(realNetworkProvider{})
	baseURL := fmt.Sprintf("http://%s:%d", ip, ln.Addr().(*net.TCPAddr).Port)
	a.log.Info("Server starting", "url", baseURL)
	a.log.Info("Vote sites", "url", baseURL+"/api/vote/sites")
	a.log.Info("Live votes", "url", strings.Replace(baseURL, "http", "ws", 1)+"/ws")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("Server shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

// realInterface wraps a real net.Interface
type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

// realNetworkProvider implements networkProvider using actual net package
type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the address the startup log advertises.
// Private IPv4 addresses win, then any non-loopback IPv4 address, then localhost.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			candidates = append(candidates, ip)
		}
	}

	for _, ip := range candidates {
		if ip.IsPrivate() {
			return ip.String()
		}
	}
	if len(candidates) > 0 {
		return candidates[0].String()
	}
	return "localhost"
}
