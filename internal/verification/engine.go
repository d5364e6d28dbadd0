package verification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/metrics"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/store"
	"github.com/abrezinsky/voterewards/pkg/ipcompat"
)

// maxBodySize caps how much of a verification response is read
const maxBodySize = 1 << 20

// Outcome is the result of a verification
type Outcome int

const (
	// Verified means the vote is accepted
	Verified Outcome = iota
	// Pending means no answer yet; the site has not called back
	Pending
	// Rejected means the site explicitly reported no vote
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Pending:
		return "pending"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Config controls the engine's policies
type Config struct {
	// IPCompatibility expands the voter IP to its dual-stack siblings before checking
	IPCompatibility bool
	// FailOpen admits the vote when a remote check fails with a transport error
	FailOpen bool
	// PingbackTTL is how long a received pingback waits to be consumed
	PingbackTTL time.Duration
	// Timeout bounds each outbound verification request
	Timeout time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		IPCompatibility: true,
		FailOpen:        true,
		PingbackTTL:     10 * time.Minute,
		Timeout:         5 * time.Second,
	}
}

// Request is a single verification attempt
type Request struct {
	VoteURL     string
	User        models.User
	IP          string
	ExplicitKey string
}

// Engine runs verifiers against remote sites
type Engine struct {
	log        logger.Logger
	httpClient *http.Client
	ips        ipcompat.Client
	flags      store.FlagStore
	cfg        Config
	metrics    *metrics.Metrics
}

// NewEngine creates an engine. A nil httpClient gets one bounded by cfg.Timeout;
// a nil ips client disables IP expansion.
func NewEngine(log logger.Logger, httpClient *http.Client, ips ipcompat.Client, flags store.FlagStore, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.PingbackTTL <= 0 {
		cfg.PingbackTTL = DefaultConfig().PingbackTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Engine{
		log:        log.With("component", "verification"),
		httpClient: httpClient,
		ips:        ips,
		flags:      flags,
		cfg:        cfg,
	}
}

// SetMetrics attaches collectors for verification outcomes
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Verify checks whether the vote described by req happened on v's site
func (e *Engine) Verify(ctx context.Context, v *Verifier, req Request) Outcome {
	start := time.Now()
	outcome := e.verify(ctx, v, req)
	e.metrics.ObserveVerification(outcome.String(), time.Since(start))

	e.log.Debug("Vote verification finished",
		"domain", v.Domain, "user", req.User.Name, "ip", req.IP, "outcome", outcome.String())
	return outcome
}

func (e *Engine) verify(ctx context.Context, v *Verifier, req Request) Outcome {
	key, ok := v.Key.resolve(req.VoteURL, req.ExplicitKey)
	if !ok {
		return Verified
	}

	for _, ip := range e.candidateIPs(ctx, req.IP) {
		matched, err := e.checkIP(ctx, v, key, ip, req.User)
		if err != nil {
			e.log.Warn("Vote verification failed",
				"domain", v.Domain, "ip", ip, "error", err, "fail_open", e.cfg.FailOpen)
			if e.cfg.FailOpen {
				return Verified
			}
			return Rejected
		}
		if matched {
			return Verified
		}
	}

	if v.HasPingback() {
		return Pending
	}
	return Rejected
}

// candidateIPs returns the addresses to try, falling back to the observed IP
func (e *Engine) candidateIPs(ctx context.Context, ip string) []string {
	if !e.cfg.IPCompatibility || e.ips == nil {
		return []string{ip}
	}

	ips, err := e.ips.Expand(ctx, ip)
	if err != nil {
		e.log.Warn("IP compatibility lookup failed", "ip", ip, "error", err)
		return []string{ip}
	}
	if len(ips) == 0 {
		return []string{ip}
	}
	return ips
}

func (e *Engine) checkIP(ctx context.Context, v *Verifier, key, ip string, user models.User) (bool, error) {
	if _, ok := v.Check.(Pingback); ok {
		if e.flags == nil {
			return false, fmt.Errorf("no pingback store configured")
		}
		return e.flags.Consume(ctx, store.PingbackKey(v.Domain, ip))
	}
	if v.Check == nil {
		return false, fmt.Errorf("verifier %s has no check", v.Domain)
	}
	if v.APIURL == "" {
		// Local predicates decide without a remote call
		if cb, ok := v.Check.(Callback); ok {
			return cb.Func != nil && cb.Func(nil, ip, user), nil
		}
		return false, fmt.Errorf("verifier %s has no api url", v.Domain)
	}

	resp, err := e.fetch(ctx, ExpandURL(v.APIURL, key, ip, user))
	if err != nil {
		return false, err
	}
	return evaluate(v.Check, resp, ip, user), nil
}

func (e *Engine) fetch(ctx context.Context, apiURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach verification api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	e.log.Debug("Verification response", "url", apiURL, "status", resp.StatusCode)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// HandlePingback records the vote confirmation carried by an incoming pingback
// and returns the voter IP it was recorded for. keys are the site keys the
// callback may carry when the verifier names a KeyParam.
func (e *Engine) HandlePingback(ctx context.Context, v *Verifier, r *http.Request, keys []string) (string, error) {
	pb, ok := v.Check.(Pingback)
	if !ok {
		return "", ErrNoPingback
	}
	if !pb.keyAccepted(r, keys) {
		e.log.Warn("Pingback rejected", "domain", v.Domain, "reason", "invalid key")
		return "", ErrInvalidPingbackKey
	}

	ip := pb.voterIP(r)
	if ip == "" {
		return "", ErrMissingIP
	}
	if e.flags == nil {
		return "", fmt.Errorf("no pingback store configured")
	}

	if err := e.flags.Mark(ctx, store.PingbackKey(v.Domain, ip), e.cfg.PingbackTTL); err != nil {
		return "", err
	}

	e.log.Info("Pingback received", "domain", v.Domain, "ip", ip)
	return ip, nil
}

// ExpandURL fills the API URL template. Values are query-escaped.
func ExpandURL(template, key, ip string, user models.User) string {
	return strings.NewReplacer(
		"{server}", url.QueryEscape(key),
		"{ip}", url.QueryEscape(ip),
		"{id}", url.QueryEscape(user.GameID),
		"{name}", url.QueryEscape(user.Name),
	).Replace(template)
}
