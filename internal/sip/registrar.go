package sip

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"

	"github.com/voicegate/voicegate/internal/config"
)

// RegistrarStatus is the registration state towards the upstream trunk.
type RegistrarStatus string

const (
	StatusRegistered   RegistrarStatus = "registered"
	StatusRegistering  RegistrarStatus = "registering"
	StatusFailed       RegistrarStatus = "failed"
	StatusUnregistered RegistrarStatus = "unregistered"
)

// RegistrarState is a snapshot of the registration.
type RegistrarState struct {
	Status       RegistrarStatus
	LastError    string
	RetryAttempt int
	RegisteredAt *time.Time
	ExpiresAt    *time.Time
}

// Registrar keeps the gateway registered with the single upstream SIP
// trunk: initial REGISTER with digest auth, periodic refresh at 80% of the
// granted expiry, exponential backoff on failure and a best-effort
// un-register on shutdown.
type Registrar struct {
	client *sipgo.Client
	cfg    *config.Config
	logger *slog.Logger

	mu     sync.RWMutex
	state  RegistrarState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistrar creates the trunk registrar.
func NewRegistrar(ua *sipgo.UserAgent, cfg *config.Config, logger *slog.Logger) (*Registrar, error) {
	l := logger.With("subsystem", "registrar")
	client, err := sipgo.NewClient(ua,
		sipgo.WithClientLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip client: %w", err)
	}
	return &Registrar{
		client: client,
		cfg:    cfg,
		logger: l,
		state:  RegistrarState{Status: StatusUnregistered},
	}, nil
}

// Start launches the registration loop. The loop runs on a background
// context so it survives the caller's scope.
func (r *Registrar) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.mu.Lock()
	r.state.Status = StatusRegistering
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.registrationLoop(ctx)
	}()
}

// Stop cancels the loop and sends a final un-register.
func (r *Registrar) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	r.mu.RLock()
	registered := r.state.Status == StatusRegistered
	r.mu.RUnlock()

	if registered {
		unregCtx, unregCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer unregCancel()
		if _, err := r.sendRegister(unregCtx, 0); err != nil {
			r.logger.Warn("failed to un-register", "error", err)
		}
	}

	r.client.Close()
	r.mu.Lock()
	r.state.Status = StatusUnregistered
	r.mu.Unlock()
	r.logger.Info("trunk registration stopped")
}

// State returns a snapshot of the registration state.
func (r *Registrar) State() RegistrarState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Registrar) registrationLoop(ctx context.Context) {
	expiry := r.cfg.RegisterExpiry
	if expiry <= 0 {
		expiry = 300
	}

	r.logger.Info("starting trunk registration",
		"host", r.cfg.TrunkHost,
		"port", r.cfg.TrunkPort,
		"transport", r.cfg.TrunkTransport,
		"expiry", expiry,
	)

	backoff := newBackoff()

	for {
		grantedExpiry, err := r.sendRegister(ctx, expiry)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			retryDelay := backoff.next()
			r.logger.Error("trunk registration failed",
				"error", err,
				"attempt", backoff.attempt,
				"retry_in", retryDelay.String(),
			)

			r.mu.Lock()
			r.state.Status = StatusFailed
			r.state.LastError = err.Error()
			r.state.RetryAttempt = backoff.attempt
			r.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
				continue
			}
		}

		backoff.reset()
		now := time.Now()
		expiresAt := now.Add(time.Duration(grantedExpiry) * time.Second)
		r.mu.Lock()
		r.state.Status = StatusRegistered
		r.state.LastError = ""
		r.state.RetryAttempt = 0
		r.state.RegisteredAt = &now
		r.state.ExpiresAt = &expiresAt
		r.mu.Unlock()

		if grantedExpiry != expiry {
			r.logger.Info("trunk registered (server adjusted expiry)",
				"requested_expiry", expiry,
				"granted_expiry", grantedExpiry,
			)
		} else {
			r.logger.Info("trunk registered", "expires_in", grantedExpiry)
		}

		// Refresh at 80% of the granted expiry to absorb network delays.
		refreshInterval := time.Duration(float64(grantedExpiry)*0.8) * time.Second

		select {
		case <-ctx.Done():
			return
		case <-time.After(refreshInterval):
			r.logger.Debug("re-registering trunk")
		}
	}
}

// sendRegister sends one REGISTER with digest auth handling. On success it
// returns the server-granted expiry.
func (r *Registrar) sendRegister(ctx context.Context, expiry int) (int, error) {
	recipientStr := fmt.Sprintf("sip:%s:%d", r.cfg.TrunkHost, r.cfg.TrunkPort)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return 0, fmt.Errorf("parsing recipient uri: %w", err)
	}

	req := sip.NewRequest(sip.REGISTER, recipient)
	req.SetTransport(strings.ToUpper(r.cfg.TrunkTransport))

	username := r.cfg.TrunkUser
	aor := fmt.Sprintf("<sip:%s@%s>", username, r.cfg.TrunkHost)
	req.AppendHeader(sip.NewHeader("From", aor))
	req.AppendHeader(sip.NewHeader("To", aor))

	contactURI := fmt.Sprintf("<sip:%s@%s>", username, r.cfg.MediaIP())
	req.AppendHeader(sip.NewHeader("Contact", contactURI))
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expiry)))

	tx, err := r.client.TransactionRequest(ctx, req, sipgo.ClientRequestRegisterBuild)
	if err != nil {
		return 0, fmt.Errorf("sending register: %w", err)
	}

	res, err := getResponse(ctx, tx)
	tx.Terminate()
	if err != nil {
		return 0, fmt.Errorf("waiting for register response: %w", err)
	}

	if res.StatusCode == 401 || res.StatusCode == 407 {
		authHeader := "WWW-Authenticate"
		authzHeader := "Authorization"
		if res.StatusCode == 407 {
			authHeader = "Proxy-Authenticate"
			authzHeader = "Proxy-Authorization"
		}

		wwwAuth := res.GetHeader(authHeader)
		if wwwAuth == nil {
			return 0, fmt.Errorf("received %d but no %s header", res.StatusCode, authHeader)
		}

		chal, err := digest.ParseChallenge(wwwAuth.Value())
		if err != nil {
			return 0, fmt.Errorf("parsing auth challenge: %w", err)
		}

		authUser := r.cfg.TrunkUser
		if r.cfg.TrunkAuthUser != "" {
			authUser = r.cfg.TrunkAuthUser
		}

		cred, err := digest.Digest(chal, digest.Options{
			Method:   req.Method.String(),
			URI:      recipientStr,
			Username: authUser,
			Password: r.cfg.TrunkPassword,
		})
		if err != nil {
			return 0, fmt.Errorf("computing digest: %w", err)
		}

		authReq := req.Clone()
		authReq.RemoveHeader("Via")
		authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))

		tx2, err := r.client.TransactionRequest(ctx, authReq,
			sipgo.ClientRequestIncreaseCSEQ,
			sipgo.ClientRequestAddVia,
		)
		if err != nil {
			return 0, fmt.Errorf("sending authenticated register: %w", err)
		}

		res, err = getResponse(ctx, tx2)
		tx2.Terminate()
		if err != nil {
			return 0, fmt.Errorf("waiting for authenticated register response: %w", err)
		}
	}

	if res.StatusCode != 200 {
		return 0, fmt.Errorf("register failed with status %d %s", res.StatusCode, res.Reason)
	}

	// The registrar may shorten the requested expiry. Contact's expires
	// param wins over the Expires header.
	grantedExpiry := expiry
	if contactHdr := res.GetHeader("Contact"); contactHdr != nil {
		if parsed := parseContactExpires(contactHdr.Value()); parsed > 0 {
			grantedExpiry = parsed
		}
	} else if expiresHdr := res.GetHeader("Expires"); expiresHdr != nil {
		if parsed := parseExpiresHeader(expiresHdr.Value()); parsed > 0 {
			grantedExpiry = parsed
		}
	}

	return grantedExpiry, nil
}

// getResponse waits for the first response of a client transaction.
func getResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tx.Done():
		return nil, fmt.Errorf("transaction terminated: %w", tx.Err())
	case res := <-tx.Responses():
		return res, nil
	}
}

// parseContactExpires extracts the expires parameter from a Contact header
// value like <sip:user@host>;expires=3600.
func parseContactExpires(contactValue string) int {
	lower := strings.ToLower(contactValue)
	idx := strings.Index(lower, ";expires=")
	if idx < 0 {
		return 0
	}
	rest := contactValue[idx+len(";expires="):]

	end := strings.IndexAny(rest, ";,> \t")
	if end > 0 {
		rest = rest[:end]
	}

	val, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0
	}
	return val
}

// parseExpiresHeader parses an Expires header value.
func parseExpiresHeader(value string) int {
	val, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return val
}

// backoff implements exponential backoff with jitter for registration
// retries.
type backoff struct {
	attempt   int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func newBackoff() *backoff {
	return &backoff{
		baseDelay: 5 * time.Second,
		maxDelay:  5 * time.Minute,
	}
}

func (b *backoff) next() time.Duration {
	d := b.current()
	b.attempt++
	return d
}

func (b *backoff) current() time.Duration {
	d := b.baseDelay
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d > b.maxDelay {
			d = b.maxDelay
			break
		}
	}
	// ±20% jitter
	jitter := float64(d) * 0.2 * (2*rand.Float64() - 1)
	d += time.Duration(jitter)
	if d < 0 {
		d = b.baseDelay
	}
	return d
}

func (b *backoff) reset() {
	b.attempt = 0
}
