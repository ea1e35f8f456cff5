// Package collector feeds the monitor from a gNMI target. It subscribes to the
// configured paths in SAMPLE mode and caches the latest numeric value per
// metric for the telemetry Sampler.
package collector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultDialTimeout       = 10 * time.Second
	defaultBackoffMin        = 2 * time.Second
	defaultBackoffMax        = 120 * time.Second
	defaultReconnectCooldown = 5 * time.Second
)

// Backoff holds backoff configuration
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// TargetHealth tracks connection state for the telemetry target
type TargetHealth struct {
	Target         string    `json:"target"`
	Connected      bool      `json:"connected"`
	LastUpdate     time.Time `json:"last_update,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	ReconnectCount int       `json:"reconnect_count"`
	UpdateCount    int64     `json:"update_count"`
	SyncReceived   bool      `json:"sync_received"`
	LastPath       string    `json:"last_path,omitempty"`
	LastValue      string    `json:"last_value,omitempty"`
	ConnectedSince time.Time `json:"connected_since,omitempty"`
}

type binding struct {
	pattern *gnmi.Path
	metric  string
	scale   float64
}

// Collector manages the gNMI subscription that backs the telemetry sampler
type Collector struct {
	target            string
	username          string
	password          string
	tlsConfig         config.TLSConfig
	sampleInterval    time.Duration
	bindings          []binding
	cache             *Cache
	client            gnmi.GNMI_SubscribeClient
	conn              *grpc.ClientConn
	logger            zerolog.Logger
	ctx               context.Context
	cancel            context.CancelFunc
	errors            chan error
	backoff           Backoff
	dialTimeout       time.Duration
	reconnectCooldown time.Duration
	mu                sync.RWMutex
	health            TargetHealth
}

// NewCollector creates a collector for cfg writing readings into cache
func NewCollector(cfg config.TelemetryConfig, cache *Cache, logger zerolog.Logger) (*Collector, error) {
	bindings := make([]binding, 0, len(cfg.Paths))
	for _, p := range cfg.Paths {
		pattern, err := parsePath(p.Path)
		if err != nil {
			return nil, fmt.Errorf("telemetry path %s: %w", p.Path, err)
		}
		scale := p.Scale
		if scale == 0 {
			scale = 1
		}
		bindings = append(bindings, binding{pattern: pattern, metric: p.Metric, scale: scale})
	}

	dialTimeout := cfg.Timeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	username, password := cfg.Credentials()
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		target:            cfg.Target,
		username:          username,
		password:          password,
		tlsConfig:         cfg.TLS,
		sampleInterval:    cfg.SampleInterval,
		bindings:          bindings,
		cache:             cache,
		logger:            logger.With().Str("component", "collector").Str("target", cfg.Target).Logger(),
		ctx:               ctx,
		cancel:            cancel,
		errors:            make(chan error, 1),
		backoff:           Backoff{Min: defaultBackoffMin, Max: defaultBackoffMax},
		dialTimeout:       dialTimeout,
		reconnectCooldown: defaultReconnectCooldown,
		health:            TargetHealth{Target: cfg.Target},
	}, nil
}

// Errors returns the error channel
func (c *Collector) Errors() <-chan error {
	return c.errors
}

// Health returns the current health status
func (c *Collector) Health() TargetHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// Done returns a channel that is closed when the collector is shut down
func (c *Collector) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Run connects and keeps the subscription alive, reconnecting after a lost
// stream, until ctx is cancelled or Close is called.
func (c *Collector) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		if err := c.Connect(); err != nil {
			select {
			case <-c.Done():
				return nil
			default:
				return err
			}
		}

		select {
		case <-c.Done():
			return nil
		case err := <-c.errors:
			c.mu.Lock()
			c.health.Connected = false
			c.health.LastError = err.Error()
			c.mu.Unlock()

			c.logger.Warn().
				Err(err).
				Dur("cooldown", c.reconnectCooldown).
				Msg("Telemetry stream lost, will reconnect")

			select {
			case <-c.Done():
				return nil
			case <-time.After(c.reconnectCooldown):
			}
		}
	}
}

// Connect establishes a gNMI connection to the target with retry logic
func (c *Collector) Connect() error {
	// stale sessions otherwise accumulate on the target
	c.closeExisting()

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}

		err := c.connectOnce()
		if err == nil {
			c.mu.Lock()
			c.health.Connected = true
			c.health.LastError = ""
			c.health.SyncReceived = false
			c.health.ConnectedSince = time.Now()
			c.mu.Unlock()
			return nil
		}

		attempt++
		backoff := c.backoffDuration(attempt)
		c.mu.Lock()
		c.health.Connected = false
		c.health.LastError = err.Error()
		c.health.ReconnectCount++
		c.mu.Unlock()

		c.logger.Warn().
			Err(err).
			Dur("backoff", backoff).
			Int("attempt", attempt).
			Msg("gNMI connection failed, retrying")

		select {
		case <-time.After(backoff):
			continue
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

func (c *Collector) closeExisting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		_ = c.client.CloseSend()
		c.client = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// connectOnce attempts a single connection
func (c *Collector) connectOnce() error {
	c.logger.Info().Msg("Connecting to gNMI target")

	dialCtx, dialCancel := context.WithTimeout(c.ctx, c.dialTimeout)
	defer dialCancel()

	opts, err := c.dialOptions()
	if err != nil {
		return fmt.Errorf("dial options: %w", err)
	}

	// WithBlock keeps the deferred cancel from tearing down a half-open dial
	conn, err := grpc.DialContext(dialCtx, c.target, append(opts, grpc.WithBlock())...)
	if err != nil {
		return fmt.Errorf("failed to dial gNMI server: %w", err)
	}

	subClient, err := gnmi.NewGNMIClient(conn).Subscribe(c.ctx)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create subscribe client: %w", err)
	}

	if err := subClient.Send(c.subscribeRequest()); err != nil {
		_ = subClient.CloseSend()
		conn.Close()
		return fmt.Errorf("failed to start subscription: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.client = subClient
	c.mu.Unlock()

	go c.receiveUpdates(subClient)

	c.logger.Info().Int("paths", len(c.bindings)).Msg("gNMI subscription established")
	return nil
}

// dialOptions builds gRPC dial options
func (c *Collector) dialOptions() ([]grpc.DialOption, error) {
	creds, err := c.transportCredentials()
	if err != nil {
		return nil, err
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
	}
	if c.username != "" || c.password != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&basicAuth{username: c.username, password: c.password}))
	}
	return opts, nil
}

// transportCredentials returns appropriate transport credentials
func (c *Collector) transportCredentials() (credentials.TransportCredentials, error) {
	if !c.tlsConfig.Enabled {
		return insecure.NewCredentials(), nil
	}

	certPool, err := loadCertPool(c.tlsConfig.CAFile)
	if err != nil {
		return nil, err
	}
	certs, err := loadClientCert(c.tlsConfig.CertFile, c.tlsConfig.KeyFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		RootCAs:            certPool,
		Certificates:       certs,
		ServerName:         c.tlsConfig.ServerName,
		InsecureSkipVerify: c.tlsConfig.InsecureSkipVerify,
	}), nil
}

// loadCertPool loads CA certificates. An empty file means the system pool.
func loadCertPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("invalid ca certs in %s", caFile)
	}
	return pool, nil
}

// loadClientCert loads client certificate and key
func loadClientCert(certFile, keyFile string) ([]tls.Certificate, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	return []tls.Certificate{cert}, nil
}

// basicAuth implements gRPC PerRPCCredentials for basic auth
type basicAuth struct {
	username string
	password string
}

func (b *basicAuth) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	if b.username == "" && b.password == "" {
		return nil, nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(b.username + ":" + b.password))
	return map[string]string{
		"authorization": "Basic " + encoded,
	}, nil
}

func (b *basicAuth) RequireTransportSecurity() bool {
	return false
}

// backoffDuration calculates exponential backoff with jitter
func (c *Collector) backoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return c.backoff.Min
	}
	backoff := c.backoff.Min << attempt
	if backoff > c.backoff.Max || backoff <= 0 {
		backoff = c.backoff.Max
	}
	jitter := time.Duration(rand.Int63n(int64(c.backoff.Min)))
	return backoff + jitter
}

// subscribeRequest builds one SAMPLE subscription per configured path
func (c *Collector) subscribeRequest() *gnmi.SubscribeRequest {
	subscriptions := make([]*gnmi.Subscription, 0, len(c.bindings))
	for _, b := range c.bindings {
		subscriptions = append(subscriptions, &gnmi.Subscription{
			Path:           b.pattern,
			Mode:           gnmi.SubscriptionMode_SAMPLE,
			SampleInterval: uint64(c.sampleInterval.Nanoseconds()),
		})
	}

	return &gnmi.SubscribeRequest{
		Request: &gnmi.SubscribeRequest_Subscribe{
			Subscribe: &gnmi.SubscriptionList{
				Subscription: subscriptions,
				Mode:         gnmi.SubscriptionList_STREAM,
				Encoding:     gnmi.Encoding_JSON_IETF,
			},
		},
	}
}

// receiveUpdates reads the stream until it fails; Run reconnects afterwards
func (c *Collector) receiveUpdates(client gnmi.GNMI_SubscribeClient) {
	for {
		resp, err := client.Recv()
		if err != nil {
			if c.ctx.Err() == nil {
				c.emitError(fmt.Errorf("receive update: %w", err))
			}
			return
		}

		switch v := resp.Response.(type) {
		case *gnmi.SubscribeResponse_Update:
			c.handleNotification(v.Update)
		case *gnmi.SubscribeResponse_Error:
			c.emitError(fmt.Errorf("subscribe error: %s", v.Error.GetMessage()))
			return
		case *gnmi.SubscribeResponse_SyncResponse:
			c.logger.Info().Msg("gNMI subscription sync complete")
			c.mu.Lock()
			c.health.LastUpdate = time.Now()
			c.health.SyncReceived = true
			c.mu.Unlock()
		}
	}
}

// handleNotification caches every update that matches a configured path
func (c *Collector) handleNotification(notif *gnmi.Notification) {
	if notif == nil {
		return
	}
	ts := time.Unix(0, notif.Timestamp).UTC()
	if notif.Timestamp == 0 {
		ts = time.Now().UTC()
	}

	var lastPath, lastValue string
	for _, update := range notif.Update {
		full := joinPath(notif.Prefix, update.Path)
		fullPath := pathToString(full)
		lastPath = fullPath
		lastValue = typedValueToString(update.Val)

		for _, b := range c.bindings {
			if !matchPath(b.pattern, full) {
				continue
			}
			v, ok := typedValueToFloat(update.Val)
			if ok {
				v *= b.scale
				ok = isFinite(v)
			}
			if !ok {
				c.logger.Debug().
					Str("path", fullPath).
					Str("value", lastValue).
					Msg("Ignoring non-numeric or non-finite telemetry value")
				break
			}
			c.cache.Set(b.metric, Reading{Value: v, At: ts, Path: fullPath})
			c.logger.Debug().
				Str("path", fullPath).
				Str("metric", b.metric).
				Float64("value", v).
				Msg("Telemetry reading cached")
			break
		}
	}

	c.mu.Lock()
	c.health.LastUpdate = ts
	c.health.UpdateCount++
	if lastPath != "" {
		c.health.LastPath = lastPath
		c.health.LastValue = lastValue
	}
	c.mu.Unlock()
}

// emitError sends an error to the error channel
func (c *Collector) emitError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// TestConnection performs a one-shot Capabilities request to verify the
// target is reachable. Returns the supported models count and gNMI version.
func (c *Collector) TestConnection(ctx context.Context) (int, string, error) {
	dialCtx, dialCancel := context.WithTimeout(ctx, c.dialTimeout)
	defer dialCancel()

	opts, err := c.dialOptions()
	if err != nil {
		return 0, "", fmt.Errorf("dial options: %w", err)
	}

	conn, err := grpc.DialContext(dialCtx, c.target, opts...)
	if err != nil {
		return 0, "", fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	capCtx, capCancel := context.WithTimeout(ctx, c.dialTimeout)
	defer capCancel()

	resp, err := gnmi.NewGNMIClient(conn).Capabilities(capCtx, &gnmi.CapabilityRequest{})
	if err != nil {
		return 0, "", fmt.Errorf("capabilities request failed: %w", err)
	}

	version := resp.GetGNMIVersion()
	modelCount := len(resp.GetSupportedModels())

	c.logger.Info().
		Int("models", modelCount).
		Str("gnmi_version", version).
		Msg("Connection test successful")

	return modelCount, version, nil
}

// Close stops the collector and closes the gNMI connection
func (c *Collector) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		_ = c.client.CloseSend()
		c.client = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
