package submitter

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/SLAMon/SLAMon/internal/broker"
)

type options struct {
	logger         *slog.Logger
	interval       time.Duration
	requestTimeout time.Duration
	httpClient     *http.Client
	now            func() time.Time
}

// Option configures every Client a Registry creates.
type Option func(*options)

func WithLogger(l *slog.Logger) Option          { return func(o *options) { o.logger = l } }
func WithPollInterval(d time.Duration) Option   { return func(o *options) { o.interval = d } }
func WithRequestTimeout(d time.Duration) Option { return func(o *options) { o.requestTimeout = d } }
func WithHTTPClient(hc *http.Client) Option     { return func(o *options) { o.httpClient = hc } }
func WithClock(now func() time.Time) Option     { return func(o *options) { o.now = now } }

// Registry owns one Client per broker URL. Create it at startup, share it,
// and Close it at shutdown.
type Registry struct {
	opts options

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	o := options{
		logger:         slog.Default(),
		interval:       DefaultPollInterval,
		requestTimeout: 30 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{opts: o, clients: make(map[string]*Client)}
}

// Get returns the client for brokerURL, creating it on first use. URLs that
// differ only by a trailing slash share a client.
func (r *Registry) Get(brokerURL string) (*Client, error) {
	bopts := []broker.Option{broker.WithClock(r.opts.now)}
	if r.opts.httpClient != nil {
		bopts = append(bopts, broker.WithHTTPClient(r.opts.httpClient))
	}
	bopts = append(bopts, broker.WithLogger(r.opts.logger))
	bc, err := broker.New(brokerURL, bopts...)
	if err != nil {
		return nil, fmt.Errorf("submitter client: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[bc.BaseURL()]; ok {
		return c, nil
	}
	c := newClient(bc.BaseURL(), bc, r.opts)
	r.clients[bc.BaseURL()] = c
	return c, nil
}

// Reset drops every pending task on every client without delivering
// outcomes and forgets the clients. Clients handed out earlier reject new
// tasks afterwards.
func (r *Registry) Reset() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.reset()
	}
}

// Close releases every client. It is Reset under its shutdown name.
func (r *Registry) Close() error {
	r.Reset()
	return nil
}
