// Package netmon observes network connectivity for the sync core.
// It exposes the last-known online state synchronously and a subscription
// stream of transitions that drives the sync scheduler.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/eventra/mobilesync/internal/logging"
)

// Prober checks reachability of the remote backend. Implementations must
// be safe for concurrent use.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes connectivity with a HEAD request against a
// reachability URL. Any response, including an error status, counts as
// online: the link is up even if the endpoint is unhappy.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber creates an HTTPProber with its own client and timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Monitor tracks connectivity and notifies subscribers on transitions.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu          sync.RWMutex
	initialized bool
	online      bool
	subscribers map[int]func(online bool)
	nextSubID   int

	listenMu sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Monitor polling the given prober.
func New(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		prober:      prober,
		interval:    interval,
		subscribers: make(map[int]func(online bool)),
	}
}

// Initialize performs the first connectivity check. Idempotent.
func (m *Monitor) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.mu.Unlock()

	m.setOnline(m.prober.Probe(ctx))
}

// IsOnline returns the last-known connectivity state synchronously.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a listener invoked on every transition and
// immediately once with the current state. Returns an unsubscribe func.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	current := m.online
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// StartListening starts the polling loop. Idempotent while running.
func (m *Monitor) StartListening(ctx context.Context) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.pollLoop(ctx, m.stopCh)
}

// StopListening stops the polling loop. The last-known state is retained.
func (m *Monitor) StopListening() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.stopCh = nil
}

func (m *Monitor) pollLoop(ctx context.Context, stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.setOnline(m.prober.Probe(ctx))
		}
	}
}

// SetOnline forces the connectivity state. Exposed for platform bridges
// that receive push connectivity callbacks instead of polling, and for
// tests.
func (m *Monitor) SetOnline(online bool) {
	m.setOnline(online)
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var subs []func(online bool)
	if changed {
		subs = make([]func(online bool), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})
	for _, fn := range subs {
		fn(online)
	}
}
