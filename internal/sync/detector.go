package sync

import (
	"context"
	"net/http"
	stdsync "sync"
	"time"
)

// Detector reports whether the device currently has connectivity to the
// remote API.
type Detector interface {
	Online(ctx context.Context) bool
}

// ProbeDetector answers by issuing a HEAD request against the API base URL.
// Any HTTP response at all counts as online; only a transport failure means
// offline. Results are cached briefly so a drain re-checking connectivity
// per entry does not turn into a probe storm.
type ProbeDetector struct {
	client   *http.Client
	cacheFor time.Duration

	mu         stdsync.Mutex
	baseURL    string
	lastProbe  time.Time
	lastOnline bool
}

func NewProbeDetector(baseURL string, probeTimeout, cacheFor time.Duration) *ProbeDetector {
	return &ProbeDetector{
		client:   &http.Client{Timeout: probeTimeout},
		cacheFor: cacheFor,
		baseURL:  baseURL,
	}
}

// SetBaseURL updates the probe target and invalidates the cached result.
func (d *ProbeDetector) SetBaseURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseURL = url
	d.lastProbe = time.Time{}
}

func (d *ProbeDetector) Online(ctx context.Context) bool {
	d.mu.Lock()
	base := d.baseURL
	if base == "" {
		d.mu.Unlock()
		return false
	}
	if time.Since(d.lastProbe) < d.cacheFor {
		online := d.lastOnline
		d.mu.Unlock()
		return online
	}
	d.mu.Unlock()

	online := d.probe(ctx, base)

	d.mu.Lock()
	d.lastProbe = time.Now()
	d.lastOnline = online
	d.mu.Unlock()
	return online
}

func (d *ProbeDetector) probe(ctx context.Context, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// StaticDetector is a fixed-answer detector for contexts without a probe
// target and for tests.
type StaticDetector bool

func (d StaticDetector) Online(context.Context) bool { return bool(d) }
