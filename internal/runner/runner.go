package runner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgryski/go-wyhash"
	"github.com/google/uuid"
	"github.com/goware/urlx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"kmsload/internal/kmspath"
	"kmsload/internal/metrics"
	"kmsload/internal/pacing"
	"kmsload/internal/report"
	"kmsload/internal/scenario"
	"kmsload/internal/stats"
)

// skipBackoff keeps an actor whose seed list is empty from spinning when its
// pacing policy has no delay.
const skipBackoff = 10 * time.Millisecond

// StatsSnapshot is sent over the channel
type StatsSnapshot struct {
	Requests uint64
	Success  uint64
	Fail     uint64
	Bytes    uint64
	Skipped  uint64
	Inflight int64

	// Pre-calculated percentiles for the UI (cheap copy)
	P50Ms float64
	P90Ms float64
	P99Ms float64
	MaxMs int64

	Elapsed time.Duration
	Done    bool
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot

// Sink receives one record per completed request.
type Sink interface {
	Write(report.Record) error
}

// Runner owns everything a run shares between actors: the feed, stats,
// the optional sink and metrics. Nothing here is package-level.
type Runner struct {
	Cfg     Config
	Feed    scenario.Feed
	Pacing  pacing.Spec
	Stats   *stats.Stats
	Client  *http.Client
	Sink    Sink
	Metrics *metrics.Collector
	Log     *zap.SugaredLogger
	Clock   pacing.Clock

	// Event Channel
	Updates StatsUpdateChan

	prefix  string
	seed    string
	limiter *rate.Limiter

	inflight int64
	issued   int64

	mu         sync.Mutex
	stopReason StopReason
	started    time.Time
	finished   time.Time
	done       chan struct{}
}

func NewRunner(cfg Config, feed scenario.Feed, pace pacing.Spec, log *zap.SugaredLogger, updates StatsUpdateChan) (*Runner, error) {
	if cfg.Users <= 0 {
		return nil, fmt.Errorf("users must be positive, got %d", cfg.Users)
	}
	if feed == nil {
		return nil, errors.New("runner needs a request feed")
	}
	if err := pace.Validate(); err != nil {
		return nil, fmt.Errorf("pacing: %w", err)
	}
	prefix, err := TargetPrefix(cfg.Host, cfg.BasePath)
	if err != nil {
		return nil, err
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	if cfg.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: t,
	}

	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := &Runner{
		Cfg:     cfg,
		Feed:    feed,
		Pacing:  pace,
		Stats:   stats.NewStats(),
		Client:  client,
		Log:     log,
		Clock:   pacing.SystemClock,
		Updates: updates,
		prefix:  prefix,
		seed:    cfg.Seed,
		done:    make(chan struct{}),
	}
	if r.seed == "" {
		r.seed = fmt.Sprint(time.Now().UnixNano())
	}
	if cfg.MaxRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}
	return r, nil
}

// TargetPrefix joins the host (scheme defaults to http) and the normalised
// base path into the prefix every request path is appended to.
func TargetPrefix(host, basePath string) (string, error) {
	if strings.TrimSpace(host) == "" {
		return "", errors.New("target host is required")
	}
	u, err := urlx.ParseWithDefaultScheme(strings.TrimSpace(host), "http")
	if err != nil {
		return "", fmt.Errorf("unable to parse host %q: %w", host, err)
	}
	hostPath := strings.TrimRight(u.EscapedPath(), "/")
	return u.Scheme + "://" + u.Host + hostPath + kmspath.NormalizeBasePath(basePath), nil
}

// URL resolves a request against the target.
func (r *Runner) URL(req scenario.Request) string {
	return r.prefix + req.Path
}

// StartTickLoop starts a goroutine that pushes stats updates
func (r *Runner) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate(false)
			}
		}
	}()
}

func (r *Runner) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests: atomic.LoadUint64(&r.Stats.Requests),
		Success:  atomic.LoadUint64(&r.Stats.Success),
		Fail:     atomic.LoadUint64(&r.Stats.Fail),
		Bytes:    atomic.LoadUint64(&r.Stats.Bytes),
		Skipped:  atomic.LoadUint64(&r.Stats.Skipped),
		Inflight: atomic.LoadInt64(&r.inflight),
		P50Ms:    r.Stats.GetP50(),
		P90Ms:    r.Stats.GetP90(),
		P99Ms:    r.Stats.GetP99(),
		MaxMs:    r.Stats.MaxMs(),
		Elapsed:  r.Elapsed(),
	}
}

func (r *Runner) sendUpdate(done bool) {
	s := r.Snapshot()
	s.Done = done

	// Non-blocking send
	select {
	case r.Updates <- s:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Run starts Cfg.Users actors and blocks until the duration elapses, the
// request budget is spent, an exhaustible feed drains, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if !r.started.IsZero() {
		r.mu.Unlock()
		return errors.New("runner already started")
	}
	r.started = time.Now()
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.Cfg.Duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, r.Cfg.Duration)
		defer cancelTimeout()
	}

	// Start Tick Loop for UI
	r.StartTickLoop(ctx, 200*time.Millisecond)

	r.Log.Infow("run starting",
		"target", r.prefix,
		"users", r.Cfg.Users,
		"pacing", r.Pacing.String(),
		"duration", r.Cfg.Duration,
		"max_requests", r.Cfg.MaxRequests,
	)

	// Draining the queue or spending the request budget halts issuing
	// only; requests already sent run to completion on ctx.
	issue, halt := context.WithCancel(ctx)
	defer halt()

	var wg sync.WaitGroup
	for i := 0; i < r.Cfg.Users; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.actor(ctx, issue, halt, id)
		}(i)
	}
	wg.Wait()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.setStop(StopDuration)
	default:
		r.setStop(StopCancelled)
	}

	r.mu.Lock()
	r.finished = time.Now()
	r.mu.Unlock()

	r.sendUpdate(true)
	close(r.done)

	r.Log.Infow("run finished",
		"reason", string(r.StopReason()),
		"requests", r.Stats.RequestCount(),
		"elapsed", r.Elapsed().Round(time.Millisecond),
	)
	return nil
}

// actor issues requests until issue is done. Requests go out on ctx, which
// only an external cancel or the duration limit ends.
func (r *Runner) actor(ctx, issue context.Context, halt context.CancelFunc, id int) {
	rng := r.actorRand(id)
	policy := r.Pacing.New(rng, r.Clock)
	actorID := uuid.New().String()

	for issue.Err() == nil {
		req, ok := r.Feed.Next(rng)
		if !ok {
			if r.Feed.Exhaustible() {
				if r.setStop(StopDrained) {
					r.Log.Warn("No more URLs to access")
				}
				halt()
				return
			}
			r.Stats.AddSkipped()
			r.Metrics.Skipped()
			if !pacing.WaitOrStop(issue, max(policy.Delay(), skipBackoff)) {
				return
			}
			continue
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(issue); err != nil {
				return
			}
		}
		if !r.reserve() {
			r.setStop(StopMaxRequests)
			halt()
			return
		}

		r.executeRequest(ctx, req, actorID)

		if !pacing.WaitOrStop(issue, policy.Delay()) {
			return
		}
	}
}

// actorRand gives each actor its own deterministic source; *rand.Rand is
// not safe to share.
func (r *Runner) actorRand(id int) *rand.Rand {
	key := fmt.Sprintf("%s/%d", r.seed, id)
	return rand.New(rand.NewSource(int64(wyhash.Hash([]byte(key), 2467825690))))
}

func (r *Runner) reserve() bool {
	if r.Cfg.MaxRequests <= 0 {
		return true
	}
	return atomic.AddInt64(&r.issued, 1) <= r.Cfg.MaxRequests
}

// setStop records the first stop reason; later ones are ignored.
func (r *Runner) setStop(reason StopReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopReason != StopNone {
		return false
	}
	r.stopReason = reason
	return true
}

func (r *Runner) executeRequest(ctx context.Context, req scenario.Request, actorID string) {
	target := r.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		r.Log.Errorw("unable to build request", "url", target, "error", err)
		return
	}

	atomic.AddInt64(&r.inflight, 1)
	r.Metrics.InflightAdd(1)
	defer func() {
		atomic.AddInt64(&r.inflight, -1)
		r.Metrics.InflightAdd(-1)
	}()

	start := time.Now()
	res := Result{
		TimeStamp: start,
		Name:      req.Name,
		Method:    http.MethodGet,
		URL:       target,
		ActorID:   actorID,
	}

	resp, err := r.Client.Do(httpReq)
	if err == nil {
		n, copyErr := io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		res.Status = resp.StatusCode
		res.Bytes = n
		res.Err = copyErr
	} else {
		res.Err = err
	}
	res.Elapsed = time.Since(start)
	res.Success = res.Err == nil && res.Status < 400

	if res.Err != nil && ctx.Err() != nil {
		// cut short by the stop signal, not a server failure
		return
	}
	r.record(res)
}

func (r *Runner) record(res Result) {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	r.Stats.Add(res.Name, res.Status, res.Success, res.Bytes, res.Elapsed, errText)
	r.Metrics.Observe(res.Name, res.Status, res.Bytes, res.Elapsed)

	if r.Sink != nil {
		err := r.Sink.Write(report.Record{
			Time:    res.TimeStamp,
			Method:  res.Method,
			URL:     res.URL,
			Elapsed: res.Elapsed,
			Bytes:   res.Bytes,
			Status:  res.Status,
		})
		if err != nil {
			r.Log.Warnw("unable to write result", "url", res.URL, "error", err)
		}
	}

	if res.Err != nil {
		r.Log.Debugw("request failed", "name", res.Name, "url", res.URL, "error", res.Err)
		return
	}
	r.Log.Debugw("request", "name", res.Name, "url", res.URL, "status", res.Status,
		"elapsed_ms", res.Elapsed.Milliseconds(), "bytes", res.Bytes)
}

func (r *Runner) GetInflight() int64 {
	return atomic.LoadInt64(&r.inflight)
}

// Done is closed once Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) StopReason() StopReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopReason
}

// Elapsed is the wall time since Run started, frozen once it finishes.
func (r *Runner) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.started.IsZero():
		return 0
	case !r.finished.IsZero():
		return r.finished.Sub(r.started)
	default:
		return time.Since(r.started)
	}
}

func (r *Runner) Target() string {
	return r.prefix
}

// Summary digests the run so far.
func (r *Runner) Summary() report.Summary {
	sum := report.Summarize(r.Stats, r.Elapsed())
	sum.Target = r.prefix
	sum.StopReason = string(r.StopReason())
	return sum
}
