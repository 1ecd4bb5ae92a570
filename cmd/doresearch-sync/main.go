// Command doresearch-sync runs the paper-library sync core as a daemon. It
// keeps a paginated view of the paper collection in sync with the server,
// commits mutations optimistically, and polls active analysis jobs.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Chen-m-y/doresearch-sync/internal/config"
	"github.com/Chen-m-y/doresearch-sync/pkg/bus"
	"github.com/Chen-m-y/doresearch-sync/pkg/cache"
	"github.com/Chen-m-y/doresearch-sync/pkg/logging"
	"github.com/Chen-m-y/doresearch-sync/pkg/mutation"
	"github.com/Chen-m-y/doresearch-sync/pkg/pagination"
	"github.com/Chen-m-y/doresearch-sync/pkg/poller"
	"github.com/Chen-m-y/doresearch-sync/pkg/view"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Sync daemon failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := &serviceClient{
		baseURL: cfg.ServiceURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	fetch := pagination.FetchFunc(svc.fetchPapers)
	var invalidate func(context.Context)

	if cfg.CacheEnabled() {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Page cache enabled")

		cf := cache.NewCachingFetcher(fetch, cache.NewManager(redisClient), cache.FetcherConfig{
			Collection: "papers",
			TTL:        cfg.CacheTTL,
		})
		fetch = cf.Fetch
		invalidate = cf.Invalidate
	}

	b := bus.New()
	defer b.Close()

	coord, err := mutation.NewCoordinator(b, mutation.Config{
		GuardTTL: cfg.GuardTTL,
		Notify: func(message, kind string) {
			logger.Warn().Str("kind", kind).Msg(message)
		},
	})
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}

	ctrl := pagination.NewController(fetch, pagination.Config{PerPage: cfg.PerPage})
	papers, err := view.Mount(ctrl, b, coord, view.Config{
		Name:             "papers",
		TransitionWindow: cfg.TransitionWindow,
	})
	if err != nil {
		return fmt.Errorf("mount papers view: %w", err)
	}
	defer papers.Unmount()

	// Committed mutations evict cached pages so the next refresh sees
	// server truth.
	if invalidate != nil {
		unsub, err := b.Subscribe(func(bus.ChangeEvent) {
			invalidate(context.Background())
		})
		if err != nil {
			return fmt.Errorf("subscribe invalidator: %w", err)
		}
		defer unsub()
	}

	jobs := poller.New(svc.fetchJobs, poller.Config{
		Interval: cfg.PollInterval,
		IsActive: func(j poller.Job) bool {
			return j.Status == "pending" || j.Status == "running"
		},
		OnActive: func([]poller.Job) {
			ctrl.Refresh(ctx)
		},
	})
	defer jobs.Stop()

	ctrl.FirstPage(ctx)
	if state := ctrl.State(); state.Err != "" {
		logger.Warn().Str("error", state.Err).Msg("Initial page load failed")
	}
	jobs.Start()

	server := apiServer(cfg.MetricsBind, coord, svc)
	go func() {
		logger.Info().Str("bind", cfg.MetricsBind).Msg("Metrics listener started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics listener failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// apiServer exposes health, metrics, and a mutation endpoint that routes
// field patches through the optimistic coordinator.
func apiServer(bind string, coord *mutation.Coordinator, svc *serviceClient) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/papers/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Path[len("/papers/"):]
		if id == "" {
			http.Error(w, "missing paper id", http.StatusBadRequest)
			return
		}

		var patch pagination.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, fmt.Sprintf("decode patch: %v", err), http.StatusBadRequest)
			return
		}

		// Status changes affect meta counts shown next to each filter tab.
		_, metaChanged := patch["status"]
		if err := coord.Mutate(r.Context(), id, patch, metaChanged, svc.commitPatch); err != nil {
			http.Error(w, fmt.Sprintf("mutation failed: %v", err), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return &http.Server{Addr: bind, Handler: mux}
}

// serviceClient talks to the paper service over HTTP. It provides the fetch,
// commit, and job-check capabilities the sync core is parameterized with.
type serviceClient struct {
	baseURL string
	http    *http.Client
}

func (s *serviceClient) fetchPapers(ctx context.Context, params pagination.Params) ([]byte, error) {
	q := url.Values{}
	for k, vs := range params.Filters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("page", fmt.Sprint(params.Page))
	q.Set("per_page", fmt.Sprint(params.PerPage))

	return s.get(ctx, "/papers?"+q.Encode())
}

func (s *serviceClient) fetchJobs(ctx context.Context) ([]poller.Job, error) {
	body, err := s.get(ctx, "/jobs")
	if err != nil {
		return nil, err
	}
	var jobs []poller.Job
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

// commitPatch is the CommitFunc handed to Coordinator.Mutate.
func (s *serviceClient) commitPatch(ctx context.Context, entityID string, patch pagination.Patch) error {
	body, err := json.Marshal(patch.Known())
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.baseURL+"/papers/"+url.PathEscape(entityID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("patch %s: status %d", entityID, resp.StatusCode)
	}
	return nil
}

func (s *serviceClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
