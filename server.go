package transitlake

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/transitlake/transitlake/storage"
)

// indexRefreshInterval is how often the server checks whether the
// operation day has rolled over.
const indexRefreshInterval = time.Minute

// Server ties the realtime engine together: nominal index, MQTT
// intake, flush loop and the HTTP read API. The reader connection
// serves HTTP and index builds, the writer belongs to the flusher.
type Server struct {
	cfg    *Config
	reader storage.Store
	writer storage.Store
	logger *zap.Logger
	loc    *time.Location

	queues  *Queues
	flusher *Flusher
	intake  *Intake
	cache   ResponseCache
	index   atomic.Pointer[NominalIndex]

	now func() time.Time
}

func NewServer(cfg *Config, reader, writer storage.Store, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		reader: reader,
		writer: writer,
		logger: logger,
		loc:    cfg.Location(),
		queues: NewQueues(),
		now:    time.Now,
	}

	s.cache = ResponseCache(nopCache{})
	if cfg.App.CachingEnabled {
		s.cache = NewMemcachedCache(cfg.Caching.ServerEndpoint, logger)
	}

	matcher := NewMatcher(cfg.Matching, cfg.App.Language, logger)
	s.flusher = NewFlusher(writer, s.queues, cfg.DataReviewPeriod(), logger)

	if cfg.App.MQTTEnabled {
		intake, err := NewIntake(cfg.MQTT, matcher, s.queues, s.Index, logger)
		if err != nil {
			return nil, err
		}
		s.intake = intake
	}

	return s, nil
}

// Index returns the current nominal index snapshot.
func (s *Server) Index() *NominalIndex {
	return s.index.Load()
}

func (s *Server) rebuildIndex() error {
	idx, err := BuildNominalIndex(s.reader, s.now().In(s.loc))
	if err != nil {
		return fmt.Errorf("building nominal index: %w", err)
	}
	s.index.Store(idx)
	s.logger.Info("nominal index built",
		zap.String("reference", idx.Reference),
		zap.Int("trips", len(idx.Trips)),
		zap.Int("routes", len(idx.Routes)),
		zap.Int("stops", len(idx.Stops)))
	return nil
}

// Run starts the engine and blocks until the context is canceled.
// Startup order: index, clear leftover realtime rows, flusher, MQTT.
// Shutdown runs in reverse so the final flush sees the last messages.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.rebuildIndex(); err != nil {
		return err
	}

	if err := s.writer.ClearRealtime(); err != nil {
		return fmt.Errorf("clearing realtime data: %w", err)
	}

	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.flusher.Run(flushCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.refreshIndex(ctx)
	}()

	if s.intake != nil {
		if err := s.intake.Connect(); err != nil {
			stopFlush()
			wg.Wait()
			return err
		}
	}

	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server listening", zap.String("addr", addr))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown failed", zap.Error(err))
	}

	if s.intake != nil {
		s.intake.Close()
	}

	stopFlush()
	wg.Wait()

	return runErr
}

// refreshIndex rebuilds the index when the operation day changes.
func (s *Server) refreshIndex(ctx context.Context) {
	ticker := time.NewTicker(indexRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idx := s.Index()
			today := s.now().In(s.loc).Format("20060102")
			if idx != nil && idx.Reference == today {
				continue
			}
			if err := s.rebuildIndex(); err != nil {
				s.logger.Error("rebuilding nominal index failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	if s.cfg.App.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}))
	}

	r.Get(s.cfg.App.Routing.ServiceAlerts, s.handleServiceAlerts)
	r.Get(s.cfg.App.Routing.TripUpdates, s.handleTripUpdates)
	r.Get(s.cfg.App.Routing.VehiclePositions, s.handleVehiclePositions)
	if s.cfg.App.MonitorEnabled {
		r.Get(s.cfg.App.Routing.Monitor, s.handleMonitor)
	}

	return r
}

func (s *Server) handleServiceAlerts(w http.ResponseWriter, r *http.Request) {
	ttl := time.Duration(s.cfg.Caching.ServiceAlertsTTLSeconds) * time.Second
	s.serveFeed(w, r, ttl, func(header *gtfsrt.FeedHeader) (*gtfsrt.FeedMessage, error) {
		alerts, periods, entities, err := s.reader.ServiceAlerts()
		if err != nil {
			return nil, err
		}
		return BuildServiceAlertsFeed(header, s.cfg.App.Language, alerts, periods, entities), nil
	})
}

func (s *Server) handleTripUpdates(w http.ResponseWriter, r *http.Request) {
	ttl := time.Duration(s.cfg.Caching.TripUpdatesTTLSeconds) * time.Second
	s.serveFeed(w, r, ttl, func(header *gtfsrt.FeedHeader) (*gtfsrt.FeedMessage, error) {
		updates, stus, err := s.reader.TripUpdates()
		if err != nil {
			return nil, err
		}
		return BuildTripUpdatesFeed(header, updates, stus), nil
	})
}

func (s *Server) handleVehiclePositions(w http.ResponseWriter, r *http.Request) {
	ttl := time.Duration(s.cfg.Caching.VehiclePositionsTTLSeconds) * time.Second
	s.serveFeed(w, r, ttl, func(header *gtfsrt.FeedHeader) (*gtfsrt.FeedMessage, error) {
		positions, err := s.reader.VehiclePositions()
		if err != nil {
			return nil, err
		}
		return BuildVehiclePositionsFeed(header, positions), nil
	})
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, ttl time.Duration,
	build func(*gtfsrt.FeedHeader) (*gtfsrt.FeedMessage, error)) {

	format := r.URL.Query().Get("f")
	if format != FormatJSON {
		format = FormatPBF
	}

	contentType := "application/octet-stream"
	if format == FormatJSON {
		contentType = "application/json"
	}

	key := fmt.Sprintf("%s-%s", r.URL.Path, format)
	if data, ok := s.cache.Get(key); ok {
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
		return
	}

	feed, err := build(NewFeedHeader(s.now(), s.loc))
	if err != nil {
		s.logger.Error("building feed failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data, contentType, err := MarshalFeed(feed, format)
	if err != nil {
		s.logger.Error("serializing feed failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.cache.Set(key, data, ttl)

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
