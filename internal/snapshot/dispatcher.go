// Package snapshot delivers alert snapshots to blob storage without blocking
// frame evaluation.
//
// Capture names the snapshot synchronously and queues the work. A pool of
// workers started by Serve encodes the frame, uploads it with retries behind
// a circuit breaker and finally archives the alert with the resulting URL.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/metrics"
)

var ErrQueueFull = errors.New("snapshot queue is full")

// Uploader is satisfied by *storage.R2Client.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// Archiver records an alert once its snapshot has been handled. snapshotURL is empty when no snapshot was stored.
type Archiver interface {
	ArchiveAlert(ctx context.Context, alert forecourt.Alert, camera forecourt.CameraIdentity, snapshotURL string) error
}

type Config struct {
	QueueSize       int
	Workers         int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	Prefix          string
	JPEGQuality     int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:       64,
		Workers:         2,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		Prefix:          "snapshots",
		JPEGQuality:     DefaultJPEGQuality,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

type job struct {
	alert    forecourt.Alert
	camera   forecourt.CameraIdentity
	image    image.Image
	filename string
}

type Dispatcher struct {
	cfg      Config
	uploader Uploader
	archiver Archiver
	encoder  JPEGEncoder
	breaker  *gobreaker.CircuitBreaker[string]
	jobs     chan job
	log      zerolog.Logger

	mu     sync.RWMutex
	camera forecourt.CameraIdentity
}

// NewDispatcher builds a dispatcher. uploader and archiver may be nil; the
// corresponding step is then skipped.
func NewDispatcher(cfg Config, uploader Uploader, archiver Archiver, camera forecourt.CameraIdentity, log zerolog.Logger) *Dispatcher {
	d := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = d.RetryBackoff
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = d.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = d.BreakerCooldown
	}

	logger := log.With().Str("component", "snapshot").Logger()

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "snapshot-upload",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("snapshot upload circuit breaker changed state")
		},
	})

	return &Dispatcher{
		cfg:      cfg,
		uploader: uploader,
		archiver: archiver,
		encoder:  JPEGEncoder{Quality: cfg.JPEGQuality},
		breaker:  breaker,
		jobs:     make(chan job, cfg.QueueSize),
		log:      logger,
		camera:   camera,
	}
}

func (d *Dispatcher) SetIdentity(camera forecourt.CameraIdentity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.camera = camera
}

func (d *Dispatcher) Identity() forecourt.CameraIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.camera
}

// Capture queues a snapshot for req without blocking. It returns the filename
// the snapshot will be stored under, or an empty name when there is no frame
// image or no storage to write it to.
func (d *Dispatcher) Capture(req forecourt.CaptureRequest) (string, error) {
	camera := d.Identity()

	j := job{alert: req.Alert, camera: camera, image: req.Image}
	if req.Image != nil && d.uploader != nil {
		j.filename = Filename(req.Alert, camera)
	}

	select {
	case d.jobs <- j:
		metrics.SnapshotRequests.WithLabelValues("queued").Inc()
		metrics.SnapshotQueueDepth.Set(float64(len(d.jobs)))
		return j.filename, nil
	default:
		metrics.SnapshotRequests.WithLabelValues("dropped").Inc()
		return "", fmt.Errorf("%w: %d jobs pending", ErrQueueFull, cap(d.jobs))
	}
}

// Serve runs the worker pool until ctx is canceled.
func (d *Dispatcher) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case j := <-d.jobs:
					metrics.SnapshotQueueDepth.Set(float64(len(d.jobs)))
					d.handle(ctx, j)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) String() string {
	return "snapshot-dispatcher"
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	url := d.store(ctx, j)
	if d.archiver == nil {
		return
	}

	archiveCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	if err := d.archiver.ArchiveAlert(archiveCtx, j.alert, j.camera, url); err != nil {
		d.log.Error().
			Err(err).
			Str("kind", string(j.alert.Kind)).
			Int64("track_id", j.alert.TrackID).
			Msg("failed to archive alert")
	}
}

// store encodes and uploads the snapshot and returns its URL, or "" when nothing was stored.
func (d *Dispatcher) store(ctx context.Context, j job) string {
	if j.filename == "" {
		if d.uploader == nil {
			metrics.SnapshotUploads.WithLabelValues("disabled").Inc()
		}
		return ""
	}

	data, err := d.encoder.Encode(j.image)
	if err != nil {
		metrics.SnapshotUploads.WithLabelValues("encode_error").Inc()
		d.log.Warn().
			Err(err).
			Str("filename", j.filename).
			Msg("failed to encode snapshot")
		return ""
	}

	key := ObjectKey(d.cfg.Prefix, j.filename)
	start := time.Now()
	url, err := d.upload(ctx, key, data)
	metrics.SnapshotUploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotUploads.WithLabelValues("failure").Inc()
		d.log.Error().
			Err(err).
			Str("key", key).
			Int("size", len(data)).
			Msg("failed to upload snapshot")
		return ""
	}

	metrics.SnapshotUploads.WithLabelValues("success").Inc()
	d.log.Info().
		Str("key", key).
		Str("url", url).
		Int("size", len(data)).
		Msg("snapshot uploaded")
	return url
}

func (d *Dispatcher) upload(ctx context.Context, key string, data []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		url, err := d.breaker.Execute(func() (string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()
			return d.uploader.Upload(attemptCtx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg")
		})
		if err == nil {
			return url, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		d.log.Debug().
			Err(err).
			Str("key", key).
			Int("attempt", attempt+1).
			Msg("snapshot upload attempt failed")
	}
	return "", fmt.Errorf("upload %s: %w", key, lastErr)
}
