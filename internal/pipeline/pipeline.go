package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/vidstamp/internal/domain/frames"
	"github.com/forPelevin/vidstamp/internal/metrics"
	"github.com/forPelevin/vidstamp/internal/ports"
	"github.com/forPelevin/vidstamp/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vidstamp/internal/ports/adapters/fsys"
	"github.com/forPelevin/vidstamp/internal/ports/adapters/openai"
	"github.com/forPelevin/vidstamp/internal/types"
	"github.com/forPelevin/vidstamp/internal/usecase"
)

type Config struct {
	Folder     string
	Quadrant   types.Quadrant
	UnixLabels bool
	// Apply performs renames; otherwise they are only reported.
	Apply bool

	Workers     int
	MaxInFlight int

	// PlaceholderPath replaces the built-in grey frame sent for frames that
	// cannot be decoded.
	PlaceholderPath string

	FFmpegPath  string
	FFprobePath string

	APIKey         string
	Model          string
	BaseURL        string
	AllowedHosts   []string
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	HTTPClient     *http.Client

	Logger      *zap.Logger
	Progress    io.Writer
	MetricsAddr string
}

func (c Config) Validate() error {
	if c.Folder == "" {
		return errors.New("folder is empty")
	}
	fi, err := os.Stat(c.Folder)
	if err != nil {
		return fmt.Errorf("stat folder: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("folder %s is not a directory", c.Folder)
	}
	if c.APIKey == "" {
		return errors.New("api key is empty")
	}
	if c.Quadrant != types.QuadrantNone && !c.Quadrant.Valid() {
		return fmt.Errorf("quadrant must be 1, 2, 3 or 4, got %d", c.Quadrant)
	}
	if c.Workers < 1 {
		return errors.New("workers must be >= 1")
	}
	if c.MaxInFlight < 1 {
		return errors.New("max in-flight model calls must be >= 1")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return openai.ValidateBaseURL(c.BaseURL, c.AllowedHosts)
}

type processor interface {
	Process(ctx context.Context, in usecase.Input) types.FileResult
}

// Run processes every .mp4 in cfg.Folder. Per-file failures are logged and
// counted; only setup problems are returned.
func Run(ctx context.Context, cfg Config) (types.Summary, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("run_id", uuid.NewString()))

	var placeholder image.Image
	if cfg.PlaceholderPath != "" {
		img, err := frames.LoadPlaceholder(cfg.PlaceholderPath)
		if err != nil {
			return types.Summary{}, err
		}
		placeholder = img
	}

	files, err := fsys.ListMP4(cfg.Folder)
	if err != nil {
		return types.Summary{}, err
	}

	// adapters
	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, log)
	reader := openai.New(openai.Config{
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		BaseURL:        cfg.BaseURL,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RequestTimeout: cfg.RequestTimeout,
		MaxInFlight:    cfg.MaxInFlight,
		HTTPClient:     cfg.HTTPClient,
		Logger:         log,
	})
	renamer := fsys.NewRenamer(cfg.Apply, log)

	uc := usecase.New(usecase.Deps{
		Video:   video,
		Reader:  reader,
		Renamer: renamer,
	})

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, cfg.MetricsAddr, log)
	}

	mode := "dry-run"
	if cfg.Apply {
		mode = "apply"
	}
	log.Info("starting batch",
		zap.String("folder", cfg.Folder),
		zap.Int("videos", len(files)),
		zap.Int("workers", cfg.Workers),
		zap.String("mode", mode),
	)

	sum := execute(ctx, cfg, uc, placeholder, files, log)

	log.Info("batch finished",
		zap.Int("total", sum.Total),
		zap.Int("renamed", sum.Renamed),
		zap.Int("dry_run", sum.DryRun),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func execute(
	ctx context.Context,
	cfg Config,
	p processor,
	placeholder image.Image,
	files []string,
	log *zap.Logger,
) types.Summary {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress != nil && len(files) > 0 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cfg.Progress),
			progressbar.OptionSetDescription("videos"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	var (
		mu  sync.Mutex
		sum = types.Summary{}
	)
	record := func(res types.FileResult) {
		mu.Lock()
		defer mu.Unlock()
		sum.Total++
		switch res.Outcome {
		case types.OutcomeRenamed:
			sum.Renamed++
		case types.OutcomeDryRun:
			sum.DryRun++
		case types.OutcomeSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()

			flog := log.With(zap.String("file", filepath.Base(f)))
			res := p.Process(ctx, usecase.Input{
				Path:        f,
				Quadrant:    cfg.Quadrant,
				UnixLabels:  cfg.UnixLabels,
				Placeholder: placeholder,
				Log:         flog,
			})
			report(flog, res)
			metrics.VideosProcessedTotal.WithLabelValues(string(res.Outcome)).Inc()
			record(res)
			return nil
		})
	}
	_ = g.Wait()

	if bar != nil {
		_ = bar.Finish()
	}
	if left := len(files) - sum.Total; left > 0 {
		log.Warn("interrupted, remaining videos not processed", zap.Int("remaining", left))
	}
	return sum
}

func report(log *zap.Logger, res types.FileResult) {
	switch res.Outcome {
	case types.OutcomeRenamed, types.OutcomeDryRun:
		log.Info("time range read",
			zap.String("start", res.Start),
			zap.String("end", res.End),
			zap.String("target", filepath.Base(res.Target)),
			zap.String("outcome", string(res.Outcome)),
		)
	case types.OutcomeSkipped:
		log.Warn("skipped", zap.Error(res.Err))
	default:
		log.Error("failed", zap.Error(res.Err))
	}
}

// ensure adapters implement ports
var _ ports.VideoDecoder = (*ffmpeg.Adapter)(nil)
var _ ports.TimestampReader = (*openai.Adapter)(nil)
var _ ports.Renamer = (*fsys.Renamer)(nil)
var _ processor = usecase.Usecase{}
