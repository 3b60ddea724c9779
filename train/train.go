package train

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"BoardKP/logger"
	"BoardKP/model"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Options configures a full training run.
type Options struct {
	Data     string  `validate:"required"`
	Out      string  `validate:"required"`
	Backbone string  `validate:"required"`
	Epochs   int     `validate:"gt=0"`
	Batch    int     `validate:"gt=0"`
	LR       float64 `validate:"gt=0"`
	Img      int     `validate:"gt=0"`
	Seed     int64
	Workers  int `validate:"gte=0"`
	// AugCopies is the number of jittered copies added per training image, 0 disables augmentation.
	AugCopies int `validate:"gte=0"`
	Version   string
	OnEpoch   func(Epoch)
}

// DefaultOptions fills every tunable with its default.
func DefaultOptions() Options {
	return Options{
		Epochs:    DefaultEpochs,
		Batch:     DefaultBatchSize,
		LR:        DefaultLR,
		Img:       320,
		Seed:      42,
		AugCopies: 1,
	}
}

// Result is a finished run.
type Result struct {
	Artifacts
	History History
	Train   int
	Val     int
}

var validate = validator.New()

// Run discovers samples under opts.Data, extracts backbone features, fits the head and exports
// the model into <Out>/<Version>.
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := validate.Struct(opts); err != nil {
		return Result{}, err
	}
	if opts.Version == "" {
		opts.Version = time.Now().Format(time.DateOnly)
	}
	log := logger.Named("train")

	trainSamples, valSamples, err := Discover(opts.Data)
	if err != nil {
		return Result{}, err
	}
	log.Info("samples", zap.Int("train", len(trainSamples)), zap.Int("val", len(valSamples)))

	backbone, err := os.ReadFile(opts.Backbone)
	if err != nil {
		return Result{}, fmt.Errorf("read backbone: %w", err)
	}
	pre := model.Preprocess{InputSize: opts.Img, Scale: 1.0 / 255, SwapRB: true}
	ex := &Extractor{Backbone: backbone, Preprocess: pre, Workers: opts.Workers}

	var aug *Augmenter
	if opts.AugCopies > 0 {
		aug = &DefaultAugmenter
	}
	start := time.Now()
	trainM, err := ex.Extract(ctx, trainSamples, aug, opts.AugCopies, opts.Seed)
	if err != nil {
		return Result{}, fmt.Errorf("train features: %w", err)
	}
	valM, err := ex.Extract(ctx, valSamples, nil, 0, opts.Seed)
	if err != nil {
		return Result{}, fmt.Errorf("val features: %w", err)
	}
	_, width := trainM.X.Dims()
	log.Info("features extracted",
		zap.Int("rows", trainM.Rows()),
		zap.Int("width", width),
		zap.Duration("took", time.Since(start)))

	runDir := filepath.Join(opts.Out, opts.Version)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Result{}, err
	}

	head := model.NewHead(width, DefaultHidden, DefaultDropout, rand.New(rand.NewSource(opts.Seed)))
	hist, err := Fit(ctx, head, trainM, valM, FitConfig{
		Epochs:     opts.Epochs,
		BatchSize:  opts.Batch,
		LR:         opts.LR,
		Patience:   DefaultPatience,
		Seed:       opts.Seed,
		Checkpoint: filepath.Join(runDir, CheckpointFile),
		OnEpoch: func(e Epoch) {
			log.Info("epoch",
				zap.Int("epoch", e.Epoch),
				zap.Float64("loss", e.Loss),
				zap.Float64("mae", e.MAE),
				zap.Float64("val_loss", e.ValLoss),
				zap.Float64("val_mae", e.ValMAE))
			if opts.OnEpoch != nil {
				opts.OnEpoch(e)
			}
		},
	})
	if err != nil {
		return Result{}, err
	}
	log.Info("fit done",
		zap.Int("best_epoch", hist.BestEpoch),
		zap.Float64("best_val_mae", hist.BestValMAE),
		zap.Bool("stopped_early", hist.StoppedEarly))

	b := model.Bundle{
		Backbone: backbone,
		Head:     head,
		Meta:     NewMeta(opts.Version, pre, hist.BestValMAE),
	}
	art, err := Export(runDir, b, hist)
	if err != nil {
		return Result{}, err
	}
	log.Info("exported", zap.String("dir", art.RunDir), zap.String("bundle", art.Bundle))
	return Result{Artifacts: art, History: hist, Train: len(trainSamples), Val: len(valSamples)}, nil
}
