package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"BoardKP/dataset"
	"BoardKP/engine"
	"BoardKP/logger"
	"BoardKP/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Extractor turns samples into backbone feature rows using a pool of workers, each owning its
// own network.
type Extractor struct {
	Backbone   []byte
	Preprocess model.Preprocess
	Workers    int
}

type extractJob struct {
	row    int
	sample dataset.KeypointSample
	// augment is false for the clean copy of a sample.
	augment bool
	seed    int64
}

// Matrix pairs feature rows with their label rows.
type Matrix struct {
	X *mat.Dense
	Y *mat.Dense
}

// Rows is the number of samples in the matrix.
func (m Matrix) Rows() int {
	r, _ := m.Y.Dims()
	return r
}

// Extract produces one clean row per sample plus `copies` augmented rows when aug is non-nil.
// Row order and augmentation draws depend only on seed, not on worker scheduling.
func (e *Extractor) Extract(ctx context.Context, samples []dataset.KeypointSample, aug *Augmenter, copies int, seed int64) (Matrix, error) {
	if len(samples) == 0 {
		return Matrix{}, errors.New("no samples to extract")
	}
	if aug == nil {
		copies = 0
	}
	var jobs []extractJob
	for i, s := range samples {
		jobs = append(jobs, extractJob{row: len(jobs), sample: s})
		for c := 0; c < copies; c++ {
			jobs = append(jobs, extractJob{
				row:     len(jobs),
				sample:  s,
				augment: true,
				seed:    seed*1_000_003 + int64(i)*31 + int64(c),
			})
		}
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	features := make([][]float32, len(jobs))
	queue := make(chan extractJob)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return e.runWorker(ctx, w, queue, aug, features)
		})
	}
	if err := g.Wait(); err != nil {
		return Matrix{}, err
	}

	width := len(features[0])
	x := mat.NewDense(len(jobs), width, nil)
	y := mat.NewDense(len(jobs), model.Outputs, nil)
	for r, f := range features {
		if len(f) != width {
			return Matrix{}, fmt.Errorf("feature width changed from %d to %d", width, len(f))
		}
		for c, v := range f {
			x.Set(r, c, float64(v))
		}
		y.SetRow(r, jobs[r].sample.Values[:])
	}
	return Matrix{X: x, Y: y}, nil
}

func (e *Extractor) runWorker(ctx context.Context, id int, queue <-chan extractJob, aug *Augmenter, out [][]float32) error {
	// gocv networks are bound to the thread that created them
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	backbone, err := engine.NewBackbone(e.Backbone, e.Preprocess)
	if err != nil {
		return err
	}
	defer backbone.Close()
	logger.Log().Debug("feature worker started", zap.Int("worker", id))

	size := backbone.Preprocess().InputSize
	for job := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := engine.ReadImage(job.sample.ImagePath)
		if err != nil {
			return err
		}
		resized := engine.Resize(img, size)
		_ = img.Close()
		if job.augment {
			jittered := aug.Apply(resized, rand.New(rand.NewSource(job.seed)))
			_ = resized.Close()
			resized = jittered
		}
		f, err := backbone.Features(resized)
		_ = resized.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", job.sample.ImagePath, err)
		}
		out[job.row] = f
	}
	return nil
}
