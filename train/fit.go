package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"BoardKP/model"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultEpochs    = 80
	DefaultBatchSize = 16
	DefaultLR        = 1e-3
	DefaultPatience  = 12
	DefaultHidden    = 128
	DefaultDropout   = 0.2
	HuberDelta       = 0.02
)

var ErrShapeMismatch = errors.New("feature and label rows differ")

// Epoch is one row of the training history.
type Epoch struct {
	Epoch   int     `json:"epoch"`
	Loss    float64 `json:"loss"`
	MAE     float64 `json:"mae"`
	ValLoss float64 `json:"val_loss"`
	ValMAE  float64 `json:"val_mae"`
}

// History is what Fit reports back.
type History struct {
	Epochs     []Epoch `json:"epochs"`
	BestEpoch  int     `json:"best_epoch"`
	BestValMAE float64 `json:"best_val_mae"`
	// StoppedEarly is set when patience ran out before the epoch limit.
	StoppedEarly bool `json:"stopped_early"`
}

// FitConfig controls the optimisation loop.
type FitConfig struct {
	Epochs    int
	BatchSize int
	LR        float64
	Patience  int
	Seed      int64
	// Checkpoint, when set, receives the head every time val MAE improves.
	Checkpoint string
	OnEpoch    func(Epoch)
}

func (c *FitConfig) defaults() {
	if c.Epochs <= 0 {
		c.Epochs = DefaultEpochs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LR <= 0 {
		c.LR = DefaultLR
	}
	if c.Patience <= 0 {
		c.Patience = DefaultPatience
	}
}

// Fit trains head in place with Adam on the Huber loss. When it returns, head holds the weights
// of the epoch with the lowest validation MAE.
func Fit(ctx context.Context, head *model.Head, train, val Matrix, cfg FitConfig) (History, error) {
	cfg.defaults()
	if err := checkShape(train); err != nil {
		return History{}, fmt.Errorf("train: %w", err)
	}
	if err := checkShape(val); err != nil {
		return History{}, fmt.Errorf("val: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	opt := model.NewAdam(cfg.LR)
	hist := History{BestEpoch: -1, BestValMAE: math.Inf(1)}
	var best *model.Head
	stale := 0

	n := train.Rows()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum, maeSum float64
		for start := 0; start < n; start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, n)
			x, y := batch(train, order[start:end])
			cache := head.Forward(x, rng)
			loss, dOut := model.Huber(cache.Out, y, HuberDelta)
			grads := head.Backward(cache, dOut)
			opt.Step(head.Params(), grads.Slices())

			w := float64(end - start)
			lossSum += loss * w
			maeSum += model.MAE(cache.Out, y) * w
		}

		pred := head.Forward(val.X, nil).Out
		valLoss, _ := model.Huber(pred, val.Y, HuberDelta)
		e := Epoch{
			Epoch:   epoch,
			Loss:    lossSum / float64(n),
			MAE:     maeSum / float64(n),
			ValLoss: valLoss,
			ValMAE:  model.MAE(pred, val.Y),
		}
		hist.Epochs = append(hist.Epochs, e)

		if e.ValMAE < hist.BestValMAE {
			hist.BestValMAE = e.ValMAE
			hist.BestEpoch = epoch
			best = head.Clone()
			stale = 0
			if cfg.Checkpoint != "" {
				if err := model.SaveHead(cfg.Checkpoint, best); err != nil {
					return hist, fmt.Errorf("checkpoint: %w", err)
				}
			}
		} else {
			stale++
		}
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(e)
		}
		if stale >= cfg.Patience {
			hist.StoppedEarly = epoch < cfg.Epochs
			break
		}
	}

	if best != nil {
		*head = *best
	}
	return hist, nil
}

func checkShape(m Matrix) error {
	if m.X == nil || m.Y == nil {
		return ErrShapeMismatch
	}
	xr, _ := m.X.Dims()
	yr, yc := m.Y.Dims()
	if xr != yr || yc != model.Outputs || yr == 0 {
		return ErrShapeMismatch
	}
	return nil
}

func batch(m Matrix, rows []int) (*mat.Dense, *mat.Dense) {
	_, xc := m.X.Dims()
	x := mat.NewDense(len(rows), xc, nil)
	y := mat.NewDense(len(rows), model.Outputs, nil)
	for i, r := range rows {
		x.SetRow(i, m.X.RawRowView(r))
		y.SetRow(i, m.Y.RawRowView(r))
	}
	return x, y
}
