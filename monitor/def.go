package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"BoardKP/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var PID process.Process

var (
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	PredictTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boardkp_predictions_total",
		Help: "Total number of keypoint predictions served",
	}, []string{"result"})
	trainEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boardkp_train_epoch",
		Help: "Last finished training epoch",
	})
	trainLoss = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boardkp_train_loss",
		Help: "Huber loss of the last training epoch",
	})
	valMAE = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boardkp_val_mae",
		Help: "Validation MAE of the last training epoch",
	})
)

// Registry holds every metric of the process.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(memUsage, cpuUsage, PredictTotal, trainEpoch, trainLoss, valMAE)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordEpoch publishes the metrics of one training epoch.
func RecordEpoch(epoch int, loss, mae float64) {
	trainEpoch.Set(float64(epoch))
	trainLoss.Set(loss)
	valMAE.Set(mae)
}

// RecordPredict counts one prediction.
func RecordPredict(ok bool) {
	if ok {
		PredictTotal.WithLabelValues("ok").Inc()
	} else {
		PredictTotal.WithLabelValues("error").Inc()
	}
}

func prom(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server ListenAndServe", zap.Error(err))
		}
	}()
	return srv
}

func CheckProcessInfo() {
	MemInfo, err := PID.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(MemInfo.RSS / 1024 / 1024))
	}
	CPUPercent, err := PID.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(CPUPercent*100) / 100)
	}
}

func GotPID() {
	PID.Pid = int32(os.Getpid())
}

// StartMon serves /metrics on port and samples process usage until ctx is done.
func StartMon(port int, ctx context.Context) {
	PID = process.Process{}
	GotPID()
	srv := prom(port)
	logger.Log().Info("metrics listening", zap.Int("port", port))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		logger.Log().Warn("metrics server Shutdown", zap.Error(err))
	}
}
