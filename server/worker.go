package server

import (
	"fmt"
	"runtime"
	"time"

	iface "BoardKP/interface"
	"BoardKP/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// JobPackage is one image waiting for the backend.
type JobPackage struct {
	RequestID string
	decode    func() (gocv.Mat, error)
	Result    chan jobResult
}

type jobResult struct {
	Data iface.RetData
	// Err is a decode failure; backend failures travel in Data.
	Err error
}

// runWorker owns the backend for its whole life so gocv state never changes thread.
func (s *Server) runWorker() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("predict worker panic, restarting in 1s", zap.Any("panic", r))
			time.Sleep(1 * time.Second)
			go s.runWorker()
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Debug("predict worker started")

	for job := range s.jobs {
		s.handle(job)
	}
	// not deferred, a restarted worker reports instead
	s.wg.Done()
}

func (s *Server) handle(job JobPackage) {
	// a panic inside the backend still answers the caller before the worker restarts
	answered := false
	defer func() {
		if !answered {
			job.Result <- jobResult{Data: iface.RetData{Success: false, Data: "backend panic"}}
		}
	}()

	img, err := job.decode()
	if err != nil {
		answered = true
		job.Result <- jobResult{Err: err}
		return
	}
	result := s.backend.Predict(img)
	if err := img.Close(); err != nil {
		logger.Log().Warn("close image", zap.String("request", job.RequestID), zap.Error(err))
	}
	answered = true
	job.Result <- jobResult{Data: result}
}

func describe(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	return fmt.Sprintf("unexpected result type %T", data)
}
