package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"BoardKP/engine"
	iface "BoardKP/interface"
	"BoardKP/logger"
	"BoardKP/monitor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// MaxImageBytes bounds uploads and websocket frames.
const MaxImageBytes = 20 * 1024 * 1024

var (
	ErrClosed     = errors.New("server is closed")
	ErrBadImage   = errors.New("invalid image")
	ErrEmptyInput = errors.New("empty request body")
)

// Response is the JSON answer for one image.
type Response struct {
	RequestID string           `json:"requestId"`
	Success   bool             `json:"success"`
	Keypoints []iface.Keypoint `json:"keypoints,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Server exposes one backend over HTTP and websocket. Every request goes through a single
// worker goroutine.
type Server struct {
	backend  iface.Backend
	jobs     chan JobPackage
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	upgrader websocket.Upgrader
}

// New wraps a loaded backend and starts its worker. queue is the number of requests that may
// wait for the backend.
func New(backend iface.Backend, queue int) *Server {
	if queue <= 0 {
		queue = 1
	}
	s := &Server{
		backend: backend,
		jobs:    make(chan JobPackage, queue),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.wg.Add(1)
	go s.runWorker()
	return s
}

// Close stops the worker after queued requests are answered. The backend is left to the caller.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

// Predict runs one image through the backend.
func (s *Server) Predict(ctx context.Context, requestID string, decode func() (gocv.Mat, error)) Response {
	resp := Response{RequestID: requestID}
	result := make(chan jobResult, 1)
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		resp.Error = ErrClosed.Error()
		return resp
	}
	select {
	case s.jobs <- JobPackage{RequestID: requestID, decode: decode, Result: result}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		resp.Error = ctx.Err().Error()
		return resp
	}

	var r jobResult
	select {
	case r = <-result:
	case <-ctx.Done():
		resp.Error = ctx.Err().Error()
		return resp
	}
	switch {
	case r.Err != nil:
		resp.Error = fmt.Sprintf("%v: %v", ErrBadImage, r.Err)
	case !r.Data.Success:
		resp.Error = describe(r.Data.Data)
	default:
		kps, ok := r.Data.Data.([]iface.Keypoint)
		if !ok {
			resp.Error = describe(r.Data.Data)
			break
		}
		resp.Success = true
		resp.Keypoints = kps
	}
	monitor.RecordPredict(resp.Success)
	return resp
}

func fromBytes(data []byte) func() (gocv.Mat, error) {
	return func() (gocv.Mat, error) {
		if len(data) == 0 {
			return gocv.NewMat(), ErrEmptyInput
		}
		return engine.DecodeImage(data)
	}
}

func fromBase64(b64 string) func() (gocv.Mat, error) {
	return func() (gocv.Mat, error) {
		if strings.TrimSpace(b64) == "" {
			return gocv.NewMat(), ErrEmptyInput
		}
		return engine.Base64ToMat(b64)
	}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/model", func(c *gin.Context) {
		cfg := s.backend.CheckConfig()
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"modelPath": cfg.ModelPath,
			"kind":      cfg.Kind,
			"inputSize": cfg.InputSize,
			"version":   cfg.Version,
			"order":     cfg.Order,
		}})
	})
	r.POST("/api/predict", s.predictHandler)
	r.GET("/ws", s.wsHandler)
	return r
}

func (s *Server) predictHandler(c *gin.Context) {
	id := c.GetString(requestIDKey)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImageBytes)

	var data []byte
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{RequestID: id, Error: "File upload failed: " + err.Error()})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{RequestID: id, Error: err.Error()})
			return
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			c.JSON(http.StatusBadRequest, Response{RequestID: id, Error: err.Error()})
			return
		}
	} else {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(c.Request.Body); err != nil {
			c.JSON(http.StatusBadRequest, Response{RequestID: id, Error: err.Error()})
			return
		}
		data = buf.Bytes()
	}

	resp := s.Predict(c.Request.Context(), id, fromBytes(data))
	c.JSON(statusOf(resp), resp)
}

func statusOf(resp Response) int {
	switch {
	case resp.Success:
		return http.StatusOK
	case strings.HasPrefix(resp.Error, ErrBadImage.Error()):
		return http.StatusBadRequest
	case resp.Error == ErrClosed.Error():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) wsHandler(c *gin.Context) {
	id := c.GetString(requestIDKey)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxImageBytes)
	log := logger.Named("ws").With(zap.String("session", id))
	log.Debug("connected")

	for frame := 0; ; frame++ {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("read", zap.Error(err))
			}
			return
		}
		frameID := id + "/" + strconv.Itoa(frame)
		var resp Response
		switch mt {
		case websocket.TextMessage:
			resp = s.Predict(c.Request.Context(), frameID, fromBase64(string(msg)))
		case websocket.BinaryMessage:
			resp = s.Predict(c.Request.Context(), frameID, fromBytes(msg))
		default:
			resp = Response{RequestID: frameID, Error: "unsupported message type"}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(resp); err != nil {
			log.Warn("write", zap.Error(err))
			return
		}
	}
}

// ListenAndServe serves the router on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Log().Info("serving", zap.String("addr", addr), zap.String("model", s.backend.CheckConfig().ModelPath))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

const requestIDKey = "requestId"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log().Debug("request",
			zap.String("id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
