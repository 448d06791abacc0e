package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/code-100-precent/LingReader/pkg/metrics"
	"github.com/code-100-precent/LingReader/pkg/notification"
	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/response"
	"github.com/code-100-precent/LingReader/pkg/speech"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers exposes one orchestrator over HTTP
type Handlers struct {
	speech  *speech.Orchestrator
	metrics *metrics.Metrics
	notices *notification.Recorder
	logger  *zap.Logger
}

// NewHandlers builds the control API. notices may be nil; it feeds the
// last notification into the state response.
func NewHandlers(o *speech.Orchestrator, m *metrics.Metrics, notices *notification.Recorder, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{speech: o, metrics: m, notices: notices, logger: logger.Named("api")}
}

// Register mounts the speech routes under apiPrefix and the metrics
// endpoint at monitorPath
func (h *Handlers) Register(engine *gin.Engine, apiPrefix, monitorPath string) {
	r := engine.Group(apiPrefix)
	{
		s := r.Group("/speech")
		s.POST("/speak", h.handleSpeak)
		s.POST("/pause", h.handleControl(h.speech.Pause))
		s.POST("/resume", h.handleControl(h.speech.Resume))
		s.POST("/stop", h.handleControl(h.speech.Stop))
		s.POST("/skip-backward", h.handleControl(h.speech.SkipBackward))
		s.POST("/skip-forward", h.handleControl(h.speech.SkipForward))
		s.POST("/replay", h.handleReplay)
		s.GET("/state", h.handleState)
	}
	if h.metrics != nil && monitorPath != "" {
		engine.GET(monitorPath, gin.WrapH(h.metrics.Handler()))
	}
}

type speakRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) handleSpeak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, &response.CodedError{Code: "INVALID_BODY", Msg: "请求体格式错误", Err: err})
		return
	}
	// the session outlives the request
	s, err := h.speech.Speak(context.Background(), req.Text)
	if err != nil {
		h.abort(c, err)
		return
	}
	response.Success(c, "success", h.sessionView(s))
}

func (h *Handlers) handleControl(fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			h.abort(c, err)
			return
		}
		response.Success(c, "success", gin.H{"state": h.speech.State()})
	}
}

func (h *Handlers) handleReplay(c *gin.Context) {
	s, err := h.speech.Replay()
	if err != nil {
		h.abort(c, err)
		return
	}
	response.Success(c, "success", h.sessionView(s))
}

func (h *Handlers) handleState(c *gin.Context) {
	data := gin.H{
		"state":  h.speech.State(),
		"engine": h.speech.Backend().Name(),
	}
	if s := h.speech.Session(); s != nil {
		data["session"] = s.ID()
	}
	if h.notices != nil {
		if n, ok := h.notices.Last(); ok {
			data["notification"] = n
		}
	}
	response.Success(c, "success", data)
}

func (h *Handlers) sessionView(s *speech.Session) gin.H {
	return gin.H{
		"session": s.ID(),
		"state":   h.speech.State(),
	}
}

func (h *Handlers) abort(c *gin.Context, err error) {
	status, coded := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("speech request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.AbortWithStatusJSON(c, status, coded)
}

func classify(err error) (int, *response.CodedError) {
	switch {
	case errors.Is(err, speech.ErrEmptyText):
		return http.StatusBadRequest, &response.CodedError{Code: "EMPTY_TEXT", Msg: "没有可朗读的文本", Err: err}
	case errors.Is(err, speech.ErrNoSession):
		return http.StatusConflict, &response.CodedError{Code: "NO_SESSION", Msg: "当前没有正在朗读的内容", Err: err}
	case errors.Is(err, speech.ErrSessionEnded):
		return http.StatusConflict, &response.CodedError{Code: "SESSION_ENDED", Msg: "朗读已结束", Err: err}
	case errors.Is(err, speech.ErrNothingCached):
		return http.StatusConflict, &response.CodedError{Code: "NOTHING_CACHED", Msg: "没有可重播的音频", Err: err}
	case errors.Is(err, playback.ErrNotPlaying):
		return http.StatusConflict, &response.CodedError{Code: "NOT_PLAYING", Msg: "当前没有播放中的音频", Err: err}
	case errors.Is(err, speech.ErrClosed):
		return http.StatusServiceUnavailable, &response.CodedError{Code: "UNAVAILABLE", Err: err}
	default:
		return http.StatusInternalServerError, &response.CodedError{Code: "UNKNOWN_ERROR", Err: err}
	}
}
