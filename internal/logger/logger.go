package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/invoicer/internal/http"
)

// Setup builds the process logger and installs it as the zerolog global so
// packages logging through github.com/rs/zerolog/log share its level and output.
func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = logger

	return logger
}

// HTTPRequests logs one line per request and attaches a request scoped logger
// to the context, retrievable with zerolog.Ctx.
type HTTPRequests struct {
	logger zerolog.Logger
}

func NewHTTPRequests(logger zerolog.Logger) *HTTPRequests {
	return &HTTPRequests{logger: logger}
}

// Middleware must run inside httpmiddleware.RequestMetaMiddleware to pick up
// the client IP and request id.
func (h *HTTPRequests) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := httpmiddleware.RequestMetaFromContext(r.Context())

		ctx := h.logger.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("addr", meta.ClientIP).
			Str("request_id", meta.RequestID).
			Logger().WithContext(r.Context())

		m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

		event := zerolog.Ctx(ctx).Info()
		if m.Code >= http.StatusInternalServerError {
			event = zerolog.Ctx(ctx).Error()
		}

		event.
			Int("status", m.Code).
			Int64("bytes", m.Written).
			Dur("duration", m.Duration).
			Msg("http request")
	})
}
