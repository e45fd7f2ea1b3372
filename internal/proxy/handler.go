package proxy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/mls-proxy/mls-proxy/internal/logging"
	"github.com/mls-proxy/mls-proxy/internal/metrics"
	"github.com/mls-proxy/mls-proxy/internal/server"
)

// ImageRetriever 是 Handler 依赖的读取能力，*Retriever 实现了该接口。
type ImageRetriever interface {
	Retrieve(ctx context.Context, raw string) (*Image, error)
}

// Handler 将 Retriever 的结果映射为 HTTP 响应：200/400/404/500。
type Handler struct {
	retriever ImageRetriever
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewHandler constructs the Fiber-facing image handler.
func NewHandler(retriever ImageRetriever, logger *logrus.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		retriever: retriever,
		logger:    logger,
		metrics:   m,
	}
}

// Handle 读取通配路径（或 :name 参数）作为原始图片名，执行 cache-aside 读取并输出结果。
func (h *Handler) Handle(c fiber.Ctx) (err error) {
	started := time.Now()
	requestID := server.RequestID(c)
	raw := c.Params("*")
	if raw == "" {
		raw = c.Params("name")
	}
	route := routeName(c)

	defer func() {
		if rec := recover(); rec != nil {
			err = h.respondPanic(c, route, raw, requestID, rec)
		}
	}()

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	img, retrieveErr := h.retriever.Retrieve(ctx, raw)
	if retrieveErr != nil {
		status, code := classify(retrieveErr)
		h.logFailure(route, raw, requestID, status, started, retrieveErr)
		return h.writeError(c, status, code)
	}

	c.Set(fiber.HeaderContentType, img.ContentType)
	c.Set(fiber.HeaderCacheControl, img.CacheControl)
	c.Set("X-Cache", cacheHeader(img.CacheHit))
	c.Status(fiber.StatusOK)
	h.metrics.Response(strconv.Itoa(fiber.StatusOK))

	fields := logging.RequestFields(requestID, route, img.Name.String(), img.Key, img.CacheHit)
	fields["status"] = fiber.StatusOK
	fields["bytes"] = len(img.Data)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	h.logger.WithFields(fields).Info("image_served")

	return c.Send(img.Data)
}

// classify 将错误映射为状态码与错误码；无法识别的错误一律按 500 处理。
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidName):
		return fiber.StatusBadRequest, "invalid_image_name"
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound, "image_not_found"
	case errors.Is(err, ErrStorage):
		return fiber.StatusInternalServerError, "storage_error"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func routeName(c fiber.Ctx) string {
	if r := c.Route(); r != nil {
		return r.Path
	}
	return ""
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	h.metrics.Response(strconv.Itoa(status))
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) respondPanic(c fiber.Ctx, route, raw, requestID string, recovered interface{}) error {
	h.logFailure(route, raw, requestID, fiber.StatusInternalServerError, time.Time{}, fmt.Errorf("panic: %v", recovered))
	return h.writeError(c, fiber.StatusInternalServerError, "internal_error")
}

func (h *Handler) logFailure(route, raw, requestID string, status int, started time.Time, err error) {
	fields := logging.RequestFields(requestID, route, raw, "", false)
	fields["status"] = status
	if !started.IsZero() {
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
	}
	entry := h.logger.WithFields(fields).WithError(err)
	switch {
	case status >= fiber.StatusInternalServerError:
		entry.Error("image_failed")
	case status == fiber.StatusNotFound:
		entry.Info("image_not_found")
	default:
		entry.Warn("image_rejected")
	}
}
