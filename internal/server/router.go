package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ImageHandler describes the component that serves image requests. It allows
// injecting fake handlers during tests.
type ImageHandler interface {
	Handle(fiber.Ctx) error
}

// ImageHandlerFunc adapts a function to the ImageHandler interface.
type ImageHandlerFunc func(fiber.Ctx) error

// Handle makes ImageHandlerFunc satisfy ImageHandler.
func (f ImageHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should be assembled.
type AppOptions struct {
	Logger  *logrus.Logger
	Images  ImageHandler
	Metrics http.Handler
}

// ImagePrefixes 是对外暴露图片的路径前缀。
var ImagePrefixes = []string{"/mls-images", "/mls-photos"}

const contextKeyRequestID = "_mlsproxy_request_id"

// NewApp builds a Fiber application with request-id middleware, icon
// short-circuit, health/metrics endpoints and the image routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Images == nil {
		return nil, errors.New("image handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	for _, prefix := range ImagePrefixes {
		app.Get(prefix+"/*", opts.Images.Handle)
	}
	// 兼容早期单路由部署：直接以根路径下的图片名访问。
	app.Get("/:name", opts.Images.Handle)

	app.Use(func(c fiber.Ctx) error {
		opts.Logger.WithFields(logrus.Fields{
			"action":     "route_lookup",
			"path":       string(c.Request().URI().Path()),
			"request_id": RequestID(c),
		}).Debug("route not found")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route_not_found"})
	})

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并在路由前拦截浏览器图标探测请求。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isIconProbe(string(c.Request().URI().Path())) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isIconProbe(path string) bool {
	if path == "/favicon.ico" {
		return true
	}
	return strings.HasPrefix(path, "/apple-touch-icon") && strings.HasSuffix(path, ".png")
}
