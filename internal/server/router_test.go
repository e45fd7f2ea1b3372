package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"status":"healthy"`)) {
		t.Fatalf("unexpected health body %s", string(body))
	}
	if app.recorder.calls != 0 {
		t.Fatalf("health must not reach the image handler")
	}
}

func TestIconProbesShortCircuit(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/favicon.ico", "/apple-touch-icon.png", "/apple-touch-icon-precomposed.png", "/apple-touch-icon-120x120.png"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", path, resp.StatusCode)
		}
	}
	if app.recorder.calls != 0 {
		t.Fatalf("icon probes must not reach the image handler, got %d calls", app.recorder.calls)
	}
}

func TestImageRoutesDelegateToHandler(t *testing.T) {
	app := newTestApp(t)

	testCases := []struct {
		path string
		want string
	}{
		{"/mls-images/ABCDEF01.L1", "ABCDEF01.L1"},
		{"/mls-photos/20240101/ABCDEF01.L1.jpg", "20240101/ABCDEF01.L1.jpg"},
		{"/ABCDEF01.L2", "ABCDEF01.L2"},
	}
	for _, tc := range testCases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("%s: expected 204 from recorder, got %d", tc.path, resp.StatusCode)
		}
		if app.recorder.lastParam != tc.want {
			t.Fatalf("%s: expected param %q, got %q", tc.path, tc.want, app.recorder.lastParam)
		}
		if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
			t.Fatalf("expected X-Request-ID header to be set")
		}
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/other/deep/path", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"route_not_found"`)) {
		t.Fatalf("expected route_not_found error, got %s", string(body))
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "metrics" {
		t.Fatalf("unexpected metrics response %d %s", resp.StatusCode, string(body))
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("expected error without image handler")
	}
}

type testApp struct {
	*fiber.App
	recorder *imageRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &imageRecorder{}
	app, err := NewApp(AppOptions{
		Logger: logger,
		Images: recorder,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, recorder: recorder}
}

type imageRecorder struct {
	calls     int
	lastParam string
}

func (r *imageRecorder) Handle(c fiber.Ctx) error {
	r.calls++
	r.lastParam = c.Params("*")
	if r.lastParam == "" {
		r.lastParam = c.Params("name")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
