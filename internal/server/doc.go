// Package server hosts the Fiber HTTP service: request-id middleware, the
// browser-icon short-circuit, /health, the /-/metrics exposition endpoint and
// the image routes that delegate to an injected ImageHandler. It also builds
// the shared http.Client used for origin fetches. Keep exports narrow and
// accept explicit dependencies so tests can swap in fakes.
package server
