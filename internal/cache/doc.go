// Package cache defines the durable image store used as the persistent tier
// of the read-through proxy. Keys are flat object names (<name>.jpg); the
// store is write-once from the proxy's point of view, so Put simply
// overwrites. Two backends are provided: Cloudflare R2 through the S3 API for
// production, and a local directory for development and tests. Lookups report
// absence through the Lookup value, never through an error, so callers can
// tell an expected miss from an infrastructure failure.
package cache
