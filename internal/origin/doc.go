// Package origin retrieves listing photos from the MLS photo server. A fetch
// is a single bounded GET; every way it can fail (status, size, content type,
// undecodable body, transport, timeout) is reported as a MissReason on the
// Result rather than as an error, because callers only need to know that the
// origin could not supply the image.
package origin
