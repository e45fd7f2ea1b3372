// Package imagename parses vendor photo identifiers taken from public URLs.
// Every identifier is reduced to its final path component, stripped of the
// .jpg extension and checked against the canonical <8 hex>.L<1-2 digits>
// grammar before it may be used as an object-store key or as the name
// parameter of an origin request. Nothing else in the service is allowed to
// touch raw path input, so keep this package free of I/O.
package imagename
