// Package request provides the HTTP client that forms submit through.
//
// A [Client] owns one bound transport. Default headers, the cookie jar and the
// XSRF cookie-to-header copy are fixed when the transport is bound, so header
// changes go through [Client.SetHeader], which rebinds.
//
// Every response passes through a pipeline:
//
//   - 2xx: success callbacks run in registration order and the interceptor
//     attempt counters are cleared.
//   - no response (network failure): the error is returned unchanged.
//   - any other status: on 419 with automatic CSRF refresh enabled the client
//     fetches a fresh CSRF cookie and resends the request in the background.
//     Then every interceptor runs with its own attempt count, then the first
//     matching error callback, and the caller receives a [*ResponseError].
//
// The background resend is not reported to the original caller. [Client.Wait]
// blocks until pending resends finish.
package request
