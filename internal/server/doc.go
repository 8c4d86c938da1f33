// Package server exposes the task engine over HTTP.
//
// # Callables
//
// Client-facing operations are served as callables at POST /v1/<name>. The request body is
// {"data": {...}} and a successful response is {"result": {...}}. Failures use
// {"error": {"status": "<CODE>", "message": "..."}} with the HTTP status matching the code:
//
//	UNAUTHENTICATED     401
//	INVALID_ARGUMENT    400
//	NOT_FOUND           404
//	RESOURCE_EXHAUSTED  429
//	INTERNAL            500
//
// A bearer ID token in the Authorization header is verified by [Authenticate] and the caller is
// available through [CallerFrom]. Only runAtsSimulation accepts anonymous calls.
//
// # Events
//
// Document triggers arrive at POST /v1/events/{trigger} with the body described by [Event] and
// must carry the shared secret in the [EventSecretHeader] header. A delivery is acknowledged with
// 200 once the trigger ran; failures are reported in the result body.
//
// # Router
//
// [MuxRouter] implements [Router] on gorilla/mux. [Middleware] added with Use runs in the order
// it was added and [Router.Group] scopes extra middleware to a path prefix. Types implementing
// [Handler] declare their own routes, as [Health] does.
package server
