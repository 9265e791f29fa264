// Package auth authenticates widget requests.
//
// # Widget Tokens
//
// Mounting a widget returns an HS256 JWT whose subject is the session ID.
// Every later request for that session presents the token, either as
//
//	Authorization: Bearer <token>
//
// or, for EventSource streams that cannot set headers, as a ?token= query
// parameter. SessionMiddleware verifies the token and stores the session ID
// in the request context:
//
//	mux.Handle("GET /api/widget/state", auth.SessionMiddleware(verifier)(handler))
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		sessionID := auth.SessionIDFromContext(r.Context())
//	}
//
// Tokens carry the audience "chatia-widget"; tokens minted for anything else
// are rejected.
//
// # Admin Token
//
// Operator endpoints (usage statistics) use a static bearer token from
// auth.admin_token, compared in constant time by AdminTokenMiddleware. An
// empty admin token disables those endpoints.
package auth
