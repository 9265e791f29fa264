// Package widget serves the chat widget over HTTP.
//
// # Routes
//
// The page and its assets are public:
//
//	GET  /widget              HTML page hosting the widget
//	GET  /widget/static/...   embedded JS and CSS
//	POST /api/widget/sessions mount a session, returns {session_id, token, state}
//
// Every other route needs the token returned by mount, either as
// "Authorization: Bearer <token>" or as ?token= for EventSource:
//
//	DELETE /api/widget/session       unmount
//	GET    /api/widget/state         current state
//	POST   /api/widget/submit        {text?, client_message_id?}
//	PUT    /api/widget/draft         {text}
//	POST   /api/widget/panel/toggle  flip the panel
//	POST   /api/widget/panel/close   close the panel
//	GET    /api/widget/stream        SSE stream of state events
//
// # State Encoding
//
// State is the session snapshot with one addition: assistant messages carry
// an "html" field holding the reply rendered from markdown. Raw HTML in a
// reply is never passed through.
//
// # Streaming
//
// The stream sends a "connected" event, a "state" event with the current
// snapshot and then one "state" event per change. A comment line is written
// every 30 seconds to keep proxies from closing the connection; each one also
// counts as activity for the idle sweeper. The stream ends when the session
// is unmounted.
package widget
