// Package http provides the JSON status API for a running media receiver.
//
// The upload server itself speaks raw HTTP on its own listener; this package
// serves a separate, read-only API meant for the host application (a
// dashboard, a tray icon, a script). It reports the server status and, when
// an upload ledger is configured, pages through the recorded uploads.
//
// # Routes
//
//   - GET /status: {running, addr, visitors, files, urls}
//   - GET /uploads?category=&limit=&cursor=: a page of ledger entries
//   - GET /uploads/summary: file count and total bytes per category
//   - GET /uploads/{id}: one ledger entry
//
// Ledger routes answer 404 with error code "ledger_disabled" when no ledger
// is configured.
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    URLs: []string{"http://192.168.1.20:8080/"},
//	}, srv, service)
//	go http.ListenAndServe(":8081", handler.Router())
//
// Errors use a JSON envelope:
//
//	{"error": "invalid_input", "message": "Invalid category"}
//
// CORS is applied to every route when HandlerConfig.CORS.Enabled is set.
package http
