// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"net/http"

	"github.com/tgmf/BCloyaltybot/internal/web"

	"github.com/arl/statsviz"
)

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			web.RespondError(e.logf, w, web.ErrNotFound)
			return
		}
		http.Redirect(w, r, "/debug/", http.StatusFound)
	})
	e.mux.HandleFunc("POST /telegram", e.handleTelegramWebhook)

	// Health check.
	web.Health(e.mux)

	// Debug routes.
	dbg := web.Debugger(e.logf, e.mux)
	dbg.KVFunc("Bot username", func() any { return e.bot.Username })
	dbg.KVFunc("Snapshot age", func() any {
		snap := e.content.Snapshot(context.Background())
		if snap.FetchedAt().IsZero() {
			return "never fetched"
		}
		return snap.FetchedAt().Format("2006-01-02 15:04:05 MST")
	})
	dbg.HandleFunc("refresh", "Refresh content", func(w http.ResponseWriter, r *http.Request) {
		if err := e.content.Refresh(r.Context(), true); err != nil {
			web.RespondError(e.logf, w, err)
			return
		}
		http.Redirect(w, r, "/debug/", http.StatusFound)
	})

	// Runtime metrics.
	statsviz.Register(e.mux)
	dbg.Link("/debug/statsviz", "Metrics")

	// Log streaming.
	e.mux.Handle("/debug/log", e.logStream)
	dbg.Link("/debug/log", "Logs")
}
