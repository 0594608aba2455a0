// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"cmp"
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/auth"
	"github.com/tgmf/BCloyaltybot/internal/cli"
	"github.com/tgmf/BCloyaltybot/internal/content"
	"github.com/tgmf/BCloyaltybot/internal/logger"
	"github.com/tgmf/BCloyaltybot/internal/nav"
	"github.com/tgmf/BCloyaltybot/internal/serviceaccount"
	"github.com/tgmf/BCloyaltybot/internal/state"
	"github.com/tgmf/BCloyaltybot/internal/store"
	"github.com/tgmf/BCloyaltybot/internal/telegram"
	"github.com/tgmf/BCloyaltybot/internal/util/syncx"
	"github.com/tgmf/BCloyaltybot/internal/web"
)

func main() { cli.Main(new(engine)) }

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&e.prod, "prod", false, "Run in production mode.")
	fs.StringVar(&e.addr, "addr", "localhost:3000", "Listen on `host:port`.")
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	// Load configuration from environment variables.
	e.host = cmp.Or(e.host, env.Getenv("HOST"))
	e.saKey = cmp.Or(e.saKey, env.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"))
	e.spreadsheetID = cmp.Or(e.spreadsheetID, env.Getenv("SPREADSHEET_ID"))
	e.storeDSN = cmp.Or(e.storeDSN, env.Getenv("STORE_DSN"))
	e.tgSecret = cmp.Or(e.tgSecret, env.Getenv("TG_SECRET"))
	e.tgToken = cmp.Or(e.tgToken, env.Getenv("TG_TOKEN"))
	if addr := env.Getenv("ADDR"); addr != "" {
		e.addr = addr
	}

	e.stderr = env.Stderr

	// Initialize internal state.
	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}
	defer e.store.Close()

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	// If running in production mode, set the webhook in Telegram Bot API.
	if e.prod {
		if err := e.setWebhook(ctx); err != nil {
			return err
		}
		e.logf("Running in production mode.")
	} else {
		e.logf("Running in development mode.")
	}

	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:       e.addr,
		Mux:        e.mux,
		Logf:       e.logf,
		Debuggable: true,
		DebugAuth:  e.debugAuth,
	})
}

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	codec     *state.Codec
	content   *content.Manager
	logStream logger.Streamer
	logf      logger.Logf
	mux       *http.ServeMux
	resolver  *nav.Resolver
	scrubber  *strings.Replacer
	store     store.Store
	tg        *telegram.Client
	verifier  *auth.Verifier

	// configuration, read-only after initialization
	addr          string
	bot           telegram.User // obtained from Telegram Bot API
	host          string
	httpc         *http.Client
	prod          bool
	saKey         string
	spreadsheetID string
	stderr        io.Writer
	storeDSN      string
	tgSecret      string
	tgToken       string
	// for tests
	noServerStart bool
}

const snapshotStoreTTL = 7 * 24 * time.Hour

func (e *engine) doInit(ctx context.Context) error {
	if e.httpc == nil {
		e.httpc = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	const logLineLimit = 300
	e.logStream = logger.NewStreamer(logLineLimit)
	e.logf = log.New(io.MultiWriter(e.stderr, &timestampWriter{e.logStream}), "", 0).Printf

	var scrubPairs []string
	for _, val := range []string{
		e.tgSecret,
		e.tgToken,
		e.saKey,
	} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	if len(scrubPairs) > 0 {
		e.scrubber = strings.NewReplacer(scrubPairs...)
	}

	key, err := serviceaccount.LoadKey([]byte(e.saKey))
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, e.storeDSN, snapshotStoreTTL)
	if err != nil {
		return err
	}
	e.store = st

	e.content = &content.Manager{
		SpreadsheetID: e.spreadsheetID,
		Key:           key,
		HTTPClient:    e.httpc,
		Logf:          e.logf,
		Scrubber:      e.scrubber,
		Store:         e.store,
	}
	e.codec = &state.Codec{Logf: e.logf}
	e.resolver = &nav.Resolver{Logf: e.logf}
	e.verifier = &auth.Verifier{
		Check: e.authCheck,
		TTL:   auth.VerificationTTL(e.prod),
		Logf:  e.logf,
	}
	e.tg = &telegram.Client{
		Token:      e.tgToken,
		HTTPClient: e.httpc,
		Logf:       e.logf,
		Scrubber:   e.scrubber,
	}

	me, err := e.tg.Me(ctx)
	if err != nil {
		return err
	}
	e.bot = me

	e.initRoutes()

	return nil
}

// authCheck is the stale-stamp re-verification: it consults a fresh content
// snapshot for allow-list membership.
func (e *engine) authCheck(ctx context.Context, userID int64, username string) bool {
	return e.content.Snapshot(ctx).IsAdmin(userID, username)
}

func (e *engine) debugAuth(r *http.Request) bool {
	if !e.prod {
		return true
	}
	return r.Header.Get("X-Telegram-Bot-Api-Secret-Token") == e.tgSecret
}

// timestampWriter is an io.Writer that prefixes each line with the current date and time.
type timestampWriter struct {
	w io.Writer
}

func (tw *timestampWriter) Write(p []byte) (n int, err error) {
	lines := bytes.SplitAfter(p, []byte{'\n'})

	for _, line := range lines {
		if len(line) > 0 {
			timestamp := time.Now().Format(time.DateTime + "\t")
			_, err := tw.w.Write([]byte(timestamp))
			if err != nil {
				return n, err
			}
			nn, err := tw.w.Write(line)
			n += nn
			if err != nil {
				return n, err
			}
		}
	}

	return n, nil
}
