// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"flag"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/tgmf/BCloyaltybot/internal/cli"
	"github.com/tgmf/BCloyaltybot/internal/cli/clitest"
	"github.com/tgmf/BCloyaltybot/internal/serviceaccount"
	"github.com/tgmf/BCloyaltybot/internal/testutil"
)

// Typical Telegram Bot API token, copied from docs.
const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

func TestRun(t *testing.T) {
	t.Parallel()

	saKey := testSAKey(t)

	clitest.Run(t, func(t *testing.T) *engine {
		e := new(engine)
		e.httpc = testutil.MockHTTPClient(newTestMux(t).mux)
		e.noServerStart = true
		return e
	}, map[string]clitest.Case[*engine]{
		"prints usage with help flag": {
			Args:    []string{"-h"},
			WantErr: flag.ErrHelp,
		},
		"version": {
			Args:    []string{"-version"},
			WantErr: cli.ErrExitVersion,
		},
		"sets telegram token passed by env": {
			Args: []string{},
			Env: map[string]string{
				"TG_TOKEN":                   tgToken,
				"TG_SECRET":                  "test",
				"SPREADSHEET_ID":             "sheet123",
				"GOOGLE_SERVICE_ACCOUNT_KEY": saKey,
			},
			CheckFunc: func(t *testing.T, e *engine) {
				testutil.AssertEqual(t, e.tgToken, tgToken)
				testutil.AssertEqual(t, e.bot.Username, "loyalty_bot")
			},
		},
	})
}

func testSAKey(t *testing.T) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(&serviceaccount.Key{
		Type:        "service_account",
		ClientEmail: "bot@test.iam.gserviceaccount.com",
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		TokenURI:    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// testMux fakes both external collaborators: the Telegram Bot API (recording
// every call) and the Sheets API (serving canned rows, recording mutations).
type testMux struct {
	mux *http.ServeMux

	mu            sync.Mutex
	promoRows     [][]string
	adminRows     [][]string
	telegramCalls []tgCall
	appends       []string // appended rows, joined with |
	updates       []string // updated ranges
	deletes       []int64  // start indexes of deleted row ranges
	nextMessageID int64
}

type tgCall struct {
	Method string
	Args   map[string]any
}

// calls returns the recorded Telegram method names in order.
func (m *testMux) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, c := range m.telegramCalls {
		names = append(names, c.Method)
	}
	return names
}

func (m *testMux) call(method string) (tgCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.telegramCalls {
		if c.Method == method {
			return c, true
		}
	}
	return tgCall{}, false
}

func newTestMux(t *testing.T) *testMux {
	m := &testMux{mux: http.NewServeMux(), nextMessageID: 1000}

	m.mux.HandleFunc("POST api.telegram.org/{token}/{method}", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, strings.TrimPrefix(r.PathValue("token"), "bot"), tgToken)

		m.mu.Lock()
		defer m.mu.Unlock()

		method := r.PathValue("method")
		var args map[string]any
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			t.Errorf("telegram %s: %v", method, err)
		}
		m.telegramCalls = append(m.telegramCalls, tgCall{Method: method, Args: args})

		var result any
		switch method {
		case "getMe":
			result = map[string]any{"id": 424242, "is_bot": true, "username": "loyalty_bot"}
		case "sendMessage", "sendPhoto":
			m.nextMessageID++
			result = map[string]any{"message_id": m.nextMessageID, "chat": map[string]any{"id": args["chat_id"]}}
		default:
			result = true
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	})

	m.mux.HandleFunc("POST oauth2.googleapis.com/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})
	})
	m.mux.HandleFunc("GET sheets.googleapis.com/v4/spreadsheets/sheet123", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sheets": []map[string]any{
				{"properties": map[string]any{"sheetId": 111, "title": "promo_messages"}},
				{"properties": map[string]any{"sheetId": 222, "title": "authorized_users"}},
			},
		})
	})
	m.mux.HandleFunc("sheets.googleapis.com/v4/spreadsheets/", func(w http.ResponseWriter, r *http.Request) {
		m.serveSheets(t, w, r)
	})

	return m
}

type valueRange struct {
	Values [][]string `json:"values,omitempty"`
}

func (m *testMux) serveSheets(t *testing.T, w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := r.URL.Path

	if strings.HasSuffix(path, ":batchUpdate") {
		var req struct {
			Requests []map[string]struct {
				Range struct {
					StartIndex int64 `json:"startIndex"`
				} `json:"range"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("batchUpdate: %v", err)
		}
		for _, rq := range req.Requests {
			if dd, ok := rq["deleteDimension"]; ok {
				m.deletes = append(m.deletes, dd.Range.StartIndex)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{})
		return
	}

	i := strings.Index(path, "/values/")
	if i < 0 {
		http.NotFound(w, r)
		return
	}
	rng := path[i+len("/values/"):]

	if strings.HasSuffix(rng, ":append") {
		var vr valueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			t.Errorf("append: %v", err)
		}
		for _, row := range vr.Values {
			m.appends = append(m.appends, strings.Join(row, "|"))
		}
		json.NewEncoder(w).Encode(map[string]any{})
		return
	}

	switch r.Method {
	case http.MethodGet:
		var values [][]string
		switch {
		case strings.HasPrefix(rng, "promo_messages"):
			values = m.promoRows
		case strings.HasPrefix(rng, "authorized_users"):
			values = m.adminRows
		case strings.HasPrefix(rng, "settings"):
			values = [][]string{{"hunter2"}}
		}
		json.NewEncoder(w).Encode(valueRange{Values: values})
	case http.MethodPut:
		m.updates = append(m.updates, rng)
		json.NewEncoder(w).Encode(map[string]any{})
	default:
		http.NotFound(w, r)
	}
}

func testEngine(t *testing.T, m *testMux) *engine {
	t.Helper()
	e := &engine{
		httpc:         testutil.MockHTTPClient(m.mux),
		saKey:         testSAKey(t),
		spreadsheetID: "sheet123",
		tgSecret:      "test",
		tgToken:       tgToken,
	}
	if err := e.init.Get(func() error {
		return e.doInit(t.Context())
	}); err != nil {
		t.Fatal(err)
	}
	return e
}
