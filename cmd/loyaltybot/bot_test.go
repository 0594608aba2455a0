// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/request"
	"github.com/tgmf/BCloyaltybot/internal/state"
	"github.com/tgmf/BCloyaltybot/internal/telegram"
	"github.com/tgmf/BCloyaltybot/internal/testutil"
)

const (
	testChatID  = 100
	adminUserID = 999
)

//go:embed testdata/sheet.txtar
var sheetTxtar []byte

func testRows(t *testing.T, m *testMux) {
	t.Helper()
	tables := testutil.TxtarRows(t, sheetTxtar)
	m.promoRows = tables["promo_messages"]
	m.adminRows = tables["authorized_users"]
}

func sendUpdate(t *testing.T, e *engine, upd telegram.Update) {
	t.Helper()
	_, err := request.Make[map[string]string](t.Context(), request.Params{
		Method: http.MethodPost,
		URL:    "http://bot.test/telegram",
		Body:   upd,
		Headers: map[string]string{
			"X-Telegram-Bot-Api-Secret-Token": e.tgSecret,
		},
		HTTPClient: testutil.MockHTTPClient(e.mux),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func messageUpdate(from int64, text string) telegram.Update {
	return telegram.Update{
		ID: 1,
		Message: &telegram.Message{
			ID:   10,
			From: &telegram.User{ID: from, Username: "someone"},
			Chat: telegram.Chat{ID: testChatID},
			Text: text,
		},
	}
}

func callbackUpdate(from int64, data string) telegram.Update {
	return telegram.Update{
		ID: 1,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb1",
			From: telegram.User{ID: from, Username: "someone"},
			Message: &telegram.Message{
				ID:   500,
				Chat: telegram.Chat{ID: testChatID},
			},
			Data: data,
		},
	}
}

// argsJSON renders a recorded call's arguments for loose contains checks.
func argsJSON(t *testing.T, c tgCall) string {
	t.Helper()
	b, err := json.Marshal(c.Args)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	_, err := request.Make[map[string]string](t.Context(), request.Params{
		Method:     http.MethodPost,
		URL:        "http://bot.test/telegram",
		Body:       messageUpdate(1, "/start"),
		HTTPClient: testutil.MockHTTPClient(e.mux),
	})
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("want StatusError, got %v", err)
	}
	testutil.AssertEqual(t, statusErr.StatusCode, http.StatusNotFound)
}

func TestStartShowsFirstActivePromo(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	sendUpdate(t, e, messageUpdate(1, "/start"))

	// Active promos sorted by order are [9, 5]; the first one is shown.
	sent, ok := m.call("sendMessage")
	if !ok {
		t.Fatalf("no sendMessage recorded, calls: %v", m.calls())
	}
	testutil.AssertEqual(t, sent.Args["text"], "Promo nine\n")

	// The keyboard is attached once the message ID is known, so its tokens
	// carry it.
	kb, ok := m.call("editMessageReplyMarkup")
	if !ok {
		t.Fatalf("no editMessageReplyMarkup recorded, calls: %v", m.calls())
	}
	if got := argsJSON(t, kb); !strings.Contains(got, `"next`) || !strings.Contains(got, `"prev`) {
		t.Fatalf("keyboard should contain prev/next tokens, got: %s", got)
	}
}

func TestNextWrapsAround(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	// Active ordering is [9, 5]: stepping forward from the last promo wraps
	// to the first.
	sendUpdate(t, e, callbackUpdate(1, e.codec.Encode(state.ActionNext, state.State{PromoID: 5})))

	edit, ok := m.call("editMessageText")
	if !ok {
		t.Fatalf("no editMessageText recorded, calls: %v", m.calls())
	}
	testutil.AssertEqual(t, edit.Args["text"], "Promo nine\n")
	testutil.AssertEqual(t, edit.Args["message_id"], float64(500))

	if _, ok := m.call("answerCallbackQuery"); !ok {
		t.Fatalf("callback not answered, calls: %v", m.calls())
	}
}

func TestStaleAdminActionDemotes(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	// A stale verification stamp forces a re-check; user 1 is not on the
	// allow-list, so the admin action is refused.
	s := state.State{
		PromoID:    5,
		VerifiedAt: time.Now().Add(-10 * time.Minute).Unix(),
	}
	sendUpdate(t, e, callbackUpdate(1, e.codec.Encode(state.ActionAdminToggle, s)))

	answer, ok := m.call("answerCallbackQuery")
	if !ok {
		t.Fatalf("callback not answered, calls: %v", m.calls())
	}
	testutil.AssertEqual(t, answer.Args["text"], "Not authorized.")

	// The screen degrades to the regular user view.
	edit, ok := m.call("editMessageText")
	if !ok {
		t.Fatalf("no editMessageText recorded, calls: %v", m.calls())
	}
	testutil.AssertEqual(t, edit.Args["text"], "Promo five\n")
}

func TestAdminToggle(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	s := state.State{PromoID: 5}.WithVerified(time.Now())
	sendUpdate(t, e, callbackUpdate(adminUserID, e.codec.Encode(state.ActionAdminToggle, s)))

	// Promo 5 sits in the first data row of the sheet.
	m.mu.Lock()
	updates := m.updates
	m.mu.Unlock()
	testutil.AssertContains(t, updates, "promo_messages!A2:H2")

	answer, _ := m.call("answerCallbackQuery")
	testutil.AssertEqual(t, answer.Args["text"], "Promo #5 is now inactive.")
}

func TestPhotoCaptionEditedInPlace(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	// The pressed keyboard hangs off a message that already shows the
	// promo's photo, so only the caption is edited, not the media.
	s := state.State{PromoID: 7, ShowAll: true}.WithVerified(time.Now())
	upd := callbackUpdate(adminUserID, e.codec.Encode(state.ActionAdminView, s))
	upd.CallbackQuery.Message.Photo = []telegram.PhotoSize{{FileID: "img7", Width: 100, Height: 100}}
	sendUpdate(t, e, upd)

	edit, ok := m.call("editMessageCaption")
	if !ok {
		t.Fatalf("no editMessageCaption recorded, calls: %v", m.calls())
	}
	testutil.AssertEqual(t, edit.Args["message_id"], float64(500))
	if got := edit.Args["caption"].(string); !strings.Contains(got, "Promo seven") {
		t.Fatalf("caption should show the promo, got: %q", got)
	}
	if _, ok := m.call("editMessageMedia"); ok {
		t.Fatalf("media should not be resent when the photo is unchanged, calls: %v", m.calls())
	}
}

func TestConfirmDelete(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	s := state.State{PromoID: 5}.WithVerified(time.Now())
	sendUpdate(t, e, callbackUpdate(adminUserID, e.codec.Encode(state.ActionConfirmDelete, s)))

	// Promo 5 is sheet row 2, so the deleted zero-based range starts at 1.
	m.mu.Lock()
	deletes := m.deletes
	m.mu.Unlock()
	testutil.AssertEqual(t, deletes, []int64{1})

	answer, _ := m.call("answerCallbackQuery")
	testutil.AssertEqual(t, answer.Args["text"], "Promo #5 deleted.")
}

func TestLoginWithPassword(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	sendUpdate(t, e, messageUpdate(777, "/login hunter2"))

	m.mu.Lock()
	appends := m.appends
	m.mu.Unlock()
	if len(appends) == 0 || !strings.HasPrefix(appends[0], "777|someone|") {
		t.Fatalf("expected user 777 appended to the allow-list, got %v", appends)
	}

	sent, ok := m.call("sendMessage")
	if !ok {
		t.Fatalf("no sendMessage recorded, calls: %v", m.calls())
	}
	if got := sent.Args["text"].(string); !strings.Contains(got, "You are in") {
		t.Fatalf("want welcome status message, got %q", got)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	sendUpdate(t, e, messageUpdate(777, "/login letmein"))

	m.mu.Lock()
	appends := m.appends
	m.mu.Unlock()
	if len(appends) != 0 {
		t.Fatalf("allow-list should be untouched, got %v", appends)
	}

	sent, _ := m.call("sendMessage")
	testutil.AssertEqual(t, sent.Args["text"], "Wrong password.\n")
}

func TestLogoutRemovesAdmin(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	sendUpdate(t, e, messageUpdate(adminUserID, "/logout 999"))

	m.mu.Lock()
	deletes := m.deletes
	m.mu.Unlock()
	// The only admin sits in sheet row 2, deleted as zero-based index 1.
	if len(deletes) != 1 || deletes[0] != 1 {
		t.Fatalf("expected admin row deleted, got %v", deletes)
	}

	sent, _ := m.call("sendMessage")
	testutil.AssertEqual(t, sent.Args["text"], "Removed 999 from the admin list.\n")
}

func TestLogoutByNonAdminLeavesList(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	sendUpdate(t, e, messageUpdate(777, "/logout 999"))

	m.mu.Lock()
	deletes := m.deletes
	m.mu.Unlock()
	if len(deletes) != 0 {
		t.Fatalf("allow-list should be untouched, got %v", deletes)
	}
}

func TestAdminMessageCreatesDraft(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	sendUpdate(t, e, messageUpdate(adminUserID, "Fresh offer"))

	m.mu.Lock()
	appends := m.appends
	m.mu.Unlock()
	// Highest existing promo ID is 9, so the draft gets 10.
	if len(appends) == 0 || !strings.HasPrefix(appends[0], "10|Fresh offer|") {
		t.Fatalf("expected draft row appended, got %v", appends)
	}
	if !strings.Contains(appends[0], "|draft|") {
		t.Fatalf("new promo should be a draft, got %v", appends[0])
	}
}

func TestEditReplyUpdatesText(t *testing.T) {
	t.Parallel()

	m := newTestMux(t)
	testRows(t, m)
	e := testEngine(t, m)

	upd := messageUpdate(adminUserID, "Updated text")
	upd.Message.ReplyToMessage = &telegram.Message{
		ID:   33,
		From: &telegram.User{ID: 424242, IsBot: true},
		Text: editPrompt(5, "text"),
	}
	sendUpdate(t, e, upd)

	m.mu.Lock()
	updates := m.updates
	m.mu.Unlock()
	testutil.AssertContains(t, updates, "promo_messages!A2:H2")
}

func TestParseEditPrompt(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"text", "link", "image", "all"} {
		id, got, ok := parseEditPrompt(editPrompt(42, field))
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, id, int64(42))
		testutil.AssertEqual(t, got, field)
	}

	for _, text := range []string{
		"",
		"hello",
		editPromptPrefix,
		editPromptPrefix + "x: text (whatever).",
		editPromptPrefix + "7: password (whatever).",
	} {
		if _, _, ok := parseEditPrompt(text); ok {
			t.Errorf("parseEditPrompt(%q) = ok, want not ok", text)
		}
	}
}
