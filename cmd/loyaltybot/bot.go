// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/content"
	"github.com/tgmf/BCloyaltybot/internal/state"
	"github.com/tgmf/BCloyaltybot/internal/telegram"
	"github.com/tgmf/BCloyaltybot/internal/web"
)

func jsonOK(w http.ResponseWriter) {
	web.RespondJSON(w, map[string]string{"status": "ok"})
}

func (e *engine) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != e.tgSecret {
		web.RespondJSONError(e.logf, w, web.ErrNotFound)
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		e.logf("webhook: malformed update: %v", err)
		jsonOK(w)
		return
	}

	// Telegram retries updates it considers failed, so after the secret
	// check nothing responds with an error: a handler that can't make
	// progress logs and moves on.
	switch {
	case upd.CallbackQuery != nil:
		e.handleCallback(r.Context(), upd.CallbackQuery)
	case upd.Message != nil:
		e.handleMessage(r.Context(), upd.Message)
	}
	jsonOK(w)
}

func (e *engine) handleMessage(ctx context.Context, m *telegram.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}

	cmd, args, _ := strings.Cut(text, " ")
	// Commands may carry the bot mention: "/start@someloyaltybot".
	cmd, _, _ = strings.Cut(cmd, "@")

	switch cmd {
	case "/start":
		e.handleStart(ctx, m)
	case "/login":
		e.handleLogin(ctx, m, strings.TrimSpace(args))
	case "/logout":
		e.handleLogout(ctx, m, strings.TrimSpace(args))
	default:
		if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil && m.ReplyToMessage.From.ID == e.bot.ID {
			e.handleEditReply(ctx, m, text)
			return
		}
		snap := e.content.Snapshot(ctx)
		if snap.IsAdmin(m.From.ID, m.From.Username) && (text != "" || m.LargestPhoto() != "") {
			e.handleNewDraft(ctx, m, text)
			return
		}
		if _, err := e.tg.SendMarkdown(ctx, m.Chat.ID, "Send /start to see what's on offer.", nil); err != nil {
			e.logf("bot: hint for chat %d failed: %v", m.Chat.ID, err)
		}
	}
}

func (e *engine) handleStart(ctx context.Context, m *telegram.Message) {
	e.showPromo(ctx, m.Chat.ID, state.State{}, -1, nil)
}

// handleLogin elevates the sender. With a password argument it first adds the
// sender to the allow-list; without one the sender must already be on it.
func (e *engine) handleLogin(ctx context.Context, m *telegram.Message, password string) {
	snap := e.content.Snapshot(ctx)
	admin := snap.IsAdmin(m.From.ID, m.From.Username)

	if !admin && password != "" {
		want, err := e.content.OnboardingPassword(ctx)
		if err != nil {
			e.logf("bot: onboarding password lookup failed: %v", err)
			e.sendNote(ctx, m.Chat.ID, "Can't check the password right now, try again later.")
			return
		}
		if want == "" || password != want {
			e.sendNote(ctx, m.Chat.ID, "Wrong password.")
			return
		}
		if err := e.content.AddAdmin(ctx, m.From.ID, m.From.Username); err != nil {
			e.logf("bot: adding admin %d failed: %v", m.From.ID, err)
			e.sendNote(ctx, m.Chat.ID, "Can't add you to the admin list right now, try again later.")
			return
		}
		admin = true
	}

	if !admin {
		e.sendNote(ctx, m.Chat.ID, "You are not on the admin list. Use /login <password> to join.")
		return
	}

	s := state.State{}.WithVerified(time.Now())
	s = e.setStatus(ctx, m.Chat.ID, s, "You are in. Manage promos with the buttons below.")
	e.showPromo(ctx, m.Chat.ID, s, -1, nil)
}

// handleLogout drops the session. With a user ID argument it also removes
// that user from the admin list, which only admins may do.
func (e *engine) handleLogout(ctx context.Context, m *telegram.Message, args string) {
	if args != "" {
		snap := e.content.Snapshot(ctx)
		if !snap.IsAdmin(m.From.ID, m.From.Username) {
			e.sendNote(ctx, m.Chat.ID, "You are not on the admin list.")
			return
		}
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			e.sendNote(ctx, m.Chat.ID, "Usage: /logout [user ID]")
			return
		}
		if err := e.content.RemoveAdmin(ctx, id); err != nil {
			e.logf("bot: removing admin %d failed: %v", id, err)
			e.sendNote(ctx, m.Chat.ID, "Can't update the admin list right now, try again later.")
			return
		}
		e.sendNote(ctx, m.Chat.ID, fmt.Sprintf("Removed %d from the admin list.", id))
		return
	}
	e.sendNote(ctx, m.Chat.ID, "Logged out.")
	e.showPromo(ctx, m.Chat.ID, state.State{}, -1, nil)
}

// handleNewDraft creates a draft promo from a bare admin message.
func (e *engine) handleNewDraft(ctx context.Context, m *telegram.Message, text string) {
	id, err := e.content.AddPromo(ctx, text, m.LargestPhoto(), "", adminName(m.From))
	if err != nil {
		e.logf("bot: creating draft from chat %d failed: %v", m.Chat.ID, err)
		e.sendNote(ctx, m.Chat.ID, "Couldn't save the draft, try again later.")
		return
	}
	s := state.State{}.WithVerified(time.Now()).WithPromo(id)
	s = e.setStatus(ctx, m.Chat.ID, s, fmt.Sprintf("Draft #%d created. Activate it when it's ready.", id))
	e.showPromo(ctx, m.Chat.ID, s, -1, nil)
}

func adminName(u *telegram.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

// Edit prompts.
//
// An edit is a two-step flow with no server-side memory: the bot sends a
// prompt naming the promo and the field, and the admin replies to that
// prompt. The reply's reply_to_message carries the prompt text back, so the
// pending edit is parsed out of the conversation itself.

const editPromptPrefix = "✏️ Editing promo #"

func editPrompt(id int64, field string) string {
	var what string
	switch field {
	case "text":
		what = "reply to this message with the new text"
	case "link":
		what = "reply to this message with the new link, or a dash to remove it"
	case "image":
		what = "reply to this message with the new photo"
	case "all":
		what = "reply to this message with the new photo and caption"
	}
	return fmt.Sprintf("%s%d: %s (%s).", editPromptPrefix, id, field, what)
}

func parseEditPrompt(text string) (id int64, field string, ok bool) {
	rest, found := strings.CutPrefix(text, editPromptPrefix)
	if !found {
		return 0, "", false
	}
	idStr, rest, found := strings.Cut(rest, ": ")
	if !found {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	field, _, _ = strings.Cut(rest, " ")
	switch field {
	case "text", "link", "image", "all":
		return id, field, true
	}
	return 0, "", false
}

func (e *engine) handleEditReply(ctx context.Context, m *telegram.Message, text string) {
	id, field, ok := parseEditPrompt(m.ReplyToMessage.Text)
	if !ok {
		return
	}

	snap := e.content.Snapshot(ctx)
	if !snap.IsAdmin(m.From.ID, m.From.Username) {
		e.sendNote(ctx, m.Chat.ID, "You are not on the admin list anymore.")
		return
	}

	var upd content.PromoUpdate
	switch field {
	case "text":
		if text == "" {
			e.sendNote(ctx, m.Chat.ID, "The new text can't be empty.")
			return
		}
		upd.Text = &text
	case "link":
		link := text
		if link == "-" {
			link = ""
		}
		upd.Link = &link
	case "image":
		fileID := m.LargestPhoto()
		if fileID == "" {
			e.sendNote(ctx, m.Chat.ID, "That reply has no photo. Send one to change the image.")
			return
		}
		upd.ImageFileID = &fileID
	case "all":
		if fileID := m.LargestPhoto(); fileID != "" {
			upd.ImageFileID = &fileID
		}
		if text != "" {
			upd.Text = &text
		}
		if upd.ImageFileID == nil && upd.Text == nil {
			e.sendNote(ctx, m.Chat.ID, "Nothing to change: the reply has neither a photo nor a caption.")
			return
		}
	}

	if err := e.content.UpdatePromo(ctx, id, upd); err != nil {
		e.logf("bot: updating promo %d failed: %v", id, err)
		e.sendNote(ctx, m.Chat.ID, "Couldn't save the change, try again later.")
		return
	}

	s := state.State{}.WithVerified(time.Now()).WithPromo(id)
	s = e.setStatus(ctx, m.Chat.ID, s, fmt.Sprintf("Promo #%d updated.", id))
	e.showPromo(ctx, m.Chat.ID, s, -1, nil)
}

// sendNote sends a one-off message with no keyboard, logging failures.
func (e *engine) sendNote(ctx context.Context, chatID int64, text string) {
	if _, err := e.tg.SendMarkdown(ctx, chatID, text, nil); err != nil {
		e.logf("bot: note for chat %d failed: %v", chatID, err)
	}
}
