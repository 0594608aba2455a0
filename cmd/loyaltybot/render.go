// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/tgmf/BCloyaltybot/internal/content"
	"github.com/tgmf/BCloyaltybot/internal/nav"
	"github.com/tgmf/BCloyaltybot/internal/state"
	"github.com/tgmf/BCloyaltybot/internal/telegram"
	"github.com/tgmf/BCloyaltybot/internal/tgmarkup"
)

// The bot maintains at most two messages per chat: a status message for
// instructions and confirmations, and a display message holding the current
// promo. Both IDs travel inside the callback tokens.
//
// A keyboard is always built from the final state so its tokens carry the
// message IDs the next press needs. For a freshly sent message that means a
// second call to set the markup once the ID is known.

type keyboardFunc func(state.State) *telegram.InlineKeyboardMarkup

// showPromo is the terminal render step: it guards against an empty ordering
// and draws whatever the availability verdict says. cur is the message whose
// keyboard triggered the render, nil when the flow starts from a command.
func (e *engine) showPromo(ctx context.Context, chatID int64, s state.State, lastIndex int, cur *telegram.Message) {
	snap := e.content.Snapshot(ctx)
	s, avail, digest := e.resolver.EnsureAvailable(snap, s, lastIndex)

	switch avail {
	case nav.Available:
		p, ok := snap.PromoByID(s.PromoID)
		if !ok {
			// The snapshot changed between the guard and the lookup.
			e.logf("bot: promo %d vanished mid-render in chat %d", s.PromoID, chatID)
			return
		}
		e.renderPromo(ctx, chatID, s, p, cur)

	case nav.NoneForUsers:
		e.renderDisplay(ctx, chatID, s, "Nothing on offer right now. Check back later!", "", nil, cur)

	case nav.NoneActive:
		var sb strings.Builder
		sb.WriteString("No active promos. Drafts waiting:\n")
		for _, p := range digest {
			fmt.Fprintf(&sb, "\n- #%d %s", p.ID, firstLine(p.Text))
		}
		sb.WriteString("\n\nSwitch to the full list to manage them.")
		e.renderDisplay(ctx, chatID, s, sb.String(), "", func(s state.State) *telegram.InlineKeyboardMarkup {
			return &telegram.InlineKeyboardMarkup{
				InlineKeyboard: [][]telegram.InlineKeyboardButton{{
					{Text: "👁 Show all", CallbackData: e.codec.Encode(state.ActionToggleMode, s)},
					{Text: "🚪 Logout", CallbackData: e.codec.Encode(state.ActionLogout, s)},
				}},
			}
		}, cur)

	case nav.NoneAtAll:
		text := "Nothing on offer right now. Check back later!"
		var kb keyboardFunc
		if s.IsAdmin() {
			text = "No promos yet. Send me a message (a photo with a caption works too) to create the first draft."
			kb = func(s state.State) *telegram.InlineKeyboardMarkup {
				return &telegram.InlineKeyboardMarkup{
					InlineKeyboard: [][]telegram.InlineKeyboardButton{{
						{Text: "🚪 Logout", CallbackData: e.codec.Encode(state.ActionLogout, s)},
					}},
				}
			}
		}
		e.renderDisplay(ctx, chatID, s, text, "", kb, cur)
	}
}

func (e *engine) renderPromo(ctx context.Context, chatID int64, s state.State, p content.Promo, cur *telegram.Message) {
	text := p.Text
	kb := e.userKeyboard
	if s.IsAdmin() {
		text = fmt.Sprintf("%s\n\n#%d · %s · order %d", p.Text, p.ID, p.Status, p.Order)
		kb = e.adminKeyboard
	}
	e.renderDisplay(ctx, chatID, s, text, p.ImageFileID, func(s state.State) *telegram.InlineKeyboardMarkup {
		return kb(s, p)
	}, cur)
}

// renderDisplay edits the display message in place, degrading to a
// delete-and-resend when the edit fails (for example when the message
// switches between photo and plain text, which Telegram won't edit across).
func (e *engine) renderDisplay(ctx context.Context, chatID int64, s state.State, text, imageFileID string, kb keyboardFunc, cur *telegram.Message) state.State {
	msg := tgmarkup.FromMarkdown(text)
	var markup *telegram.InlineKeyboardMarkup
	if kb != nil {
		markup = kb(s)
	}

	if s.PromoMessageID != 0 {
		var err error
		switch {
		case imageFileID != "" && cur != nil && cur.ID == s.PromoMessageID && cur.LargestPhoto() == imageFileID:
			// The message already shows this photo, only the caption changes.
			err = e.tg.EditMessageCaption(ctx, telegram.EditMessageCaptionParams{
				ChatID:          chatID,
				MessageID:       s.PromoMessageID,
				Caption:         msg.Text,
				CaptionEntities: msg.Entities,
				ReplyMarkup:     markup,
			})
		case imageFileID != "":
			err = e.tg.EditMessageMedia(ctx, telegram.EditMessageMediaParams{
				ChatID:    chatID,
				MessageID: s.PromoMessageID,
				Media: telegram.InputMediaPhoto{
					Type:            "photo",
					Media:           imageFileID,
					Caption:         msg.Text,
					CaptionEntities: msg.Entities,
				},
				ReplyMarkup: markup,
			})
		default:
			err = e.tg.EditMessageText(ctx, telegram.EditMessageTextParams{
				ChatID:      chatID,
				MessageID:   s.PromoMessageID,
				Text:        msg.Text,
				Entities:    msg.Entities,
				ReplyMarkup: markup,
			})
		}
		if err == nil {
			return s
		}
		e.logf("bot: editing message %d in chat %d failed, resending: %v", s.PromoMessageID, chatID, err)
		if err := e.tg.DeleteMessage(ctx, chatID, s.PromoMessageID); err != nil {
			e.logf("bot: deleting message %d in chat %d failed: %v", s.PromoMessageID, chatID, err)
		}
		s = s.WithMessages(s.StatusMessageID, 0)
	}

	var (
		sent telegram.Message
		err  error
	)
	if imageFileID != "" {
		sent, err = e.tg.SendPhoto(ctx, telegram.SendPhotoParams{
			ChatID:          chatID,
			Photo:           imageFileID,
			Caption:         msg.Text,
			CaptionEntities: msg.Entities,
		})
	} else {
		p := telegram.SendMessageParams{
			ChatID:   chatID,
			Text:     msg.Text,
			Entities: msg.Entities,
		}
		p.LinkPreviewOptions.IsDisabled = true
		sent, err = e.tg.SendMessage(ctx, p)
	}
	if err != nil {
		e.logf("bot: sending display message to chat %d failed: %v", chatID, err)
		return s
	}
	s = s.WithMessages(s.StatusMessageID, sent.ID)

	if kb != nil {
		err := e.tg.EditMessageReplyMarkup(ctx, telegram.EditMessageReplyMarkupParams{
			ChatID:      chatID,
			MessageID:   sent.ID,
			ReplyMarkup: kb(s),
		})
		if err != nil {
			e.logf("bot: attaching keyboard to message %d in chat %d failed: %v", sent.ID, chatID, err)
		}
	}
	return s
}

// setStatus updates the status message, creating it on first use.
func (e *engine) setStatus(ctx context.Context, chatID int64, s state.State, text string) state.State {
	return e.editOrSendStatus(ctx, chatID, s, text, nil)
}

func (e *engine) editOrSendStatus(ctx context.Context, chatID int64, s state.State, text string, kb keyboardFunc) state.State {
	msg := tgmarkup.FromMarkdown(text)
	var markup *telegram.InlineKeyboardMarkup
	if kb != nil {
		markup = kb(s)
	}

	if s.StatusMessageID != 0 {
		err := e.tg.EditMessageText(ctx, telegram.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   s.StatusMessageID,
			Text:        msg.Text,
			Entities:    msg.Entities,
			ReplyMarkup: markup,
		})
		if err == nil {
			return s
		}
		e.logf("bot: editing status message %d in chat %d failed, resending: %v", s.StatusMessageID, chatID, err)
	}

	sent, err := e.tg.SendMarkdown(ctx, chatID, text, nil)
	if err != nil {
		e.logf("bot: sending status message to chat %d failed: %v", chatID, err)
		return s
	}
	s = s.WithMessages(sent.ID, s.PromoMessageID)

	if kb != nil {
		err := e.tg.EditMessageReplyMarkup(ctx, telegram.EditMessageReplyMarkupParams{
			ChatID:      chatID,
			MessageID:   sent.ID,
			ReplyMarkup: kb(s),
		})
		if err != nil {
			e.logf("bot: attaching keyboard to message %d in chat %d failed: %v", sent.ID, chatID, err)
		}
	}
	return s
}

// listLimit bounds the admin list keyboard.
const listLimit = 10

// showList puts a pick-a-promo keyboard on the status message.
func (e *engine) showList(ctx context.Context, chatID int64, s state.State, cur *telegram.Message) {
	snap := e.content.Snapshot(ctx)
	all := snap.AllPromos()
	if len(all) == 0 {
		e.showPromo(ctx, chatID, s, -1, cur)
		return
	}

	text := fmt.Sprintf("All promos (%d):", len(all))
	if len(all) > listLimit {
		text = fmt.Sprintf("All promos (%d, first %d shown):", len(all), listLimit)
		all = all[:listLimit]
	}

	e.editOrSendStatus(ctx, chatID, s, text, func(s state.State) *telegram.InlineKeyboardMarkup {
		var rows [][]telegram.InlineKeyboardButton
		for _, p := range all {
			label := fmt.Sprintf("%s #%d %s", statusEmoji(p.Status), p.ID, firstLine(p.Text))
			rows = append(rows, []telegram.InlineKeyboardButton{{
				Text:         label,
				CallbackData: e.codec.Encode(state.ActionAdminView, s.WithPromo(p.ID)),
			}})
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         "Close",
			CallbackData: e.codec.Encode(state.ActionBackToPromo, s),
		}})
		return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
	})
}

func (e *engine) userKeyboard(s state.State, p content.Promo) *telegram.InlineKeyboardMarkup {
	row := []telegram.InlineKeyboardButton{
		{Text: "◀️", CallbackData: e.codec.Encode(state.ActionPrev, s)},
	}
	if p.Link != "" {
		row = append(row, telegram.InlineKeyboardButton{Text: "🔗 Open", URL: p.Link})
	}
	row = append(row, telegram.InlineKeyboardButton{
		Text: "▶️", CallbackData: e.codec.Encode(state.ActionNext, s),
	})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}

func (e *engine) adminKeyboard(s state.State, p content.Promo) *telegram.InlineKeyboardMarkup {
	toggleLabel := "🚀 Activate"
	if p.Status == content.StatusActive {
		toggleLabel = "⏸ Deactivate"
	}
	modeLabel := "👁 Show all"
	if s.ShowAll {
		modeLabel = "👁 Active only"
	}

	navRow := []telegram.InlineKeyboardButton{
		{Text: "◀️", CallbackData: e.codec.Encode(state.ActionPrev, s)},
	}
	if p.Link != "" {
		navRow = append(navRow, telegram.InlineKeyboardButton{Text: "🔗 Open", URL: p.Link})
	}
	navRow = append(navRow, telegram.InlineKeyboardButton{
		Text: "▶️", CallbackData: e.codec.Encode(state.ActionNext, s),
	})

	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		navRow,
		{
			{Text: toggleLabel, CallbackData: e.codec.Encode(state.ActionAdminToggle, s)},
			{Text: "🗑 Delete", CallbackData: e.codec.Encode(state.ActionAdminDelete, s)},
		},
		{
			{Text: "✏️ Text", CallbackData: e.codec.Encode(state.ActionEditText, s)},
			{Text: "🔗 Link", CallbackData: e.codec.Encode(state.ActionEditLink, s)},
			{Text: "🖼 Image", CallbackData: e.codec.Encode(state.ActionEditImage, s)},
			{Text: "📝 All", CallbackData: e.codec.Encode(state.ActionEditAll, s)},
		},
		{
			{Text: "📋 List", CallbackData: e.codec.Encode(state.ActionAdminList, s)},
			{Text: modeLabel, CallbackData: e.codec.Encode(state.ActionToggleMode, s)},
			{Text: "🚪 Logout", CallbackData: e.codec.Encode(state.ActionLogout, s)},
		},
	}}
}

func statusEmoji(st content.Status) string {
	switch st {
	case content.StatusActive:
		return "🟢"
	case content.StatusDraft:
		return "📝"
	default:
		return "⚪️"
	}
}

// firstLine returns a short prefix of the promo text for list labels.
func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	const maxLabel = 30
	if len(line) > maxLabel {
		// Don't cut a UTF-8 sequence in half.
		cut := maxLabel
		for cut > 0 && line[cut]&0xc0 == 0x80 {
			cut--
		}
		line = line[:cut] + "…"
	}
	return line
}
