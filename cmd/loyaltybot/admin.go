// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"

	"github.com/tgmf/BCloyaltybot/internal/content"
	"github.com/tgmf/BCloyaltybot/internal/nav"
	"github.com/tgmf/BCloyaltybot/internal/state"
	"github.com/tgmf/BCloyaltybot/internal/telegram"
)

// handleCallback routes a button press. The token in q.Data carries the whole
// session; nothing is looked up in server memory.
func (e *engine) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	var toast string
	defer func() {
		err := e.tg.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
			CallbackQueryID: q.ID,
			Text:            toast,
		})
		if err != nil {
			e.logf("bot: answering callback %s failed: %v", q.ID, err)
		}
	}()

	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID

	act, s := e.codec.Decode(q.Data)
	s = e.verifier.Refresh(ctx, s, q.From.ID, q.From.Username)
	if s.PromoMessageID == 0 {
		// The pressed keyboard hangs off the promo message unless the token
		// says otherwise.
		s = s.WithMessages(s.StatusMessageID, q.Message.ID)
	}

	if act.Known() && !s.IsAdmin() && adminOnly(act) {
		toast = "Not authorized."
		e.showPromo(ctx, chatID, s, -1, q.Message)
		return
	}

	switch act {
	case state.ActionStart, state.ActionBackToPromo:
		e.showPromo(ctx, chatID, s, -1, q.Message)

	case state.ActionPrev, state.ActionNext:
		dir := nav.Next
		if act == state.ActionPrev {
			dir = nav.Prev
		}
		snap := e.content.Snapshot(ctx)
		ordering := e.resolver.Ordering(snap, s)
		s = s.WithPromo(e.resolver.Step(dir, ordering, s.PromoID))
		e.showPromo(ctx, chatID, s, -1, q.Message)

	case state.ActionVisit:
		snap := e.content.Snapshot(ctx)
		if p, ok := snap.PromoByID(s.PromoID); ok && p.Link != "" {
			toast = p.Link
		} else {
			toast = "This promo has no link."
		}

	case state.ActionNoop:

	case state.ActionToggleMode:
		s = s.WithShowAll(!s.ShowAll)
		// Mode switch changes the ordering under our feet, so let the
		// availability guard repick the promo.
		s = s.WithPromo(0)
		e.showPromo(ctx, chatID, s, -1, q.Message)

	case state.ActionLogout:
		toast = "Logged out."
		e.showPromo(ctx, chatID, state.State{}.WithMessages(s.StatusMessageID, s.PromoMessageID), -1, q.Message)

	case state.ActionAdminList:
		e.showList(ctx, chatID, s, q.Message)

	case state.ActionAdminView:
		e.showPromo(ctx, chatID, s, -1, q.Message)

	case state.ActionAdminToggle:
		toast = e.togglePromo(ctx, chatID, s, q.Message)

	case state.ActionAdminDelete:
		e.confirmDelete(ctx, chatID, s, q.Message)

	case state.ActionConfirmDelete:
		toast = e.deletePromo(ctx, chatID, s, q.Message)

	case state.ActionEditText:
		e.promptEdit(ctx, chatID, s, "text", q.Message)
	case state.ActionEditLink:
		e.promptEdit(ctx, chatID, s, "link", q.Message)
	case state.ActionEditImage:
		e.promptEdit(ctx, chatID, s, "image", q.Message)
	case state.ActionEditAll:
		e.promptEdit(ctx, chatID, s, "all", q.Message)

	default:
		e.logf("bot: unknown action %q in chat %d", act, chatID)
		e.showPromo(ctx, chatID, s, -1, q.Message)
	}
}

// adminOnly reports whether the action mutates content or exposes the admin
// surface.
func adminOnly(act state.Action) bool {
	switch act {
	case state.ActionStart, state.ActionPrev, state.ActionNext, state.ActionVisit, state.ActionNoop, state.ActionLogout:
		return false
	}
	return true
}

// togglePromo cycles a promo between active and inactive; drafts activate.
func (e *engine) togglePromo(ctx context.Context, chatID int64, s state.State, cur *telegram.Message) string {
	snap := e.content.Snapshot(ctx)
	p, ok := snap.PromoByID(s.PromoID)
	if !ok {
		return "This promo is gone."
	}

	next := content.StatusActive
	if p.Status == content.StatusActive {
		next = content.StatusInactive
	}
	if err := e.content.SetPromoStatus(ctx, p.ID, next); err != nil {
		e.logf("bot: toggling promo %d failed: %v", p.ID, err)
		return "Couldn't change the status, try again later."
	}
	e.showPromo(ctx, chatID, s, -1, cur)
	return fmt.Sprintf("Promo #%d is now %s.", p.ID, next)
}

func (e *engine) confirmDelete(ctx context.Context, chatID int64, s state.State, cur *telegram.Message) {
	snap := e.content.Snapshot(ctx)
	p, ok := snap.PromoByID(s.PromoID)
	if !ok {
		e.showPromo(ctx, chatID, s, -1, cur)
		return
	}
	text := fmt.Sprintf("Delete promo #%d for good? This can't be undone.", p.ID)
	e.editOrSendStatus(ctx, chatID, s, text, func(s state.State) *telegram.InlineKeyboardMarkup {
		return &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{Text: "🗑 Delete", CallbackData: e.codec.Encode(state.ActionConfirmDelete, s)},
				{Text: "Cancel", CallbackData: e.codec.Encode(state.ActionBackToPromo, s)},
			}},
		}
	})
}

// deletePromo removes the promo and repositions the session on whatever now
// occupies its old slot, clamped to the shrunken list.
func (e *engine) deletePromo(ctx context.Context, chatID int64, s state.State, cur *telegram.Message) string {
	snap := e.content.Snapshot(ctx)
	lastIndex := e.resolver.IndexOf(e.resolver.Ordering(snap, s), s.PromoID)

	if err := e.content.DeletePromo(ctx, s.PromoID); err != nil {
		e.logf("bot: deleting promo %d failed: %v", s.PromoID, err)
		e.showPromo(ctx, chatID, s, -1, cur)
		return "Couldn't delete the promo, try again later."
	}

	id := s.PromoID
	s = s.WithPromo(0)
	e.showPromo(ctx, chatID, s, lastIndex, cur)
	return fmt.Sprintf("Promo #%d deleted.", id)
}

func (e *engine) promptEdit(ctx context.Context, chatID int64, s state.State, field string, cur *telegram.Message) {
	if s.PromoID == 0 {
		e.showPromo(ctx, chatID, s, -1, cur)
		return
	}
	// The prompt is a fresh message so the admin can reply to it; the status
	// message keeps showing the promo context.
	if _, err := e.tg.SendMarkdown(ctx, chatID, editPrompt(s.PromoID, field), nil); err != nil {
		e.logf("bot: edit prompt for chat %d failed: %v", chatID, err)
	}
}
