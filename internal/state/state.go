// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package state implements the stateless session model of the bot.
//
// Every screen the bot renders carries its full session state inside the
// callback data of its inline keyboard buttons. Telegram limits callback data
// to 64 bytes, so the state is packed with a compact sparse encoding and falls
// back to minified JSON when the primary form doesn't fit. There is no
// server-side session: whatever the button carries is the whole session.
package state

import (
	"strings"
	"time"
)

// State is the session state carried inside a callback token. It is passed by
// value and never mutated in place: every change produces a new State.
//
// Zero values mean "unset" for all fields.
type State struct {
	// PromoID is the identifier of the currently displayed promo.
	PromoID int64
	// VerifiedAt is the Unix timestamp of the last successful admin
	// verification. Zero means the session has no elevated trust.
	VerifiedAt int64
	// StatusMessageID is the identifier of the auxiliary status message
	// shown to admins above the promo.
	StatusMessageID int64
	// PromoMessageID is the identifier of the promo display message that is
	// edited in place during navigation.
	PromoMessageID int64
	// ShowAll reports whether navigation traverses all promos instead of
	// only active ones. Meaningful only for verified sessions.
	ShowAll bool
}

// IsAdmin reports whether the session carries elevated trust.
func (s State) IsAdmin() bool { return s.VerifiedAt > 0 }

// WithPromo returns a copy of s pointing at the given promo.
func (s State) WithPromo(id int64) State {
	s.PromoID = id
	return s
}

// WithVerified returns a copy of s with the verification stamp set to t.
func (s State) WithVerified(t time.Time) State {
	s.VerifiedAt = t.Unix()
	return s
}

// WithoutVerified returns a copy of s demoted to an unprivileged session.
func (s State) WithoutVerified() State {
	s.VerifiedAt = 0
	s.ShowAll = false
	return s
}

// WithMessages returns a copy of s with the status and promo message
// identifiers set.
func (s State) WithMessages(statusID, promoID int64) State {
	s.StatusMessageID = statusID
	s.PromoMessageID = promoID
	return s
}

// WithShowAll returns a copy of s with the show-all mode flag set.
func (s State) WithShowAll(on bool) State {
	s.ShowAll = on
	return s
}

// clockSkew is how far in the future a verification stamp is allowed to be
// before the state is considered invalid.
const clockSkew = 2 * time.Minute

// Valid reports whether s passes basic sanity checks: all fields non-negative
// and the verification stamp not impossibly far in the future.
func (s State) Valid(now time.Time) bool {
	if s.PromoID < 0 || s.VerifiedAt < 0 || s.StatusMessageID < 0 || s.PromoMessageID < 0 {
		return false
	}
	if s.VerifiedAt > now.Add(clockSkew).Unix() {
		return false
	}
	return true
}

// Normalize returns s with invalid or meaningless combinations cleared: a
// state that fails validation collapses to the zero State, and show-all mode
// is dropped for unprivileged sessions.
func (s State) Normalize(now time.Time) State {
	if !s.Valid(now) {
		return State{}
	}
	if s.VerifiedAt == 0 {
		s.ShowAll = false
	}
	return s
}

// Action identifies what a pressed button asks the bot to do. The set of
// known actions is closed: decoding an unknown token yields its raw first
// segment, which handlers treat as [ActionUnknown].
type Action string

// Known actions.
const (
	ActionStart         Action = "start"
	ActionPrev          Action = "prev"
	ActionNext          Action = "next"
	ActionVisit         Action = "visit"
	ActionNoop          Action = "noop"
	ActionAdminList     Action = "adminList"
	ActionAdminView     Action = "adminView"
	ActionAdminToggle   Action = "adminToggle"
	ActionAdminDelete   Action = "adminDelete"
	ActionConfirmDelete Action = "confirmDelete"
	ActionEditText      Action = "editText"
	ActionEditLink      Action = "editLink"
	ActionEditImage     Action = "editImage"
	ActionEditAll       Action = "editAll"
	ActionBackToPromo   Action = "backToPromo"
	ActionToggleMode    Action = "toggleMode"
	ActionLogout        Action = "logout"

	// ActionUnknown is what handlers see for tokens whose action segment
	// doesn't match any known action.
	ActionUnknown Action = ""
)

var knownActions = map[Action]bool{
	ActionStart:         true,
	ActionPrev:          true,
	ActionNext:          true,
	ActionVisit:         true,
	ActionNoop:          true,
	ActionAdminList:     true,
	ActionAdminView:     true,
	ActionAdminToggle:   true,
	ActionAdminDelete:   true,
	ActionConfirmDelete: true,
	ActionEditText:      true,
	ActionEditLink:      true,
	ActionEditImage:     true,
	ActionEditAll:       true,
	ActionBackToPromo:   true,
	ActionToggleMode:    true,
	ActionLogout:        true,
}

// Known reports whether a is one of the closed set of supported actions.
func (a Action) Known() bool { return knownActions[a] }

// canonical converts a snake_case action name to the camelCase form used on
// the wire. Actions already in camelCase pass through unchanged.
func canonical(a Action) Action {
	s := string(a)
	if !strings.Contains(s, "_") {
		return a
	}
	parts := strings.Split(s, "_")
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return Action(sb.String())
}
