// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package state

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/logger"
)

// MaxTokenLen is the hard limit Telegram imposes on callback data.
const MaxTokenLen = 64

// fallbackPrefix marks tokens that carry the JSON fallback encoding.
const fallbackPrefix = "state_"

// Codec encodes an (action, State) pair into a callback token and decodes it
// back. The zero value is ready to use and logging is discarded.
//
// The primary form is the action followed by sparse key/value pairs joined
// with underscores, integers in base 36:
//
//	next_p_2s_v_1mkg5c80
//
// Zero fields are omitted entirely, so the common unprivileged token is just
// the action and a promo ID. When the primary form exceeds [MaxTokenLen], the
// token degrades to a fallback of "state_" followed by minified JSON. A
// fallback payload that still doesn't fit sheds the message ID fields rather
// than being truncated mid-JSON; as a last resort the token is the bare
// action, losing state but staying parseable.
type Codec struct {
	// Logf is used to report recoverable decoding oddities. If nil, logging
	// is discarded.
	Logf logger.Logf

	now func() time.Time // for testing
}

func (c *Codec) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Codec) timeNow() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Encode packs an action and a state into a callback token no longer than
// [MaxTokenLen] bytes.
func (c *Codec) Encode(action Action, s State) string {
	act := canonical(action)

	parts := []string{string(act)}
	if s.PromoID > 0 {
		parts = append(parts, "p", encodeNum(s.PromoID))
	}
	if s.VerifiedAt > 0 {
		parts = append(parts, "v", encodeNum(s.VerifiedAt))
		if s.StatusMessageID > 0 {
			parts = append(parts, "s", encodeNum(s.StatusMessageID))
		}
		if s.PromoMessageID > 0 {
			parts = append(parts, "m", encodeNum(s.PromoMessageID))
		}
		if s.ShowAll {
			parts = append(parts, "a")
		}
	}

	tok := strings.Join(parts, "_")
	if len(tok) <= MaxTokenLen {
		return tok
	}
	return c.encodeFallback(act, s)
}

// fallbackToken is the JSON shape of the fallback encoding.
type fallbackToken struct {
	A  string `json:"a"`
	P  int64  `json:"p,omitempty"`
	V  int64  `json:"v,omitempty"`
	S  int64  `json:"s,omitempty"`
	M  int64  `json:"m,omitempty"`
	SA bool   `json:"sa,omitempty"`
}

func (c *Codec) encodeFallback(act Action, s State) string {
	ft := fallbackToken{A: string(act), P: s.PromoID, V: s.VerifiedAt, S: s.StatusMessageID, M: s.PromoMessageID}
	if s.VerifiedAt > 0 {
		ft.SA = s.ShowAll
	}

	// Shed the message ID fields before giving up: truncating JSON at the
	// byte limit would make the token unparseable.
	for _, trim := range []func(*fallbackToken){
		func(*fallbackToken) {},
		func(ft *fallbackToken) { ft.S = 0 },
		func(ft *fallbackToken) { ft.M = 0 },
	} {
		trim(&ft)
		b, err := json.Marshal(ft)
		if err != nil {
			break
		}
		if tok := fallbackPrefix + string(b); len(tok) <= MaxTokenLen {
			return tok
		}
	}

	c.logf("state: token for action %q doesn't fit even in fallback form, dropping state", act)
	return string(act)
}

// Decode unpacks a callback token into an action and a state.
//
// Decode never fails: malformed tokens, unknown keys and invalid numbers
// degrade to zero fields or, at worst, to the whole token as the action with
// a default State. The returned state is already normalized, so callers can
// trust it without re-validating.
func (c *Codec) Decode(token string) (Action, State) {
	if strings.HasPrefix(token, fallbackPrefix) {
		return c.decodeFallback(token)
	}

	parts := strings.Split(token, "_")
	action := Action(parts[0])

	var s State
	for i := 1; i < len(parts); {
		if parts[i] == "a" {
			s.ShowAll = true
			i++
			continue
		}
		if i+1 >= len(parts) {
			break
		}
		key, val := parts[i], parts[i+1]
		switch key {
		case "p":
			s.PromoID = c.decodeNum(val)
		case "v":
			s.VerifiedAt = c.decodeNum(val)
		case "s":
			s.StatusMessageID = c.decodeNum(val)
		case "m":
			s.PromoMessageID = c.decodeNum(val)
		default:
			// Unknown keys come from older or newer token layouts. Skip them.
			c.logf("state: skipping unknown token key %q", key)
		}
		i += 2
	}

	return action, s.Normalize(c.timeNow())
}

func (c *Codec) decodeFallback(token string) (Action, State) {
	var ft fallbackToken
	if err := json.Unmarshal([]byte(strings.TrimPrefix(token, fallbackPrefix)), &ft); err != nil {
		c.logf("state: failed to decode fallback token: %v", err)
		return Action(token), State{}
	}
	s := State{
		PromoID:         ft.P,
		VerifiedAt:      ft.V,
		StatusMessageID: ft.S,
		PromoMessageID:  ft.M,
		ShowAll:         ft.SA,
	}
	return Action(ft.A), s.Normalize(c.timeNow())
}

func encodeNum(n int64) string { return strconv.FormatInt(n, 36) }

func (c *Codec) decodeNum(v string) int64 {
	n, err := strconv.ParseInt(v, 36, 64)
	if err != nil || n < 0 {
		c.logf("state: failed to decode base36 number %q", v)
		return 0
	}
	return n
}
