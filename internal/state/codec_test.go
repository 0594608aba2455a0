// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package state

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/testutil"
)

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func testCodec(t *testing.T) *Codec {
	return &Codec{
		Logf: t.Logf,
		now:  func() time.Time { return testNow },
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	states := []State{
		{},
		{PromoID: 42},
		{PromoID: 1, VerifiedAt: testNow.Unix() - 100},
		{PromoID: 7, VerifiedAt: testNow.Unix() - 100, StatusMessageID: 1234, PromoMessageID: 5678},
		{PromoID: 7, VerifiedAt: testNow.Unix() - 100, StatusMessageID: 1234, PromoMessageID: 5678, ShowAll: true},
		{VerifiedAt: testNow.Unix() - 1, ShowAll: true},
	}
	actions := []Action{
		ActionStart, ActionPrev, ActionNext, ActionVisit,
		ActionAdminList, ActionAdminToggle, ActionConfirmDelete, ActionBackToPromo,
	}

	for _, a := range actions {
		for _, s := range states {
			tok := c.Encode(a, s)
			if len(tok) > MaxTokenLen {
				t.Errorf("Encode(%q, %+v) produced a %d-byte token", a, s, len(tok))
			}
			gotAction, gotState := c.Decode(tok)
			testutil.AssertEqual(t, gotAction, a)
			testutil.AssertEqual(t, gotState, s)
		}
	}
}

func TestEncodeSparse(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	// An all-default state encodes to the bare action.
	testutil.AssertEqual(t, c.Encode(ActionStart, State{}), "start")

	// Unprivileged states never carry admin fields, even if set.
	tok := c.Encode(ActionNext, State{PromoID: 5, StatusMessageID: 100, PromoMessageID: 200})
	testutil.AssertEqual(t, tok, "next_p_5")

	// Show-all marker appears only for verified sessions.
	tok = c.Encode(ActionNext, State{PromoID: 5, ShowAll: true})
	testutil.AssertEqual(t, tok, "next_p_5")
}

func TestEncodeCanonicalizesAction(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	tok := c.Encode(Action("admin_list"), State{})
	testutil.AssertEqual(t, tok, "adminList")
}

func TestDecodeBase36(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	// 42 in base 36 is "16".
	_, s := c.Decode("visit_p_16")
	testutil.AssertEqual(t, s.PromoID, int64(42))

	// Invalid digits decode to zero, not an error.
	_, s = c.Decode("visit_p_!!!")
	testutil.AssertEqual(t, s.PromoID, int64(0))

	// Negative numbers are rejected.
	_, s = c.Decode("visit_p_-5")
	testutil.AssertEqual(t, s.PromoID, int64(0))
}

func TestDecodeUnknownKeys(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	action, s := c.Decode("next_p_5_x_99_q_3")
	testutil.AssertEqual(t, action, ActionNext)
	testutil.AssertEqual(t, s, State{PromoID: 5})
}

func TestDecodeBareAction(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	action, s := c.Decode("start")
	testutil.AssertEqual(t, action, ActionStart)
	testutil.AssertEqual(t, s, State{})
}

func TestDecodeDanglingKey(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	action, s := c.Decode("next_p")
	testutil.AssertEqual(t, action, ActionNext)
	testutil.AssertEqual(t, s, State{})
}

func TestFallback(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	// Large IDs push the primary form over the limit.
	s := State{
		PromoID:         1<<62 + 1,
		VerifiedAt:      testNow.Unix() - 100,
		StatusMessageID: 1<<62 + 3,
		PromoMessageID:  1<<62 + 5,
	}
	tok := c.Encode(ActionAdminToggle, s)
	if len(strings.Join([]string{
		string(ActionAdminToggle),
		"p", encodeNum(s.PromoID),
		"v", encodeNum(s.VerifiedAt),
		"s", encodeNum(s.StatusMessageID),
		"m", encodeNum(s.PromoMessageID),
	}, "_")) <= MaxTokenLen {
		t.Fatal("test state unexpectedly fits the primary form")
	}
	if !strings.HasPrefix(tok, fallbackPrefix) {
		t.Fatalf("want fallback token, got %q", tok)
	}
	if len(tok) > MaxTokenLen {
		t.Fatalf("fallback token is %d bytes: %q", len(tok), tok)
	}

	// Whatever fields the fallback carries must decode losslessly. The
	// shedding ladder may have dropped message IDs, but never corrupts.
	action, got := c.Decode(tok)
	testutil.AssertEqual(t, action, ActionAdminToggle)
	testutil.AssertEqual(t, got.PromoID, s.PromoID)
	testutil.AssertEqual(t, got.VerifiedAt, s.VerifiedAt)
}

func TestFallbackNeverTruncatesMidJSON(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	// Worst case: every field at the int64 maximum plus a long action.
	s := State{
		PromoID:         1<<63 - 1,
		VerifiedAt:      testNow.Unix() - 1,
		StatusMessageID: 1<<63 - 1,
		PromoMessageID:  1<<63 - 1,
		ShowAll:         true,
	}
	tok := c.Encode(ActionConfirmDelete, s)
	if len(tok) > MaxTokenLen {
		t.Fatalf("token is %d bytes: %q", len(tok), tok)
	}

	// The token must decode to something sensible, whole fields only.
	action, got := c.Decode(tok)
	testutil.AssertEqual(t, action, ActionConfirmDelete)
	if got.PromoID != s.PromoID && got.PromoID != 0 {
		t.Errorf("PromoID neither preserved nor dropped: %d", got.PromoID)
	}
}

func TestDecodeMalformedFallback(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	// Unparseable JSON fails open: the raw token is the action, state is
	// default.
	action, s := c.Decode(`state_{"a":"next","p":5`)
	testutil.AssertEqual(t, action, Action(`state_{"a":"next","p":5`))
	testutil.AssertEqual(t, s, State{})
}

func TestDecodeRejectsInvalidState(t *testing.T) {
	t.Parallel()

	c := testCodec(t)

	// A verification stamp too far in the future collapses the state.
	future := testNow.Add(time.Hour).Unix()
	action, s := c.Decode(`state_{"a":"next","p":5,"v":` + strconv.FormatInt(future, 10) + `}`)
	testutil.AssertEqual(t, action, ActionNext)
	testutil.AssertEqual(t, s, State{})

	// Negative fields from the JSON fallback collapse too.
	action, s = c.Decode(`state_{"a":"next","p":-5}`)
	testutil.AssertEqual(t, action, ActionNext)
	testutil.AssertEqual(t, s, State{})
}

func TestDecodeDropsShowAllForUnprivileged(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	_, s := c.Decode(`state_{"a":"next","p":5,"sa":true}`)
	testutil.AssertEqual(t, s, State{PromoID: 5})
}
