// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package state

import (
	"testing"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/testutil"
)

func TestValid(t *testing.T) {
	t.Parallel()

	now := testNow

	cases := map[string]struct {
		s    State
		want bool
	}{
		"zero":               {s: State{}, want: true},
		"regular":            {s: State{PromoID: 5, VerifiedAt: now.Unix() - 10}, want: true},
		"negative promo":     {s: State{PromoID: -1}, want: false},
		"negative verified":  {s: State{VerifiedAt: -1}, want: false},
		"slight clock skew":  {s: State{VerifiedAt: now.Add(time.Minute).Unix()}, want: true},
		"far future stamp":   {s: State{VerifiedAt: now.Add(time.Hour).Unix()}, want: false},
		"negative status id": {s: State{StatusMessageID: -1}, want: false},
		"negative promo msg": {s: State{PromoMessageID: -1}, want: false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, tc.s.Valid(now), tc.want)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	// Invalid states collapse to zero.
	testutil.AssertEqual(t, State{PromoID: -1}.Normalize(testNow), State{})

	// Show-all mode without verification is dropped.
	testutil.AssertEqual(t, State{PromoID: 3, ShowAll: true}.Normalize(testNow), State{PromoID: 3})

	// Verified sessions keep it.
	s := State{PromoID: 3, VerifiedAt: testNow.Unix() - 5, ShowAll: true}
	testutil.AssertEqual(t, s.Normalize(testNow), s)
}

func TestStateHelpers(t *testing.T) {
	t.Parallel()

	var s State
	testutil.AssertEqual(t, s.IsAdmin(), false)

	s = s.WithVerified(testNow)
	testutil.AssertEqual(t, s.IsAdmin(), true)
	testutil.AssertEqual(t, s.VerifiedAt, testNow.Unix())

	s = s.WithPromo(7).WithMessages(100, 200).WithShowAll(true)
	testutil.AssertEqual(t, s, State{
		PromoID:         7,
		VerifiedAt:      testNow.Unix(),
		StatusMessageID: 100,
		PromoMessageID:  200,
		ShowAll:         true,
	})

	// Demotion clears show-all too.
	testutil.AssertEqual(t, s.WithoutVerified(), State{
		PromoID:         7,
		StatusMessageID: 100,
		PromoMessageID:  200,
	})
}

func TestActionKnown(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, ActionStart.Known(), true)
	testutil.AssertEqual(t, ActionConfirmDelete.Known(), true)
	testutil.AssertEqual(t, Action("bogus").Known(), false)
	testutil.AssertEqual(t, ActionUnknown.Known(), false)
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	cases := map[Action]Action{
		"start":          "start",
		"admin_list":     "adminList",
		"confirm_delete": "confirmDelete",
		"adminView":      "adminView",
		"edit_all":       "editAll",
	}
	for in, want := range cases {
		testutil.AssertEqual(t, canonical(in), want)
	}
}
