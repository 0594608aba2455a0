// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package nav resolves positions in the promo list and computes wrap-around
// navigation steps.
//
// The backing spreadsheet is edited externally, so orderings are recomputed
// from a live snapshot on every request and a previously seen promo may be
// gone by the next button press. Every resolver function degrades to a safe
// default instead of failing: a missing promo lands on index 0, an
// out-of-bounds index yields ID 0.
package nav

import (
	"github.com/tgmf/BCloyaltybot/internal/content"
	"github.com/tgmf/BCloyaltybot/internal/logger"
	"github.com/tgmf/BCloyaltybot/internal/state"
)

// Direction is a navigation step direction.
type Direction int

// Directions.
const (
	Prev Direction = -1
	Next Direction = +1
)

// Resolver computes navigation over promo orderings. The zero value is ready
// to use and logging is discarded.
type Resolver struct {
	// Logf is used to report missing promos. If nil, logging is discarded.
	Logf logger.Logf
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Ordering returns the promo ordering the session navigates over: all promos
// for a verified session in show-all mode, the active subset otherwise.
func (r *Resolver) Ordering(snap *content.Snapshot, s state.State) []content.Promo {
	if s.IsAdmin() && s.ShowAll {
		return snap.AllPromos()
	}
	return snap.ActivePromos()
}

// IndexOf returns the position of the promo with the given ID in the
// ordering, or 0 if it is not there. A miss is logged, not an error: the
// promo may have been deleted from the spreadsheet mid-session.
func (r *Resolver) IndexOf(ordering []content.Promo, id int64) int {
	for i, p := range ordering {
		if p.ID == id {
			return i
		}
	}
	r.logf("nav: promo %d not found in ordering of %d, resolving to 0", id, len(ordering))
	return 0
}

// IDAt returns the ID of the promo at the given position, or 0 if the index
// is out of bounds.
func (r *Resolver) IDAt(ordering []content.Promo, i int) int64 {
	if i < 0 || i >= len(ordering) {
		return 0
	}
	return ordering[i].ID
}

// Step returns the ID of the promo one position away from the current one,
// wrapping around at both ends. An empty ordering yields 0.
func (r *Resolver) Step(dir Direction, ordering []content.Promo, currentID int64) int64 {
	n := len(ordering)
	if n == 0 {
		return 0
	}
	i := (r.IndexOf(ordering, currentID) + int(dir) + n) % n
	return r.IDAt(ordering, i)
}

// Availability tells what the caller can render after [Resolver.EnsureAvailable].
type Availability int

const (
	// Available means the ordering is non-empty and the state points at a
	// promo in it.
	Available Availability = iota
	// NoneForUsers means an unprivileged session has nothing to see.
	NoneForUsers
	// NoneActive means a verified session in active-only mode has no active
	// promos, but drafts exist; the digest lists a preview of them.
	NoneActive
	// NoneAtAll means there are no promos whatsoever.
	NoneAtAll
)

// digestLimit bounds the draft preview shown to admins when no promo is
// active.
const digestLimit = 5

// EnsureAvailable is the terminal guard before rendering: it guarantees the
// returned state points at an existing promo whenever one exists.
//
// If the session's ordering is non-empty, the returned state keeps its promo
// when it is still present; otherwise it falls to the promo at lastIndex
// clamped to the ordering (pass a negative lastIndex to fall to the first
// promo). If the ordering is empty, the state is returned unchanged together
// with an [Availability] describing what to render instead; for a verified
// session in active-only mode the digest previews up to five promos from the
// unfiltered list.
func (r *Resolver) EnsureAvailable(snap *content.Snapshot, s state.State, lastIndex int) (state.State, Availability, []content.Promo) {
	ordering := r.Ordering(snap, s)

	if len(ordering) > 0 {
		if s.PromoID != 0 {
			for _, p := range ordering {
				if p.ID == s.PromoID {
					return s, Available, nil
				}
			}
		}
		i := 0
		if lastIndex >= 0 {
			i = min(lastIndex, len(ordering)-1)
		}
		return s.WithPromo(ordering[i].ID), Available, nil
	}

	if !s.IsAdmin() {
		return s, NoneForUsers, nil
	}

	all := snap.AllPromos()
	if len(all) == 0 {
		return s, NoneAtAll, nil
	}
	if s.ShowAll {
		// Show-all mode over an empty ordering means there is nothing at
		// all; only reachable when the two orderings disagree mid-refresh.
		return s, NoneAtAll, nil
	}
	digest := all[:min(digestLimit, len(all))]
	return s, NoneActive, digest
}
