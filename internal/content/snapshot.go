// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package content

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Snapshot is an immutable view of the spreadsheet contents at a point in
// time. Callers obtain a fresh snapshot per request from [Manager.Snapshot]
// and must not mutate it; two handlers may hold different snapshots
// concurrently, which is fine because staleness is bounded by the refresh
// TTL.
type Snapshot struct {
	promos    []Promo // sorted by Order
	admins    []Admin
	fetchedAt time.Time
}

// NewSnapshot builds a snapshot from already-fetched rows. Promos are sorted
// by their order key. It is exported for tests of packages consuming
// snapshots.
func NewSnapshot(promos []Promo, admins []Admin, fetchedAt time.Time) *Snapshot {
	sorted := slices.Clone(promos)
	slices.SortStableFunc(sorted, func(a, b Promo) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return &Snapshot{
		promos:    sorted,
		admins:    slices.Clone(admins),
		fetchedAt: fetchedAt,
	}
}

// FetchedAt returns when the snapshot was taken.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// AllPromos returns every promo, sorted by order key.
func (s *Snapshot) AllPromos() []Promo { return slices.Clone(s.promos) }

// ActivePromos returns the active subset of promos, in the same order.
func (s *Snapshot) ActivePromos() []Promo {
	var out []Promo
	for _, p := range s.promos {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// PromoByID returns the promo with the given ID.
func (s *Snapshot) PromoByID(id int64) (Promo, bool) {
	for _, p := range s.promos {
		if p.ID == id {
			return p, true
		}
	}
	return Promo{}, false
}

// Admins returns all authorized admins.
func (s *Snapshot) Admins() []Admin { return slices.Clone(s.admins) }

// IsAdmin reports whether the given user is in the allow-list, matching by
// numeric ID first and falling back to the username alias.
func (s *Snapshot) IsAdmin(userID int64, username string) bool {
	for _, a := range s.admins {
		if a.UserID == userID {
			return true
		}
	}
	if username == "" {
		return false
	}
	username = strings.TrimPrefix(username, "@")
	for _, a := range s.admins {
		if a.Username != "" && strings.EqualFold(a.Username, username) {
			return true
		}
	}
	return false
}
