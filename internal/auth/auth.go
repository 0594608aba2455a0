// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package auth decides whether a session keeps its elevated trust.
//
// There is no server-side session: trust is a timestamp inside the session
// state, stamped when the admin allow-list confirmed the user and re-checked
// only once it goes stale. An admin removed from the allow-list is demoted on
// their next stale check, so revocation latency is bounded by the TTL.
package auth

import (
	"context"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/logger"
	"github.com/tgmf/BCloyaltybot/internal/state"
)

// Verification TTL profiles. The development window is short so that
// allow-list edits show up quickly while iterating; the production window
// keeps an admin logged in across a working day.
const (
	DevTTL  = 5 * time.Minute
	ProdTTL = 24 * time.Hour
)

// VerificationTTL returns the verification TTL for the given profile.
func VerificationTTL(prod bool) time.Duration {
	if prod {
		return ProdTTL
	}
	return DevTTL
}

// CheckFunc reports whether the user is currently in the admin allow-list.
// Implementations are expected to consult a fresh content snapshot.
type CheckFunc func(ctx context.Context, userID int64, username string) bool

// Verifier refreshes the verification stamp of session states.
type Verifier struct {
	// Check is the authorization check consulted on stale stamps.
	Check CheckFunc
	// TTL is the maximum age of a verification stamp. Required.
	TTL time.Duration
	// Logf is used for logging. If nil, logging is discarded.
	Logf logger.Logf

	now func() time.Time // for testing
}

func (v *Verifier) logf(format string, args ...any) {
	if v.Logf != nil {
		v.Logf(format, args...)
	}
}

func (v *Verifier) timeNow() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

// Refresh returns s with its verification stamp brought up to date.
//
// An unprivileged state is returned unchanged: Refresh never promotes. A
// fresh stamp is returned unchanged too. A stale stamp triggers the
// authorization check: success renews the stamp, failure demotes the session.
func (v *Verifier) Refresh(ctx context.Context, s state.State, userID int64, username string) state.State {
	if s.VerifiedAt == 0 {
		return s
	}

	now := v.timeNow()
	if now.Unix()-s.VerifiedAt < int64(v.TTL/time.Second) {
		return s
	}

	if v.Check(ctx, userID, username) {
		return s.WithVerified(now)
	}
	v.logf("auth: user %d (%q) no longer in the allow-list, demoting", userID, username)
	return s.WithoutVerified()
}
