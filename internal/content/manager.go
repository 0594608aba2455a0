// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/logger"
	"github.com/tgmf/BCloyaltybot/internal/serviceaccount"
	"github.com/tgmf/BCloyaltybot/internal/store"
	"github.com/tgmf/BCloyaltybot/internal/util/syncx"
)

// Errors returned by mutation methods.
var (
	ErrPromoNotFound = errors.New("content: promo not found")
	ErrAdminNotFound = errors.New("content: admin not found")
)

// defaultCacheTTL is how long a snapshot is served before a non-forced
// refresh hits the spreadsheet again.
const defaultCacheTTL = 5 * time.Minute

// snapshotStoreKey is where the last good snapshot is persisted, so a
// restarted process can serve content before its first successful fetch.
const snapshotStoreKey = "content/snapshot"

// Manager fetches promos and the admin allow-list from a Google spreadsheet
// and serves them as immutable snapshots.
//
// All exported fields must be set before first use and not changed
// afterwards.
type Manager struct {
	// SpreadsheetID identifies the backing spreadsheet.
	SpreadsheetID string
	// Key is the service account key used to authenticate to the Sheets API.
	Key *serviceaccount.Key
	// HTTPClient is the HTTP client used for API calls. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Logf is used for logging. If nil, logging is discarded.
	Logf logger.Logf
	// Scrubber removes secrets from logged errors. Optional.
	Scrubber *strings.Replacer
	// Store optionally persists the last good snapshot across restarts.
	Store store.Store
	// CacheTTL overrides the default five-minute snapshot lifetime.
	CacheTTL time.Duration
	// APIBase overrides the Sheets API base URL in tests.
	APIBase string

	now func() time.Time // for testing

	refreshMu sync.Mutex // serializes refreshes
	snap      syncx.Protected[*Snapshot]
	token     syncx.Protected[cachedToken]
	sheetIDs  syncx.Map[string, int64]
}

func (m *Manager) logf(format string, args ...any) {
	if m.Logf != nil {
		m.Logf(format, args...)
	}
}

func (m *Manager) timeNow() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func (m *Manager) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

func (m *Manager) cacheTTL() time.Duration {
	if m.CacheTTL != 0 {
		return m.CacheTTL
	}
	return defaultCacheTTL
}

// Refresh fetches a fresh snapshot from the spreadsheet. A non-forced refresh
// inside the TTL window is a no-op.
func (m *Manager) Refresh(ctx context.Context, force bool) error {
	if !force {
		if snap := m.snap.Get(); snap != nil && m.timeNow().Sub(snap.FetchedAt()) < m.cacheTTL() {
			return nil
		}
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another refresh may have finished while we waited for the lock.
	if !force {
		if snap := m.snap.Get(); snap != nil && m.timeNow().Sub(snap.FetchedAt()) < m.cacheTTL() {
			return nil
		}
	}

	promoRows, err := m.valuesGet(ctx, promosRange)
	if err != nil {
		return err
	}
	var promos []Promo
	for _, row := range promoRows {
		if p, ok := promoFromRow(row); ok {
			promos = append(promos, p)
		}
	}

	var admins []Admin
	adminRows, err := m.valuesGet(ctx, adminsRange)
	if err != nil {
		// A missing admin sheet demotes everyone instead of breaking the
		// public flow.
		m.logf("content: failed to fetch admin list: %v", err)
	} else {
		for _, row := range adminRows {
			if a, ok := adminFromRow(row); ok {
				admins = append(admins, a)
			}
		}
	}

	snap := NewSnapshot(promos, admins, m.timeNow())
	m.snap.Set(snap)
	m.persist(ctx, snap)

	m.logf("content: refreshed: %d promos, %d admins", len(snap.promos), len(snap.admins))
	return nil
}

// Snapshot returns the current content snapshot, refreshing it first if the
// TTL has passed. It never returns nil: if no data can be fetched, it falls
// back to the last persisted snapshot and then to an empty one.
func (m *Manager) Snapshot(ctx context.Context) *Snapshot {
	if err := m.Refresh(ctx, false); err != nil {
		m.logf("content: refresh failed, serving stale data: %v", err)
	}
	if snap := m.snap.Get(); snap != nil {
		return snap
	}
	if snap := m.loadPersisted(ctx); snap != nil {
		m.snap.Set(snap)
		return snap
	}
	return NewSnapshot(nil, nil, time.Time{})
}

type persistedSnapshot struct {
	Promos    []Promo   `json:"promos"`
	Admins    []Admin   `json:"admins"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (m *Manager) persist(ctx context.Context, snap *Snapshot) {
	if m.Store == nil {
		return
	}
	b, err := json.Marshal(persistedSnapshot{
		Promos:    snap.promos,
		Admins:    snap.admins,
		FetchedAt: snap.fetchedAt,
	})
	if err != nil {
		return
	}
	if err := m.Store.Set(ctx, snapshotStoreKey, b); err != nil {
		m.logf("content: failed to persist snapshot: %v", err)
	}
}

func (m *Manager) loadPersisted(ctx context.Context) *Snapshot {
	if m.Store == nil {
		return nil
	}
	b, err := m.Store.Get(ctx, snapshotStoreKey)
	if err != nil || b == nil {
		return nil
	}
	var ps persistedSnapshot
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil
	}
	return NewSnapshot(ps.Promos, ps.Admins, ps.FetchedAt)
}

// AddPromo appends a new draft promo and returns its assigned ID.
func (m *Manager) AddPromo(ctx context.Context, text, imageFileID, link, createdBy string) (int64, error) {
	rows, err := m.valuesGet(ctx, promosRange)
	if err != nil {
		return 0, err
	}

	var maxID, maxOrder int64
	for _, row := range rows {
		p, ok := promoFromRow(row)
		if !ok {
			continue
		}
		maxID = max(maxID, p.ID)
		maxOrder = max(maxOrder, p.Order)
	}

	p := Promo{
		ID:          maxID + 1,
		Text:        text,
		ImageFileID: imageFileID,
		Link:        link,
		Order:       maxOrder + 10,
		Status:      StatusDraft,
		CreatedBy:   createdBy,
		CreatedAt:   m.timeNow().Format(time.RFC3339),
	}
	if err := m.valuesAppend(ctx, promosRange, p.row()); err != nil {
		return 0, err
	}
	if err := m.Refresh(ctx, true); err != nil {
		m.logf("content: refresh after add failed: %v", err)
	}
	return p.ID, nil
}

// PromoUpdate describes a partial update of a promo. Nil fields are left
// unchanged.
type PromoUpdate struct {
	Text        *string
	ImageFileID *string
	Link        *string
	Order       *int64
	Status      *Status
}

// UpdatePromo applies upd to the promo with the given ID.
func (m *Manager) UpdatePromo(ctx context.Context, id int64, upd PromoUpdate) error {
	p, rowIdx, err := m.findPromoRow(ctx, id)
	if err != nil {
		return err
	}

	if upd.Text != nil {
		p.Text = *upd.Text
	}
	if upd.ImageFileID != nil {
		p.ImageFileID = *upd.ImageFileID
	}
	if upd.Link != nil {
		p.Link = *upd.Link
	}
	if upd.Order != nil {
		p.Order = *upd.Order
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}

	if err := m.valuesUpdate(ctx, rowRange(promosSheet, rowIdx, "H"), [][]string{p.row()}); err != nil {
		return err
	}
	if err := m.Refresh(ctx, true); err != nil {
		m.logf("content: refresh after update failed: %v", err)
	}
	return nil
}

// SetPromoStatus updates only the lifecycle status of a promo.
func (m *Manager) SetPromoStatus(ctx context.Context, id int64, status Status) error {
	return m.UpdatePromo(ctx, id, PromoUpdate{Status: &status})
}

// DeletePromo removes the promo row entirely.
func (m *Manager) DeletePromo(ctx context.Context, id int64) error {
	_, rowIdx, err := m.findPromoRow(ctx, id)
	if err != nil {
		return err
	}
	if err := m.deleteRow(ctx, promosSheet, rowIdx); err != nil {
		return err
	}
	if err := m.Refresh(ctx, true); err != nil {
		m.logf("content: refresh after delete failed: %v", err)
	}
	return nil
}

// findPromoRow locates a promo and its 1-based row index in the sheet.
func (m *Manager) findPromoRow(ctx context.Context, id int64) (Promo, int64, error) {
	rows, err := m.valuesGet(ctx, promosRange)
	if err != nil {
		return Promo{}, 0, err
	}
	for i, row := range rows {
		p, ok := promoFromRow(row)
		if !ok {
			continue
		}
		if p.ID == id {
			// Data rows start at sheet row 2, below the header.
			return p, int64(i + 2), nil
		}
	}
	return Promo{}, 0, ErrPromoNotFound
}

// AddAdmin appends a user to the allow-list.
func (m *Manager) AddAdmin(ctx context.Context, userID int64, username string) error {
	a := Admin{
		UserID:   userID,
		Username: strings.TrimPrefix(username, "@"),
		AddedAt:  m.timeNow().Format(time.RFC3339),
	}
	if err := m.valuesAppend(ctx, adminsRange, a.row()); err != nil {
		return err
	}
	if err := m.Refresh(ctx, true); err != nil {
		m.logf("content: refresh after admin add failed: %v", err)
	}
	return nil
}

// RemoveAdmin deletes a user from the allow-list.
func (m *Manager) RemoveAdmin(ctx context.Context, userID int64) error {
	rows, err := m.valuesGet(ctx, adminsRange)
	if err != nil {
		return err
	}
	for i, row := range rows {
		a, ok := adminFromRow(row)
		if !ok {
			continue
		}
		if a.UserID == userID {
			if err := m.deleteRow(ctx, adminsSheet, int64(i+2)); err != nil {
				return err
			}
			if err := m.Refresh(ctx, true); err != nil {
				m.logf("content: refresh after admin remove failed: %v", err)
			}
			return nil
		}
	}
	return ErrAdminNotFound
}

// OnboardingPassword returns the admin onboarding password stored in the
// settings sheet.
func (m *Manager) OnboardingPassword(ctx context.Context) (string, error) {
	rows, err := m.valuesGet(ctx, passwordCell)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == "" {
		return "", errors.New("content: onboarding password is not set")
	}
	return rows[0][0], nil
}
