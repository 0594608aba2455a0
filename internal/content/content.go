// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package content manages promo messages and the admin allow-list stored in a
// Google spreadsheet.
//
// The spreadsheet is the single source of truth and is editable by hand, so
// nothing here assumes a previously seen row still exists. Reads go through a
// periodically refreshed immutable [Snapshot]; mutations write through to the
// spreadsheet and force the next snapshot refresh.
package content

import (
	"strconv"
	"strings"
)

// Status is the lifecycle status of a promo.
type Status string

// Promo lifecycle statuses.
const (
	StatusActive   Status = "active"
	StatusDraft    Status = "draft"
	StatusInactive Status = "inactive"
)

// Known reports whether s is one of the supported statuses.
func (s Status) Known() bool {
	switch s {
	case StatusActive, StatusDraft, StatusInactive:
		return true
	}
	return false
}

// Promo is a single promo message row from the promo_messages sheet.
type Promo struct {
	ID          int64
	Text        string
	ImageFileID string
	Link        string
	Order       int64
	Status      Status
	CreatedBy   string
	CreatedAt   string
}

// Active reports whether the promo is eligible for unprivileged display.
func (p Promo) Active() bool { return p.Status == StatusActive }

// Admin is a single row from the authorized_users sheet.
type Admin struct {
	UserID   int64
	Username string
	AddedAt  string
}

// Sheet layout.
const (
	promosSheet   = "promo_messages"
	promosRange   = promosSheet + "!A2:H"
	adminsSheet   = "authorized_users"
	adminsRange   = adminsSheet + "!A2:C"
	settingsSheet = "settings"
	passwordCell  = settingsSheet + "!B1"
)

func promoFromRow(row []string) (Promo, bool) {
	id := parseInt(cell(row, 0))
	if id == 0 {
		// Skip empty or malformed rows.
		return Promo{}, false
	}
	status := Status(strings.TrimSpace(cell(row, 5)))
	if !status.Known() {
		status = StatusDraft
	}
	return Promo{
		ID:          id,
		Text:        cell(row, 1),
		ImageFileID: cell(row, 2),
		Link:        cell(row, 3),
		Order:       parseInt(cell(row, 4)),
		Status:      status,
		CreatedBy:   cell(row, 6),
		CreatedAt:   cell(row, 7),
	}, true
}

func (p Promo) row() []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.Text,
		p.ImageFileID,
		p.Link,
		strconv.FormatInt(p.Order, 10),
		string(p.Status),
		p.CreatedBy,
		p.CreatedAt,
	}
}

func adminFromRow(row []string) (Admin, bool) {
	id := parseInt(cell(row, 0))
	if id == 0 {
		return Admin{}, false
	}
	return Admin{
		UserID:   id,
		Username: strings.TrimPrefix(cell(row, 1), "@"),
		AddedAt:  cell(row, 2),
	}, true
}

func (a Admin) row() []string {
	return []string{
		strconv.FormatInt(a.UserID, 10),
		a.Username,
		a.AddedAt,
	}
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
