// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/request"
	"github.com/tgmf/BCloyaltybot/internal/version"
)

// sheetsAPI is the base URL of the Google Sheets API. Overridden in tests.
const sheetsScope = "https://www.googleapis.com/auth/spreadsheets"

type cachedToken struct {
	token   string
	expires time.Time
}

func (m *Manager) accessToken(ctx context.Context) (string, error) {
	tok := m.token.Get()
	if tok.token != "" && m.timeNow().Before(tok.expires) {
		return tok.token, nil
	}

	t, err := m.Key.AccessToken(ctx, m.httpClient(), sheetsScope)
	if err != nil {
		return "", err
	}
	// Tokens are valid for an hour; renew a bit earlier.
	m.token.Set(cachedToken{token: t, expires: m.timeNow().Add(50 * time.Minute)})
	return t, nil
}

func (m *Manager) sheetsURL(parts ...string) string {
	u := m.apiBase()
	for _, p := range parts {
		u += p
	}
	return u
}

func (m *Manager) apiBase() string {
	if m.APIBase != "" {
		return m.APIBase
	}
	return "https://sheets.googleapis.com/v4/spreadsheets/"
}

// valueRange mirrors the Sheets API ValueRange object.
type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values,omitempty"`
}

func (m *Manager) valuesGet(ctx context.Context, rng string) ([][]string, error) {
	tok, err := m.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	vr, err := request.Make[valueRange](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        m.sheetsURL(m.SpreadsheetID, "/values/", url.PathEscape(rng)),
		Headers:    m.headers(tok),
		HTTPClient: m.httpClient(),
		Scrubber:   m.Scrubber,
	})
	if err != nil {
		return nil, err
	}
	return vr.Values, nil
}

func (m *Manager) valuesAppend(ctx context.Context, rng string, row []string) error {
	tok, err := m.accessToken(ctx)
	if err != nil {
		return err
	}
	_, err = request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		// https://developers.google.com/sheets/api/reference/rest/v4/spreadsheets.values/append
		URL: m.sheetsURL(m.SpreadsheetID, "/values/", url.PathEscape(rng), ":append?valueInputOption=RAW"),
		Body: valueRange{
			MajorDimension: "ROWS",
			Values:         [][]string{row},
		},
		Headers:    m.headers(tok),
		HTTPClient: m.httpClient(),
		Scrubber:   m.Scrubber,
	})
	return err
}

func (m *Manager) valuesUpdate(ctx context.Context, rng string, values [][]string) error {
	tok, err := m.accessToken(ctx)
	if err != nil {
		return err
	}
	_, err = request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPut,
		URL:    m.sheetsURL(m.SpreadsheetID, "/values/", url.PathEscape(rng), "?valueInputOption=RAW"),
		Body: valueRange{
			Range:  rng,
			Values: values,
		},
		Headers:    m.headers(tok),
		HTTPClient: m.httpClient(),
		Scrubber:   m.Scrubber,
	})
	return err
}

// deleteRow removes a single row (1-based index) from the named sheet using a
// DeleteDimension batch update.
func (m *Manager) deleteRow(ctx context.Context, sheet string, rowIndex int64) error {
	sheetID, err := m.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	tok, err := m.accessToken(ctx)
	if err != nil {
		return err
	}

	type dimensionRange struct {
		SheetID    int64  `json:"sheetId"`
		Dimension  string `json:"dimension"`
		StartIndex int64  `json:"startIndex"`
		EndIndex   int64  `json:"endIndex"`
	}
	type deleteDimension struct {
		Range dimensionRange `json:"range"`
	}
	type batchRequest struct {
		Requests []map[string]deleteDimension `json:"requests"`
	}

	_, err = request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    m.sheetsURL(m.SpreadsheetID, ":batchUpdate"),
		Body: batchRequest{
			Requests: []map[string]deleteDimension{
				{"deleteDimension": {Range: dimensionRange{
					SheetID:   sheetID,
					Dimension: "ROWS",
					// The API uses half-open zero-based intervals.
					StartIndex: rowIndex - 1,
					EndIndex:   rowIndex,
				}}},
			},
		},
		Headers:    m.headers(tok),
		HTTPClient: m.httpClient(),
		Scrubber:   m.Scrubber,
	})
	return err
}

// sheetID resolves a sheet title to its numeric ID, caching the mapping for
// the lifetime of the manager. Sheet IDs never change, unlike row positions.
func (m *Manager) sheetID(ctx context.Context, title string) (int64, error) {
	if id, ok := m.sheetIDs.Load(title); ok {
		return id, nil
	}

	tok, err := m.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	type sheetProperties struct {
		SheetID int64  `json:"sheetId"`
		Title   string `json:"title"`
	}
	type sheet struct {
		Properties sheetProperties `json:"properties"`
	}
	type spreadsheet struct {
		Sheets []sheet `json:"sheets"`
	}

	ss, err := request.Make[spreadsheet](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        m.sheetsURL(m.SpreadsheetID, "?fields=sheets(properties(sheetId,title))"),
		Headers:    m.headers(tok),
		HTTPClient: m.httpClient(),
		Scrubber:   m.Scrubber,
	})
	if err != nil {
		return 0, err
	}

	for _, s := range ss.Sheets {
		m.sheetIDs.Store(s.Properties.Title, s.Properties.SheetID)
	}
	id, ok := m.sheetIDs.Load(title)
	if !ok {
		return 0, fmt.Errorf("content: sheet %q not found in spreadsheet", title)
	}
	return id, nil
}

func (m *Manager) headers(tok string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + tok,
		"User-Agent":    version.UserAgent(),
	}
}

// rowRange returns an A1 range covering columns A through lastCol of a single
// row.
func rowRange(sheet string, row int64, lastCol string) string {
	return sheet + "!A" + strconv.FormatInt(row, 10) + ":" + lastCol + strconv.FormatInt(row, 10)
}
