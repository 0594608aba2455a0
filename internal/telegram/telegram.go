// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements the subset of the Telegram Bot API the bot
// uses: sending and editing messages with inline keyboards and answering
// callback queries.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/logger"
	"github.com/tgmf/BCloyaltybot/internal/request"
	"github.com/tgmf/BCloyaltybot/internal/tgmarkup"
	"github.com/tgmf/BCloyaltybot/internal/version"
)

const (
	defaultAPI     = "https://api.telegram.org"
	sendRetryLimit = 5 // N attempts to retry a rate-limited call
)

// Client talks to the Telegram Bot API.
//
// All exported fields must be set before first use and not changed
// afterwards.
type Client struct {
	// Token is the bot token.
	Token string
	// HTTPClient is the HTTP client used for API calls. If nil,
	// [request.DefaultClient] is used.
	HTTPClient *http.Client
	// Logf is used for logging. If nil, logging is discarded.
	Logf logger.Logf
	// Scrubber removes the token from logged errors. Optional.
	Scrubber *strings.Replacer
	// APIBase overrides the API base URL in tests.
	APIBase string

	sleep func(ctx context.Context, d time.Duration) bool // for testing
}

func (c *Client) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Client) api() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return defaultAPI
}

// result is the envelope every Bot API response comes in.
type result[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
}

// call makes a Bot API call, retrying when rate limited.
func call[T any](ctx context.Context, c *Client, method string, args any) (T, error) {
	var zero T

	var err error
	for range sendRetryLimit {
		var res result[T]
		res, err = request.Make[result[T]](ctx, request.Params{
			Method: http.MethodPost,
			URL:    c.api() + "/bot" + c.Token + "/" + method,
			Body:   args,
			Headers: map[string]string{
				"User-Agent": version.UserAgent(),
			},
			HTTPClient: c.HTTPClient,
			Scrubber:   c.Scrubber,
		})
		if err == nil {
			return res.Result, nil
		}

		retryable, wait := isRateLimited(err)
		if !retryable {
			break
		}
		c.logf("telegram: %s rate limited, waiting %v", method, wait)
		if !c.doSleep(ctx, wait) {
			return zero, ctx.Err()
		}
	}
	return zero, err
}

func isRateLimited(err error) (bool, time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.Parameters.RetryAfter) * time.Second
}

func (c *Client) doSleep(ctx context.Context, d time.Duration) bool {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Me returns basic information about the bot.
func (c *Client) Me(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", struct{}{})
}

// SendMessageParams are the arguments of [Client.SendMessage].
type SendMessageParams struct {
	ChatID             int64                 `json:"chat_id"`
	Text               string                `json:"text"`
	Entities           []tgmarkup.Entity     `json:"entities,omitempty"`
	ReplyMarkup        *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (Message, error) {
	return call[Message](ctx, c, "sendMessage", p)
}

// SendMarkdown sends a Markdown-formatted text message.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (Message, error) {
	msg := tgmarkup.FromMarkdown(text)
	p := SendMessageParams{
		ChatID:      chatID,
		Text:        msg.Text,
		Entities:    msg.Entities,
		ReplyMarkup: markup,
	}
	p.LinkPreviewOptions.IsDisabled = true
	return c.SendMessage(ctx, p)
}

// SendPhotoParams are the arguments of [Client.SendPhoto].
type SendPhotoParams struct {
	ChatID          int64                 `json:"chat_id"`
	Photo           string                `json:"photo"` // file ID
	Caption         string                `json:"caption,omitempty"`
	CaptionEntities []tgmarkup.Entity     `json:"caption_entities,omitempty"`
	ReplyMarkup     *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendPhoto sends a photo by its file ID.
func (c *Client) SendPhoto(ctx context.Context, p SendPhotoParams) (Message, error) {
	return call[Message](ctx, c, "sendPhoto", p)
}

// EditMessageTextParams are the arguments of [Client.EditMessageText].
type EditMessageTextParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	Entities    []tgmarkup.Entity     `json:"entities,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text of an existing message.
func (c *Client) EditMessageText(ctx context.Context, p EditMessageTextParams) error {
	_, err := call[json.RawMessage](ctx, c, "editMessageText", p)
	return err
}

// EditMessageCaptionParams are the arguments of [Client.EditMessageCaption].
type EditMessageCaptionParams struct {
	ChatID          int64                 `json:"chat_id"`
	MessageID       int64                 `json:"message_id"`
	Caption         string                `json:"caption,omitempty"`
	CaptionEntities []tgmarkup.Entity     `json:"caption_entities,omitempty"`
	ReplyMarkup     *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageCaption replaces the caption of an existing media message.
func (c *Client) EditMessageCaption(ctx context.Context, p EditMessageCaptionParams) error {
	_, err := call[json.RawMessage](ctx, c, "editMessageCaption", p)
	return err
}

// EditMessageMediaParams are the arguments of [Client.EditMessageMedia].
type EditMessageMediaParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Media       InputMediaPhoto       `json:"media"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageMedia replaces the media of an existing message.
func (c *Client) EditMessageMedia(ctx context.Context, p EditMessageMediaParams) error {
	_, err := call[json.RawMessage](ctx, c, "editMessageMedia", p)
	return err
}

// EditMessageReplyMarkupParams are the arguments of [Client.EditMessageReplyMarkup].
type EditMessageReplyMarkupParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageReplyMarkup replaces only the inline keyboard of a message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, p EditMessageReplyMarkupParams) error {
	_, err := call[json.RawMessage](ctx, c, "editMessageReplyMarkup", p)
	return err
}

// DeleteMessage removes a message from a chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := call[bool](ctx, c, "deleteMessage", map[string]int64{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

// AnswerCallbackQueryParams are the arguments of [Client.AnswerCallbackQuery].
type AnswerCallbackQueryParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast or
// an alert.
func (c *Client) AnswerCallbackQuery(ctx context.Context, p AnswerCallbackQueryParams) error {
	_, err := call[bool](ctx, c, "answerCallbackQuery", p)
	return err
}

// SetWebhook points the bot's webhook at the given URL. The secret token is
// echoed back by Telegram in the X-Telegram-Bot-Api-Secret-Token header of
// every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	_, err := call[bool](ctx, c, "setWebhook", map[string]string{
		"url":          url,
		"secret_token": secretToken,
	})
	return err
}
