// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Loyaltybot is a Telegram bot that shows promo offers managed in a Google
spreadsheet.

Loyaltybot keeps no session state on the server. Everything the bot needs to
resume an interaction is packed into the callback data of the inline keyboard
buttons it sends, so any number of bot processes can serve the same chat and a
restart loses nothing.

Regular users page through active promos with prev/next buttons; admins
additionally manage promos right from the chat.

# Usage

	$ loyaltybot [flags...]

# Spreadsheet Structure

The backing spreadsheet must have the following sheets:

  - promo_messages: one promo per row, columns A-H are ID, text, image file
    ID, link, order, status (active/draft/inactive), created by, created at.
  - authorized_users: one admin per row, columns A-C are Telegram user ID,
    username, added at.
  - settings: cell B1 holds the onboarding password for /login.

# Commands

  - /start: shows the first available promo.
  - /login <password>: adds the sender to the admin list using the onboarding
    password; /login without arguments elevates a sender already on the list.
  - /logout [user ID]: drops the elevated session; with a user ID,
    also removes that user from the admin list (admins only).

An admin can also send a bare message (optionally with a photo) to create a
new draft promo from it, and edit existing promos by replying to the bot's
edit prompts.

# Environment Variables

The following environment variables can be used to configure Loyaltybot:

  - ADDR: The network address to listen on. Defaults to localhost:3000.
  - HOST: The bot domain used for setting up the webhook.
  - GOOGLE_SERVICE_ACCOUNT_KEY: The Google service account key in JSON format,
    used to access the spreadsheet.
  - SPREADSHEET_ID: The ID of the backing Google spreadsheet.
  - STORE_DSN: Where to persist the last good content snapshot: "mem://"
    (default), "file://path.json", "sqlite://path.db" or a postgres:// URL.
  - TG_SECRET: The secret token used to validate Telegram Bot API updates.
  - TG_TOKEN: The Telegram Bot API token.

# Debug Interface

Loyaltybot provides a debug interface at /debug with the following endpoints:

  - /debug/log: Displays the last 300 lines of logs, streamed automatically.
  - /debug/refresh: Forces a refresh of the content snapshot from the
    spreadsheet.
  - /debug/statsviz: Displays runtime metrics.

In production mode the debug interface requires the Telegram secret token in
the X-Telegram-Bot-Api-Secret-Token header.
*/
package main

import (
	_ "embed"

	"github.com/tgmf/BCloyaltybot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
