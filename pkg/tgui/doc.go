// Package tgui holds the Telegram formatting helpers shared by the bot:
// inline keyboards, "prefix:action:payload" callback data, HTML escaping
// and a message builder defaulting to ParseMode=HTML.
package tgui
