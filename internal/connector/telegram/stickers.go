package telegram

// Cached sticker file IDs, keyed by the asset names the dispatcher emits.
// The IDs are Telegram file identifiers previously uploaded for this bot.
var stickers = map[string]string{
	"hourglass":                "CAACAgIAAxkBAAIBZV9sZQzDh8UkI9c4E1j0m7aB6tV5QAAJ9kA8jQqDZ7l3K7Gm0dS0t8A8oF9gEAA",
	"error_cat":                "CAACAgIAAxkBAAExajpnoTwhNF3vQnogLnDZSqgFMINMAgACNQEAAhZ8aAN0t5Pt54TmvDYE",
	"error_cat_invalid_syntax": "CAACAgQAAxkBAAExajZnoTwBaB1ps8dz6iLpqsFPjfIjZAACgQADWG21LihYUUl5XCWvNgQ",
	"success_cat":              "CAACAgIAAxkBAAExaipnoTuG7tQy2s1y501C9r49-WAzMgACQAEAAhZ8aAPOt9pjb9XRXTYE",
	"sleepy_cat":               "CAACAgIAAxkBAAExakpnoT7L46_ogEccuszOh0k221KiUwACQw8AAgPLqUoG1QXSYyp97jYE",
	"bye":                      "CAACAgIAAxkBAAExamZnoUaX6MQ0DtOa8nMWCZWQx_m8swACUgADQbVWDAIQ4mRpfw9yNgQ",
}

func stickerFor(asset string) (string, bool) {
	id, ok := stickers[asset]
	return id, ok
}
