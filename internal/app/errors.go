package app

import "errors"

// botNotMountedError is returned when the target bot is absent from the
// registry (HTTP 404).
type botNotMountedError struct{ id string }

func (e botNotMountedError) Error() string { return "bot not mounted: " + e.id }

func ErrBotNotMounted(id string) error { return botNotMountedError{id: id} }

// IsBotNotMounted reports whether err indicates an unmounted bot.
func IsBotNotMounted(err error) bool {
	var e botNotMountedError
	return errors.As(err, &e)
}

// botAlreadyMountedError is returned by MountBot for a bot that is mounted or
// being mounted (HTTP 409).
type botAlreadyMountedError struct{ id string }

func (e botAlreadyMountedError) Error() string { return "bot already mounted: " + e.id }

func ErrBotAlreadyMounted(id string) error { return botAlreadyMountedError{id: id} }

func IsBotAlreadyMounted(err error) bool {
	var e botAlreadyMountedError
	return errors.As(err, &e)
}

// unsupportedLanguageError is returned for a language the bot is not
// configured with (HTTP 400).
type unsupportedLanguageError struct{ id, lang string }

func (e unsupportedLanguageError) Error() string {
	return "bot " + e.id + " does not serve language " + e.lang
}

func ErrUnsupportedLanguage(id, lang string) error { return unsupportedLanguageError{id: id, lang: lang} }

func IsUnsupportedLanguage(err error) bool {
	var e unsupportedLanguageError
	return errors.As(err, &e)
}
