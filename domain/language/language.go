package language

import (
	"path/filepath"
	"sort"
	"strings"

	"gocka/domain/core"
)

// supported maps the two-letter log file prefix to the language name used in reports
var supported = map[string]string{
	"en": "english",
	"fr": "french",
	"es": "spanish",
	"de": "german",
	"uk": "ukrainian",
	"ro": "romanian",
	"bg": "bulgarian",
	"ca": "catalan",
	"da": "danish",
	"hr": "croatian",
	"hu": "hungarian",
	"it": "italian",
	"nl": "dutch",
	"pl": "polish",
	"pt": "portuguese",
	"ru": "russian",
	"sl": "slovenian",
	"sr": "serbian",
	"sv": "swedish",
	"cs": "czech",
}

// Lookup resolves a two-letter code to its language name.
func Lookup(code string) (string, error) {
	name, ok := supported[code]
	if !ok {
		return "", core.NewUnknownLanguageError(code)
	}
	return name, nil
}

// FromLogID resolves the language of a log from the prefix of its file name,
// e.g. "logs/fr-gpt2-xl.json" is french.
func FromLogID(logID string) (string, error) {
	base := filepath.Base(logID)
	code, _, _ := strings.Cut(base, "-")
	return Lookup(code)
}

// Codes returns the supported codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(supported))
	for code := range supported {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
