// Package runtime wires the in-memory core of the server: connection registry, dispatcher and key locks.
package runtime

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"path"
	"pinger/errors"
	"strings"
)

//go:embed reserved/*
var reservedFolder embed.FS

// ReservedWords carries the loaded dictionary and the languages it came from, for logging.
type ReservedWords struct {
	Words     []string
	Languages []string
}

// WordsLoader reads word lists (one word per line) from an embedded folder.
type WordsLoader struct {
	fs fs.FS
}

func NewWordsLoader(f fs.FS) *WordsLoader {
	return &WordsLoader{fs: f}
}

// LoadReservedWords loads the usernames nobody may display, bundled with the binary.
func LoadReservedWords() (*ReservedWords, error) {
	return NewWordsLoader(reservedFolder).LoadAll("reserved")
}

// LoadAll parses every .txt file of dir into one deduplicated list.
// The file name without extension is the language ("fr.txt" -> "fr").
func (l *WordsLoader) LoadAll(dir string) (*ReservedWords, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Scanner handles both \n and \r\n
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &ReservedWords{
		Words:     words,
		Languages: languages,
	}, nil
}
