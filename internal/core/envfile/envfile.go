// Package envfile parses KEY=VALUE environment files.
// This is part of the Functional Core - parsing is pure and works on any io.Reader.
//
// The format is deliberately small: one KEY=VALUE per line, '#' comment lines,
// blank lines ignored, and one layer of matching single or double quotes
// stripped from values. There is no escaping and no multi-line values.
package envfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Entry is one KEY=VALUE pair in file order.
type Entry struct {
	Key   string
	Value string
	Line  int
}

// Parse reads entries from r in the order they appear.
// Lines without '=' and lines with an empty key are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		entries = append(entries, Entry{
			Key:   key,
			Value: Unquote(strings.TrimSpace(value)),
			Line:  lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}

	return entries, nil
}

// Unquote strips one layer of matching single or double quotes.
func Unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if first == last && (first == '"' || first == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}

// ToMap collapses entries into a map. Later entries win.
func ToMap(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}
