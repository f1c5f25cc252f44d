package utils

import (
	"bufio"
	"os"
	"strings"
)

// Blocklist holds IMDB ids and title terms excluded from the catalog
type Blocklist struct {
	ids   map[string]struct{}
	terms []string
}

// LoadBlocklist loads entries from a file, one per line. Lines starting
// with "tt" are IMDB ids; anything else is a case-insensitive title term.
func LoadBlocklist(path string) (*Blocklist, error) {
	// If file doesn't exist, return empty blocklist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewBlocklist(nil), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entries = append(entries, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewBlocklist(entries), nil
}

// NewBlocklist builds a blocklist from raw entries, skipping blanks and # comments
func NewBlocklist(entries []string) *Blocklist {
	b := &Blocklist{ids: map[string]struct{}{}}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || strings.HasPrefix(e, "#") {
			continue
		}
		if isIMDBID(e) {
			b.ids[strings.ToLower(e)] = struct{}{}
			continue
		}
		b.terms = append(b.terms, strings.ToLower(e))
	}
	return b
}

func isIMDBID(s string) bool {
	if len(s) < 3 || !strings.EqualFold(s[:2], "tt") {
		return false
	}
	for _, r := range s[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsBlocked checks an IMDB id and title against the list.
// Returns (isBlocked, matchedEntry)
func (b *Blocklist) IsBlocked(imdbID, title string) (bool, string) {
	if b == nil {
		return false, ""
	}
	if _, ok := b.ids[strings.ToLower(imdbID)]; ok && imdbID != "" {
		return true, imdbID
	}

	titleLower := strings.ToLower(title)
	for _, term := range b.terms {
		if strings.Contains(titleLower, term) {
			return true, term
		}
	}

	return false, ""
}

// Len returns the number of entries
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ids) + len(b.terms)
}
