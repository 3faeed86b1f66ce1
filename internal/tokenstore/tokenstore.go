// Package tokenstore loads per-account credentials from a tokens directory:
// gmail-<slug>.json for Gmail OAuth material and calendly-<slug>.txt for
// Calendly personal access tokens. Token acquisition is someone else's job;
// this package only reads and persists what is already there.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("token not found")

type GmailToken struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TokenURI     string `json:"token_uri,omitempty"`
	Expiry       string `json:"expiry,omitempty"`
}

type Store struct {
	Dir string
	// DefaultCalendlyPAT is used when no per-key token file exists,
	// typically sourced from the CALENDLY_TOKEN environment variable.
	DefaultCalendlyPAT string
}

func New(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = "tokens"
	}
	return &Store{Dir: dir, DefaultCalendlyPAT: os.Getenv("CALENDLY_TOKEN")}
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9_.+-]+`)

// Slug makes an account identifier safe for use in a filename.
func Slug(s string) string {
	return slugRe.ReplaceAllString(strings.TrimSpace(s), "_")
}

func (s *Store) GmailTokenPath(account string) string {
	return filepath.Join(s.Dir, "gmail-"+Slug(account)+".json")
}

func (s *Store) GmailToken(account string) (GmailToken, error) {
	path := s.GmailTokenPath(account)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GmailToken{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return GmailToken{}, fmt.Errorf("read gmail token %s: %w", path, err)
	}
	var tok GmailToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return GmailToken{}, fmt.Errorf("parse gmail token %s: %w", path, err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return GmailToken{}, fmt.Errorf("gmail token %s has no access token", path)
	}
	return tok, nil
}

func (s *Store) SaveGmailToken(account string, tok GmailToken) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.GmailTokenPath(account), raw, 0o600)
}

// FirstGmailAccount returns the account of the first gmail token on disk,
// used when neither an explicit account nor a default is configured.
func (s *Store) FirstGmailAccount() (string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", fmt.Errorf("%w: no tokens directory at %s", ErrNotFound, s.Dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gmail-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no gmail tokens under %s", ErrNotFound, s.Dir)
	}
	sort.Strings(names)
	return strings.TrimSuffix(strings.TrimPrefix(names[0], "gmail-"), ".json"), nil
}

func (s *Store) CalendlyPAT(key string) (string, error) {
	if strings.TrimSpace(key) != "" {
		path := filepath.Join(s.Dir, "calendly-"+Slug(key)+".txt")
		raw, err := os.ReadFile(path)
		if err == nil {
			pat := strings.TrimSpace(string(raw))
			if pat != "" {
				return pat, nil
			}
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("read calendly token %s: %w", path, err)
		}
	}
	if s.DefaultCalendlyPAT != "" {
		return s.DefaultCalendlyPAT, nil
	}
	return "", fmt.Errorf("%w: set CALENDLY_TOKEN or create %s", ErrNotFound,
		filepath.Join(s.Dir, "calendly-<key>.txt"))
}

func (s *Store) SaveCalendlyPAT(key, pat string) error {
	path := filepath.Join(s.Dir, "calendly-"+Slug(key)+".txt")
	return writeAtomic(path, []byte(strings.TrimSpace(pat)+"\n"), 0o600)
}

// writeAtomic writes through a temp file and rename so a crash never leaves a
// half-written credential behind.
func writeAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure tokens dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
