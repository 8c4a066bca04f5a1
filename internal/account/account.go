// file: internal/account/account.go
// version: 1.0.0
// guid: 917fa233-1a21-488d-880d-79aefda0eeab

// Package account defines the server session value used to authenticate
// transfers against a sync server.
package account

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalid is returned when an account without a token is used for a request.
var ErrInvalid = errors.New("account has no auth token")

// Account identifies a server session. Accounts are plain values; two accounts
// are the same session when Equal reports true.
type Account struct {
	ServerURL   string
	Username    string
	Token       string
	IsPro       bool
	LastVisited time.Time
}

// New builds an account, normalizing the server URL (no trailing slash).
func New(serverURL, username, token string) Account {
	return Account{
		ServerURL: strings.TrimRight(strings.TrimSpace(serverURL), "/"),
		Username:  username,
		Token:     token,
	}
}

// Equal compares server URL, username and token. IsPro and LastVisited are
// deliberately ignored.
func (a Account) Equal(other Account) bool {
	return a.ServerURL == other.ServerURL &&
		a.Username == other.Username &&
		a.Token == other.Token
}

// IsValid reports whether the account carries an auth token.
func (a Account) IsValid() bool {
	return len(a.Token) > 0
}

// AbsoluteURL appends relative to the server URL path. The relative path keeps
// its trailing slash, which the server API requires on most endpoints.
func (a Account) AbsoluteURL(relative string) (*url.URL, error) {
	u, err := url.Parse(a.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", a.ServerURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing scheme or host", a.ServerURL)
	}

	rel, err := url.Parse(relative)
	if err != nil {
		return nil, fmt.Errorf("invalid relative url %q: %w", relative, err)
	}

	if !strings.HasPrefix(rel.Path, "/") {
		rel.Path = "/" + rel.Path
	}
	u.Path = strings.TrimRight(u.Path, "/") + rel.Path
	u.RawQuery = rel.RawQuery
	return u, nil
}

// Signature returns a short stable identifier for the session, suitable for
// logs and event payloads. Invalid accounts have an empty signature.
func (a Account) Signature() string {
	if !a.IsValid() {
		return ""
	}
	sum := md5.Sum([]byte(a.ServerURL + a.Username))
	return hex.EncodeToString(sum[:])[:7]
}

// String implements fmt.Stringer without leaking the token.
func (a Account) String() string {
	return fmt.Sprintf("%s@%s", a.Username, a.ServerURL)
}
