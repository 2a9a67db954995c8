// Package storage is a filesystem object store that hands out expiring
// HMAC-signed retrieval URLs.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

var (
	ErrInvalidPath      = errors.New("storage: invalid object path")
	ErrInvalidSignature = errors.New("storage: invalid signature")
	ErrExpired          = errors.New("storage: url expired")
)

// Local stores objects under root and signs URLs below baseURL.
type Local struct {
	root    string
	baseURL string
	key     []byte
	now     func() time.Time
}

var _ chat.ObjectStore = (*Local)(nil)

func NewLocal(root, baseURL string, key []byte) (*Local, error) {
	if len(key) == 0 {
		return nil, errors.New("storage: signing key is empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/"), key: key, now: time.Now}, nil
}

// resolve maps an object path to a file below root.
func (l *Local) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (l *Local) Put(ctx context.Context, p string, data []byte, _ string) error {
	full, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp := full + ".part"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func (l *Local) sign(p string, expires int64) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(p))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *Local) SignedURL(ctx context.Context, p string, ttl time.Duration) (string, error) {
	if _, err := l.resolve(p); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	expires := l.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", l.sign(p, expires))
	return l.baseURL + "/files/" + p + "?" + q.Encode(), nil
}

// Open verifies a signed request and returns the file path to serve.
func (l *Local) Open(p, expires, signature string) (string, error) {
	full, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(l.sign(p, exp))) {
		return "", ErrInvalidSignature
	}
	if l.now().Unix() > exp {
		return "", ErrExpired
	}
	return full, nil
}
