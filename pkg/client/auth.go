package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/pkg/protocol"
)

// TokenFile holds a saved session token.
type TokenFile struct {
	Token    string    `json:"token"`
	Server   string    `json:"server"`
	Username string    `json:"username"`
	SavedAt  time.Time `json:"saved_at"`
}

// Login authenticates with username/password and keeps the session
// cookie issued by the backend. remember asks for a long-lived session.
func (c *Client) Login(ctx context.Context, username, password string, remember bool) (string, error) {
	form := url.Values{
		"username": {username},
		"password": {password},
		"remember": {fmt.Sprintf("%t", remember)},
	}

	resp, err := c.send(ctx, http.MethodPost, protocol.PathLogin, nil, form)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == AuthCookie && ck.Value != "" {
			c.SetAuthToken(ck.Value)
			logging.Debug("logged in", logging.String("username", username))
			return ck.Value, nil
		}
	}
	return "", fmt.Errorf("login response carried no %s cookie", AuthCookie)
}

// Logout ends the current session on the server.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Post(ctx, protocol.PathLogout, url.Values{}, nil)
	c.SetAuthToken("")
	return err
}

// TokenFilePath returns the default path for the token file.
func TokenFilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "DocsClient", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "docs-client", "token.json")
}

// SaveToken writes tf to path.
func SaveToken(path string, tf *TokenFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if tf.SavedAt.IsZero() {
		tf.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken reads a token file from path.
func LoadToken(path string) (*TokenFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	return &tf, nil
}

// DeleteToken removes the token file at path.
func DeleteToken(path string) error {
	return os.Remove(path)
}
