package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// AppIDPrefix is prepended to every normalized app name to form its identifier
	AppIDPrefix = "app:"

	// SecretBytes is the number of random bytes in a generated signing secret
	SecretBytes = 40

	credentialsInfo = "Save your secret key as it is showed only once!"
)

// App represents a tenant registered on the platform.
// Each app owns a signing secret and a namespace for its users and cached data.
type App struct {
	ID        string    `json:"id" db:"id"`
	Appid     string    `json:"appid" db:"appid"`
	Name      string    `json:"name" db:"name"`
	Secret    string    `json:"-" db:"secret"` // Never expose in JSON
	Shared    bool      `json:"shared" db:"shared"`
	Datatypes []string  `json:"datatypes" db:"datatypes"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Credentials is the one-time view of an app's keys, returned on creation and secret rotation
type Credentials struct {
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Info      string `json:"info"`
}

// TableName returns the table name for the App model
func (App) TableName() string {
	return "apps"
}

// NewApp creates an App from a human-chosen name. The secret is left unset.
func NewApp(name string) *App {
	now := time.Now()
	app := &App{
		Name:      strings.TrimSpace(name),
		Active:    true,
		Shared:    false,
		Datatypes: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	app.SetAppid(name)
	return app
}

// NormalizeAppid strips whitespace and punctuation from a name and lower-cases it
func NormalizeAppid(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// AppIdentifier returns the prefixed identifier for a name or an existing identifier
func AppIdentifier(nameOrID string) string {
	a := &App{}
	a.SetID(nameOrID)
	return a.ID
}

// SetAppid normalizes the name and derives the identifier from it.
// A name without letters or digits clears both.
func (a *App) SetAppid(name string) {
	a.Appid = NormalizeAppid(name)
	a.ID = ""
	if a.Appid != "" {
		a.ID = AppIDPrefix + a.Appid
	}
}

// SetID accepts blank or already-prefixed identifiers verbatim; anything else is treated as a name.
// Appid always follows the new identifier.
func (a *App) SetID(id string) {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, AppIDPrefix) {
		a.ID = id
		a.Appid = strings.TrimPrefix(id, AppIDPrefix)
		return
	}
	a.SetAppid(id)
}

// ResetSecret replaces the signing secret with a fresh random value.
// Tokens signed with the previous secret stop verifying.
func (a *App) ResetSecret() error {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("failed to generate app secret: %w", err)
	}
	a.Secret = base64.RawURLEncoding.EncodeToString(buf)
	a.UpdatedAt = time.Now()
	return nil
}

// HasSecret reports whether a signing secret is set
func (a *App) HasSecret() bool {
	return strings.TrimSpace(a.Secret) != ""
}

// AccessKey returns the URL-safe encoding of the identifier
func (a *App) AccessKey() string {
	return base64.RawURLEncoding.EncodeToString([]byte(a.ID))
}

// DecodeAccessKey recovers an app identifier from an access key
func DecodeAccessKey(key string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
	if err != nil {
		return "", fmt.Errorf("invalid access key: %w", err)
	}
	return string(raw), nil
}

// Credentials builds the one-time credentials view. It is never stored on the app.
func (a *App) Credentials() *Credentials {
	return &Credentials{
		AccessKey: a.AccessKey(),
		SecretKey: a.Secret,
		Info:      credentialsInfo,
	}
}

// AddDatatypes adds custom types, skipping blanks and duplicates
func (a *App) AddDatatypes(datatypes ...string) {
	for _, t := range datatypes {
		t = strings.TrimSpace(t)
		if t == "" || a.HasDatatype(t) {
			continue
		}
		a.Datatypes = append(a.Datatypes, t)
	}
}

// RemoveDatatypes removes the given custom types
func (a *App) RemoveDatatypes(datatypes ...string) {
	if len(datatypes) == 0 || len(a.Datatypes) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(datatypes))
	for _, t := range datatypes {
		drop[t] = struct{}{}
	}
	kept := a.Datatypes[:0]
	for _, t := range a.Datatypes {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	a.Datatypes = kept
}

// HasDatatype reports whether the app declares the given type
func (a *App) HasDatatype(datatype string) bool {
	for _, t := range a.Datatypes {
		if t == datatype {
			return true
		}
	}
	return false
}
