package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// KeyPrefix marks every device API key.
	KeyPrefix = "sk_"
	// PermissionExecuteCommands allows a device to poll and answer commands.
	PermissionExecuteCommands = "execute_commands"

	displayPrefixLen = 10
	secretBytes      = 32
)

// DefaultPermissions are granted when issuance does not name any.
var DefaultPermissions = []string{PermissionExecuteCommands}

// Metadata records who issued a credential and from where.
type Metadata struct {
	CreatedBy string `json:"createdBy"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// Credential is a long-lived device API key record. The raw key is never stored.
type Credential struct {
	ID          string
	OwnerEmail  string
	DeviceID    string
	DeviceName  string
	Name        string
	HashedKey   string
	Prefix      string
	CreatedAt   time.Time
	LastUsed    *time.Time
	ExpiresAt   *time.Time
	Active      bool
	Permissions []string
	Metadata    Metadata
}

// View is the public shape of a credential. It never carries the key or its hash.
type View struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"deviceId"`
	DeviceName  string     `json:"deviceName"`
	Name        string     `json:"name"`
	Prefix      string     `json:"prefix"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsed    *time.Time `json:"lastUsed"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	Permissions []string   `json:"permissions"`
}

// View returns the public projection.
func (c *Credential) View() View {
	perms := append([]string(nil), c.Permissions...)
	return View{
		ID:          c.ID,
		DeviceID:    c.DeviceID,
		DeviceName:  c.DeviceName,
		Name:        c.Name,
		Prefix:      c.Prefix,
		CreatedAt:   c.CreatedAt,
		LastUsed:    c.LastUsed,
		ExpiresAt:   c.ExpiresAt,
		IsActive:    c.Active,
		Permissions: perms,
	}
}

// Usable reports why a stored credential cannot authenticate at now, or nil.
func (c *Credential) Usable(now time.Time) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// HasPermission reports whether the credential grants perm.
func (c *Credential) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// GenerateKey returns a new raw key: sk_<base36 millis>_<64 hex>.
func GenerateKey(now time.Time) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return KeyPrefix + strconv.FormatInt(now.UnixMilli(), 36) + "_" + hex.EncodeToString(buf), nil
}

// HashKey returns the sha256 hex digest used for lookup.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the non-secret identifying prefix of a raw key.
func DisplayPrefix(raw string) string {
	if len(raw) <= displayPrefixLen {
		return raw + "..."
	}
	return raw[:displayPrefixLen] + "..."
}

// ValidateKeyFormat checks the raw key shape before hashing.
func ValidateKeyFormat(raw string) error {
	if raw == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(raw, KeyPrefix) {
		return ErrInvalidFormat
	}
	return nil
}

// NewDeviceID returns a generated device id: device_<millis>_<8 hex>.
func NewDeviceID(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "device_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + hex.EncodeToString(buf)
}

// KeyName is the display name given to a device's key.
func KeyName(deviceName string) string {
	return deviceName + " API Key"
}
