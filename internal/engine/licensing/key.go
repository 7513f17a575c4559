package licensing

import (
	"strings"
	"time"
)

type KeyType string

const (
	KeyTypePermanent KeyType = "permanent"
	KeyTypeTemporary KeyType = "temporary"
)

// ParseKeyType accepts the canonical names and the short legacy forms
// ("perm", "temp") found in older key files. An empty string is permanent.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "perm", "permanent":
		return KeyTypePermanent, nil
	case "temp", "temporary":
		return KeyTypeTemporary, nil
	default:
		return "", ErrInvalidKeyType
	}
}

func (t KeyType) Valid() bool {
	return t == KeyTypePermanent || t == KeyTypeTemporary
}

// KeyRecord is one issued license key. HWID and Used always change together.
type KeyRecord struct {
	Key       string  `json:"key"`
	Type      KeyType `json:"type"`
	Owner     string  `json:"owner,omitempty"`
	CreatedBy string  `json:"created_by,omitempty"`
	CreatedAt int64   `json:"created_at"`
	ExpiresAt *int64  `json:"expires_at,omitempty"`
	HWID      string  `json:"hwid,omitempty"`
	Used      bool    `json:"used"`
}

func (k KeyRecord) Bound() bool {
	return k.HWID != ""
}

func (k KeyRecord) Permanent() bool {
	return k.Type == KeyTypePermanent
}

// Expired reports whether now is strictly past the expiry.
func (k KeyRecord) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.Unix() > *k.ExpiresAt
}

func (k *KeyRecord) bind(hwid string) {
	k.HWID = hwid
	k.Used = true
}

func (k *KeyRecord) unbind() {
	k.HWID = ""
	k.Used = false
}

// Normalize restores the HWID/Used pairing for records read from storage.
func (k *KeyRecord) Normalize() {
	k.Used = k.HWID != ""
	if k.ExpiresAt != nil && *k.ExpiresAt == 0 {
		k.ExpiresAt = nil
	}
}

type BlacklistEntry struct {
	UserID        string `json:"user_id"`
	Reason        string `json:"reason"`
	BlacklistedAt int64  `json:"blacklisted_at"`
	BlacklistedBy string `json:"blacklisted_by"`
}

type GenerateParams struct {
	Type      KeyType
	ExpiresAt *int64
	Owner     string
	CreatedBy string
}

type VerifyResult struct {
	Key        string  `json:"key"`
	Type       KeyType `json:"type"`
	ExpiresAt  *int64  `json:"expires_at,omitempty"`
	NewlyBound bool    `json:"newly_bound"`
}

type Stats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Expired     int `json:"expired"`
	Used        int `json:"used"`
	Blacklisted int `json:"blacklisted"`

	Scripts    int `json:"scripts"`
	Downloads  int `json:"downloads"`
	Executions int `json:"executions"`
}
