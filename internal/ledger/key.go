package ledger

import (
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

const keyVersion = "v1"

// DeriveKey hashes the key material into an opaque idempotency key.
func DeriveKey(channel domain.Channel, anchor string, intent domain.Intent, bucket string) string {
	material := strings.Join([]string{keyVersion, string(channel), anchor, string(intent), bucket}, "\x1f")
	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// KeyFor derives the key for a command, bucketing by calendar day in loc.
func KeyFor(cmd domain.Command, loc *time.Location) string {
	return DeriveKey(cmd.Channel, NormalizedAnchor(cmd), cmd.Intent, Bucket(cmd.CreatedAt, loc))
}

// Bucket is the coarse time bucket: the calendar date in loc.
func Bucket(ts time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return ts.In(loc).Format("2006-01-02")
}

// NormalizedAnchor picks the strongest identity the command carries:
// phone (last ten digits), then email, then name. A name is qualified with
// the address and zip when the command has them, so two callers sharing a
// name at different places get different keys. A command with no identity
// falls back to a hash of its normalized text.
func NormalizedAnchor(cmd domain.Command) string {
	e := cmd.Entities
	if d := digits(e.Phone); len(d) >= 10 {
		return "phone:" + d[len(d)-10:]
	}
	if email := strings.ToLower(strings.TrimSpace(e.Email)); email != "" {
		return "email:" + email
	}
	if name := normalizeName(e.Name); name != "" {
		anchor := "name:" + name
		if addr := normalizeAddress(e.Address); addr != "" {
			anchor += "|addr:" + addr
		}
		if zip := digits(e.Zip); zip != "" {
			anchor += "|zip:" + zip
		}
		return anchor
	}
	sum := blake2b.Sum256([]byte(normalizeText(cmd.RawText)))
	return "text:" + hex.EncodeToString(sum[:16])
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeAddress(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
