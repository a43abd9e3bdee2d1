package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

// buildInitData signs fields the way Telegram does for WebApp init data.
func buildInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()
	var parts []string
	for k, v := range fields {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(parts, "\n")))

	vals := url.Values{}
	for k, v := range fields {
		vals.Add(k, v)
	}
	vals.Add("hash", hex.EncodeToString(h.Sum(nil)))
	return vals.Encode()
}

func TestValidateTelegramInitData_Valid(t *testing.T) {
	botToken := "test-bot-token"
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      `{"id":1,"username":"u","first_name":"F"}`,
	}

	vals, ok := ValidateTelegramInitData(buildInitData(t, botToken, fields), botToken)
	if !ok {
		t.Fatalf("expected valid init data")
	}
	if vals.Get("user") == "" {
		t.Fatalf("expected user field in values")
	}

	u, ok := TelegramUserFromInitData(buildInitData(t, botToken, fields), botToken)
	if !ok || u.ID != 1 || u.DisplayName() != "u" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestValidateTelegramInitData_Tampered(t *testing.T) {
	botToken := "test-bot-token"
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      `{"id":1,"username":"u","first_name":"F"}`,
	}
	tampered := buildInitData(t, botToken, fields) + "&x=1"

	if _, ok := ValidateTelegramInitData(tampered, botToken); ok {
		t.Fatalf("expected tampered init data to be invalid")
	}
	if _, ok := ValidateTelegramInitData(buildInitData(t, botToken, fields), "other-token"); ok {
		t.Fatalf("expected init data signed with another token to be invalid")
	}
}

func TestValidateTelegramInitData_Stale(t *testing.T) {
	botToken := "test-bot-token"
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10),
		"user":      `{"id":1}`,
	}
	if _, ok := ValidateTelegramInitData(buildInitData(t, botToken, fields), botToken); ok {
		t.Fatalf("expected stale init data to be rejected")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	InitJWT("secret-for-tests")

	token, err := GenerateJWT("42", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := ParseJWT(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != "42" || id.Name != "alice" {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := ParseJWT(token + "x"); err == nil {
		t.Fatal("expected tampered token to fail")
	}
}
