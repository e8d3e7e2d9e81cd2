package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword_Valid(t *testing.T) {
	valid := []string{
		"Secur3!pass",
		"CampusGate#2026",
		"xY9$aaaa",
	}

	for _, password := range valid {
		if err := ValidatePassword(password); err != nil {
			t.Errorf("ValidatePassword(%q) = %v, want nil", password, err)
		}
	}
}

func TestValidatePassword_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"too short", "Ab1!"},
		{"too long", "Ab1!" + strings.Repeat("x", 130)},
		{"no uppercase", "secur3!pass"},
		{"no lowercase", "SECUR3!PASS"},
		{"no digit", "Secure!pass"},
		{"no special", "Secur3pass"},
		{"common password", "password123!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.password); err == nil {
				t.Errorf("ValidatePassword(%q) = nil, want error", tt.password)
			}
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "Secur3!pass"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() = %v, want nil", err)
	}

	if hash == password {
		t.Fatal("hash must not equal plaintext")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword() = %v, want nil", err)
	}

	if err := ComparePassword(hash, "wrong-password"); err == nil {
		t.Error("ComparePassword() with wrong password = nil, want error")
	}

	if !IsHashMatch(hash, password) {
		t.Error("IsHashMatch() = false, want true")
	}
	if IsHashMatch(hash, "wrong-password") {
		t.Error("IsHashMatch() with wrong password = true, want false")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("HashPassword(\"\") = nil, want error")
	}
}

func TestGenerateSessionToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token, err := GenerateSessionToken()
		if err != nil {
			t.Fatalf("GenerateSessionToken() = %v, want nil", err)
		}
		if seen[token] {
			t.Fatal("GenerateSessionToken() produced a duplicate")
		}
		seen[token] = true
	}
}
