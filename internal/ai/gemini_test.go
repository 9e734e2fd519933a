package ai

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePriceResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr error
	}{
		{"plain", `{"found": true, "price": "129.99"}`, "129.99", nil},
		{"fenced", "```json\n{\"found\": true, \"price\": \"$1,049.00\"}\n```", "1049", nil},
		{"not found", `{"found": false, "price": ""}`, "", ErrPriceNotFound},
		{"zero", `{"found": true, "price": "0"}`, "", ErrPriceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePriceResponse(tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parsePriceResponse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePriceResponse() error = %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("parsePriceResponse() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParsePriceResponse_Malformed(t *testing.T) {
	for _, text := range []string{`not json`, `{"found": true, "price": "about ten"}`} {
		if _, err := parsePriceResponse(text); err == nil || errors.Is(err, ErrPriceNotFound) {
			t.Errorf("parsePriceResponse(%q) error = %v, want a parse error", text, err)
		}
	}
}
