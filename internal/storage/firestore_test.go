package storage

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/shopspring/decimal"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

func TestAggregationCount(t *testing.T) {
	tests := []struct {
		name     string
		result   firestore.AggregationResult
		want     int
		wantFail bool
	}{
		{
			name:   "int64 direct",
			result: firestore.AggregationResult{"all": int64(42)},
			want:   42,
		},
		{
			name: "firestorepb.Value integer",
			result: firestore.AggregationResult{"all": &firestorepb.Value{
				ValueType: &firestorepb.Value_IntegerValue{IntegerValue: 100},
			}},
			want: 100,
		},
		{
			name:     "unexpected type",
			result:   firestore.AggregationResult{"all": "not a number"},
			wantFail: true,
		},
		{
			name:     "missing alias",
			result:   firestore.AggregationResult{},
			wantFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := aggregationCount(tt.result, "all")
			if (err != nil) != tt.wantFail {
				t.Fatalf("aggregationCount() error = %v, wantFail %v", err, tt.wantFail)
			}
			if !tt.wantFail && got != tt.want {
				t.Errorf("aggregationCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrackingDoc_KeepsExactCost(t *testing.T) {
	sub := models.TrackingSubmission{
		DealID:         "991",
		DealCode:       "ABC123",
		TrackingNumber: "1Z999AA10123456784",
		Quantity:       2,
		Cost:           decimal.RequireFromString("199.99"),
		SubmittedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	doc := toTrackingDoc(sub)
	if doc.Cost != "199.99" {
		t.Errorf("stored cost = %q, want 199.99", doc.Cost)
	}

	got, err := doc.submission("id1")
	if err != nil {
		t.Fatalf("submission() error = %v", err)
	}
	if got.ID != "id1" || !got.Cost.Equal(sub.Cost) || got.DealCode != sub.DealCode {
		t.Errorf("submission() = %+v", got)
	}
}

func TestTrackingDoc_InvalidCost(t *testing.T) {
	if _, err := (trackingDoc{Cost: "twelve"}).submission("bad"); err == nil {
		t.Error("expected error for non-numeric cost")
	}
	got, err := (trackingDoc{}).submission("empty")
	if err != nil || !got.Cost.IsZero() {
		t.Errorf("empty cost should decode as zero, got %s, %v", got.Cost, err)
	}
}
