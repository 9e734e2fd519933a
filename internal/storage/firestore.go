package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

const (
	outcomesCollection = "outcomes"
	ordersCollection   = "orders"
	trackingCollection = "tracking"
)

type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// AppendOutcome stores one processing outcome under a new time-sortable id.
func (c *Client) AppendOutcome(ctx context.Context, outcome models.ProcessingOutcome) (string, error) {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}
	id := xid.NewWithTime(outcome.Timestamp).String()
	if _, err := c.client.Collection(outcomesCollection).Doc(id).Create(ctx, outcome); err != nil {
		return "", fmt.Errorf("failed to append outcome for %s: %w", outcome.DealCode, err)
	}
	return id, nil
}

// HasOrder reports whether the deal already has a purchase on the ledger,
// either recorded as an order or queued for tracking submission.
func (c *Client) HasOrder(ctx context.Context, dealCode string) (bool, error) {
	doc, err := c.client.Collection(ordersCollection).Doc(dealCode).Get(ctx)
	switch {
	case status.Code(err) == codes.NotFound:
	case err != nil:
		return false, fmt.Errorf("failed to get order %s: %w", dealCode, err)
	case doc.Exists():
		return true, nil
	}

	iter := c.client.Collection(trackingCollection).
		Where("dealCode", "==", dealCode).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err = iter.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query tracking for %s: %w", dealCode, err)
	}
	return true, nil
}

// trackingDoc is the stored form of a tracking submission. Cost keeps its
// exact decimal string.
type trackingDoc struct {
	DealID         string    `firestore:"dealId"`
	DealCode       string    `firestore:"dealCode"`
	TrackingNumber string    `firestore:"trackingNumber,omitempty"`
	OrderID        string    `firestore:"orderId,omitempty"`
	Quantity       int       `firestore:"quantity"`
	Cost           string    `firestore:"cost"`
	Submitted      bool      `firestore:"submitted"`
	SubmittedAt    time.Time `firestore:"submittedAt,omitempty"`
}

func toTrackingDoc(s models.TrackingSubmission) trackingDoc {
	return trackingDoc{
		DealID:         s.DealID,
		DealCode:       s.DealCode,
		TrackingNumber: s.TrackingNumber,
		OrderID:        s.OrderID,
		Quantity:       s.Quantity,
		Cost:           s.Cost.String(),
		Submitted:      s.Submitted,
		SubmittedAt:    s.SubmittedAt,
	}
}

func (d trackingDoc) submission(id string) (models.TrackingSubmission, error) {
	cost := decimal.Zero
	if d.Cost != "" {
		var err error
		if cost, err = decimal.NewFromString(d.Cost); err != nil {
			return models.TrackingSubmission{}, fmt.Errorf("tracking %s has invalid cost %q: %w", id, d.Cost, err)
		}
	}
	return models.TrackingSubmission{
		ID:             id,
		DealID:         d.DealID,
		DealCode:       d.DealCode,
		TrackingNumber: d.TrackingNumber,
		OrderID:        d.OrderID,
		Quantity:       d.Quantity,
		Cost:           cost,
		Submitted:      d.Submitted,
		SubmittedAt:    d.SubmittedAt,
	}, nil
}

// QueueTracking adds a purchased order to the submission queue.
func (c *Client) QueueTracking(ctx context.Context, sub models.TrackingSubmission) (string, error) {
	id := xid.New().String()
	sub.Submitted = false
	if _, err := c.client.Collection(trackingCollection).Doc(id).Create(ctx, toTrackingDoc(sub)); err != nil {
		return "", fmt.Errorf("failed to queue tracking for %s: %w", sub.DealCode, err)
	}
	return id, nil
}

// PendingTracking returns up to limit unsubmitted tracking entries. Entries
// that cannot be decoded are logged and skipped.
func (c *Client) PendingTracking(ctx context.Context, limit int) ([]models.TrackingSubmission, error) {
	iter := c.client.Collection(trackingCollection).
		Where("submitted", "==", false).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var pending []models.TrackingSubmission
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate pending tracking: %w", err)
		}

		var d trackingDoc
		if err := doc.DataTo(&d); err != nil {
			slog.Warn("Skipping unreadable tracking entry", "id", doc.Ref.ID, "error", err)
			continue
		}
		sub, err := d.submission(doc.Ref.ID)
		if err != nil {
			slog.Warn("Skipping tracking entry", "id", doc.Ref.ID, "error", err)
			continue
		}
		pending = append(pending, sub)
	}
	return pending, nil
}

// MarkTrackingSubmitted flags the entry as sent and records the deal on the
// order ledger in one transaction.
func (c *Client) MarkTrackingSubmitted(ctx context.Context, sub models.TrackingSubmission, at time.Time) error {
	trackingRef := c.client.Collection(trackingCollection).Doc(sub.ID)
	orderRef := c.client.Collection(ordersCollection).Doc(sub.DealCode)

	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Update(trackingRef, []firestore.Update{
			{Path: "submitted", Value: true},
			{Path: "submittedAt", Value: at},
		}); err != nil {
			return err
		}
		return tx.Set(orderRef, map[string]interface{}{
			"dealCode":  sub.DealCode,
			"dealId":    sub.DealID,
			"quantity":  firestore.Increment(sub.Quantity),
			"updatedAt": at,
		}, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("failed to mark tracking %s submitted: %w", sub.ID, err)
	}
	return nil
}

// TrimOldOutcomes deletes the oldest outcomes beyond maxOutcomes.
func (c *Client) TrimOldOutcomes(ctx context.Context, maxOutcomes int) error {
	collectionRef := c.client.Collection(outcomesCollection)

	countSnapshot, err := collectionRef.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get outcome count for trimming: %w", err)
	}
	current, err := aggregationCount(countSnapshot, "all")
	if err != nil {
		return err
	}
	if current <= maxOutcomes {
		return nil
	}

	numToDelete := current - maxOutcomes
	slog.Info("Trimming outcome history", "current", current, "max", maxOutcomes, "deleting", numToDelete)

	iter := collectionRef.
		OrderBy("timestamp", firestore.Asc).
		Limit(numToDelete).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	deleted := 0
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate outcomes for trimming: %w", err)
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Failed to queue outcome delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		bulkWriter.Flush()
		slog.Info("Trimmed outcome history", "deleted", deleted)
	}
	return nil
}

// aggregationCount reads a count aggregation result, which the client
// library has returned both as int64 and as a protobuf value.
func aggregationCount(result firestore.AggregationResult, alias string) (int, error) {
	v, ok := result[alias]
	if !ok {
		return 0, fmt.Errorf("count aggregation result was invalid: %q key missing", alias)
	}
	switch val := v.(type) {
	case int64:
		return int(val), nil
	case *firestorepb.Value:
		return int(val.GetIntegerValue()), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}
