package purchases

import (
	"context"
	"fmt"
	"time"

	"github.com/awa/go-iap/appstore"
)

// ReceiptStatus is the normalized answer from a platform receipt check.
type ReceiptStatus struct {
	Valid     bool
	ProductID string
	ExpiresAt time.Time
}

// Active reports whether the receipt grants access at the given instant.
func (s *ReceiptStatus) Active(now time.Time) bool {
	if s == nil || !s.Valid {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// AppleVerifier checks App Store receipts against Apple's verification API.
// The underlying client retries against the sandbox endpoint when Apple
// reports a sandbox receipt, so one verifier serves both environments.
type AppleVerifier struct {
	sharedSecret string
}

// NewAppleVerifier creates a new Apple receipt verifier
func NewAppleVerifier(sharedSecret string) *AppleVerifier {
	return &AppleVerifier{sharedSecret: sharedSecret}
}

// VerifyReceipt verifies an App Store receipt
func (v *AppleVerifier) VerifyReceipt(ctx context.Context, receiptData string) (*ReceiptStatus, error) {
	if v.sharedSecret == "" {
		return nil, fmt.Errorf("apple shared secret not configured")
	}

	client := appstore.New()
	req := appstore.IAPRequest{
		ReceiptData: receiptData,
		Password:    v.sharedSecret,
	}

	var resp appstore.IAPResponse
	if err := client.Verify(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to verify apple receipt: %w", err)
	}

	if resp.Status != 0 {
		return &ReceiptStatus{Valid: false}, nil
	}

	// The latest entry carries the current subscription period.
	if len(resp.LatestReceiptInfo) == 0 {
		return &ReceiptStatus{Valid: false}, nil
	}
	latest := resp.LatestReceiptInfo[len(resp.LatestReceiptInfo)-1]

	status := &ReceiptStatus{
		Valid:     true,
		ProductID: latest.ProductID,
	}
	if ms := latest.ExpiresDate.ExpiresDateMS; ms != "" {
		if t, err := parseMillis(ms); err == nil {
			status.ExpiresAt = t
		}
	}

	return status, nil
}

func parseMillis(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}
