package purchases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"
)

// GoogleVerifier checks Play Store purchase tokens against the Android
// Publisher API.
type GoogleVerifier struct {
	serviceAccountJSON string
}

// NewGoogleVerifier creates a new Google Play receipt verifier
func NewGoogleVerifier(serviceAccountJSON string) *GoogleVerifier {
	return &GoogleVerifier{serviceAccountJSON: serviceAccountJSON}
}

// googleReceipt is the client-supplied receipt payload for Google Play.
type googleReceipt struct {
	PackageName   string `json:"packageName"`
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
}

// VerifyReceipt verifies a Google Play subscription purchase
func (v *GoogleVerifier) VerifyReceipt(ctx context.Context, receiptData string) (*ReceiptStatus, error) {
	if v.serviceAccountJSON == "" {
		return nil, fmt.Errorf("google service account not configured")
	}

	var receipt googleReceipt
	if err := json.Unmarshal([]byte(receiptData), &receipt); err != nil {
		return nil, fmt.Errorf("failed to parse google receipt: %w", err)
	}

	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(v.serviceAccountJSON),
		androidpublisher.AndroidpublisherScope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	svc, err := androidpublisher.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create android publisher service: %w", err)
	}

	sub, err := svc.Purchases.Subscriptions.Get(
		receipt.PackageName,
		receipt.ProductID,
		receipt.PurchaseToken,
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to verify google subscription: %w", err)
	}

	valid := sub.PaymentState != nil && *sub.PaymentState == 1

	return &ReceiptStatus{
		Valid:     valid,
		ProductID: receipt.ProductID,
		ExpiresAt: time.UnixMilli(sub.ExpiryTimeMillis),
	}, nil
}
