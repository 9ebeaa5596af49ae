package purchases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/entity"
	domainErrors "github.com/goalforge/entitlement/internal/domain/errors"
	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/infrastructure/config"
)

// Client talks to the hosted purchase platform API. It implements
// service.RemoteSource for real (non-simulated) environments.
type Client struct {
	cfg        config.PurchasesConfig
	httpClient *http.Client
	logger     *zap.Logger
	apple      *AppleVerifier
	google     *GoogleVerifier

	mu          sync.Mutex
	initialized bool
	receipts    []storedReceipt
}

// storedReceipt is a platform receipt captured from a purchase or restore
// response, kept so ForceSync can cross-check entitlement directly with the
// store when the hosted API cannot answer.
type storedReceipt struct {
	Platform string `json:"platform"`
	Data     string `json:"data"`
}

// NewClient creates a new purchase platform client
func NewClient(cfg config.PurchasesConfig, apple *AppleVerifier, google *GoogleVerifier, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		apple:      apple,
		google:     google,
	}
}

// Wire types for the hosted API.

type entitlementPayload struct {
	ProductIdentifier string     `json:"product_identifier"`
	ExpiresDate       *time.Time `json:"expires_date"`
}

type subscriberPayload struct {
	ActiveSubscriptions []string                      `json:"active_subscriptions"`
	Entitlements        map[string]entitlementPayload `json:"entitlements"`
}

type subscriberResponse struct {
	Subscriber subscriberPayload `json:"subscriber"`
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
}

type purchaseResponse struct {
	Cancelled   bool              `json:"cancelled"`
	ProductID   string            `json:"product_id"`
	PriceString string            `json:"price_string"`
	Receipt     *storedReceipt    `json:"receipt"`
	Subscriber  subscriberPayload `json:"subscriber"`
}

type offeringsResponse struct {
	Packages []entity.Package `json:"packages"`
}

func (p subscriberPayload) toRecord(now time.Time) *entity.EntitlementRecord {
	record := &entity.EntitlementRecord{
		ActiveSubscriptions: p.ActiveSubscriptions,
		Entitlements:        make(map[string]entity.Entitlement, len(p.Entitlements)),
	}
	for key, ent := range p.Entitlements {
		active := ent.ExpiresDate == nil || now.Before(*ent.ExpiresDate)
		record.Entitlements[key] = entity.Entitlement{
			Identifier:        key,
			ProductIdentifier: ent.ProductIdentifier,
			IsActive:          active,
		}
	}
	return record
}

// Initialize verifies the platform is reachable. Idempotent; a false return
// leaves the client unusable until the next call succeeds.
func (c *Client) Initialize(ctx context.Context) bool {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	if c.cfg.APIURL == "" || c.cfg.APIKey == "" {
		c.logger.Warn("purchase platform not configured")
		return false
	}

	resp, err := c.do(ctx, http.MethodGet, c.subscriberPath(), nil, false)
	if err != nil {
		c.logger.Warn("purchase platform unreachable", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("purchase platform unhealthy", zap.Int("status", resp.StatusCode))
		return false
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return true
}

// CustomerInfo fetches the current entitlement record
func (c *Client) CustomerInfo(ctx context.Context) service.FetchResult {
	return c.fetchSubscriber(ctx, false)
}

// Purchase buys a product through the platform
func (c *Client) Purchase(ctx context.Context, productID string) (*service.PurchaseOutcome, error) {
	if !c.isInitialized() {
		return nil, fmt.Errorf("platform not initialized: %w", domainErrors.ErrPurchaseFailed)
	}

	body, err := json.Marshal(purchaseRequest{ProductID: productID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchase request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.subscriberPath()+"/purchases", body, false)
	if err != nil {
		return nil, fmt.Errorf("purchase request failed: %w", domainErrors.ErrPurchaseFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("purchase rejected with status %d: %w", resp.StatusCode, domainErrors.ErrPurchaseFailed)
	}

	var payload purchaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode purchase response: %w", domainErrors.ErrPurchaseFailed)
	}

	if payload.Cancelled {
		return &service.PurchaseOutcome{Cancelled: true}, nil
	}

	if payload.Receipt != nil {
		c.mu.Lock()
		c.receipts = append(c.receipts, *payload.Receipt)
		c.mu.Unlock()
	}

	return &service.PurchaseOutcome{
		Record:      payload.Subscriber.toRecord(time.Now()),
		ProductID:   payload.ProductID,
		PriceString: payload.PriceString,
	}, nil
}

// Restore replays historical purchases into a fresh entitlement record
func (c *Client) Restore(ctx context.Context) service.FetchResult {
	if !c.isInitialized() {
		return service.Unavailable(domainErrors.ErrRemoteUnavailable)
	}

	resp, err := c.do(ctx, http.MethodPost, c.subscriberPath()+"/restore", nil, false)
	if err != nil {
		return service.Unavailable(fmt.Errorf("restore request failed: %w", err))
	}
	defer resp.Body.Close()

	return c.decodeSubscriber(resp)
}

// Offerings lists purchasable packages
func (c *Client) Offerings(ctx context.Context) ([]entity.Package, error) {
	if !c.isInitialized() {
		return nil, domainErrors.ErrRemoteUnavailable
	}

	resp, err := c.do(ctx, http.MethodGet, "/v1/offerings", nil, false)
	if err != nil {
		return nil, fmt.Errorf("offerings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("offerings request returned status %d", resp.StatusCode)
	}

	var payload offeringsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode offerings: %w", err)
	}
	return payload.Packages, nil
}

// InvalidateCache asks the platform to drop its cached subscriber state
func (c *Client) InvalidateCache(ctx context.Context) error {
	if !c.isInitialized() {
		return nil
	}

	resp, err := c.do(ctx, http.MethodDelete, c.subscriberPath()+"/cache", nil, false)
	if err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

// ForceSync bypasses platform caches. When the hosted API cannot answer, any
// receipt captured earlier is cross-checked directly with the store.
func (c *Client) ForceSync(ctx context.Context) service.FetchResult {
	res := c.fetchSubscriber(ctx, true)
	if res.Known() {
		return res
	}

	if record := c.recordFromReceipts(ctx); record != nil {
		return service.Ok(record)
	}
	return res
}

func (c *Client) recordFromReceipts(ctx context.Context) *entity.EntitlementRecord {
	c.mu.Lock()
	receipts := make([]storedReceipt, len(c.receipts))
	copy(receipts, c.receipts)
	c.mu.Unlock()

	now := time.Now()
	for _, receipt := range receipts {
		var status *ReceiptStatus
		var err error
		switch receipt.Platform {
		case "apple":
			status, err = c.apple.VerifyReceipt(ctx, receipt.Data)
		case "google":
			status, err = c.google.VerifyReceipt(ctx, receipt.Data)
		default:
			continue
		}
		if err != nil {
			c.logger.Warn("receipt cross-check failed",
				zap.String("platform", receipt.Platform), zap.Error(err))
			continue
		}
		if status.Active(now) {
			return entity.GrantedRecord(c.cfg.EntitlementKey, status.ProductID)
		}
	}
	return nil
}

func (c *Client) fetchSubscriber(ctx context.Context, fresh bool) service.FetchResult {
	if !c.isInitialized() {
		return service.Unavailable(domainErrors.ErrRemoteUnavailable)
	}

	resp, err := c.do(ctx, http.MethodGet, c.subscriberPath(), nil, fresh)
	if err != nil {
		return service.Unavailable(fmt.Errorf("subscriber fetch failed: %w", err))
	}
	defer resp.Body.Close()

	return c.decodeSubscriber(resp)
}

func (c *Client) decodeSubscriber(resp *http.Response) service.FetchResult {
	if resp.StatusCode != http.StatusOK {
		return service.Failed(fmt.Errorf("subscriber fetch returned status %d", resp.StatusCode))
	}

	var payload subscriberResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return service.Failed(fmt.Errorf("failed to decode subscriber: %w", err))
	}

	return service.Ok(payload.Subscriber.toRecord(time.Now()))
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, fresh bool) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if fresh {
		req.Header.Set("Cache-Control", "no-cache")
	}

	return c.httpClient.Do(req)
}

func (c *Client) subscriberPath() string {
	return "/v1/subscribers/" + c.cfg.AppUserID
}

func (c *Client) isInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}
