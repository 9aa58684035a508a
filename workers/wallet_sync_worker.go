package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-escrow/models"
)

// WalletSyncClient pulls address ownership changes from the sync service so
// badge lookups can resolve an address to its owner.
type WalletSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewWalletSyncClient(db *gorm.DB, baseURL, token string, client *http.Client) *WalletSyncClient {
	return &WalletSyncClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		DB:         db,
		HTTPClient: client,
	}
}

func (c *WalletSyncClient) GetChangedWallets(ctx context.Context, since time.Time) ([]models.WalletMirror, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/public/wallets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Wallets []models.WalletMirror `json:"wallets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Wallets, nil
}

// upsert writes wallets keyed by address.
func (c *WalletSyncClient) upsert(ctx context.Context, wallets []models.WalletMirror) error {
	return c.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"chain",
				"token",
				"is_treasury",
				"is_active",
				"updated_at",
			}),
		},
	).Create(&wallets).Error
}

// Sync mirrors the wallets changed since the given time and returns how many
// were written.
func (c *WalletSyncClient) Sync(ctx context.Context, since time.Time) (int, error) {
	wallets, err := c.GetChangedWallets(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(wallets) == 0 {
		return 0, nil
	}
	if err := c.upsert(ctx, wallets); err != nil {
		return 0, fmt.Errorf("failed to upsert %d wallet(s): %w", len(wallets), err)
	}
	return len(wallets), nil
}

// PollWallets mirrors wallet changes into wallet_mirror until ctx is done.
func PollWallets(ctx context.Context, client *WalletSyncClient, pollInterval time.Duration) {
	log.Println("[WalletSync] starting wallet polling")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WalletSync] wallet polling stopped")
			return
		case <-ticker.C:
			polledAt := time.Now().UTC()
			n, err := client.Sync(ctx, lastSyncTime)
			if err != nil {
				// keep lastSyncTime so the same window is retried
				log.Printf("[WalletSync] error syncing wallets: %v", err)
				continue
			}
			lastSyncTime = polledAt
			if n > 0 {
				log.Printf("[WalletSync] upserted %d wallet(s)", n)
			}
		}
	}
}
