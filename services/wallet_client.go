package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tournament-escrow/account"
)

// WalletTransferClient executes payouts through the wallet service.
type WalletTransferClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type transferRequest struct {
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

func NewWalletTransferClient(baseURL, token string, client *http.Client) *WalletTransferClient {
	return &WalletTransferClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  client,
	}
}

// Transfer asks the wallet service to pay amount to to. reference is sent
// as the idempotency key so a retried request is not paid twice.
func (c *WalletTransferClient) Transfer(ctx context.Context, to account.Address, amount uint64, reference string) error {
	body, err := json.Marshal(transferRequest{To: to.String(), Amount: amount, Reference: reference})
	if err != nil {
		return fmt.Errorf("failed to encode transfer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/internal/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)
	req.Header.Set("Idempotency-Key", reference)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call wallet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("wallet service returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
