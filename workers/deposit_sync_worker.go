package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"stake-escrow/escrow"
	"stake-escrow/models"
	"stake-escrow/services"
	"stake-escrow/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DepositSyncClient pulls confirmed deposits from the sync service and
// credits them to the asset ledger.
type DepositSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewDepositSyncClient(db *gorm.DB, baseURL, token string) *DepositSyncClient {
	return &DepositSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		DB:         db,
		HTTPClient: utils.NewHTTPClient(30 * time.Second),
	}
}

func (c *DepositSyncClient) GetDeposits(ctx context.Context, since time.Time) ([]models.DepositReceipt, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/deposits", c.BaseURL))
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
		Deposits []models.DepositReceipt `json:"deposits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Deposits, nil
}

// validateDeposit rejects receipts that can never be credited.
func validateDeposit(d models.DepositReceipt) error {
	if d.ID == "" || d.Asset == "" || d.Account == "" {
		return errors.New("missing id, asset or account")
	}
	if err := escrow.ValidateAmount(d.Amount); err != nil {
		return err
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: deposit amount %s must be positive", escrow.ErrInvalidAmount, d.Amount.String())
	}
	return nil
}

// splitDeposits separates creditable receipts from malformed ones so a bad
// record cannot hold back the rest of its batch.
func splitDeposits(deposits []models.DepositReceipt) (valid []models.DepositReceipt, skipped int) {
	for i, d := range deposits {
		if err := validateDeposit(d); err != nil {
			log.Printf("⚠️  [DEPOSIT_SYNC] Skipping deposit %d (id %q): %v", i, d.ID, err)
			skipped++
			continue
		}
		valid = append(valid, d)
	}
	return valid, skipped
}

// Apply records the deposits and credits those seen for the first time,
// all in one transaction. Malformed receipts are logged and skipped. It
// returns the number of credited deposits.
func (c *DepositSyncClient) Apply(ctx context.Context, deposits []models.DepositReceipt) (int, error) {
	valid, _ := splitDeposits(deposits)
	if len(valid) == 0 {
		return 0, nil
	}
	credited := 0
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range valid {
			d := valid[i]
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&d)
			if res.Error != nil {
				return fmt.Errorf("record deposit %s: %w", d.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue // already credited
			}
			if err := services.CreditDeposit(tx, escrow.Address(d.Asset), escrow.Address(d.Account), d.Amount); err != nil {
				return fmt.Errorf("credit deposit %s: %w", d.ID, err)
			}
			credited++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

// PollDeposits runs until ctx is done. The watermark only advances after a
// batch is applied.
func PollDeposits(ctx context.Context, client *DepositSyncClient, pollInterval time.Duration) {
	log.Println("[DEPOSIT_SYNC] Starting deposit polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DEPOSIT_SYNC] Deposit polling stopped.")
			return
		case <-ticker.C:
			pollStart := time.Now().UTC()

			deposits, err := client.GetDeposits(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ [DEPOSIT_SYNC] Error polling deposits: %v", err)
				continue
			}
			if len(deposits) == 0 {
				lastSyncTime = pollStart
				continue
			}

			credited, err := client.Apply(ctx, deposits)
			if err != nil {
				log.Printf("❌ [DEPOSIT_SYNC] Failed to apply %d deposit(s): %v", len(deposits), err)
				continue
			}

			lastSyncTime = pollStart
			log.Printf("✅ [DEPOSIT_SYNC] %d deposit(s) received, %d newly credited.", len(deposits), credited)
		}
	}
}
