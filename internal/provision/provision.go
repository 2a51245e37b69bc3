// Package provision creates custodial trading wallets through the
// PumpPortal wallet API.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/capwatch/internal/crypto"
	"github.com/capwatch/internal/types"
)

// ErrKeyMismatch is returned when the provisioned secret does not belong to
// the provisioned address.
var ErrKeyMismatch = errors.New("wallet secret does not match wallet address")

// walletResponse is the body of GET /api/create-wallet
type walletResponse struct {
	APIKey          string `json:"apiKey"`
	WalletPublicKey string `json:"walletPublicKey"`
	PrivateKey      string `json:"privateKey"`
}

// Client obtains a new wallet and its trading API key
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client against the trading API base URL
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateWallet provisions a wallet. The returned key pair is verified locally
// before it is handed out.
func (c *Client) CreateWallet(ctx context.Context) (*types.Wallet, error) {
	wallet, err := c.createWallet(ctx)
	if err != nil {
		return nil, types.NewGatewayError(types.GatewayProvision, "create wallet", err)
	}
	return wallet, nil
}

func (c *Client) createWallet(ctx context.Context) (*types.Wallet, error) {
	url := fmt.Sprintf("%s/api/create-wallet", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	defer crypto.SecureZero(body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var parsed walletResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}

	if parsed.APIKey == "" || parsed.WalletPublicKey == "" || parsed.PrivateKey == "" {
		return nil, fmt.Errorf("%w: incomplete wallet", types.ErrMalformedResponse)
	}

	if err := verifyKeyPair(parsed.WalletPublicKey, parsed.PrivateKey); err != nil {
		return nil, err
	}

	return &types.Wallet{
		Address:   parsed.WalletPublicKey,
		SecretKey: parsed.PrivateKey,
		APIKey:    parsed.APIKey,
	}, nil
}

func verifyKeyPair(address, secret string) error {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("%w: invalid wallet address", types.ErrMalformedResponse)
	}

	priv, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return fmt.Errorf("%w: invalid wallet secret", types.ErrMalformedResponse)
	}
	defer crypto.SecureZero(priv)

	if !priv.PublicKey().Equals(pub) {
		return ErrKeyMismatch
	}
	return nil
}
