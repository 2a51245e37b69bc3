// Package ledger signs and sends fee transfers from custodial wallets and
// reads token balances over Solana JSON-RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/capwatch/internal/crypto"
	"github.com/capwatch/internal/types"
)

// ErrTransferFailed is returned when the cluster reports the transfer as failed.
var ErrTransferFailed = errors.New("transfer failed on chain")

// ErrNotConfirmed is returned when a sent transfer is not confirmed in time.
var ErrNotConfirmed = errors.New("transfer not confirmed in time")

// rpcClient is the subset of *rpc.Client the ledger needs
type rpcClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// Config contains ledger options
type Config struct {
	RPCURL string

	// ConfirmTimeout bounds how long Transfer waits for confirmation
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Ledger is the fee settlement gateway
type Ledger struct {
	rpc            rpcClient
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// New creates a ledger client against an RPC endpoint
func New(cfg Config) *Ledger {
	return newLedger(rpc.New(cfg.RPCURL), cfg)
}

func newLedger(client rpcClient, cfg Config) *Ledger {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Ledger{
		rpc:            client,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
	}
}

// Transfer moves lamports from the wallet identified by secretBase58 to dest
// and waits for confirmation. The returned signature is set whenever the
// transaction was sent, even if confirmation failed.
func (l *Ledger) Transfer(ctx context.Context, secretBase58, dest string, lamports uint64) (string, error) {
	sig, err := l.transfer(ctx, secretBase58, dest, lamports)
	if err != nil {
		return sig, types.NewGatewayError(types.GatewayFee, "transfer", err)
	}
	return sig, nil
}

func (l *Ledger) transfer(ctx context.Context, secretBase58, dest string, lamports uint64) (string, error) {
	if lamports == 0 {
		return "", errors.New("nothing to transfer")
	}

	wallet, err := solana.PrivateKeyFromBase58(secretBase58)
	if err != nil {
		return "", errors.New("invalid wallet secret")
	}
	defer crypto.SecureZero(wallet)

	to, err := solana.PublicKeyFromBase58(dest)
	if err != nil {
		return "", fmt.Errorf("invalid destination: %w", err)
	}
	from := wallet.PublicKey()

	blockhash, err := l.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	if blockhash == nil || blockhash.Value == nil {
		return "", fmt.Errorf("%w: empty blockhash", types.ErrMalformedResponse)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &wallet
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := l.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"from":     from.String(),
		"to":       to.String(),
		"lamports": lamports,
		"tx":       sig.String(),
	}).Info("ledger: transfer sent")

	if err := l.waitConfirmed(ctx, sig); err != nil {
		return sig.String(), err
	}

	return sig.String(), nil
}

func (l *Ledger) waitConfirmed(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(l.confirmTimeout)
	defer timeout.Stop()

	for {
		statuses, err := l.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ErrNotConfirmed
		case <-ticker.C:
		}
	}
}

// TokenBalance returns the UI amount of mint held by owner in its associated
// token account.
func (l *Ledger) TokenBalance(ctx context.Context, owner, mint string) (float64, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("invalid owner: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint: %w", err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return 0, fmt.Errorf("failed to find ATA: %w", err)
	}

	res, err := l.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, types.NewGatewayError(types.GatewayFee, "token balance", err)
	}
	if res == nil || res.Value == nil || res.Value.UiAmount == nil {
		return 0, types.NewGatewayError(types.GatewayFee, "token balance", types.ErrMalformedResponse)
	}

	return *res.Value.UiAmount, nil
}
