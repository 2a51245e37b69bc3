package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/capwatch/internal/types"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/create-wallet" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestCreateWallet(t *testing.T) {
	key, _ := solana.NewRandomPrivateKey()
	other, _ := solana.NewRandomPrivateKey()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:   "valid",
			status: http.StatusOK,
			body:   fmt.Sprintf(`{"apiKey":"k1","walletPublicKey":"%s","privateKey":"%s"}`, key.PublicKey(), key),
		},
		{
			name:    "mismatched pair",
			status:  http.StatusOK,
			body:    fmt.Sprintf(`{"apiKey":"k1","walletPublicKey":"%s","privateKey":"%s"}`, other.PublicKey(), key),
			wantErr: ErrKeyMismatch,
		},
		{
			name:    "missing api key",
			status:  http.StatusOK,
			body:    fmt.Sprintf(`{"walletPublicKey":"%s","privateKey":"%s"}`, key.PublicKey(), key),
			wantErr: types.ErrMalformedResponse,
		},
		{
			name:    "bad secret",
			status:  http.StatusOK,
			body:    fmt.Sprintf(`{"apiKey":"k1","walletPublicKey":"%s","privateKey":"0OIl"}`, key.PublicKey()),
			wantErr: types.ErrMalformedResponse,
		},
		{
			name:    "not json",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: types.ErrMalformedResponse,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := serve(t, tt.status, tt.body)
			wallet, err := p.CreateWallet(context.Background())

			if tt.status != http.StatusOK || tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				if types.GatewayOf(err) != types.GatewayProvision {
					t.Errorf("expected provision GatewayError, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("CreateWallet failed: %v", err)
			}
			if wallet.Address != key.PublicKey().String() || wallet.SecretKey != key.String() || wallet.APIKey != "k1" {
				t.Errorf("CreateWallet() = %+v", wallet)
			}
		})
	}
}
