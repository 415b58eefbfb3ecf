// Copyright 2025 Ditto Network

package reporting

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

func TestRegisterAndSubmitReport(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	privHex := "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	registered := false
	reported := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/operator/nonce":
			json.NewEncoder(w).Encode(nonceResponse{Nonce: "challenge-123"})
		case "/operator/register":
			registered = true
			json.NewEncoder(w).Encode(registerResponse{Access: "access-tok", Refresh: "refresh-tok"})
		case "/operator/submit-report":
			if r.Header.Get("Authorization") != "Bearer access-tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			reported = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := New(srv.URL, privHex, address)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := &workflow.Document{ContentHash: "abc123"}
	if err := client.SubmitReport(context.Background(), doc, workflow.PerChainResult{ChainID: "1"}); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if !registered || !reported {
		t.Fatalf("expected registration and report, got registered=%v reported=%v", registered, reported)
	}
}
