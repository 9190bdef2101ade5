package models

// CreateAccountResponse is returned by POST /accounts.
type CreateAccountResponse struct {
	AccountID int `json:"account_id"`
}

// AccountView is returned by GET /accounts/{id}.
type AccountView struct {
	AccountID int    `json:"account_id"`
	Balance   string `json:"balance"`
	Closed    bool   `json:"closed"`
}

// AmountRequest is the body of deposit and withdraw requests.
type AmountRequest struct {
	Amount string `json:"amount"`
}

// TransferRequest is the body of POST /transfers.
type TransferRequest struct {
	Source      int    `json:"source"`
	Destination int    `json:"destination"`
	Amount      string `json:"amount"`
}
