package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/centralbank/bankcore/backend/pkg/bankcore"
	"github.com/centralbank/bankcore/backend/pkg/common"
	"github.com/centralbank/bankcore/backend/pkg/common/api"
	"github.com/centralbank/bankcore/backend/pkg/store"
	"github.com/centralbank/bankcore/backend/services/bankcore-server/models"
)

// Service is the thin HTTP wrapper around the banking core: it decodes
// requests, calls into bankcore.Bank, and translates the closed error
// taxonomy into HTTP status codes. All the interesting logic lives in
// package bankcore; nothing here is transactional.
type Service struct {
	bank *bankcore.Bank
}

func (s *Service) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.bank.Accounts.CreateAccount(r.Context())
	if err != nil {
		api.WriteBankingError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, models.CreateAccountResponse{AccountID: id})
}

func (s *Service) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT_ID", err.Error(), uuid.NewString())
		return
	}
	balance, err := s.bank.Accounts.GetBalance(r.Context(), id)
	if err != nil {
		api.WriteBankingError(w, err)
		return
	}
	closed, err := s.bank.Accounts.IsClosed(r.Context(), id)
	if err != nil {
		api.WriteBankingError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, models.AccountView{AccountID: id, Balance: balance.StringFixed(2), Closed: closed})
}

func (s *Service) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT_ID", err.Error(), uuid.NewString())
		return
	}
	if err := s.bank.Accounts.CloseAccount(r.Context(), id); err != nil {
		api.WriteBankingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) DepositHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT_ID", err.Error(), uuid.NewString())
		return
	}
	var req models.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), uuid.NewString())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error(), uuid.NewString())
		return
	}
	balance, err := s.bank.Accounts.Deposit(r.Context(), id, amount)
	if err != nil {
		api.WriteBankingError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, models.AccountView{AccountID: id, Balance: balance.StringFixed(2)})
}

func (s *Service) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT_ID", err.Error(), uuid.NewString())
		return
	}
	var req models.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), uuid.NewString())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error(), uuid.NewString())
		return
	}
	balance, err := s.bank.Accounts.Withdraw(r.Context(), id, amount)
	if err != nil {
		api.WriteBankingError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, models.AccountView{AccountID: id, Balance: balance.StringFixed(2)})
}

func (s *Service) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), uuid.NewString())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error(), uuid.NewString())
		return
	}
	if err := s.bank.Transfers.Transfer(r.Context(), req.Source, req.Destination, amount); err != nil {
		api.WriteBankingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecoverHandler is the HTTP face of the caller-owned scheduler the spec
// expects to drive the sweepers: a liveness probe or operator tool can
// trigger an out-of-band sweep via POST /recovery/{policy}.
func (s *Service) RecoverHandler(w http.ResponseWriter, r *http.Request) {
	policy := mux.Vars(r)["policy"]
	var err error
	switch policy {
	case "roll-forward-pending":
		err = s.bank.Recovery.RecoverPendingTransactions(r.Context())
	case "roll-forward-applied":
		err = s.bank.Recovery.RecoverAppliedTransactions(r.Context())
	case "roll-back-pending":
		err = s.bank.Recovery.CancelPendingTransactions(r.Context())
	default:
		api.WriteError(w, http.StatusBadRequest, "UNKNOWN_POLICY", "policy must be one of roll-forward-pending, roll-forward-applied, roll-back-pending", uuid.NewString())
		return
	}
	if err != nil {
		api.WriteBankingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathAccountID(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

// runRecoveryLoop is the caller-owned scheduler the spec treats as external
// to the core: it periodically rolls forward anything stuck past the age
// threshold. An operator who instead wants to cancel stuck pending transfers
// runs POST /recovery/roll-back-pending out of band.
func runRecoveryLoop(ctx context.Context, bank *bankcore.Bank) {
	ticker := time.NewTicker(bank.Recovery.GetAgeOfTransactionsRequiringRecovery())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bank.Recovery.RecoverPendingTransactions(ctx); err != nil {
				log.Printf("bankcore-server: scheduled recoverPendingTransactions failed: %v", err)
			}
			if err := bank.Recovery.RecoverAppliedTransactions(ctx); err != nil {
				log.Printf("bankcore-server: scheduled recoverAppliedTransactions failed: %v", err)
			}
		}
	}
}

func main() {
	cfg := common.LoadConfig()

	ctx := context.Background()
	st, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to the document store: %v", err)
	}

	bank := bankcore.New(st)
	bank.Recovery.SetAgeOfTransactionsRequiringRecovery(
		time.Duration(cfg.AgeOfTransactionsRequiringRecoveryMS) * time.Millisecond)

	go runRecoveryLoop(ctx, bank)

	svc := &Service{bank: bank}
	auth := common.NewAuthMiddleware(cfg.JWTSecret)

	r := mux.NewRouter()
	r.HandleFunc("/accounts", svc.CreateAccountHandler).Methods("POST")
	r.HandleFunc("/accounts/{id}", svc.GetAccountHandler).Methods("GET")
	r.HandleFunc("/accounts/{id}", svc.CloseAccountHandler).Methods("DELETE")
	r.HandleFunc("/accounts/{id}/deposit", svc.DepositHandler).Methods("POST")
	r.HandleFunc("/accounts/{id}/withdraw", svc.WithdrawHandler).Methods("POST")
	r.HandleFunc("/transfers", svc.TransferHandler).Methods("POST")

	admin := r.PathPrefix("/recovery").Subrouter()
	admin.Use(auth)
	admin.HandleFunc("/{policy}", svc.RecoverHandler).Methods("POST")

	log.Printf("bank-core server running on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
