package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/centralbank/bankcore/backend/pkg/common"
	"github.com/centralbank/bankcore/backend/pkg/common/api"
	"github.com/centralbank/bankcore/backend/pkg/operatorauth"
	"github.com/centralbank/bankcore/backend/pkg/store"
	"github.com/centralbank/bankcore/backend/services/auth-service/models"
)

// Service issues and verifies the operator JWTs the bank-core server's
// recovery routes require. It is a separate process so operator
// credentials can be rotated and audited independently of the banking core
// itself, but it reads and writes the same document store.
type Service struct {
	auth *operatorauth.Service
}

func (s *Service) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", uuid.NewString())
		return
	}
	if req.Role == "" {
		req.Role = "operator"
	}
	if err := s.auth.Register(r.Context(), req.Username, req.Password, req.Role); err != nil {
		if errors.Is(err, operatorauth.ErrOperatorExists) {
			api.WriteError(w, http.StatusConflict, "operator_exists", err.Error(), uuid.NewString())
			return
		}
		traceID := uuid.NewString()
		log.Printf("auth-service: register failed [trace %s]: %v", traceID, err)
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to register operator", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, map[string]string{"username": req.Username, "status": "created"})
}

func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", uuid.NewString())
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, operatorauth.ErrInvalidCredentials) {
			api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), uuid.NewString())
			return
		}
		traceID := uuid.NewString()
		log.Printf("auth-service: login failed [trace %s]: %v", traceID, err)
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to log in", traceID)
		return
	}
	api.WriteSuccess(w, http.StatusOK, models.TokenResponse{Token: token})
}

func (s *Service) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}
	if tokenString == "" {
		api.WriteError(w, http.StatusUnauthorized, "missing_token", "missing Authorization header", uuid.NewString())
		return
	}
	claims, err := s.auth.VerifyToken(tokenString)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, "invalid_token", err.Error(), uuid.NewString())
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

func main() {
	cfg := common.LoadConfig()

	ctx := context.Background()
	st, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to the document store: %v", err)
	}

	svc := &Service{auth: operatorauth.NewService(st, cfg.JWTSecret)}

	r := mux.NewRouter()
	r.HandleFunc("/auth/register", svc.RegisterHandler).Methods("POST")
	r.HandleFunc("/auth/login", svc.LoginHandler).Methods("POST")
	r.HandleFunc("/auth/verify", svc.VerifyHandler).Methods("GET")

	log.Printf("auth-service running on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
