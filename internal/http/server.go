package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"autoguardian/server/internal/auth"
	"autoguardian/server/internal/catalog"
	"autoguardian/server/internal/config"
	"autoguardian/server/internal/crypto"
	"autoguardian/server/internal/extract"
	"autoguardian/server/internal/model"
	"autoguardian/server/internal/repository"
	"autoguardian/server/internal/scoring"
)

type Server struct {
	cfg     config.Config
	store   *repository.Store
	catalog catalog.Source
	redis   *redis.Client
}

func NewServer(cfg config.Config, store *repository.Store, source catalog.Source, redisClient *redis.Client) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		catalog: source,
		redis:   redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/password-reset/request", s.handlePasswordResetRequest)
		r.Post("/auth/password-reset/confirm", s.handlePasswordResetConfirm)
		r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
		r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

		r.Route("/vehicles", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListVehicles)
			r.Post("/", s.handleCreateVehicle)
			r.Get("/{vehicleID}", s.handleGetVehicle)
			r.Put("/{vehicleID}", s.handleUpdateVehicle)
			r.Delete("/{vehicleID}", s.handleDeleteVehicle)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListPolicies)
			r.Post("/", s.handleCreatePolicy)
			r.Get("/{policyID}", s.handleGetPolicy)
			r.Put("/{policyID}", s.handleUpdatePolicy)
			r.Delete("/{policyID}", s.handleDeletePolicy)
		})

		r.Route("/events", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListEvents)
			r.Post("/", s.handleCreateEvent)
			r.Get("/{eventID}", s.handleGetEvent)
			r.Put("/{eventID}", s.handleUpdateEvent)
			r.Delete("/{eventID}", s.handleDeleteEvent)
		})

		r.Route("/reminders", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListReminders)
			r.Post("/", s.handleCreateReminder)
			r.Put("/{reminderID}", s.handleUpdateReminder)
			r.Delete("/{reminderID}", s.handleDeleteReminder)
		})

		r.Route("/offers", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListOffers)
			r.Post("/quote", s.handleQuoteOffers)
			r.Get("/{offerID}", s.handleGetOffer)
		})

		r.Route("/upload", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.handleUpload)
			r.Post("/policies/from-extraction", s.handleCreatePolicy)
		})
	})

	return r
}

// ---- auth ----

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userRead struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_email")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, userRead{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	tokenHash := crypto.HashToken(req.RefreshToken)
	session, err := s.store.GetRefreshSession(r.Context(), tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}

	// Revoke-old and persist-new commit together, so a failure mid-rotation
	// never leaves the caller without a usable session.
	accessToken, refreshToken, next, err := s.mintTokens(user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	if err := s.store.RotateRefreshSession(r.Context(), session.ID, next); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if err := s.store.RevokeRefreshSessionsByUser(r.Context(), claims.UserID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type upcomingDeadline struct {
	Type     string `json:"type"`
	PolicyID string `json:"policy_id"`
	EndDate  string `json:"end_date"`
}

type meResponse struct {
	ID                string             `json:"id"`
	Email             string             `json:"email"`
	CreatedAt         string             `json:"created_at"`
	VehiclesCount     int                `json:"vehicles_count"`
	PoliciesCount     int                `json:"policies_count"`
	UpcomingDeadlines []upcomingDeadline `json:"upcoming_deadlines"`
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	summary, err := s.store.GetAccountSummary(r.Context(), user.ID, 5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	deadlines := make([]upcomingDeadline, 0, len(summary.Deadlines))
	for _, deadline := range summary.Deadlines {
		deadlines = append(deadlines, upcomingDeadline{
			Type:     "policy",
			PolicyID: deadline.PolicyID,
			EndDate:  formatDate(deadline.EndDate),
		})
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:                user.ID,
		Email:             user.Email,
		CreatedAt:         user.CreatedAt.Format(time.RFC3339),
		VehiclesCount:     summary.VehiclesCount,
		PoliciesCount:     summary.PoliciesCount,
		UpcomingDeadlines: deadlines,
	})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "reset_not_configured")
		return
	}

	// Respond identically whether or not the account exists.
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err == nil {
		token, err := crypto.NewResetToken()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		key := resetTokenKey(crypto.HashToken(token))
		if err := s.redis.Set(r.Context(), key, user.ID, s.cfg.PasswordResetTTL).Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		// No mailer is wired up; the token is surfaced in the server log.
		log.Printf("password reset token issued for %s: %s", user.Email, token)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirm
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "missing_token")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "reset_not_configured")
		return
	}

	key := resetTokenKey(crypto.HashToken(req.Token))
	userID, err := s.redis.GetDel(r.Context(), key).Result()
	if err == redis.Nil {
		writeError(w, http.StatusUnauthorized, "invalid_reset_token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}
	now := time.Now().UTC()
	if err := s.store.UpdateUserPassword(r.Context(), userID, hash, now); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.store.RevokeRefreshSessionsByUser(r.Context(), userID, now); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func resetTokenKey(tokenHash string) string {
	return "pwreset:" + tokenHash
}

func (s *Server) issueTokens(ctx context.Context, user model.User, userAgent, ip string) (string, string, error) {
	accessToken, refreshToken, session, err := s.mintTokens(user, userAgent, ip)
	if err != nil {
		return "", "", err
	}
	if err := s.store.CreateRefreshSession(ctx, session); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// mintTokens builds the token pair and its session row without persisting
// anything; the caller decides whether it lands via create or rotate.
func (s *Server) mintTokens(user model.User, userAgent, ip string) (string, string, model.RefreshSession, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
	})
	if err != nil {
		return "", "", model.RefreshSession{}, err
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", model.RefreshSession{}, err
	}

	now := time.Now().UTC()
	session := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ip != "" {
		session.IPAddress = &ip
	}
	return accessToken, refreshToken, session, nil
}

// ---- vehicles ----

type vehicleRequest struct {
	Make                  *string  `json:"make"`
	Model                 *string  `json:"model"`
	Year                  *int     `json:"year"`
	VIN                   *string  `json:"vin"`
	Registration          *string  `json:"registration"`
	Engine                *string  `json:"engine"`
	FuelType              *string  `json:"fuel_type"`
	MileageKM             *int     `json:"mileage_km"`
	FirstRegistrationDate *string  `json:"first_registration_date"`
	Photos                []string `json:"photos"`
	ServiceIntervalMonths *int     `json:"service_interval_months"`
	ServiceIntervalKM     *int     `json:"service_interval_km"`
}

type vehicleRead struct {
	ID                    string   `json:"id"`
	UserID                string   `json:"user_id"`
	Make                  string   `json:"make"`
	Model                 string   `json:"model"`
	Year                  *int     `json:"year"`
	VIN                   *string  `json:"vin"`
	Registration          *string  `json:"registration"`
	Engine                *string  `json:"engine"`
	FuelType              *string  `json:"fuel_type"`
	MileageKM             int      `json:"mileage_km"`
	FirstRegistrationDate *string  `json:"first_registration_date"`
	Photos                []string `json:"photos"`
	ServiceIntervalMonths *int     `json:"service_interval_months"`
	ServiceIntervalKM     *int     `json:"service_interval_km"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
}

func mapVehicle(v model.Vehicle) vehicleRead {
	read := vehicleRead{
		ID:                    v.ID,
		UserID:                v.UserID,
		Make:                  v.Make,
		Model:                 v.Model,
		Year:                  v.Year,
		VIN:                   v.VIN,
		Registration:          v.Registration,
		Engine:                v.Engine,
		FuelType:              v.FuelType,
		MileageKM:             v.MileageKM,
		Photos:                v.Photos,
		ServiceIntervalMonths: v.ServiceIntervalMonths,
		ServiceIntervalKM:     v.ServiceIntervalKM,
		CreatedAt:             v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             v.UpdatedAt.Format(time.RFC3339),
	}
	if v.FirstRegistrationDate != nil {
		date := formatDate(*v.FirstRegistrationDate)
		read.FirstRegistrationDate = &date
	}
	if read.Photos == nil {
		read.Photos = []string{}
	}
	return read
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	vehicles, err := s.store.ListVehicles(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]vehicleRead, 0, len(vehicles))
	for _, vehicle := range vehicles {
		resp = append(resp, mapVehicle(vehicle))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req vehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Make == nil || strings.TrimSpace(*req.Make) == "" || req.Model == nil || strings.TrimSpace(*req.Model) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if errCode := validateVehicleNumbers(req.MileageKM, req.ServiceIntervalMonths, req.ServiceIntervalKM); errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}
	firstRegistration, err := parseDatePtr(req.FirstRegistrationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	now := time.Now().UTC()
	vehicle := model.Vehicle{
		ID:                    uuid.NewString(),
		UserID:                claims.UserID,
		Make:                  strings.TrimSpace(*req.Make),
		Model:                 strings.TrimSpace(*req.Model),
		Year:                  req.Year,
		VIN:                   req.VIN,
		Registration:          req.Registration,
		Engine:                req.Engine,
		FuelType:              req.FuelType,
		FirstRegistrationDate: firstRegistration,
		Photos:                req.Photos,
		ServiceIntervalMonths: req.ServiceIntervalMonths,
		ServiceIntervalKM:     req.ServiceIntervalKM,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.MileageKM != nil {
		vehicle.MileageKM = *req.MileageKM
	}
	if vehicle.Photos == nil {
		vehicle.Photos = []string{}
	}

	if err := s.store.CreateVehicle(r.Context(), vehicle); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapVehicle(vehicle))
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	vehicleID, err := parseUUID(chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}

	vehicle, err := s.store.GetVehicle(r.Context(), claims.UserID, vehicleID)
	if err != nil {
		writeStoreError(w, err, "vehicle_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapVehicle(vehicle))
}

func (s *Server) handleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	vehicleID, err := parseUUID(chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}

	var req vehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if errCode := validateVehicleNumbers(req.MileageKM, req.ServiceIntervalMonths, req.ServiceIntervalKM); errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}
	firstRegistration, err := parseDatePtr(req.FirstRegistrationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	update := repository.VehicleUpdate{
		Year:                  req.Year,
		VIN:                   req.VIN,
		Registration:          req.Registration,
		Engine:                req.Engine,
		FuelType:              req.FuelType,
		MileageKM:             req.MileageKM,
		FirstRegistrationDate: firstRegistration,
		ServiceIntervalMonths: req.ServiceIntervalMonths,
		ServiceIntervalKM:     req.ServiceIntervalKM,
	}
	if req.Make != nil {
		vmake := strings.TrimSpace(*req.Make)
		if vmake == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		update.Make = &vmake
	}
	if req.Model != nil {
		vmodel := strings.TrimSpace(*req.Model)
		if vmodel == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		update.Model = &vmodel
	}
	if req.Photos != nil {
		update.Photos = &req.Photos
	}

	vehicle, err := s.store.UpdateVehicle(r.Context(), claims.UserID, vehicleID, update)
	if err != nil {
		writeStoreError(w, err, "vehicle_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapVehicle(vehicle))
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	vehicleID, err := parseUUID(chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}

	if err := s.store.DeleteVehicle(r.Context(), claims.UserID, vehicleID); err != nil {
		writeStoreError(w, err, "vehicle_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateVehicleNumbers(mileage, intervalMonths, intervalKM *int) string {
	if mileage != nil && *mileage < 0 {
		return "invalid_mileage"
	}
	if intervalMonths != nil && *intervalMonths < 0 {
		return "invalid_service_interval"
	}
	if intervalKM != nil && *intervalKM < 0 {
		return "invalid_service_interval"
	}
	return ""
}

// ---- policies ----

type policyRequest struct {
	VehicleID           *string          `json:"vehicle_id"`
	PolicyType          *string          `json:"policy_type"`
	Insurer             *string          `json:"insurer"`
	PolicyNumber        *string          `json:"policy_number"`
	StartDate           *string          `json:"start_date"`
	EndDate             *string          `json:"end_date"`
	PremiumTotal        *float64         `json:"premium_total"`
	PremiumInstallments []map[string]any `json:"premium_installments"`
	Coverage            *map[string]any  `json:"coverage"`
	Deductible          *float64         `json:"deductible"`
	Exclusions          *[]string        `json:"exclusions"`
	Documents           *[]string        `json:"documents"`
	RawText             *string          `json:"raw_text"`
}

type policyRead struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id"`
	VehicleID           string           `json:"vehicle_id"`
	PolicyType          string           `json:"policy_type"`
	Insurer             string           `json:"insurer"`
	PolicyNumber        string           `json:"policy_number"`
	StartDate           string           `json:"start_date"`
	EndDate             string           `json:"end_date"`
	PremiumTotal        float64          `json:"premium_total"`
	PremiumInstallments []map[string]any `json:"premium_installments"`
	Coverage            map[string]any   `json:"coverage"`
	Deductible          *float64         `json:"deductible"`
	Exclusions          []string         `json:"exclusions"`
	Documents           []string         `json:"documents"`
	RawText             *string          `json:"raw_text"`
	CreatedAt           string           `json:"created_at"`
	UpdatedAt           string           `json:"updated_at"`
}

func mapPolicy(p model.Policy) policyRead {
	read := policyRead{
		ID:                  p.ID,
		UserID:              p.UserID,
		VehicleID:           p.VehicleID,
		PolicyType:          p.PolicyType,
		Insurer:             p.Insurer,
		PolicyNumber:        p.PolicyNumber,
		StartDate:           formatDate(p.StartDate),
		EndDate:             formatDate(p.EndDate),
		PremiumTotal:        p.PremiumTotal,
		PremiumInstallments: p.PremiumInstallments,
		Coverage:            p.Coverage,
		Deductible:          p.Deductible,
		Exclusions:          p.Exclusions,
		Documents:           p.Documents,
		RawText:             p.RawText,
		CreatedAt:           p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           p.UpdatedAt.Format(time.RFC3339),
	}
	if read.PremiumInstallments == nil {
		read.PremiumInstallments = []map[string]any{}
	}
	if read.Coverage == nil {
		read.Coverage = map[string]any{}
	}
	if read.Exclusions == nil {
		read.Exclusions = []string{}
	}
	if read.Documents == nil {
		read.Documents = []string{}
	}
	return read
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	filter := repository.PolicyFilter{}
	if raw := r.URL.Query().Get("vehicle_id"); raw != "" {
		vehicleID, err := parseUUID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
			return
		}
		filter.VehicleID = &vehicleID
	}
	if raw := r.URL.Query().Get("policy_type"); raw != "" {
		filter.PolicyType = &raw
	}

	policies, err := s.store.ListPolicies(r.Context(), claims.UserID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]policyRead, 0, len(policies))
	for _, policy := range policies {
		resp = append(resp, mapPolicy(policy))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.VehicleID == nil || req.PolicyType == nil || req.Insurer == nil ||
		req.PolicyNumber == nil || req.StartDate == nil || req.EndDate == nil || req.PremiumTotal == nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if *req.PremiumTotal < 0 {
		writeError(w, http.StatusBadRequest, "invalid_premium")
		return
	}
	if req.Deductible != nil && *req.Deductible < 0 {
		writeError(w, http.StatusBadRequest, "invalid_deductible")
		return
	}
	startDate, err := parseDate(*req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	endDate, err := parseDate(*req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	if _, err := parseUUID(*req.VehicleID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}
	// Owner-scoped vehicle lookup doubles as the guard: a foreign vehicle id
	// reads the same as a missing one.
	if _, err := s.store.GetVehicle(r.Context(), claims.UserID, *req.VehicleID); err != nil {
		writeStoreError(w, err, "vehicle_not_found")
		return
	}

	now := time.Now().UTC()
	policy := model.Policy{
		ID:                  uuid.NewString(),
		UserID:              claims.UserID,
		VehicleID:           *req.VehicleID,
		PolicyType:          *req.PolicyType,
		Insurer:             *req.Insurer,
		PolicyNumber:        *req.PolicyNumber,
		StartDate:           startDate,
		EndDate:             endDate,
		PremiumTotal:        *req.PremiumTotal,
		PremiumInstallments: req.PremiumInstallments,
		Deductible:          req.Deductible,
		RawText:             req.RawText,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.Coverage != nil {
		policy.Coverage = *req.Coverage
	}
	if req.Exclusions != nil {
		policy.Exclusions = *req.Exclusions
	}
	if req.Documents != nil {
		policy.Documents = *req.Documents
	}
	if policy.PremiumInstallments == nil {
		policy.PremiumInstallments = []map[string]any{}
	}
	if policy.Coverage == nil {
		policy.Coverage = map[string]any{}
	}
	if policy.Exclusions == nil {
		policy.Exclusions = []string{}
	}
	if policy.Documents == nil {
		policy.Documents = []string{}
	}

	if err := s.store.CreatePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapPolicy(policy))
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	policyID, err := parseUUID(chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_policy_id")
		return
	}

	policy, err := s.store.GetPolicy(r.Context(), claims.UserID, policyID)
	if err != nil {
		writeStoreError(w, err, "policy_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapPolicy(policy))
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	policyID, err := parseUUID(chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_policy_id")
		return
	}

	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.PremiumTotal != nil && *req.PremiumTotal < 0 {
		writeError(w, http.StatusBadRequest, "invalid_premium")
		return
	}
	if req.Deductible != nil && *req.Deductible < 0 {
		writeError(w, http.StatusBadRequest, "invalid_deductible")
		return
	}
	startDate, err := parseDatePtr(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	endDate, err := parseDatePtr(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	update := repository.PolicyUpdate{
		PolicyType:   req.PolicyType,
		Insurer:      req.Insurer,
		PolicyNumber: req.PolicyNumber,
		StartDate:    startDate,
		EndDate:      endDate,
		PremiumTotal: req.PremiumTotal,
		Coverage:     req.Coverage,
		Deductible:   req.Deductible,
		Exclusions:   req.Exclusions,
		Documents:    req.Documents,
		RawText:      req.RawText,
	}
	if req.PremiumInstallments != nil {
		update.PremiumInstallments = &req.PremiumInstallments
	}

	policy, err := s.store.UpdatePolicy(r.Context(), claims.UserID, policyID, update)
	if err != nil {
		writeStoreError(w, err, "policy_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapPolicy(policy))
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	policyID, err := parseUUID(chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_policy_id")
		return
	}

	if err := s.store.DeletePolicy(r.Context(), claims.UserID, policyID); err != nil {
		writeStoreError(w, err, "policy_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- events ----

type eventRequest struct {
	VehicleID    *string   `json:"vehicle_id"`
	Type         *string   `json:"type"`
	Date         *string   `json:"date"`
	MileageKM    *int      `json:"mileage_km"`
	CostTotal    *float64  `json:"cost_total"`
	WorkshopName *string   `json:"workshop_name"`
	Notes        *string   `json:"notes"`
	Attachments  *[]string `json:"attachments"`
}

type eventRead struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	VehicleID    string   `json:"vehicle_id"`
	Type         string   `json:"type"`
	Date         string   `json:"date"`
	MileageKM    *int     `json:"mileage_km"`
	CostTotal    *float64 `json:"cost_total"`
	WorkshopName *string  `json:"workshop_name"`
	Notes        *string  `json:"notes"`
	Attachments  []string `json:"attachments"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func mapEvent(e model.Event) eventRead {
	read := eventRead{
		ID:           e.ID,
		UserID:       e.UserID,
		VehicleID:    e.VehicleID,
		Type:         e.Type,
		Date:         formatDate(e.Date),
		MileageKM:    e.MileageKM,
		CostTotal:    e.CostTotal,
		WorkshopName: e.WorkshopName,
		Notes:        e.Notes,
		Attachments:  e.Attachments,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.Format(time.RFC3339),
	}
	if read.Attachments == nil {
		read.Attachments = []string{}
	}
	return read
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	filter := repository.EventFilter{}
	if raw := r.URL.Query().Get("vehicle_id"); raw != "" {
		vehicleID, err := parseUUID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
			return
		}
		filter.VehicleID = &vehicleID
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		filter.Type = &raw
	}

	events, err := s.store.ListEvents(r.Context(), claims.UserID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]eventRead, 0, len(events))
	for _, event := range events {
		resp = append(resp, mapEvent(event))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.VehicleID == nil || req.Type == nil || strings.TrimSpace(*req.Type) == "" || req.Date == nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.MileageKM != nil && *req.MileageKM < 0 {
		writeError(w, http.StatusBadRequest, "invalid_mileage")
		return
	}
	if req.CostTotal != nil && *req.CostTotal < 0 {
		writeError(w, http.StatusBadRequest, "invalid_cost")
		return
	}
	date, err := parseDate(*req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	if _, err := parseUUID(*req.VehicleID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}
	if _, err := s.store.GetVehicle(r.Context(), claims.UserID, *req.VehicleID); err != nil {
		writeStoreError(w, err, "vehicle_not_found")
		return
	}

	now := time.Now().UTC()
	event := model.Event{
		ID:           uuid.NewString(),
		UserID:       claims.UserID,
		VehicleID:    *req.VehicleID,
		Type:         strings.TrimSpace(*req.Type),
		Date:         date,
		MileageKM:    req.MileageKM,
		CostTotal:    req.CostTotal,
		WorkshopName: req.WorkshopName,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Attachments != nil {
		event.Attachments = *req.Attachments
	}
	if event.Attachments == nil {
		event.Attachments = []string{}
	}

	if err := s.store.CreateEvent(r.Context(), event); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapEvent(event))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	eventID, err := parseUUID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event_id")
		return
	}

	event, err := s.store.GetEvent(r.Context(), claims.UserID, eventID)
	if err != nil {
		writeStoreError(w, err, "event_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapEvent(event))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	eventID, err := parseUUID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event_id")
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.MileageKM != nil && *req.MileageKM < 0 {
		writeError(w, http.StatusBadRequest, "invalid_mileage")
		return
	}
	if req.CostTotal != nil && *req.CostTotal < 0 {
		writeError(w, http.StatusBadRequest, "invalid_cost")
		return
	}
	date, err := parseDatePtr(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	update := repository.EventUpdate{
		Type:         req.Type,
		Date:         date,
		MileageKM:    req.MileageKM,
		CostTotal:    req.CostTotal,
		WorkshopName: req.WorkshopName,
		Notes:        req.Notes,
		Attachments:  req.Attachments,
	}

	event, err := s.store.UpdateEvent(r.Context(), claims.UserID, eventID, update)
	if err != nil {
		writeStoreError(w, err, "event_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapEvent(event))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	eventID, err := parseUUID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event_id")
		return
	}

	if err := s.store.DeleteEvent(r.Context(), claims.UserID, eventID); err != nil {
		writeStoreError(w, err, "event_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- reminders ----

type reminderRequest struct {
	EntityType  *string `json:"entity_type"`
	EntityID    *string `json:"entity_id"`
	VehicleID   *string `json:"vehicle_id"`
	PolicyID    *string `json:"policy_id"`
	EventID     *string `json:"event_id"`
	DueDate     *string `json:"due_date"`
	Channel     *string `json:"channel"`
	Status      *string `json:"status"`
	SnoozeUntil *string `json:"snooze_until"`
}

type reminderRead struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	EntityType  string  `json:"entity_type"`
	EntityID    string  `json:"entity_id"`
	VehicleID   *string `json:"vehicle_id"`
	PolicyID    *string `json:"policy_id"`
	EventID     *string `json:"event_id"`
	DueDate     string  `json:"due_date"`
	Channel     string  `json:"channel"`
	Status      string  `json:"status"`
	SnoozeUntil *string `json:"snooze_until"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func mapReminder(rem model.Reminder) reminderRead {
	read := reminderRead{
		ID:         rem.ID,
		UserID:     rem.UserID,
		EntityType: rem.EntityType,
		EntityID:   rem.EntityID,
		VehicleID:  rem.VehicleID,
		PolicyID:   rem.PolicyID,
		EventID:    rem.EventID,
		DueDate:    formatDate(rem.DueDate),
		Channel:    rem.Channel,
		Status:     rem.Status,
		CreatedAt:  rem.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rem.UpdatedAt.Format(time.RFC3339),
	}
	if rem.SnoozeUntil != nil {
		snooze := formatDate(*rem.SnoozeUntil)
		read.SnoozeUntil = &snooze
	}
	return read
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var status *string
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !isValidReminderStatus(raw) {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		status = &raw
	}

	reminders, err := s.store.ListReminders(r.Context(), claims.UserID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]reminderRead, 0, len(reminders))
	for _, reminder := range reminders {
		resp = append(resp, mapReminder(reminder))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.EntityType == nil || strings.TrimSpace(*req.EntityType) == "" || req.EntityID == nil || req.DueDate == nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if _, err := parseUUID(*req.EntityID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_entity_id")
		return
	}
	dueDate, err := parseDate(*req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	snoozeUntil, err := parseDatePtr(req.SnoozeUntil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	channel := "push"
	if req.Channel != nil && strings.TrimSpace(*req.Channel) != "" {
		channel = strings.TrimSpace(*req.Channel)
	}
	status := model.ReminderStatusPending
	if req.Status != nil {
		if !isValidReminderStatus(*req.Status) {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		status = *req.Status
	}

	// Every referenced entity must belong to the caller; foreign ids read as
	// absent.
	if req.VehicleID != nil {
		if _, err := parseUUID(*req.VehicleID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
			return
		}
		if _, err := s.store.GetVehicle(r.Context(), claims.UserID, *req.VehicleID); err != nil {
			writeStoreError(w, err, "vehicle_not_found")
			return
		}
	}
	if req.PolicyID != nil {
		if _, err := parseUUID(*req.PolicyID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_policy_id")
			return
		}
		if _, err := s.store.GetPolicy(r.Context(), claims.UserID, *req.PolicyID); err != nil {
			writeStoreError(w, err, "policy_not_found")
			return
		}
	}
	if req.EventID != nil {
		if _, err := parseUUID(*req.EventID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_event_id")
			return
		}
		if _, err := s.store.GetEvent(r.Context(), claims.UserID, *req.EventID); err != nil {
			writeStoreError(w, err, "event_not_found")
			return
		}
	}

	now := time.Now().UTC()
	reminder := model.Reminder{
		ID:          uuid.NewString(),
		UserID:      claims.UserID,
		EntityType:  strings.TrimSpace(*req.EntityType),
		EntityID:    *req.EntityID,
		VehicleID:   req.VehicleID,
		PolicyID:    req.PolicyID,
		EventID:     req.EventID,
		DueDate:     dueDate,
		Channel:     channel,
		Status:      status,
		SnoozeUntil: snoozeUntil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateReminder(r.Context(), reminder); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapReminder(reminder))
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	reminderID, err := parseUUID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reminder_id")
		return
	}

	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Status != nil && !isValidReminderStatus(*req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	snoozeUntil, err := parseDatePtr(req.SnoozeUntil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	update := repository.ReminderUpdate{
		Channel:     req.Channel,
		Status:      req.Status,
		SnoozeUntil: snoozeUntil,
	}

	reminder, err := s.store.UpdateReminder(r.Context(), claims.UserID, reminderID, update)
	if err != nil {
		writeStoreError(w, err, "reminder_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapReminder(reminder))
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	reminderID, err := parseUUID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reminder_id")
		return
	}

	if err := s.store.DeleteReminder(r.Context(), claims.UserID, reminderID); err != nil {
		writeStoreError(w, err, "reminder_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isValidReminderStatus(status string) bool {
	switch status {
	case model.ReminderStatusPending, model.ReminderStatusSent, model.ReminderStatusDismissed:
		return true
	default:
		return false
	}
}

// ---- offers ----

type quoteRequest struct {
	VehicleID string  `json:"vehicle_id"`
	PolicyID  *string `json:"policy_id"`
}

type offerRead struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	VehicleID       string            `json:"vehicle_id"`
	BasePolicyID    *string           `json:"base_policy_id"`
	Provider        string            `json:"provider"`
	PremiumTotal    float64           `json:"premium_total"`
	Coverage        map[string]any    `json:"coverage"`
	Deductible      *float64          `json:"deductible"`
	AssistanceLevel *string           `json:"assistance_level"`
	LinkOut         *string           `json:"link_out"`
	ScoreBreakdown  scoring.Breakdown `json:"score_breakdown"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

func mapOffer(o model.Offer) offerRead {
	read := offerRead{
		ID:              o.ID,
		UserID:          o.UserID,
		VehicleID:       o.VehicleID,
		BasePolicyID:    o.BasePolicyID,
		Provider:        o.Provider,
		PremiumTotal:    o.PremiumTotal,
		Coverage:        o.Coverage,
		Deductible:      o.Deductible,
		AssistanceLevel: o.AssistanceLevel,
		LinkOut:         o.LinkOut,
		ScoreBreakdown:  o.ScoreBreakdown,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
	}
	if read.Coverage == nil {
		read.Coverage = map[string]any{}
	}
	return read
}

// handleQuoteOffers scores the catalog candidates against the request context
// and persists the batch atomically. Offers stay in catalog order; any
// score-based sorting is the caller's concern.
func (s *Server) handleQuoteOffers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.VehicleID == "" {
		writeError(w, http.StatusBadRequest, "missing_vehicle_id")
		return
	}
	if _, err := parseUUID(req.VehicleID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}
	if req.PolicyID != nil {
		if _, err := parseUUID(*req.PolicyID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_policy_id")
			return
		}
	}

	if _, err := s.store.GetVehicle(r.Context(), claims.UserID, req.VehicleID); err != nil {
		writeStoreError(w, err, "vehicle_not_found")
		return
	}
	if req.PolicyID != nil {
		if _, err := s.store.GetPolicy(r.Context(), claims.UserID, *req.PolicyID); err != nil {
			writeStoreError(w, err, "policy_not_found")
			return
		}
	}

	candidates, err := s.catalog.Candidates(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalog_unavailable")
		return
	}

	breakdowns := scoring.Score(candidates, scoring.DefaultWeights())
	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(candidates))
	for i, candidate := range candidates {
		offer := model.Offer{
			ID:             uuid.NewString(),
			UserID:         claims.UserID,
			VehicleID:      req.VehicleID,
			BasePolicyID:   req.PolicyID,
			Provider:       candidate.Provider,
			PremiumTotal:   candidate.PremiumTotal,
			Coverage:       candidate.Coverage,
			ScoreBreakdown: breakdowns[i],
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		deductible := candidate.Deductible
		offer.Deductible = &deductible
		if candidate.AssistanceLevel != "" {
			level := candidate.AssistanceLevel
			offer.AssistanceLevel = &level
		}
		if candidate.LinkOut != "" {
			link := candidate.LinkOut
			offer.LinkOut = &link
		}
		if offer.Coverage == nil {
			offer.Coverage = map[string]any{}
		}
		offers = append(offers, offer)
	}

	if err := s.store.CreateOffers(r.Context(), offers); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]offerRead, 0, len(offers))
	for _, offer := range offers {
		resp = append(resp, mapOffer(offer))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	offerID, err := parseUUID(chi.URLParam(r, "offerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offer_id")
		return
	}

	offer, err := s.store.GetOffer(r.Context(), claims.UserID, offerID)
	if err != nil {
		writeStoreError(w, err, "offer_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapOffer(offer))
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	raw := r.URL.Query().Get("vehicle_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_vehicle_id")
		return
	}
	vehicleID, err := parseUUID(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
		return
	}

	offers, err := s.store.ListOffersByVehicle(r.Context(), claims.UserID, vehicleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]offerRead, 0, len(offers))
	for _, offer := range offers {
		resp = append(resp, mapOffer(offer))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- upload ----

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer file.Close()

	contents, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_file")
		return
	}
	if len(contents) == 0 {
		writeError(w, http.StatusBadRequest, "empty_file")
		return
	}

	writeJSON(w, http.StatusOK, extract.PolicyMetadata(contents, header.Filename))
}

// ---- middleware and helpers ----

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeStoreError maps the store's uniform absent-or-foreign signal to 404.
func writeStoreError(w http.ResponseWriter, err error, notFoundCode string) {
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, notFoundCode)
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// parseUUID canonicalizes an id before it reaches a uuid column; garbage ids
// are a validation failure, not a lookup miss.
func parseUUID(value string) (string, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(value))
}

func parseDatePtr(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := parseDate(*value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func formatDate(value time.Time) string {
	return value.Format(dateLayout)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}
