// Package server exposes the read API over HTTP/JSON alongside a gRPC
// endpoint carrying the standard health and reflection services for probes
// and grpcurl.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"MarginCore/internal/ingestion"
	"MarginCore/internal/observability"
	"MarginCore/internal/projection"
	"MarginCore/internal/query"
	"MarginCore/internal/state"
)

// Server wraps the gRPC health endpoint and the HTTP/JSON API.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	grpcAddr     string
	httpAddr     string
}

// Deps holds everything the API handlers need.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	Inject        *ingestion.AdminInjectService
	Funding       *projection.FundingHistory
	HealthChecker *observability.HealthChecker
	StartTime     time.Time
}

// NewServer builds both servers with all routes registered.
func NewServer(grpcAddr, httpAddr string, deps *Deps) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	s := &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
	}
	s.httpServer = &http.Server{
		Addr:    httpAddr,
		Handler: buildMux(deps),
	}
	return s
}

// SetServing flips the gRPC health status, mirroring the readiness checker.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP API (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildMux(deps *Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	if deps.HealthChecker != nil {
		mux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	}

	qs := deps.QueryService

	mux.HandleFunc("GET /v1/accounts/{id}/balances", func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathAccount(w, r)
		if !ok {
			return
		}
		balances, err := qs.GetBalances(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, map[string]interface{}{"balances": balances})
	})

	mux.HandleFunc("GET /v1/accounts/{id}/positions", func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathAccount(w, r)
		if !ok {
			return
		}
		positions, err := qs.GetPositions(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, map[string]interface{}{"positions": positions})
	})

	mux.HandleFunc("GET /v1/accounts/{id}/margin", func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathAccount(w, r)
		if !ok {
			return
		}
		margin, err := qs.GetMarginSnapshot(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, margin)
	})

	mux.HandleFunc("GET /v1/accounts/{id}/journals", func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathAccount(w, r)
		if !ok {
			return
		}
		limit := queryLimit(r, 100, 500)
		var afterSeq *int64
		if v := r.URL.Query().Get("after_sequence"); v != "" {
			seq, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid after_sequence: %w", err))
				return
			}
			afterSeq = &seq
		}
		entries, err := qs.GetJournalHistory(r.Context(), accountID, limit, afterSeq)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"journals": entries})
	})

	mux.HandleFunc("GET /v1/accounts/{id}/liquidations", func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathAccount(w, r)
		if !ok {
			return
		}
		entries, err := qs.GetLiquidationHistory(r.Context(), accountID, queryLimit(r, 50, 200))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"liquidations": entries})
	})

	mux.HandleFunc("GET /v1/markets/{market}/funding", func(w http.ResponseWriter, r *http.Request) {
		if deps.Funding == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("funding history not enabled"))
			return
		}
		marketNum, err := strconv.ParseUint(r.PathValue("market"), 10, 16)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid market: %w", err))
			return
		}
		entries := deps.Funding.QueryByMarket(state.PerpMarketIndex(marketNum), queryLimit(r, 50, 200))
		writeJSON(w, map[string]interface{}{"funding": entries})
	})

	mux.HandleFunc("GET /v1/integrity", func(w http.ResponseWriter, r *http.Request) {
		report, err := qs.VerifyIntegrity(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, report)
	})

	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"state":          "ready",
			"uptime_seconds": int64(time.Since(deps.StartTime).Seconds()),
		})
	})

	mux.HandleFunc("POST /admin/rebuild-projections", func(w http.ResponseWriter, r *http.Request) {
		if err := projection.RebuildProjections(r.Context(), deps.DB); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"rebuilt": true})
	})

	if deps.Inject != nil {
		registerInjectRoutes(mux, deps.Inject)
	}

	return mux
}

type injectTransferRequest struct {
	AccountID    string `json:"account_id"`
	Asset        uint16 `json:"asset"`
	AmountMicros int64  `json:"amount_micros"`
	AllowBorrow  bool   `json:"allow_borrow"`
}

type injectPriceRequest struct {
	OracleID    string `json:"oracle_id"`
	PriceMicros int64  `json:"price_micros"`
}

type injectFundingRequest struct {
	Market           uint16 `json:"market"`
	EpochID          int64  `json:"epoch_id"`
	LongDeltaMicros  int64  `json:"long_delta_micros"`
	ShortDeltaMicros int64  `json:"short_delta_micros"`
}

func registerInjectRoutes(mux *http.ServeMux, inject *ingestion.AdminInjectService) {
	mux.HandleFunc("POST /admin/inject/deposit", func(w http.ResponseWriter, r *http.Request) {
		var req injectTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account_id: %w", err))
			return
		}
		if err := inject.InjectDeposit(r.Context(), accountID, req.Asset, req.AmountMicros); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"accepted": true})
	})

	mux.HandleFunc("POST /admin/inject/withdrawal", func(w http.ResponseWriter, r *http.Request) {
		var req injectTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account_id: %w", err))
			return
		}
		if err := inject.InjectWithdrawal(r.Context(), accountID, req.Asset, req.AmountMicros, req.AllowBorrow); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"accepted": true})
	})

	mux.HandleFunc("POST /admin/inject/price", func(w http.ResponseWriter, r *http.Request) {
		var req injectPriceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := inject.InjectPrice(r.Context(), req.OracleID, req.PriceMicros); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"accepted": true})
	})

	mux.HandleFunc("POST /admin/inject/funding", func(w http.ResponseWriter, r *http.Request) {
		var req injectFundingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := inject.InjectFunding(r.Context(), req.Market, req.EpochID, req.LongDeltaMicros, req.ShortDeltaMicros); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, map[string]interface{}{"accepted": true})
	})
}

func pathAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account id: %w", err))
		return uuid.Nil, false
	}
	return accountID, true
}

func queryLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
