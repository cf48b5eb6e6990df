package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/confluencr/webhookd/pkg/clock"
	"github.com/confluencr/webhookd/pkg/ingest"
	"github.com/confluencr/webhookd/pkg/money"
	"github.com/confluencr/webhookd/pkg/observability"
	"github.com/confluencr/webhookd/pkg/processor"
	"github.com/confluencr/webhookd/pkg/repository"
	"github.com/confluencr/webhookd/pkg/store"
)

// maxBodyBytes caps a webhook body. Real payloads are a few hundred
// bytes.
const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	svc       *ingest.Service
	proc      *processor.Processor
	repo      *repository.Repository
	obs       *observability.Provider
	clock     clock.Clock
	log       *slog.Logger
	opTimeout time.Duration
}

// ServerOptions wires a Server.
type ServerOptions struct {
	Ingest           *ingest.Service
	Processor        *processor.Processor
	Repository       *repository.Repository
	Observability    *observability.Provider
	Clock            clock.Clock
	Logger           *slog.Logger
	OperationTimeout time.Duration
}

// NewServer builds the HTTP surface. A nil clock means the system clock;
// a nil logger means slog.Default.
func NewServer(opts ServerOptions) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc:       opts.Ingest,
		proc:      opts.Processor,
		repo:      opts.Repository,
		obs:       opts.Observability,
		clock:     clk,
		log:       log.With("component", "api"),
		opTimeout: opts.OperationTimeout,
	}
}

// Handler builds the routed handler with logging and optional rate
// limiting applied.
func (s *Server) Handler(limiter *GlobalRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/webhooks/transactions", s.handleWebhook)
	mux.HandleFunc("GET /v1/transactions/{transaction_id}", s.handleGetTransaction)
	mux.HandleFunc("GET /{$}", s.handleHealth)

	var h http.Handler = mux
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return RequestLogger(s.log)(h)
}

// webhookRequest mirrors the accepted body. Amount handles both JSON
// numbers and quoted decimal strings.
type webhookRequest struct {
	TransactionID      string       `json:"transaction_id"`
	SourceAccount      string       `json:"source_account"`
	DestinationAccount string       `json:"destination_account"`
	Amount             money.Amount `json:"amount"`
	Currency           string       `json:"currency"`
	FailForTesting     bool         `json:"fail_for_testing"`
}

// ackResponse is the 202 acknowledgement body.
type ackResponse struct {
	StatusCode     int     `json:"status_code"`
	Acknowledged   bool    `json:"acknowledged"`
	TransactionID  string  `json:"transaction_id"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	body, err := readAll(w, r)
	if err != nil {
		WriteValidationFailed(w, r, "request body unreadable or too large")
		return
	}

	// Shape check against the embedded schema, then decode. UseNumber
	// keeps amounts textual until money.Parse decides the scale.
	var raw any
	if err := unmarshalUseNumber(body, &raw); err != nil {
		WriteValidationFailed(w, r, "body is not valid JSON")
		return
	}
	if err := webhookSchema.Validate(raw); err != nil {
		WriteValidationFailed(w, r, err.Error())
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteValidationFailed(w, r, err.Error())
		return
	}

	payload := ingest.Payload{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             req.Amount,
		Currency:           req.Currency,
	}.Normalized()
	if err := payload.Validate(); err != nil {
		WriteValidationFailed(w, r, err.Error())
		return
	}

	res, err := s.svc.Ingest(ctx, payload)
	if err != nil {
		var verr *ingest.ValidationError
		switch {
		case errors.As(err, &verr):
			WriteValidationFailed(w, r, verr.Error())
		case errors.Is(err, store.ErrUnavailable):
			s.recordIngest(ctx, "unavailable", start)
			WriteServiceUnavailable(w, r, err)
		default:
			WriteInternal(w, err)
		}
		return
	}

	if res.Outcome == ingest.OutcomeConflictingDuplicate && s.obs != nil {
		s.obs.RecordConflict(ctx)
	}
	s.recordIngest(ctx, res.Outcome.String(), start)

	if res.ShouldSchedule {
		s.proc.Schedule(res.TransactionID, req.FailForTesting)
	}

	elapsed := float64(time.Since(start).Nanoseconds()) / 1e6
	writeJSON(w, http.StatusAccepted, ackResponse{
		StatusCode:     http.StatusAccepted,
		Acknowledged:   true,
		TransactionID:  res.TransactionID,
		ResponseTimeMS: math.Round(elapsed*1000) / 1000,
	})
}

// transactionView is the query-endpoint row shape. Timestamps render in
// the presentation timezone.
type transactionView struct {
	TransactionID      string       `json:"transaction_id"`
	SourceAccount      string       `json:"source_account"`
	DestinationAccount string       `json:"destination_account"`
	Amount             money.Amount `json:"amount"`
	Currency           string       `json:"currency"`
	Status             store.Status `json:"status"`
	CreatedAt          string       `json:"created_at"`
	ProcessedAt        *string      `json:"processed_at"`
}

// handleGetTransaction returns a JSON array: empty when no row exists,
// otherwise a single element. Always 200; the empty array is the
// not-found signal clients depend on.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("transaction_id")

	ctx, cancel := context.WithTimeout(r.Context(), s.opTimeout)
	defer cancel()

	row, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		WriteServiceUnavailable(w, r, err)
		return
	}
	if row == nil {
		writeJSON(w, http.StatusOK, []transactionView{})
		return
	}

	view := transactionView{
		TransactionID:      row.TransactionID,
		SourceAccount:      row.SourceAccount,
		DestinationAccount: row.DestinationAccount,
		Amount:             row.Amount,
		Currency:           row.Currency,
		Status:             row.Status,
		CreatedAt:          formatIST(row.CreatedAt),
	}
	if row.ProcessedAt != nil {
		v := formatIST(*row.ProcessedAt)
		view.ProcessedAt = &v
	}
	writeJSON(w, http.StatusOK, []transactionView{view})
}

// healthResponse is the liveness body.
type healthResponse struct {
	Status      string `json:"status"`
	CurrentTime string `json:"current_time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "HEALTHY",
		CurrentTime: formatIST(s.clock.Now()),
	})
}

func (s *Server) recordIngest(ctx context.Context, outcome string, start time.Time) {
	if s.obs != nil {
		s.obs.RecordIngest(ctx, outcome, time.Since(start))
	}
}

func formatIST(t time.Time) string {
	return clock.InIST(t).Format(time.RFC3339Nano)
}

func readAll(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func unmarshalUseNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
