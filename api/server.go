// Package api provides the HTTP server of the crowdfunding ledger.
// Every ledger operation and query is exposed under /v1.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"crowdfund-ledger/config"
	"crowdfund-ledger/core"
	"crowdfund-ledger/core/model"
	"crowdfund-ledger/store"
)

const (
	// HeaderCaller carries the address an operation is performed as.
	HeaderCaller = "X-Caller"
	// HeaderValue carries the wei value attached to an operation.
	HeaderValue = "X-Value"
)

var errBadRequest = errors.New("bad request")

// Balances reads native account balances, e.g. a chain.Bank.
type Balances interface {
	BalanceOf(addr common.Address) uint256.Int
}

// Server is the ledger HTTP API server.
type Server struct {
	ledger         *core.Ledger
	journal        *store.Journal
	balances       Balances
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(ledger *core.Ledger) *Server {
	return &Server{ledger: ledger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetJournal enables the /v1/events endpoint.
func (s *Server) SetJournal(j *store.Journal) { s.journal = j }

// SetBalances enables the /v1/balances/{addr} endpoint.
func (s *Server) SetBalances(b Balances) { s.balances = b }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config/fees", s.handleSetFees)
		r.Put("/config/ranges", s.handleSetRanges)
		r.Put("/config/market", s.handleSetMarket)
		r.Put("/config/defender", s.handleSetDefender)
		r.Put("/config/admin", s.handleTransferAdmin)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Post("/deactivate", s.projectOp(s.ledger.DeactivateProject))
				r.Post("/suspend", s.projectOp(s.ledger.SuspendProject))
				r.Post("/activate", s.projectOp(s.ledger.ActivateProject))
				r.Post("/unsuccessful", s.projectOp(s.ledger.MarkUnsuccessful))
				r.Post("/invest", s.handleInvest)
				r.Post("/refunds", s.handleRefundInvestment)
				r.Post("/refund/withdraw", s.projectOp(s.ledger.WithdrawRefund))
				r.Post("/claim", s.projectOp(s.ledger.ClaimInvestment))
				r.Post("/repayments", s.projectOp(s.ledger.ProcessRepaymentInstallment))
				r.Post("/repayment/withdraw", s.projectOp(s.ledger.WithdrawRepayment))
				r.Get("/investors", s.handleListInvestors)
				r.Get("/investors/{addr}", s.handleGetInvestor)
			})
		})

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", s.handleListShares)
			r.Route("/{ref}", func(r chi.Router) {
				r.Get("/", s.handleGetListing)
				r.Post("/approve", s.listingOp(s.ledger.ApproveListing))
				r.Post("/reject", s.listingOp(s.ledger.RejectListing))
				r.Post("/buy", s.handleBuyShares)
				r.Post("/withdraw", s.listingOp(s.ledger.WithdrawSaleEarnings))
				r.Post("/revert", s.listingOp(s.ledger.RevertUnsoldListing))
			})
		})

		r.Get("/earnings", s.handlePlatformEarnings)
		r.Post("/earnings/withdraw", s.handleWithdrawEarning)
		r.Get("/refunds/{addr}", s.handleRefundBalance)
		r.Get("/events", s.handleEvents)
		if s.balances != nil {
			r.Get("/balances/{addr}", s.handleBalance)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Operations ─────────────────────────────────────────────────────────────

// commit runs one ledger operation as the request's caller and writes the
// outcome.
func (s *Server) commit(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, msg model.Msg) error) {
	msg, err := callerMsg(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := fn(r.Context(), msg); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"height": s.ledger.Height(),
	})
}

func (s *Server) projectOp(op func(ctx context.Context, msg model.Msg, projectID uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := projectID(r)
		if err != nil {
			writeFailure(w, err)
			return
		}
		s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
			return op(ctx, msg, id)
		})
	}
}

func (s *Server) listingOp(op func(ctx context.Context, msg model.Msg, ref common.Hash) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := model.ListingRef(chi.URLParam(r, "ref"))
		s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
			return op(ctx, msg, ref)
		})
	}
}

type createProjectRequest struct {
	Creator          common.Address `json:"creator"`
	Name             string         `json:"name"`
	DealType         string         `json:"dealType"`
	AvailableShares  uint64         `json:"availableShares"`
	EndDate          uint64         `json:"endDate"`
	MinInvest        string         `json:"minInvest"`
	MaxInvest        string         `json:"maxInvest"`
	RequestedFunding string         `json:"requestedFunding"`
	InterestRate     uint16         `json:"interestRate"`
	TermLength       uint64         `json:"termLength"`
	RepaymentDate    uint64         `json:"repaymentDate"`
	IsFixed          bool           `json:"isFixed"`
	AccreditedOnly   bool           `json:"accreditedOnly"`
	Frequency        string         `json:"frequency"`
}

func (req *createProjectRequest) params() (model.ProjectParams, error) {
	p := model.ProjectParams{
		Creator:         req.Creator,
		Name:            req.Name,
		AvailableShares: req.AvailableShares,
		EndDate:         req.EndDate,
		InterestRate:    req.InterestRate,
		TermLength:      req.TermLength,
		RepaymentDate:   req.RepaymentDate,
		IsFixed:         req.IsFixed,
		AccreditedOnly:  req.AccreditedOnly,
	}
	var err error
	if p.DealType, err = model.ParseDealType(req.DealType); err != nil {
		return p, badRequest(err)
	}
	if req.Frequency != "" {
		if p.Frequency, err = model.ParseFrequency(req.Frequency); err != nil {
			return p, badRequest(err)
		}
	}
	if p.MinInvest, err = parseWei("minInvest", req.MinInvest); err != nil {
		return p, err
	}
	if p.MaxInvest, err = parseWei("maxInvest", req.MaxInvest); err != nil {
		return p, err
	}
	if p.RequestedFunding, err = parseWei("requestedFunding", req.RequestedFunding); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeFailure(w, err)
		return
	}
	msg, err := callerMsg(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	id, err := s.ledger.CreateProject(r.Context(), msg, params)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"height": s.ledger.Height(),
	})
}

type investRequest struct {
	Shares             uint64 `json:"shares"`
	IsAccredited       bool   `json:"isAccredited"`
	SignatureTimestamp uint64 `json:"signatureTimestamp"`
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req investRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.Invest(ctx, msg, id, req.Shares, req.IsAccredited, req.SignatureTimestamp)
	})
}

type refundRequest struct {
	Investor common.Address `json:"investor"`
	Amount   string         `json:"amount"`
}

func (s *Server) handleRefundInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req refundRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseWei("amount", req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.RefundInvestment(ctx, msg, id, req.Investor, amount)
	})
}

type listSharesRequest struct {
	Ref       string `json:"ref"`
	ProjectID uint64 `json:"projectId"`
	Count     uint64 `json:"count"`
	Price     string `json:"price"`
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	var req listSharesRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Ref == "" {
		writeFailure(w, badRequest(errors.New("ref is required")))
		return
	}
	price, err := parseWei("price", req.Price)
	if err != nil {
		writeFailure(w, err)
		return
	}
	ref := model.ListingRef(req.Ref)
	msg, err := callerMsg(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.ledger.ListShares(r.Context(), msg, ref, req.Count, price, req.ProjectID); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ref":    ref,
		"height": s.ledger.Height(),
	})
}

type buyRequest struct {
	Quantity uint64 `json:"quantity"`
}

func (s *Server) handleBuyShares(w http.ResponseWriter, r *http.Request) {
	ref := model.ListingRef(chi.URLParam(r, "ref"))
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.BuyShares(ctx, msg, ref, req.Quantity)
	})
}

func (s *Server) handleWithdrawEarning(w http.ResponseWriter, r *http.Request) {
	s.commit(w, r, s.ledger.WithdrawEarning)
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	var req config.FeesConfig
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	fees, err := req.Model()
	if err != nil {
		writeFailure(w, badRequest(err))
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.SetFees(ctx, msg, fees)
	})
}

func (s *Server) handleSetRanges(w http.ResponseWriter, r *http.Request) {
	var req config.RangesConfig
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	ranges, err := req.Model()
	if err != nil {
		writeFailure(w, badRequest(err))
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.SetRanges(ctx, msg, ranges)
	})
}

func (s *Server) handleSetMarket(w http.ResponseWriter, r *http.Request) {
	var req config.MarketConfig
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.SetMarket(ctx, msg, req.Model())
	})
}

type addressRequest struct {
	Address common.Address `json:"address"`
}

func (s *Server) handleSetDefender(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.SetDefender(ctx, msg, req.Address)
	})
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s.commit(w, r, func(ctx context.Context, msg model.Msg) error {
		return s.ledger.TransferAdmin(ctx, msg, req.Address)
	})
}

// ─── Queries ────────────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	custody := s.ledger.Custody()
	platform := s.ledger.PlatformEarnings()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height":           s.ledger.Height(),
		"projectCount":     s.ledger.ProjectCount(),
		"custody":          model.FormatWei(&custody),
		"platformEarnings": model.FormatWei(&platform),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.FromLedger(s.ledger.Config()))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	n := s.ledger.ProjectCount()
	projects := make([]projectView, 0, n)
	for id := uint64(1); id <= n; id++ {
		p, err := s.ledger.Project(id)
		if err != nil {
			continue
		}
		projects = append(projects, newProjectView(&p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	p, err := s.ledger.Project(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectView(&p))
}

func (s *Server) handleListInvestors(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	investors, err := s.ledger.Investors(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	views := make([]investorView, len(investors))
	for i := range investors {
		views[i] = newInvestorView(&investors[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"investors": views})
}

func (s *Server) handleGetInvestor(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	pos, err := s.ledger.Investor(id, addr)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(&pos))
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	ref := model.ListingRef(chi.URLParam(r, "ref"))
	l, err := s.ledger.Listing(ref)
	if err != nil {
		writeFailure(w, err)
		return
	}
	earnings := s.ledger.SellerEarnings(ref)
	writeJSON(w, http.StatusOK, newListingView(&l, &earnings))
}

func (s *Server) handlePlatformEarnings(w http.ResponseWriter, r *http.Request) {
	earnings := s.ledger.PlatformEarnings()
	writeJSON(w, http.StatusOK, map[string]string{"earnings": model.FormatWei(&earnings)})
}

func (s *Server) handleRefundBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	balance := s.ledger.RefundBalance(addr)
	writeJSON(w, http.StatusOK, map[string]string{"balance": model.FormatWei(&balance)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	balance := s.balances.BalanceOf(addr)
	writeJSON(w, http.StatusOK, map[string]string{"balance": model.FormatWei(&balance)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "event journal is disabled")
		return
	}
	q := r.URL.Query()
	f := store.Filter{Op: q.Get("op"), Event: q.Get("event")}
	var err error
	if f.FromHeight, err = queryUint(q.Get("from")); err != nil {
		writeFailure(w, err)
		return
	}
	if f.ToHeight, err = queryUint(q.Get("to")); err != nil {
		writeFailure(w, err)
		return
	}
	limit, err := queryUint(q.Get("limit"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	f.Limit = int(limit)

	entries, err := s.journal.List(r.Context(), f)
	if err != nil {
		logrus.Errorf("list journal err: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read event journal")
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

func callerMsg(r *http.Request) (model.Msg, error) {
	sender, err := parseAddress(r.Header.Get(HeaderCaller))
	if err != nil {
		return model.Msg{}, badRequest(fmt.Errorf("%s: %w", HeaderCaller, err))
	}
	value, err := parseWei(HeaderValue, r.Header.Get(HeaderValue))
	if err != nil {
		return model.Msg{}, err
	}
	return model.Msg{Sender: sender, Value: value}, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, badRequest(fmt.Errorf("invalid address %q", s))
	}
	return common.HexToAddress(s), nil
}

func parseWei(field, s string) (*uint256.Int, error) {
	v, err := model.ParseWei(s)
	if err != nil {
		return nil, badRequest(fmt.Errorf("%s: %w", field, err))
	}
	return v, nil
}

func projectID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, badRequest(fmt.Errorf("invalid project id %q", chi.URLParam(r, "id")))
	}
	return id, nil
}

func queryUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, badRequest(err)
	}
	return v, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(err)
	}
	return nil
}

// statusCode maps a ledger error to its HTTP status.
func statusCode(err error) int {
	var (
		goalErr   *core.InvalidRequestedGoalAmountError
		amountErr *core.InvestmentAmountError
		accErr    *core.NotAccreditedInvestorError
		payErr    *core.InsufficientPaymentError
		feeErr    *core.FeeExceedsAmountError
	)
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrProjectNotFound), errors.Is(err, core.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrNotCreator),
		errors.Is(err, core.ErrNotSeller), errors.Is(err, core.ErrNotInvestor):
		return http.StatusForbidden
	case errors.Is(err, core.ErrReentrantCall), errors.Is(err, core.ErrSettlement):
		return http.StatusConflict
	case errors.As(err, &goalErr), errors.As(err, &amountErr), errors.As(err, &accErr),
		errors.As(err, &payErr), errors.As(err, &feeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	}
	for _, sentinel := range preconditionErrors {
		if errors.Is(err, sentinel) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

var preconditionErrors = []error{
	core.ErrInvalidConfig,
	core.ErrInvalidCreator, core.ErrInvalidName, core.ErrInvalidInvestRange, core.ErrInvalidEndDate,
	core.ErrInvalidInterestRate, core.ErrInvalidTermLength, core.ErrInvalidRepaymentDate,
	core.ErrInvalidShareCount, core.ErrInvalidStatusTransition,
	core.ErrProjectNotActive, core.ErrFundingClosed, core.ErrCreatorCannotInvest,
	core.ErrInvalidRefundAmount, core.ErrRefundUnavailable, core.ErrNothingToWithdraw,
	core.ErrClaimNotAllowed, core.ErrAlreadyClaimed, core.ErrNotClaimed, core.ErrNotDebtProject,
	core.ErrRepaymentNotDue, core.ErrNoRemainingRepayment,
	core.ErrNotEquityProject, core.ErrProjectNotSuccessful, core.ErrListingExists, core.ErrInvalidListing, core.ErrInsufficientShares,
	core.ErrListingNotApproved, core.ErrListingNotSettled, core.ErrListingHasSales,
	core.ErrCreatorCannotBuy, core.ErrInvalidQuantity, core.ErrRevertTooEarly,
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusCode(err)
	if status == http.StatusInternalServerError {
		logrus.Errorf("request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"status":  status,
		},
	})
}
