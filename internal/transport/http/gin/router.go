package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gigaloka/loket-go/internal/auth"
	"github.com/gigaloka/loket-go/internal/domain"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
	"github.com/gigaloka/loket-go/internal/service"
	"github.com/gigaloka/loket-go/internal/service/admin"
	"github.com/gigaloka/loket-go/internal/service/checkout"
	"github.com/gigaloka/loket-go/internal/service/promotions"
	"github.com/gigaloka/loket-go/internal/service/query"
	"github.com/gigaloka/loket-go/internal/service/transactions"
)

func NewRouter(
	svcs *service.Services,
	verifier *auth.Verifier,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))
	r.GET("/events/:id/promotions/validate", handleValidatePromotion(svcs))

	// Authenticated API
	authed := r.Group("/", AuthRequired(verifier))
	{
		authed.POST("/transactions", handleCheckout(svcs, idem))
		authed.GET("/transactions", handleListTransactions(svcs))
		authed.GET("/transactions/:id", handleGetTransaction(svcs))
		authed.POST("/transactions/:id/proof", handleSubmitProof(svcs))
		authed.POST("/transactions/:id/cancel", handleCancelTransaction(svcs))
	}

	// Admin API
	adm := r.Group("/admin", AuthRequired(verifier), RequireAdmin())
	{
		adm.POST("/events", handleCreateEvent(svcs))
		adm.POST("/promotions", handleCreatePromotion(svcs))
		adm.GET("/events/:id/promotions", handleListPromotions(svcs))
		adm.POST("/transactions/:id/status", handleSetStatus(svcs))
		adm.POST("/sweep", handleSweep(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List events
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}  domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		events, err := svcs.Query.ListEvents(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, events, "public, max-age=60", true)
	}
}

// @Summary  Get event with ticket tiers
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  query.EventSummary
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		sum, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, sum, "public, max-age=60", true)
	}
}

// @Summary  Get seat availability
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  domain.EventAvailability
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		av, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 5s, counters go stale fast
		writeJSONWithCache(c, http.StatusOK, av, "public, max-age=5", true)
	}
}

// @Summary  Validate a voucher code
// @Param    id       path   string  true  "Event ID (uuid)"
// @Param    code     query  string  true  "voucher code"
// @Param    subtotal query  int     false "cart subtotal"
// @Success  200  {object}  promotions.Quote
// @Failure  404  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse "inactive or expired"
// @Router   /events/{id}/promotions/validate [get]
func handleValidatePromotion(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		code := c.Query("code")
		if code == "" {
			badRequest(c, "missing code")
			return
		}
		subtotal := int64(parseIntDefault(c.Query("subtotal"), 0))

		q, err := svcs.Promotions.Validate(c.Request.Context(), eventID, code, subtotal)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	}
}

// @Summary  Checkout (idempotent)
// @Param    req body  CheckoutRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} TransactionResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "event not found"
// @Failure  409 {object} ErrorResponse "insufficient stock, shortfalls in details"
// @Failure  422 {object} ErrorResponse "voucher invalid"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Security BearerAuth
// @Router   /transactions [post]
func handleCheckout(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)

		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		eventID, err := uuid.Parse(req.EventID)
		if err != nil {
			badRequest(c, "invalid event_id")
			return
		}

		items := make([]checkout.ItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			tierID, err := uuid.Parse(it.TierID)
			if err != nil {
				badRequest(c, "invalid tier_id")
				return
			}
			items = append(items, checkout.ItemInput{TierID: tierID, Quantity: it.Quantity})
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCheckout(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		rlKey := "user:" + claims.UserID.String()

		txn, err := svcs.Checkout.Checkout(
			c.Request.Context(),
			claims.UserID,
			eventID,
			items,
			req.VoucherCode,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if isRateLimitedErr(err) {
				c.Header("Retry-After", "60")
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
				return
			}
			respondErr(c, err)
			return
		}

		resp := toTransactionResponse(txn.Transaction, txn.Items)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  List own transactions
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}  TransactionResponse
// @Security BearerAuth
// @Router   /transactions [get]
func handleListTransactions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		list, err := svcs.Transactions.ListByUser(c.Request.Context(), claims.UserID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]TransactionResponse, 0, len(list))
		for _, t := range list {
			out = append(out, toTransactionResponse(t, nil))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get own transaction with items
// @Param    id  path  string  true  "Transaction ID (uuid)"
// @Success  200  {object}  TransactionResponse
// @Failure  403  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /transactions/{id} [get]
func handleGetTransaction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		txID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		t, err := svcs.Transactions.Get(c.Request.Context(), claims.UserID, claims.Role, txID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTransactionResponse(t.Transaction, t.Items))
	}
}

// @Summary  Submit payment proof
// @Param    id  path  string  true  "Transaction ID (uuid)"
// @Param    req body  SubmitProofRequest true "payload"
// @Success  200 {object} TransactionResponse
// @Failure  400 {object} ErrorResponse "bad proof url"
// @Failure  409 {object} ErrorResponse "wrong state or seats gone"
// @Security BearerAuth
// @Router   /transactions/{id}/proof [post]
func handleSubmitProof(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		txID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req SubmitProofRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		t, err := svcs.Transactions.SubmitProof(c.Request.Context(), claims.UserID, txID, req.ProofURL)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTransactionResponse(*t, nil))
	}
}

// @Summary  Cancel transaction
// @Param    id  path  string  true  "Transaction ID (uuid)"
// @Success  200 {object} TransactionResponse
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Security BearerAuth
// @Router   /transactions/{id}/cancel [post]
func handleCancelTransaction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		txID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		t, err := svcs.Transactions.Cancel(c.Request.Context(), claims.UserID, claims.Role, txID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTransactionResponse(*t, nil))
	}
}

// @Summary  Create event with ticket tiers
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} EventResponse
// @Security BearerAuth
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}

		in := admin.CreateEventInput{
			Title:       req.Title,
			Description: req.Description,
			StartsAt:    starts,
			EndsAt:      ends,
			Location:    req.Location,
			Venue:       req.Venue,
			BasePrice:   req.BasePrice,
			ImageURL:    req.ImageURL,
		}
		for _, t := range req.Tiers {
			in.Tiers = append(in.Tiers, admin.TierInput{
				Name:      t.Name,
				UnitPrice: t.UnitPrice,
				Seats:     t.Seats,
			})
		}

		event, tiers, err := svcs.Admin.CreateEventWithTiers(c.Request.Context(), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, EventResponse{Event: *event, Tiers: tiers})
	}
}

// @Summary  Create promotion
// @Param    req body  CreatePromotionRequest true "payload"
// @Success  201 {object} domain.Promotion
// @Failure  409 {object} ErrorResponse "duplicate code"
// @Security BearerAuth
// @Router   /admin/promotions [post]
func handleCreatePromotion(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePromotionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		eventID, err := uuid.Parse(req.EventID)
		if err != nil {
			badRequest(c, "invalid event_id")
			return
		}
		start, err := parseDate(req.StartDate)
		if err != nil {
			badRequest(c, "invalid start_date")
			return
		}
		end, err := parseDate(req.EndDate)
		if err != nil {
			badRequest(c, "invalid end_date")
			return
		}

		p, err := svcs.Promotions.Create(c.Request.Context(), promotions.CreateInput{
			EventID:       eventID,
			Code:          req.Code,
			DiscountType:  domain.DiscountType(req.DiscountType),
			DiscountValue: req.DiscountValue,
			StartDate:     start,
			EndDate:       end,
			Status:        domain.PromotionStatus(req.Status),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// @Summary  List event promotions
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200 {array} domain.Promotion
// @Security BearerAuth
// @Router   /admin/events/{id}/promotions [get]
func handleListPromotions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Promotions.ListByEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Set transaction status
// @Param    id  path  string  true  "Transaction ID (uuid)"
// @Param    req body  SetStatusRequest true "payload"
// @Success  200 {object} TransactionResponse
// @Failure  409 {object} ErrorResponse "transition not allowed or seats gone"
// @Security BearerAuth
// @Router   /admin/transactions/{id}/status [post]
func handleSetStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		txID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req SetStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		t, err := svcs.Transactions.SetStatus(
			c.Request.Context(),
			claims.Role,
			txID,
			domain.TransactionStatus(req.Status),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTransactionResponse(*t, nil))
	}
}

// @Summary  Run the expiry sweep now
// @Success  200 {object} sweeper.Result
// @Security BearerAuth
// @Router   /admin/sweep [post]
func handleSweep(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Sweeper.Sweep(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func isRateLimitedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "rate limited")
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var insufficient *checkout.InsufficientStockError
	var unknownTiers *checkout.UnknownTiersError
	var badQty *checkout.InvalidQuantityError
	var badTransition *transactions.InvalidStateTransitionError

	switch {
	// checkout service
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "insufficient stock",
			Details: insufficient.Shortfalls,
		})
		return
	case errors.As(err, &unknownTiers):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unknown ticket tiers for event",
			Details: unknownTiers.TierIDs,
		})
		return
	case errors.As(err, &badQty):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: badQty.Error()})
		return
	case errors.Is(err, checkout.ErrNoItems):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no items"})
		return
	case errors.Is(err, checkout.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, checkout.ErrVoucherNotFound):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "voucher not found"})
		return
	case errors.Is(err, checkout.ErrVoucherInactive):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "voucher is inactive"})
		return
	case errors.Is(err, checkout.ErrVoucherExpired):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "voucher is expired"})
		return
	// transactions service
	case errors.As(err, &badTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: badTransition.Error()})
		return
	case errors.Is(err, transactions.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "transaction not found"})
		return
	case errors.Is(err, transactions.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return
	case errors.Is(err, transactions.ErrInvalidProofURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid proof url"})
		return
	case errors.Is(err, transactions.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
		return
	case errors.Is(err, transactions.ErrSeatsUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats no longer available"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	// promotions service
	case errors.Is(err, promotions.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, promotions.ErrDuplicateCode):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "promotion code already exists"})
		return
	case errors.Is(err, promotions.ErrInvalidPromotion):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid promotion"})
		return
	case errors.Is(err, promotions.ErrVoucherNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "voucher not found"})
		return
	case errors.Is(err, promotions.ErrVoucherInactive):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "voucher is inactive"})
		return
	case errors.Is(err, promotions.ErrVoucherExpired):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "voucher is expired"})
		return
	// admin service
	case errors.Is(err, admin.ErrNoTiers):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "event needs at least one ticket tier"})
		return
	case errors.Is(err, admin.ErrInvalidTier):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ticket tier"})
		return
	case errors.Is(err, admin.ErrInvalidSchedule):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "event must end after it starts"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
