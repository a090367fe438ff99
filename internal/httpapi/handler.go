package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/service/intake"
)

// Handler — HTTP-интерфейс сервиса: checkout гостей и операции персонала.
type Handler struct {
	intake   *intake.OrderIntake
	orders   domain.OrderRepository
	tables   domain.TableRepository
	catalog  domain.MenuCatalog
	validate *validator.Validate
	logger   *log.Entry
	baseURL  string
}

// Option настраивает Handler.
type Option func(*Handler)

// WithTables подключает операции со столами зала.
func WithTables(tables domain.TableRepository) Option {
	return func(h *Handler) {
		h.tables = tables
	}
}

// WithMenuCatalog подключает чтение остатков стока.
func WithMenuCatalog(catalog domain.MenuCatalog) Option {
	return func(h *Handler) {
		h.catalog = catalog
	}
}

// WithBaseURL задаёт базовый URL для QR-ссылок столов.
func WithBaseURL(baseURL string) Option {
	return func(h *Handler) {
		h.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewHandler создаёт HTTP-обработчик.
func NewHandler(orderIntake *intake.OrderIntake, orders domain.OrderRepository, logger *log.Entry, options ...Option) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	h := &Handler{
		intake:   orderIntake,
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
		baseURL:  "http://localhost:8080",
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Router собирает маршруты API.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/orders", h.submitOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{order_id}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{order_id}/status", h.updateOrderStatus).Methods(http.MethodPatch)

	if h.catalog != nil {
		api.HandleFunc("/stock", h.getStock).Methods(http.MethodGet)
	}
	if h.tables != nil {
		api.HandleFunc("/tables", h.listTables).Methods(http.MethodGet)
		api.HandleFunc("/tables", h.addTable).Methods(http.MethodPost)
		api.HandleFunc("/tables/{table_id}", h.deleteTable).Methods(http.MethodDelete)
	}

	return router
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var payload checkoutPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	order, err := h.intake.Submit(r.Context(), payload.toDomain())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderView(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	orders, err := h.orders.List(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["order_id"]

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["order_id"]

	var payload statusUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, domain.OrderStatus(payload.Status)); err != nil {
		h.writeDomainError(w, err)
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	records, err := h.catalog.GetStock(r.Context(), strings.Split(raw, ","))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.tables.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	views := make([]tableView, 0, len(tables))
	for _, table := range tables {
		views = append(views, toTableView(table))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) addTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.tables.Add(r.Context(), h.baseURL)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTableView(table))
}

func (h *Handler) deleteTable(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["table_id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "table id must be an integer")
		return
	}

	if err := h.tables.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
	Item  string `json:"item,omitempty"`
}

// writeDomainError переводит таксономию ошибок домена в HTTP-статусы:
// невалидный ввод — 400, бизнес-отказы — 409, rate limit — 429,
// транзиентный сбой хранилища — 503, остальное — 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	if item, ok := domain.IsInsufficientStock(err); ok {
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Item: item})
		return
	}

	switch {
	case domain.IsRateLimited(err):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrTableNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case isValidationError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsRetryable(err):
		h.logger.WithError(err).Error("transient storage failure")
		h.writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		h.logger.WithError(err).Error("request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrCustomerNameRequired,
		domain.ErrContactNumberRequired,
		domain.ErrLinesRequired,
		domain.ErrLineQtyInvalid,
		domain.ErrLinePriceInvalid,
		domain.ErrSubtotalMismatch,
		domain.ErrTotalMismatch,
		domain.ErrTotalNegative,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func validationMessage(err error) string {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return "invalid request"
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return "invalid field " + first.Field()
	}
	return err.Error()
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}
