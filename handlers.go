package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-utility/auth"
	"go-utility/config"
	"go-utility/controller"
	"go-utility/metrics"
	"go-utility/models"
	"go-utility/store"
)

const sessionKey = "session"

var errForbidden = errors.New("forbidden")

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type BillRequest struct {
	ServiceType      string   `json:"serviceType"`
	MeterMeasurement *float64 `json:"meterMeasurement"`
	Date             string   `json:"date"`
}

type EditBillRequest struct {
	MeterMeasurement *float64 `json:"meterMeasurement"`
}

type ChargesRequest struct {
	UnitCharge    *float64 `json:"unitCharge"`
	ServiceCharge *float64 `json:"serviceCharge"`
}

type PriceRequest struct {
	Price *float64 `json:"price"`
}

type CustomerResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Customer  *CustomerResponse `json:"customer,omitempty"`
}

type ServiceResponse struct {
	ServiceType   models.ServiceType `json:"serviceType"`
	UnitCharge    float64            `json:"unitCharge"`
	ServiceCharge float64            `json:"serviceCharge"`
}

type BillsResponse struct {
	Bills []models.UtilityBill `json:"bills"`
	Total float64              `json:"total"`
}

type TotalsResponse struct {
	Total         float64                        `json:"total"`
	ByServiceType map[models.ServiceType]float64 `json:"byServiceType"`
}

// Handlers serves the JSON API on top of the controllers.
type Handlers struct {
	customers *controller.CustomerController
	services  *controller.ServiceController
	staff     *controller.StaffController
	sessions  *auth.Manager
	admin     config.AdminConfig
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewHandlers(
	cfg *config.Config,
	customers *controller.CustomerController,
	services *controller.ServiceController,
	staff *controller.StaffController,
	sessions *auth.Manager,
	m *metrics.Metrics,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		customers: customers,
		services:  services,
		staff:     staff,
		sessions:  sessions,
		admin:     cfg.Admin,
		metrics:   m,
		log:       log.Named("http"),
	}
}

func (h *Handlers) registerCustomer(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Invalid request body"}})
		return
	}

	cust, err := h.customers.RegisterNewUser(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCustomerResponse(cust))
}

func (h *Handlers) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Invalid request body"}})
		return
	}

	cust, err := h.customers.LoadCustomer(req.Username, req.Password)
	if err != nil {
		h.metrics.Login(string(auth.RoleCustomer), metrics.LoginFailed)
		h.fail(c, err)
		return
	}
	h.metrics.Login(string(auth.RoleCustomer), metrics.LoginSucceeded)

	session := h.sessions.Issue(cust.Username, auth.RoleCustomer)
	c.JSON(http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Customer:  toCustomerResponse(cust),
	})
}

func (h *Handlers) adminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Invalid request body"}})
		return
	}

	if req.Username != h.admin.Username || req.Password != h.admin.Password {
		h.metrics.Login(string(auth.RoleAdmin), metrics.LoginFailed)
		h.fail(c, models.ErrInvalidCredentials)
		return
	}
	h.metrics.Login(string(auth.RoleAdmin), metrics.LoginSucceeded)

	session := h.sessions.Issue(req.Username, auth.RoleAdmin)
	c.JSON(http.StatusOK, LoginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (h *Handlers) logout(c *gin.Context) {
	h.sessions.Revoke(c.MustGet(sessionKey).(auth.Session).Token)
	c.Status(http.StatusNoContent)
}

func (h *Handlers) getCustomer(c *gin.Context) {
	cust, err := h.customers.GetCustomerByUsername(c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}

func (h *Handlers) listBills(c *gin.Context) {
	bills, err := h.customers.Bills(c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, billsResponse(bills))
}

func (h *Handlers) addBill(c *gin.Context) {
	var req BillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Invalid request body"}})
		return
	}

	var problems []string
	t, err := models.ParseServiceType(req.ServiceType)
	if err != nil {
		problems = append(problems, "Service type must be one of ELECTRICITY, GAS or WATER")
	}
	if req.MeterMeasurement == nil {
		problems = append(problems, "Meter measurement is required")
	}
	if len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": problems})
		return
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}

	bill, err := h.customers.AddBill(c.Request.Context(), c.Param("username"), t, *req.MeterMeasurement, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.BillCreated(bill.ServiceType.String())
	c.JSON(http.StatusCreated, bill)
}

func (h *Handlers) editBill(c *gin.Context) {
	id, ok := billID(c)
	if !ok {
		return
	}
	var req EditBillRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MeterMeasurement == nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Meter measurement is required"}})
		return
	}

	bill, err := h.customers.EditBill(c.Request.Context(), c.Param("username"), id, *req.MeterMeasurement)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (h *Handlers) deleteBill(c *gin.Context) {
	id, ok := billID(c)
	if !ok {
		return
	}
	removed, err := h.customers.DeleteBill(c.Request.Context(), c.Param("username"), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if removed {
		h.metrics.BillDeleted()
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) listServices(c *gin.Context) {
	rates := h.services.Rates()
	out := make([]ServiceResponse, 0, len(rates))
	for _, t := range models.Values() {
		out = append(out, ServiceResponse{
			ServiceType:   t,
			UnitCharge:    rates[t].UnitCharge,
			ServiceCharge: rates[t].ServiceCharge,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) getService(c *gin.Context) {
	t, err := models.ParseServiceType(c.Param("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.serviceResponse(t))
}

func (h *Handlers) updateService(c *gin.Context) {
	t, err := models.ParseServiceType(c.Param("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req ChargesRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.UnitCharge == nil && req.ServiceCharge == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Provide unitCharge, serviceCharge or both"}})
		return
	}

	if err := h.services.UpdateCharges(c.Request.Context(), t, req.UnitCharge, req.ServiceCharge); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.RateUpdated(t.String())
	c.JSON(http.StatusOK, h.serviceResponse(t))
}

func (h *Handlers) viewBills(c *gin.Context) {
	var bills []models.UtilityBill
	if query, ok := c.GetQuery("username"); ok {
		bills = h.staff.ViewUserBills(query)
	} else {
		bills = h.staff.ViewAllBills()
	}
	c.JSON(http.StatusOK, billsResponse(bills))
}

func (h *Handlers) billTotals(c *gin.Context) {
	c.JSON(http.StatusOK, TotalsResponse{
		Total:         h.staff.CalculateTotalPrice(),
		ByServiceType: h.staff.TotalsByServiceType(),
	})
}

func (h *Handlers) overridePrice(c *gin.Context) {
	id, ok := billID(c)
	if !ok {
		return
	}
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Price == nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Price is required"}})
		return
	}

	bill, err := h.staff.OverridePrice(c.Request.Context(), id, *req.Price)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (h *Handlers) listCustomers(c *gin.Context) {
	customers := h.customers.Customers()
	out := make([]*CustomerResponse, 0, len(customers))
	for _, cust := range customers {
		out = append(out, toCustomerResponse(cust))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) removeCustomer(c *gin.Context) {
	username := c.Param("username")
	if err := h.customers.RemoveCustomer(c.Request.Context(), username); err != nil {
		h.fail(c, err)
		return
	}
	h.sessions.RevokeSubject(username)
	c.Status(http.StatusNoContent)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// requireSession rejects requests without a valid bearer token.
func (h *Handlers) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			h.fail(c, auth.ErrInvalidToken)
			c.Abort()
			return
		}
		session, err := h.sessions.Validate(strings.TrimSpace(token))
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// requireOwner lets through the customer named in the path and admins.
func (h *Handlers) requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := c.MustGet(sessionKey).(auth.Session)
		if session.Role != auth.RoleAdmin && session.Subject != c.Param("username") {
			h.fail(c, errForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handlers) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.MustGet(sessionKey).(auth.Session).Role != auth.RoleAdmin {
			h.fail(c, errForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// fail writes the response for err and records it for the request log.
func (h *Handlers) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var verr *controller.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Problems})
	case errors.Is(err, models.ErrBillNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Bill not found"})
	case errors.Is(err, models.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
	case errors.Is(err, models.ErrDuplicateIdentity):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, models.ErrUnknownServiceType),
		errors.Is(err, models.ErrInvalidCharge),
		errors.Is(err, models.ErrInvalidMeasurement),
		errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{err.Error()}})
	case errors.Is(err, store.ErrPersistence):
		h.log.Error("Failed to persist change", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save changes"})
	default:
		h.log.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (h *Handlers) serviceResponse(t models.ServiceType) ServiceResponse {
	r := h.services.Rates()[t]
	return ServiceResponse{ServiceType: t, UnitCharge: r.UnitCharge, ServiceCharge: r.ServiceCharge}
}

func billID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("billId"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Bill ID must be a positive integer"}})
		return 0, false
	}
	return id, true
}

func billsResponse(bills []models.UtilityBill) BillsResponse {
	if bills == nil {
		bills = []models.UtilityBill{}
	}
	return BillsResponse{Bills: bills, Total: models.SumPrices(bills)}
}

func toCustomerResponse(cust *models.Customer) *CustomerResponse {
	return &CustomerResponse{Username: cust.Username, Email: cust.Email}
}
