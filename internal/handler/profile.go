package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/scan-rewards/internal/model"
	"github.com/iliyamo/scan-rewards/internal/repository"
	"github.com/iliyamo/scan-rewards/internal/service"
)

const (
	defaultTxLimit = 20
	maxTxLimit     = 100
)

// ProfileHandler serves the member's own profile and ledger.
type ProfileHandler struct {
	Users  *repository.UserRepo
	Ledger *repository.LedgerRepo
	Tokens *service.TokenManager
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func NewProfileHandler(u *repository.UserRepo, l *repository.LedgerRepo, t *service.TokenManager, log logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{Users: u, Ledger: l, Tokens: t, Log: log, Now: time.Now}
}

type profileResp struct {
	ID           uint64  `json:"id"`
	Email        string  `json:"email"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Role         string  `json:"role"`
	Creditos     int64   `json:"creditos"`
	BarcodeValue *string `json:"barcodeValue"`
}

// Me GET /v1/me
//
// The barcode is issued on demand for the current month.  If issuance
// fails the profile is still served with a null barcodeValue.
func (h *ProfileHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		h.Log.WithError(err).WithField("user_id", uid).Error("profile: load user")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	resp := profileResp{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Creditos:  u.Credits,
	}
	tok, err := h.Tokens.GetOrCreateActive(ctx, uid, h.Now())
	if err != nil {
		h.Log.WithError(err).WithField("user_id", uid).Error("profile: issue scan token")
	} else {
		b := h.Tokens.Barcode(tok)
		resp.BarcodeValue = &b
	}
	return c.JSON(http.StatusOK, resp)
}

// Transactions GET /v1/me/transactions?limit=N
func (h *ProfileHandler) Transactions(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := defaultTxLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		if n > maxTxLimit {
			n = maxTxLimit
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Ledger.ListByUser(ctx, uid, limit)
	if err != nil {
		h.Log.WithError(err).WithField("user_id", uid).Error("profile: list transactions")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if items == nil {
		items = []model.LedgerEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": limit})
}
