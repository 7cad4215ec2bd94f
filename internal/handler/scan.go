package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/scan-rewards/internal/metrics"
	"github.com/iliyamo/scan-rewards/internal/queue"
	"github.com/iliyamo/scan-rewards/internal/service"
)

const publishTimeout = 5 * time.Second

// ScanHandler redeems barcodes presented at a point of service.
type ScanHandler struct {
	Engine    *service.RedemptionEngine
	Publisher queue.Publisher
	Metrics   *metrics.Metrics
	Log       logrus.FieldLogger
	Now       func() time.Time

	wg sync.WaitGroup
}

func NewScanHandler(e *service.RedemptionEngine, p queue.Publisher, m *metrics.Metrics, log logrus.FieldLogger) *ScanHandler {
	if p == nil {
		p = queue.NopPublisher{}
	}
	return &ScanHandler{Engine: e, Publisher: p, Metrics: m, Log: log, Now: time.Now}
}

type scanReq struct {
	BarcodeValue string `json:"barcodeValue"`
}

// Scan POST /v1/qr/scan
//
// Body: {"barcodeValue": "..."}.  The authenticated caller is recorded as
// the scanner.  Awarded and already-awarded are both 200; invalid or
// expired codes are 404 without saying which.
func (h *ScanHandler) Scan(c echo.Context) error {
	var req scanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": service.ErrEmptyBarcode.Error()})
	}
	barcode := strings.TrimSpace(req.BarcodeValue)
	if barcode == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": service.ErrEmptyBarcode.Error()})
	}

	var scannerID *uint64
	if uid, err := getUserID(c); err == nil {
		scannerID = &uid
	}

	res, err := h.Engine.Scan(c.Request().Context(), barcode, scannerID, h.Now())
	if err != nil {
		if errors.Is(err, service.ErrEmptyBarcode) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": err.Error()})
		}
		h.Log.WithError(err).WithField("token_id", res.TokenID).Error("scan failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": service.MsgFailed})
	}

	switch res.Outcome {
	case service.ScanAwarded:
		h.publish(res, scannerID)
		return c.JSON(http.StatusOK, echo.Map{"awarded": true, "creditos": res.Balance, "delta": res.Delta})
	case service.ScanAlreadyAwarded:
		return c.JSON(http.StatusOK, echo.Map{"awarded": false, "creditos": res.Balance, "message": res.Message})
	case service.ScanInvalidOrExpired:
		return c.JSON(http.StatusNotFound, echo.Map{"message": res.Message})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": service.MsgFailed})
	}
}

// publish emits scan.awarded in the background.  The award is already
// committed, so a broker failure is only logged.
func (h *ScanHandler) publish(res service.ScanResult, scannerID *uint64) {
	ev := queue.ScanAwardedEvent{
		UserID:    res.UserID,
		ScannerID: scannerID,
		TokenID:   res.TokenID,
		AwardDate: res.AwardDay,
		Delta:     res.Delta,
		Balance:   res.Balance,
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		err := h.Publisher.PublishScanAwarded(ctx, ev)
		h.Metrics.EventPublished(err)
		if err != nil {
			h.Log.WithError(err).WithField("user_id", ev.UserID).Warn("publish scan.awarded")
		}
	}()
}

// Wait blocks until in-flight event publications finish.
func (h *ScanHandler) Wait() { h.wg.Wait() }
