package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Roles the identity collaborator attaches to requests. Authentication
// itself happens upstream; this layer only gates operations by role.
const (
	RoleWarehouse = "warehouse"
	RoleStore     = "store"
)

// Handler contains HTTP handlers
type Handler struct {
	fulfillment *service.FulfillmentService
	shipments   *service.ShipmentService
	receiving   *service.ReceivingService
	stock       *service.StockService
	store       *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(
	fulfillment *service.FulfillmentService,
	shipments *service.ShipmentService,
	receiving *service.ReceivingService,
	stock *service.StockService,
	st *store.Store,
) *Handler {
	return &Handler{
		fulfillment: fulfillment,
		shipments:   shipments,
		receiving:   receiving,
		stock:       stock,
		store:       st,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", requireRole(RoleStore), h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/review", requireRole(RoleWarehouse), h.reviewOrder)
		v1.POST("/orders/:id/approve", requireRole(RoleWarehouse), h.approveOrder)
		v1.POST("/orders/:id/reject", requireRole(RoleWarehouse), h.rejectOrder)
		v1.POST("/orders/:id/cancel", requireRole(RoleStore), h.cancelOrder)
		v1.POST("/orders/:id/start-picking", requireRole(RoleWarehouse), h.startPicking)

		v1.GET("/shipments/:id", h.getShipment)
		v1.POST("/shipments/:id/dispatch", requireRole(RoleWarehouse), h.dispatchShipment)
		v1.POST("/shipments/:id/damaged-batch", requireRole(RoleWarehouse), h.reportDamagedBatch)
		v1.POST("/shipments/:id/deliver", requireRole(RoleStore), h.markDelivered)
		v1.POST("/shipments/:id/receive", requireRole(RoleStore), h.receiveShipment)

		v1.POST("/stock/receive", requireRole(RoleWarehouse), h.receiveStock)
		v1.POST("/stock/adjust", requireRole(RoleWarehouse), h.adjustStock)
		v1.POST("/stock/batches", requireRole(RoleWarehouse), h.createDraftBatch)
		v1.POST("/stock/batches/:id/confirm", requireRole(RoleWarehouse), h.confirmBatch)
		v1.DELETE("/stock/batches/:id", requireRole(RoleWarehouse), h.deleteDraftBatch)

		v1.GET("/reports/fulfillment-rate", h.fulfillmentRate)
		v1.GET("/reports/reconciliation", h.reconciliation)
		v1.GET("/inventory/:warehouseId/:batchId/transactions", h.transactionHistory)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.fulfillment.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, items, shipment, err := h.fulfillment.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items, "shipment": shipment})
}

func (h *Handler) reviewOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	lines, err := h.fulfillment.Review(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "items": lines})
}

func (h *Handler) approveOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.fulfillment.Approve(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.fulfillment.Reject(c.Request.Context(), orderID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": models.OrderStatusRejected})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.fulfillment.Cancel(c.Request.Context(), orderID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": models.OrderStatusCancelled})
}

func (h *Handler) startPicking(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.fulfillment.StartPicking(c.Request.Context(), orderID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": models.OrderStatusPicking})
}

func (h *Handler) getShipment(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	shipment, items, err := h.shipments.GetShipment(c.Request.Context(), shipmentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment": shipment, "items": items})
}

func (h *Handler) dispatchShipment(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.shipments.FinalizeDispatch(c.Request.Context(), shipmentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment_id": shipmentID, "status": models.ShipmentStatusInTransit})
}

type damagedBatchRequest struct {
	BatchID int64 `json:"batch_id" binding:"required"`
}

func (h *Handler) reportDamagedBatch(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req damagedBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.shipments.ReportDamagedBatch(c.Request.Context(), shipmentID, req.BatchID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment_id": shipmentID, "replaced_batch_id": req.BatchID})
}

func (h *Handler) markDelivered(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.shipments.MarkDelivered(c.Request.Context(), shipmentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment_id": shipmentID, "status": models.ShipmentStatusDelivered})
}

type receiveShipmentRequest struct {
	Items []service.ReceiptLine `json:"items" binding:"required"`
}

func (h *Handler) receiveShipment(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req receiveShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.receiving.ReceiveShipment(c.Request.Context(), shipmentID, req.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) receiveStock(c *gin.Context) {
	var req service.ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	batch, err := h.stock.ReceiveStock(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (h *Handler) adjustStock(c *gin.Context) {
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.stock.AdjustStock(c.Request.Context(), &req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (h *Handler) createDraftBatch(c *gin.Context) {
	var req service.CreateDraftBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	batch, err := h.stock.CreateDraftBatch(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (h *Handler) confirmBatch(c *gin.Context) {
	batchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ConfirmBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	batch, err := h.stock.ConfirmBatch(c.Request.Context(), batchID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) deleteDraftBatch(c *gin.Context) {
	batchID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.stock.DeleteDraftBatch(c.Request.Context(), batchID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": batchID, "status": "deleted"})
}

func (h *Handler) fulfillmentRate(c *gin.Context) {
	from, err := time.Parse("2006-01-02", c.DefaultQuery("from", time.Now().AddDate(0, -1, 0).Format("2006-01-02")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
		return
	}
	to, err := time.Parse("2006-01-02", c.DefaultQuery("to", time.Now().AddDate(0, 0, 1).Format("2006-01-02")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
		return
	}

	rate, err := h.store.GetFulfillmentRate(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

// reconciliation surfaces inventory records whose quantity disagrees with
// the sum of their ledger entries. An empty list is the healthy answer.
func (h *Handler) reconciliation(c *gin.Context) {
	rows, err := h.store.GetUnbalancedRecords(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbalanced": rows, "count": len(rows)})
}

func (h *Handler) transactionHistory(c *gin.Context) {
	warehouseID, ok := pathID(c, "warehouseId")
	if !ok {
		return
	}
	batchID, ok := pathID(c, "batchId")
	if !ok {
		return
	}

	txs, err := h.store.GetTransactions(c.Request.Context(), warehouseID, batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// requireRole gates an operation on the role header attached by the
// identity collaborator upstream.
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Role") != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Operation requires role " + role,
			})
			return
		}
		c.Next()
	}
}

// writeError maps the engine error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	code := models.ErrorCode(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrInsufficientCapacity),
		errors.Is(err, models.ErrInsufficientReplacement),
		errors.Is(err, models.ErrConflictRetryable):
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error":     err.Error(),
		"code":      code,
		"retryable": models.IsRetryable(err),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath(), status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), status).Inc()
	}
}
