package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solvegraph/solvegraph-backend/internal/clients/queue"
	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/http/response"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
	"github.com/solvegraph/solvegraph-backend/internal/services"
)

// JobsHandler terminates the queue service's signed webhook deliveries.
// Signature verification runs on the raw body before any parsing; a reject
// is terminal for the delivery and redelivery is owned by the queue service.
type JobsHandler struct {
	log       *logger.Logger
	receiver  *queue.Receiver
	records   services.RecordWriter
	projector services.GraphProjector
}

func NewJobsHandler(baseLog *logger.Logger, receiver *queue.Receiver, records services.RecordWriter, projector services.GraphProjector) *JobsHandler {
	return &JobsHandler{
		log:       baseLog.With("handler", "JobsHandler"),
		receiver:  receiver,
		records:   records,
		projector: projector,
	}
}

func (h *JobsHandler) verifiedBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		e := apierr.InvalidPayload(fmt.Errorf("read body: %w", err))
		response.RespondError(c, e.Status, e.Code, e)
		return nil, false
	}
	if err := h.receiver.Verify(body, c.GetHeader(queue.SignatureHeader)); err != nil {
		e := apierr.Unauthenticated(fmt.Errorf("invalid signature"))
		response.RespondError(c, e.Status, e.Code, e)
		return nil, false
	}
	return body, true
}

// POST /api/queue/record-writer
func (h *JobsHandler) WriteRecord(c *gin.Context) {
	body, ok := h.verifiedBody(c)
	if !ok {
		return
	}

	var payload analysis.RecordPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		e := apierr.InvalidPayload(err)
		response.RespondError(c, e.Status, e.Code, e)
		return
	}
	if err := payload.Validate(); err != nil {
		h.log.Error("Invalid record job payload", "error", err)
		e := apierr.InvalidPayload(err)
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	if err := h.records.Apply(c.Request.Context(), payload); err != nil {
		h.log.Error("Record write job failed", "user_id", payload.UserID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, apierr.CodeStoreWrite, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// POST /api/queue/graph-writer
func (h *JobsHandler) WriteGraph(c *gin.Context) {
	body, ok := h.verifiedBody(c)
	if !ok {
		return
	}

	var payload analysis.GraphPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		e := apierr.InvalidPayload(err)
		response.RespondError(c, e.Status, e.Code, e)
		return
	}
	payload.Sanitize()
	if err := payload.Validate(); err != nil {
		h.log.Error("Invalid graph job payload", "error", err)
		e := apierr.InvalidPayload(err)
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	if err := h.projector.Apply(c.Request.Context(), payload); err != nil {
		h.log.Error("Graph projection job failed", "user_id", payload.UserID, "error", err)
		// Embedding and store failures alike come back as a flat 500; any
		// non-2xx triggers the queue's redelivery, so the status carries no
		// retry semantics here.
		response.RespondError(c, http.StatusInternalServerError, apierr.CodeOf(err), err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}
