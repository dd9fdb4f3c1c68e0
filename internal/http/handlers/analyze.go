package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/http/response"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/ctxutil"
	"github.com/solvegraph/solvegraph-backend/internal/services"
)

type AnalyzeHandler struct {
	analysis services.AnalysisService
}

func NewAnalyzeHandler(analysisService services.AnalysisService) *AnalyzeHandler {
	return &AnalyzeHandler{analysis: analysisService}
}

type analyzeReq struct {
	Link  string `json:"link"`
	Code  string `json:"code"`
	Notes string `json:"notes"`
}

type analyzeResp struct {
	analysis.Result
	Domain       string `json:"domain"`
	KeyAlgorithm string `json:"keyAlgorithm"`
}

// POST /api/analyze
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req analyzeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		e := apierr.InvalidPayload(err)
		response.RespondError(c, e.Status, e.Code, e)
		return
	}
	if strings.TrimSpace(req.Link) == "" || strings.TrimSpace(req.Code) == "" {
		e := apierr.InvalidPayload(fmt.Errorf("both link and code are required"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		e := apierr.Unauthenticated(fmt.Errorf("unauthenticated"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	details := analysis.UserDetails{}
	if rd.UserName != "" {
		details.Name = &rd.UserName
	}
	if rd.UserEmail != "" {
		details.Email = &rd.UserEmail
	}

	result, err := h.analysis.Analyze(c.Request.Context(), rd.UserID, details, services.AnalyzeRequest{
		Link:  req.Link,
		Code:  req.Code,
		Notes: req.Notes,
	})
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
		return
	}

	response.RespondOK(c, analyzeResp{
		Result:       result,
		Domain:       result.Domain(),
		KeyAlgorithm: result.KeyAlgorithm(),
	})
}
