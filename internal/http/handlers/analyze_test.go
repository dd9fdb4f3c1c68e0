package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/ctxutil"
	"github.com/solvegraph/solvegraph-backend/internal/services"
)

type fakeAnalysisService struct {
	result     analysis.Result
	err        error
	lastUserID string
	lastReq    services.AnalyzeRequest
}

func (f *fakeAnalysisService) Analyze(_ context.Context, userID string, _ analysis.UserDetails, req services.AnalyzeRequest) (analysis.Result, error) {
	f.lastUserID = userID
	f.lastReq = req
	return f.result, f.err
}

func withRequestData(rd *ctxutil.RequestData) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rd != nil {
			c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		}
		c.Next()
	}
}

func newAnalyzeTestRouter(t *testing.T, svc *fakeAnalysisService, rd *ctxutil.RequestData) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/analyze", withRequestData(rd), NewAnalyzeHandler(svc).Analyze)
	return r
}

func postAnalyze(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeFlattensDerivedFields(t *testing.T) {
	t.Parallel()

	svc := &fakeAnalysisService{result: analysis.Result{
		Name:         "Two Sum",
		ApproachName: "Hash Map",
		PseudoCode:   []string{"def twoSum(nums, target)"},
		Time:         "O(n)",
		Space:        "O(n)",
		Tags:         []string{"Array", "Hash Map"},
		Difficulty:   analysis.DifficultyEasy,
	}}
	r := newAnalyzeTestRouter(t, svc, &ctxutil.RequestData{UserID: "user-1"})

	w := postAnalyze(r, `{"link":"https://leetcode.com/problems/two-sum","code":"code"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	if svc.lastUserID != "user-1" {
		t.Fatalf("user id: want=%q got=%q", "user-1", svc.lastUserID)
	}

	var resp struct {
		Name         string `json:"name"`
		Domain       string `json:"domain"`
		KeyAlgorithm string `json:"keyAlgorithm"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Name != "Two Sum" || resp.Domain != "Array" || resp.KeyAlgorithm != "Hash Map" {
		t.Fatalf("response: %+v", resp)
	}
}

func TestAnalyzeRequiresLinkAndCode(t *testing.T) {
	t.Parallel()

	svc := &fakeAnalysisService{}
	r := newAnalyzeTestRouter(t, svc, &ctxutil.RequestData{UserID: "user-1"})

	for _, body := range []string{
		`{"code":"code"}`,
		`{"link":"https://leetcode.com/problems/two-sum"}`,
		`{"link":"   ","code":"code"}`,
	} {
		w := postAnalyze(r, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status for %s: want=%d got=%d", body, http.StatusBadRequest, w.Code)
		}
	}
	if svc.lastUserID != "" {
		t.Fatalf("service called for invalid request")
	}
}

func TestAnalyzeRequiresAuthenticatedUser(t *testing.T) {
	t.Parallel()

	r := newAnalyzeTestRouter(t, &fakeAnalysisService{}, nil)

	w := postAnalyze(r, `{"link":"https://leetcode.com/problems/two-sum","code":"code"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, w.Code)
	}
}

func TestAnalyzeMapsServiceErrorsToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{apierr.Transient(fmt.Errorf("model overloaded")), http.StatusServiceUnavailable},
		{apierr.Permanent(fmt.Errorf("contract breach")), http.StatusBadGateway},
		{apierr.StoreWrite(fmt.Errorf("postgres down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newAnalyzeTestRouter(t, &fakeAnalysisService{err: tc.err}, &ctxutil.RequestData{UserID: "user-1"})
		w := postAnalyze(r, `{"link":"https://leetcode.com/problems/two-sum","code":"code"}`)
		if w.Code != tc.want {
			t.Fatalf("status for %v: want=%d got=%d", tc.err, tc.want, w.Code)
		}
	}
}
