package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gosegment/adapters/store"
	"gosegment/app"
	"gosegment/domain/segmentation"
	"gosegment/internal/config"
	"gosegment/internal/dendrogram"
	"gosegment/internal/testkit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewDTO struct {
	ID         string `json:"id"`
	Step       string `json:"step"`
	Busy       bool   `json:"busy"`
	Error      string `json:"error"`
	Closed     bool   `json:"closed"`
	CanAdvance bool   `json:"can_advance"`
	EffectiveK int    `json:"effective_k"`
	State      struct {
		Variables []string                       `json:"variables"`
		ManualK   *int                           `json:"manual_k"`
		Detection *segmentation.AutoDetectResult `json:"detection"`
		Result    *segmentation.ClusterResult    `json:"result"`
	} `json:"state"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	survey := testkit.GenerateSurvey(testkit.SurveyGeneratorConfig{Respondents: 40, Seed: 5})
	svc := app.NewSegmentationService(testkit.NewStubAnalytics(survey, 5), survey, store.NewRunRepository(db),
		config.WizardConfig{DetectRange: segmentation.Range{Low: 2, High: 5}, DefaultClusters: 3}, nil)
	t.Cleanup(svc.Shutdown)

	return &testAPI{t: t, handler: NewServer(svc, nil, "").Handler()}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) view(rec *httptest.ResponseRecorder) viewDTO {
	a.t.Helper()
	require.Less(a.t, rec.Code, 300, rec.Body.String())
	var v viewDTO
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (a *testAPI) fail(rec *httptest.ResponseRecorder, status int) apiError {
	a.t.Helper()
	require.Equal(a.t, status, rec.Code, rec.Body.String())
	var e apiError
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

// settle polls the wizard until no request is outstanding.
func (a *testAPI) settle(id string) viewDTO {
	a.t.Helper()
	var v viewDTO
	require.Eventually(a.t, func() bool {
		v = a.view(a.do(http.MethodGet, "/api/segmentation/wizards/"+id, nil))
		return !v.Busy
	}, 5*time.Second, 10*time.Millisecond)
	return v
}

func (a *testAPI) open() string {
	rec := a.do(http.MethodPost, "/api/segmentation/wizards", nil)
	require.Equal(a.t, http.StatusCreated, rec.Code)
	v := a.view(rec)
	require.Equal(a.t, "select-inputs", v.Step)
	return v.ID
}

func TestHierarchicalFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	id := api.open()
	base := "/api/segmentation/wizards/" + id

	v := api.view(api.do(http.MethodPut, base+"/inputs", gin.H{"variables": []string{"q1_satisfaction", "q2_value", "q5_visits"}}))
	assert.True(t, v.CanAdvance)
	api.view(api.do(http.MethodPost, base+"/next", nil))
	api.view(api.do(http.MethodPut, base+"/method", gin.H{"method": "hierarchical", "linkage": "complete"}))
	v = api.view(api.do(http.MethodPost, base+"/next", nil))
	assert.Equal(t, "detect-parameter", v.Step)

	v = api.settle(id)
	require.NotNil(t, v.State.Detection)
	assert.Equal(t, []int{2, 3, 4, 5}, v.State.Detection.KValues)

	v = api.view(api.do(http.MethodPost, base+"/detection/select", gin.H{"k": 4}))
	require.NotNil(t, v.State.ManualK)
	assert.Equal(t, 4, v.EffectiveK)

	v = api.view(api.do(http.MethodPost, base+"/next", nil))
	assert.Equal(t, "execute", v.Step)
	v = api.settle(id)
	require.NotNil(t, v.State.Result, v.Error)
	assert.Equal(t, 4, v.State.Result.NClusters)

	rec := api.do(http.MethodGet, base+"/dendrogram?width=800&height=400", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var drawing dendrogram.Drawing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drawing))
	assert.Equal(t, 800.0, drawing.Width)
	assert.True(t, drawing.Truncated)
	assert.Contains(t, drawing.Caption, "40 samples")

	rec = api.do(http.MethodGet, base+"/dendrogram?format=svg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<svg"))

	// non-finite sizes fall back to the default canvas
	rec = api.do(http.MethodGet, base+"/dendrogram?width=NaN&height=-Inf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	drawing = dendrogram.Drawing{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drawing))
	assert.Equal(t, float64(dendrogram.DefaultWidth), drawing.Width)
	assert.Equal(t, float64(dendrogram.DefaultHeight), drawing.Height)

	rec = api.do(http.MethodGet, base+"/dendrogram?width=Inf&format=svg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `width="600"`)
	assert.NotContains(t, rec.Body.String(), "Inf")

	rec = api.do(http.MethodGet, base+"/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profiles struct {
		NClusters int               `json:"n_clusters"`
		Profiles  []json.RawMessage `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
	assert.Len(t, profiles.Profiles, 4)

	rec = api.do(http.MethodGet, base+"/profiles?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<table>")

	rec = api.do(http.MethodGet, base+"/profiles?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "## Cluster 1")

	var runs struct {
		Runs []struct {
			ID       string `json:"id"`
			Linkage  string `json:"linkage"`
			Clusters int    `json:"clusters"`
		} `json:"runs"`
	}
	require.Eventually(t, func() bool {
		rec := api.do(http.MethodGet, "/api/runs", nil)
		return rec.Code == http.StatusOK && json.Unmarshal(rec.Body.Bytes(), &runs) == nil && len(runs.Runs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "complete", runs.Runs[0].Linkage)
	assert.Equal(t, 4, runs.Runs[0].Clusters)

	rec = api.do(http.MethodGet, "/api/runs/"+runs.Runs[0].ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIErrors(t *testing.T) {
	api := newTestAPI(t)
	id := api.open()
	base := "/api/segmentation/wizards/" + id

	e := api.fail(api.do(http.MethodPost, base+"/next", nil), http.StatusConflict)
	assert.Contains(t, e.Error, "requirements")

	e = api.fail(api.do(http.MethodPut, base+"/inputs", gin.H{"variables": []string{"q1_satisfaction", "region"}}), http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT", e.Code)

	api.fail(api.do(http.MethodPut, base+"/method", gin.H{"method": "dbscan"}), http.StatusBadRequest)
	api.fail(api.do(http.MethodPost, base+"/detection/select", gin.H{"k": 3}), http.StatusConflict)
	api.fail(api.do(http.MethodGet, base+"/dendrogram", nil), http.StatusNotFound)
	api.fail(api.do(http.MethodGet, base+"/profiles", nil), http.StatusNotFound)
	api.fail(api.do(http.MethodGet, "/api/segmentation/wizards/missing", nil), http.StatusNotFound)
	api.fail(api.do(http.MethodGet, "/api/runs/missing", nil), http.StatusNotFound)
	api.fail(api.do(http.MethodPut, base+"/inputs", "not an object"), http.StatusBadRequest)
}

func TestRejectedDetectionRequestLeavesStateUntouched(t *testing.T) {
	api := newTestAPI(t)
	id := api.open()
	base := "/api/segmentation/wizards/" + id

	api.view(api.do(http.MethodPut, base+"/inputs", gin.H{"variables": []string{"q1_satisfaction", "q2_value"}}))
	api.view(api.do(http.MethodPost, base+"/next", nil))
	api.view(api.do(http.MethodPost, base+"/next", nil))
	before := api.settle(id)
	require.NotNil(t, before.State.Detection)

	for _, body := range []gin.H{
		{"auto_detect": false, "manual_k": 1},
		{"range": gin.H{"low": 2, "high": 4}, "auto_detect": false, "manual_k": 1},
		{"auto_detect": true, "manual_k": 3},
	} {
		e := api.fail(api.do(http.MethodPut, base+"/detection", body), http.StatusBadRequest)
		assert.Equal(t, "INVALID_INPUT", e.Code)

		after := api.view(api.do(http.MethodGet, base, nil))
		assert.Equal(t, before.State.Detection, after.State.Detection)
		assert.Nil(t, after.State.ManualK)
	}

	v := api.view(api.do(http.MethodPut, base+"/detection", gin.H{"auto_detect": false, "manual_k": 4}))
	assert.Nil(t, v.State.Detection)
	assert.Equal(t, 4, v.EffectiveK)
}

func TestBackOnFirstStepClosesWizard(t *testing.T) {
	api := newTestAPI(t)
	id := api.open()

	v := api.view(api.do(http.MethodPost, "/api/segmentation/wizards/"+id+"/back", nil))
	assert.True(t, v.Closed)
	api.fail(api.do(http.MethodGet, "/api/segmentation/wizards/"+id, nil), http.StatusNotFound)
}

func TestDeleteWizard(t *testing.T) {
	api := newTestAPI(t)
	id := api.open()

	rec := api.do(http.MethodDelete, "/api/segmentation/wizards/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	api.fail(api.do(http.MethodDelete, "/api/segmentation/wizards/"+id, nil), http.StatusNotFound)
}

func TestVariablesAndHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/variables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Variables []segmentation.Variable `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Variables)
	for _, v := range body.Variables {
		assert.True(t, v.Clusterable(), v.Name)
	}
}
