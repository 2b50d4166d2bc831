package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mayanetra/internal/history"
	"mayanetra/internal/notice"
	"mayanetra/internal/predictor"
	"mayanetra/internal/session"
	"mayanetra/internal/storage"
	"mayanetra/internal/theme"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type viewBody struct {
	State        string `json:"state"`
	Input        string `json:"input"`
	Class        string `json:"class"`
	MeterPercent int    `json:"meter_percent"`
	Reason       string `json:"reason"`
	Theme        string `json:"theme"`
	Result       *struct {
		Label       string  `json:"label"`
		Probability float64 `json:"probability"`
	} `json:"result"`
}

func newTestRouter(t *testing.T, classifierBody string) *gin.Engine {
	t.Helper()
	return newRouterWithClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(classifierBody))
	})
}

func newRouterWithClassifier(t *testing.T, fn http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	classifier := httptest.NewServer(fn)
	t.Cleanup(classifier.Close)

	logger := zap.NewNop()
	store := storage.NewMemoryStore()
	log := history.NewLog(store, history.DefaultKey, history.DefaultMaxEntries, logger)
	log.Load(context.Background())
	pref := theme.NewPreference(store, theme.DefaultKey, logger)
	pref.Load(context.Background())
	board := notice.NewBoard(0, logger)

	machine := session.NewMachine(session.Deps{
		Classifier: predictor.NewClient(predictor.Config{BaseURL: classifier.URL}, logger),
		History:    log,
		Theme:      pref,
		Notifier:   board,
		Logger:     logger,
	})

	router := gin.New()
	NewHandler(machine, board, logger).RegisterRoutes(router)
	return router
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSubmit_HappyPath(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"Human Written","probability":0.12}`)

	w := do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"Hello world"}`)
	require.Equal(t, http.StatusOK, w.Code)

	v := decode[viewBody](t, w)
	assert.Equal(t, "resulted", v.State)
	assert.Equal(t, "human-written", v.Class)
	assert.Equal(t, 12, v.MeterPercent)
	require.NotNil(t, v.Result)
	assert.Equal(t, "Human Written", v.Result.Label)

	notices := decode[struct {
		Notices      []notice.Notice `json:"notices"`
		Celebrations int             `json:"celebrations"`
	}](t, do(t, r, http.MethodGet, "/api/v1/notices", ""))
	assert.Equal(t, 1, notices.Celebrations)
	require.NotEmpty(t, notices.Notices)
	assert.Equal(t, session.NoticeAnalysisDone, notices.Notices[len(notices.Notices)-1].Message)
}

func TestSubmit_UsesCurrentInputWhenBodyEmpty(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI Generated"}`)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/input/sample", "").Code)

	w := do(t, r, http.MethodPost, "/api/v1/submit", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[viewBody](t, w)
	assert.Equal(t, "ai-generated", v.Class)
	assert.Equal(t, 78, v.MeterPercent)
	assert.Equal(t, session.SampleText, v.Input)
}

func TestSubmit_OutlivesCallerContext(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI Generated","probability":0.8}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", strings.NewReader(`{"text":"abc"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	v := decode[viewBody](t, do(t, r, http.MethodGet, "/api/v1/state", ""))
	assert.Equal(t, "resulted", v.State)
	assert.Empty(t, v.Reason)
}

func TestSubmit_ConflictWhileInFlight(t *testing.T) {
	received := make(chan struct{}, 1)
	release := make(chan struct{})
	r := newRouterWithClassifier(t, func(w http.ResponseWriter, req *http.Request) {
		received <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prediction":"Human Written","probability":0.1}`))
	})

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"first"}`)
	}()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("classifier was not called")
	}

	w := do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"second"}`)
	close(release)
	assert.Equal(t, http.StatusConflict, w.Code)

	select {
	case w = <-first:
		assert.Equal(t, http.StatusOK, w.Code)
		v := decode[viewBody](t, w)
		assert.Equal(t, "first", v.Input)
		assert.Equal(t, "resulted", v.State)
	case <-time.After(2 * time.Second):
		t.Fatal("first submit did not return")
	}
}

func TestState_ZeroMeterIsReported(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"Human Written","probability":0.001}`)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"abc"}`).Code)

	raw := decode[map[string]any](t, do(t, r, http.MethodGet, "/api/v1/state", ""))
	assert.Equal(t, "resulted", raw["state"])
	assert.Contains(t, raw, "meter_percent")
	assert.EqualValues(t, 0, raw["meter_percent"])
}

func TestCopyInput(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI"}`)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, "/api/v1/input", `{"text":"copy me"}`).Code)

	w := do(t, r, http.MethodPost, "/api/v1/input/copy", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "copy me", decode[struct {
		Text string `json:"text"`
	}](t, w).Text)

	notices := decode[struct {
		Notices []notice.Notice `json:"notices"`
	}](t, do(t, r, http.MethodGet, "/api/v1/notices", ""))
	require.NotEmpty(t, notices.Notices)
	assert.Equal(t, session.NoticeTextCopied, notices.Notices[len(notices.Notices)-1].Message)
}

func TestSubmit_EmptyInput(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI"}`)

	w := do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	v := decode[viewBody](t, do(t, r, http.MethodGet, "/api/v1/state", ""))
	assert.Equal(t, "idle", v.State)
}

func TestSubmit_ServiceError(t *testing.T) {
	r := newTestRouter(t, `{"error":"input too short"}`)

	w := do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	v := decode[viewBody](t, w)
	assert.Equal(t, "failed", v.State)
	assert.Equal(t, "input too short", v.Reason)
	assert.Nil(t, v.Result)
}

func TestDismissAndClear(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI","probability":0.9}`)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"abc"}`).Code)

	w := do(t, r, http.MethodPost, "/api/v1/result/dismiss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[struct {
		Dismissed bool `json:"dismissed"`
	}](t, w).Dismissed)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/submit", "").Code)
	v := decode[viewBody](t, do(t, r, http.MethodPost, "/api/v1/input/clear", ""))
	assert.Equal(t, "idle", v.State)
	assert.Empty(t, v.Input)
}

func TestHistoryEndpoints(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI Generated","probability":0.91}`)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/v1/history", "").Code)

	long := strings.Repeat("word ", 40)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/submit", `{"text":"`+long+`"}`).Code)
	w := do(t, r, http.MethodPost, "/api/v1/history", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decode[struct {
		Persisted bool `json:"persisted"`
	}](t, w).Persisted)

	list := decode[struct {
		Entries []HistoryItem `json:"entries"`
		Total   int           `json:"total"`
	}](t, do(t, r, http.MethodGet, "/api/v1/history", ""))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, long, list.Entries[0].Text)
	assert.Equal(t, "AI Generated", list.Entries[0].Label)
	assert.Equal(t, history.Preview(long), list.Entries[0].Preview)
	assert.True(t, strings.HasSuffix(list.Entries[0].Preview, "…"))

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/input/clear", "").Code)
	w = do(t, r, http.MethodPost, "/api/v1/history/0/load", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/api/v1/history/5/load", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/v1/history/x/load", "").Code)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodDelete, "/api/v1/history", "").Code)
	list = decode[struct {
		Entries []HistoryItem `json:"entries"`
		Total   int           `json:"total"`
	}](t, do(t, r, http.MethodGet, "/api/v1/history", ""))
	assert.Zero(t, list.Total)
}

func TestThemeEndpoints(t *testing.T) {
	r := newTestRouter(t, `{"prediction":"AI"}`)

	type themeBody struct {
		Theme     string `json:"theme"`
		Persisted bool   `json:"persisted"`
	}

	assert.Equal(t, "dark", decode[themeBody](t, do(t, r, http.MethodGet, "/api/v1/theme", "")).Theme)

	got := decode[themeBody](t, do(t, r, http.MethodPost, "/api/v1/theme/toggle", ""))
	assert.Equal(t, "light", got.Theme)
	assert.True(t, got.Persisted)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/v1/theme", `{"theme":"neon"}`).Code)

	got = decode[themeBody](t, do(t, r, http.MethodPut, "/api/v1/theme", `{"theme":"dark"}`))
	assert.Equal(t, "dark", got.Theme)

	v := decode[viewBody](t, do(t, r, http.MethodGet, "/api/v1/state", ""))
	assert.Equal(t, "dark", v.Theme)
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t, `{}`)
	w := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
