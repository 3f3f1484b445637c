package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type fakeProvider struct {
	view   *NextAttemptView
	timers map[string]TimerView
}

func (p *fakeProvider) NextAttempt(context.Context, uuid.UUID, uuid.UUID) (*NextAttemptView, error) {
	return p.view, nil
}

func (p *fakeProvider) Timers(uuid.UUID) map[string]TimerView {
	return p.timers
}

func newMux(p StateProvider) *http.ServeMux {
	mux := http.NewServeMux()
	NewStateHandler(p).RegisterStateRoutes(mux)
	return mux
}

func TestHandleNextAttempt(t *testing.T) {
	t.Parallel()

	sec := 90
	mux := newMux(&fakeProvider{view: &NextAttemptView{
		Status:           StatusEstimate,
		AttemptID:        uuid.New().String(),
		EstimatedWaitSec: &sec,
	}})

	url := "/api/competitions/" + uuid.New().String() + "/athletes/" + uuid.New().String() + "/next-attempt"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got NextAttemptView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != StatusEstimate || got.EstimatedWaitSec == nil || *got.EstimatedWaitSec != 90 {
		t.Errorf("view = %+v", got)
	}
}

func TestHandleNextAttempt_BadIDs(t *testing.T) {
	t.Parallel()

	mux := newMux(&fakeProvider{view: &NextAttemptView{Status: StatusNoAttempts}})

	req := httptest.NewRequest(http.MethodGet,
		"/api/competitions/not-a-uuid/athletes/"+uuid.New().String()+"/next-attempt", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad competition id: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet,
		"/api/competitions/"+uuid.New().String()+"/athletes/nope/next-attempt", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad athlete id: status = %d, want 400", rec.Code)
	}
}

func TestHandleTimers(t *testing.T) {
	t.Parallel()

	mux := newMux(&fakeProvider{timers: map[string]TimerView{
		"attempt:x": {TimerID: "attempt:x", Kind: "ATTEMPT", RemainingSec: 12, State: "RUNNING"},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/competitions/"+uuid.New().String()+"/timers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]TimerView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["attempt:x"].RemainingSec != 12 {
		t.Errorf("timers = %+v", got)
	}
}
