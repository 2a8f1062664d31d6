package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"feed-engine/internal/domain"
)

func TestActorMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantActor domain.UserID
		wantKnown bool
	}{
		{name: "anonymous", header: "", wantCode: http.StatusOK},
		{name: "valid", header: "42", wantCode: http.StatusOK, wantActor: 42, wantKnown: true},
		{name: "garbage", header: "abc", wantCode: http.StatusBadRequest},
		{name: "zero", header: "0", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor domain.UserID
			var gotKnown bool
			h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotActor, gotKnown = ActorFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(ActorHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("ожидали статус %d, получили %d", tt.wantCode, rec.Code)
			}
			if gotActor != tt.wantActor || gotKnown != tt.wantKnown {
				t.Fatalf("ожидали актора %d/%v, получили %d/%v", tt.wantActor, tt.wantKnown, gotActor, gotKnown)
			}
		})
	}
}
