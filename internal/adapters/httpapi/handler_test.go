package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"feed-engine/internal/adapters/memory"
	"feed-engine/internal/domain"
	"feed-engine/internal/infra/queue"
	"feed-engine/internal/usecase/emotion"
	feedusecase "feed-engine/internal/usecase/feed"
	graphusecase "feed-engine/internal/usecase/graph"
	interactionsusecase "feed-engine/internal/usecase/interactions"
	notifyusecase "feed-engine/internal/usecase/notify"
	postsusecase "feed-engine/internal/usecase/posts"
)

type happyClassifier struct{}

func (happyClassifier) Classify(context.Context, domain.ClassifyRequest) (domain.ClassifyResult, error) {
	return domain.ClassifyResult{Label: "happy", Confidence: 0.92}, nil
}

type testAPI struct {
	srv      *httptest.Server
	store    *memory.Store
	pipeline *emotion.Pipeline
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	limits := domain.PageLimits{Default: 20, Max: 100}
	logger := zerolog.Nop()
	pipeline := emotion.NewPipeline(store, store, queue.NewMemoryQueue(16), happyClassifier{}, emotion.Config{Timeout: time.Second}, logger)
	notifier := notifyusecase.NewService(store, limits, logger)
	postsSvc := postsusecase.NewService(store, pipeline, notifier, postsusecase.DefaultMaxLength, limits, logger)
	h := NewHandler(Services{
		Posts:         postsSvc,
		Graph:         graphusecase.NewService(store, postsSvc, notifier, limits, logger),
		Interactions:  interactionsusecase.NewService(store, store, notifier, limits, logger),
		Feed:          feedusecase.NewService(store, store, store, store, limits, logger),
		Notifications: notifier,
	})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: store, pipeline: pipeline}
}

// do выполняет запрос от имени user (0 — анонимно) и декодирует ответ в out.
func (a *testAPI) do(t *testing.T, method, path string, user domain.UserID, body any, out any) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &payload)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if user > 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(user))
	}
	resp, err := a.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("не удалось разобрать ответ %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestScenarioOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = api.pipeline.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var follow domain.FollowResult
	if code := api.do(t, http.MethodPost, "/users/2/follow", 1, nil, &follow); code != http.StatusOK || !follow.Following || !follow.Changed {
		t.Fatalf("подписка: статус %d, ответ %+v", code, follow)
	}
	if code := api.do(t, http.MethodPost, "/users/2/follow", 1, nil, &follow); code != http.StatusOK || follow.Changed {
		t.Fatalf("повторная подписка должна быть идемпотентной: статус %d, ответ %+v", code, follow)
	}

	var created postResponse
	code := api.do(t, http.MethodPost, "/tweets", 2, map[string]any{"body": "hello #World", "image_ref": "img://2/1"}, &created)
	if code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d", code)
	}
	if created.EmotionTagState != domain.EmotionPending || len(created.Hashtags) != 1 || created.Hashtags[0] != "world" {
		t.Fatalf("неожиданный созданный пост %+v", created)
	}

	var applied applyResponse
	path := fmt.Sprintf("/tweets/%d/like", created.ID)
	if code := api.do(t, http.MethodPost, path, 1, nil, &applied); code != http.StatusOK || !applied.Applied || applied.Counts.Likes != 1 {
		t.Fatalf("лайк: статус %d, ответ %+v", code, applied)
	}
	if code := api.do(t, http.MethodPost, path, 1, nil, &applied); code != http.StatusOK || applied.Outcome != domain.OutcomeAlreadyApplied || applied.Counts.Likes != 1 {
		t.Fatalf("повторный лайк: статус %d, ответ %+v", code, applied)
	}

	var page domain.Page[domain.FeedItem]
	deadline := time.Now().Add(3 * time.Second)
	for {
		if code := api.do(t, http.MethodGet, "/feed", 1, nil, &page); code != http.StatusOK {
			t.Fatalf("лента: ожидали 200, получили %d", code)
		}
		if len(page.Items) != 1 {
			t.Fatalf("ожидали один пост в ленте, получили %d", len(page.Items))
		}
		if page.Items[0].Emotion.State == domain.EmotionReady || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	item := page.Items[0]
	if item.Emotion.State != domain.EmotionReady || item.Emotion.Label != "happy" {
		t.Fatalf("ожидали тег ready/happy, получили %+v", item.Emotion)
	}
	if item.Counts.Likes != 1 || !item.Viewer.Liked {
		t.Fatalf("ожидали 1 лайк читателя, получили %+v", item)
	}

	var notes domain.Page[domain.Notification]
	if code := api.do(t, http.MethodGet, "/notifications?unread=true", 2, nil, &notes); code != http.StatusOK || len(notes.Items) != 2 {
		t.Fatalf("ожидали уведомления о подписке и лайке: статус %d, %+v", code, notes.Items)
	}
	var marked markReadResponse
	if code := api.do(t, http.MethodPost, "/notifications/read", 2, nil, &marked); code != http.StatusOK || marked.Updated != 2 {
		t.Fatalf("ожидали 2 прочитанных уведомления: статус %d, %+v", code, marked)
	}
}

func TestErrorCodes(t *testing.T) {
	api := newTestAPI(t)
	var created postResponse
	if code := api.do(t, http.MethodPost, "/tweets", 2, map[string]any{"body": "text"}, &created); code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d", code)
	}
	if created.EmotionTagState != domain.EmotionNone {
		t.Fatalf("пост без снимка: ожидали none, получили %s", created.EmotionTagState)
	}
	postPath := fmt.Sprintf("/tweets/%d", created.ID)

	tests := []struct {
		name     string
		method   string
		path     string
		user     domain.UserID
		body     any
		wantCode int
		wantErr  string
	}{
		{name: "missing post", method: http.MethodGet, path: "/tweets/999", wantCode: http.StatusNotFound, wantErr: domain.CodeNotFound},
		{name: "bad post id", method: http.MethodGet, path: "/tweets/abc", wantCode: http.StatusBadRequest, wantErr: domain.CodeValidation},
		{name: "delete by stranger", method: http.MethodDelete, path: postPath, user: 3, wantCode: http.StatusForbidden, wantErr: domain.CodeForbidden},
		{name: "empty body", method: http.MethodPost, path: "/tweets", user: 2, body: map[string]any{"body": "   "}, wantCode: http.StatusBadRequest, wantErr: domain.CodeValidation},
		{name: "missing body", method: http.MethodPost, path: "/tweets", user: 2, body: map[string]any{}, wantCode: http.StatusBadRequest, wantErr: domain.CodeValidation},
		{name: "foreign author", method: http.MethodPost, path: "/tweets", user: 2, body: map[string]any{"author_id": 5, "body": "x"}, wantCode: http.StatusForbidden, wantErr: domain.CodeForbidden},
		{name: "anonymous post", method: http.MethodPost, path: "/tweets", body: map[string]any{"body": "x"}, wantCode: http.StatusUnauthorized, wantErr: codeUnauthorized},
		{name: "self follow", method: http.MethodPost, path: "/users/2/follow", user: 2, wantCode: http.StatusUnprocessableEntity, wantErr: domain.CodeSelfFollow},
		{name: "unknown kind", method: http.MethodPost, path: postPath + "/clap", user: 3, wantCode: http.StatusBadRequest, wantErr: domain.CodeValidation},
		{name: "anonymous like", method: http.MethodPost, path: postPath + "/like", wantCode: http.StatusUnauthorized, wantErr: codeUnauthorized},
		{name: "bad cursor", method: http.MethodGet, path: "/feed?cursor=not-a-cursor!", user: 1, wantCode: http.StatusBadRequest, wantErr: domain.CodeValidation},
		{name: "bad limit", method: http.MethodGet, path: "/feed?limit=-1", user: 1, wantCode: http.StatusBadRequest, wantErr: domain.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			code := api.do(t, tt.method, tt.path, tt.user, tt.body, &resp)
			if code != tt.wantCode || resp.Code != tt.wantErr {
				t.Fatalf("ожидали %d/%s, получили %d/%s (%s)", tt.wantCode, tt.wantErr, code, resp.Code, resp.Error)
			}
		})
	}
}

func TestDeleteHidesPostButKeepsReplyThread(t *testing.T) {
	api := newTestAPI(t)
	var parent, reply postResponse
	api.do(t, http.MethodPost, "/tweets", 1, map[string]any{"body": "parent"}, &parent)
	code := api.do(t, http.MethodPost, fmt.Sprintf("/tweets/%d/reply", parent.ID), 2, map[string]any{"body": "reply"}, &reply)
	if code != http.StatusCreated || reply.ParentID == nil || *reply.ParentID != parent.ID {
		t.Fatalf("ответ: статус %d, %+v", code, reply)
	}

	if code := api.do(t, http.MethodDelete, fmt.Sprintf("/tweets/%d", parent.ID), 1, nil, nil); code != http.StatusNoContent {
		t.Fatalf("удаление: ожидали 204, получили %d", code)
	}
	if code := api.do(t, http.MethodGet, fmt.Sprintf("/tweets/%d", parent.ID), 1, nil, &errorResponse{}); code != http.StatusNotFound {
		t.Fatalf("удалённый пост: ожидали 404, получили %d", code)
	}
	var thread domain.Thread
	if code := api.do(t, http.MethodGet, fmt.Sprintf("/tweets/%d/thread", reply.ID), 0, nil, &thread); code != http.StatusOK {
		t.Fatalf("тред: ожидали 200, получили %d", code)
	}
	if thread.Parent == nil || !thread.Parent.Deleted || thread.Parent.ID != parent.ID {
		t.Fatalf("ожидали ссылку на удалённого родителя, получили %+v", thread.Parent)
	}
}

func TestMoodAndSuggestionsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	var mood domain.Mood
	if code := api.do(t, http.MethodGet, "/users/1/mood", 0, nil, &mood); code != http.StatusOK || mood.Label != domain.NeutralMood {
		t.Fatalf("ожидали нейтральное настроение: статус %d, %+v", code, mood)
	}

	var mine, theirs postResponse
	api.do(t, http.MethodPost, "/tweets", 1, map[string]any{"body": "me", "image_ref": "img://1"}, &mine)
	api.do(t, http.MethodPost, "/tweets", 2, map[string]any{"body": "them", "image_ref": "img://2"}, &theirs)
	api.do(t, http.MethodPost, "/tweets", 3, map[string]any{"body": "text"}, &postResponse{})
	for _, id := range []domain.PostID{mine.ID, theirs.ID} {
		if ok, err := api.store.CompleteTag(ctx, id, "happy", 0.9, time.Now()); err != nil || !ok {
			t.Fatalf("ожидали перевод тега в ready: %v", err)
		}
	}

	if code := api.do(t, http.MethodGet, "/users/1/mood", 0, nil, &mood); code != http.StatusOK || mood.Label != "happy" {
		t.Fatalf("ожидали happy: статус %d, %+v", code, mood)
	}
	var history domain.Page[domain.MoodEntry]
	if code := api.do(t, http.MethodGet, "/users/1/mood/history?limit=5", 0, nil, &history); code != http.StatusOK || len(history.Items) != 1 || history.Items[0].PostID != mine.ID {
		t.Fatalf("история: статус %d, %+v", code, history)
	}

	var suggestions domain.Page[domain.Suggestion]
	if code := api.do(t, http.MethodGet, "/suggestions", 1, nil, &suggestions); code != http.StatusOK || len(suggestions.Items) != 2 {
		t.Fatalf("рекомендации: статус %d, %+v", code, suggestions)
	}
	if first := suggestions.Items[0]; first.UserID != 2 || !first.SimilarMood {
		t.Fatalf("первым ожидали автора 2 с тем же настроением, получили %+v", first)
	}
	if code := api.do(t, http.MethodGet, "/suggestions", 0, nil, &errorResponse{}); code != http.StatusUnauthorized {
		t.Fatalf("анонимные рекомендации: ожидали 401, получили %d", code)
	}
}
