package httpapi

import "feed-engine/internal/domain"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type createPostRequest struct {
	AuthorID int64  `json:"author_id" validate:"omitempty,gt=0"`
	Body     string `json:"body" validate:"required"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
	ImageRef string `json:"image_ref" validate:"omitempty,max=2048"`
}

type replyRequest struct {
	Body     string `json:"body" validate:"required"`
	ImageRef string `json:"image_ref" validate:"omitempty,max=2048"`
}

type postResponse struct {
	domain.Post
	EmotionTagState domain.EmotionState `json:"emotion_tag_state"`
}

func newPostResponse(p domain.Post) postResponse {
	state := domain.EmotionNone
	if p.HasImage() {
		state = domain.EmotionPending
	}
	return postResponse{Post: p, EmotionTagState: state}
}

type applyResponse struct {
	Applied bool                `json:"applied"`
	Outcome domain.ApplyOutcome `json:"outcome"`
	Counts  domain.Counts       `json:"counts"`
}

type revokeResponse struct {
	Counts domain.Counts `json:"counts"`
}

type markReadResponse struct {
	Updated int64 `json:"updated"`
}
