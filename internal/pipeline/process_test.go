package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/storage"
)

type fakeStagedLookup struct {
	byYouTubeID map[string]storage.StagedVideo
}

func (f *fakeStagedLookup) StagedByYouTubeID(ctx context.Context, youtubeID string) (storage.StagedVideo, bool, error) {
	v, ok := f.byYouTubeID[youtubeID]
	return v, ok, nil
}

func processVideoJob(t *testing.T, videoID string) *domain.Job {
	t.Helper()
	payload, err := json.Marshal(domain.ProcessVideoPayload{VideoID: videoID, BandID: "band-1"})
	if err != nil {
		t.Fatal(err)
	}
	return &domain.Job{ID: "j1", Type: domain.TypeProcessVideo, Payload: payload}
}

func TestVideoProcessor_PromotesStagedVideo(t *testing.T) {
	v := stagedVideo(0)
	repo := newFakePromotionRepo(v)
	lookup := &fakeStagedLookup{byYouTubeID: map[string]storage.StagedVideo{v.YouTubeID: v}}
	vp := NewVideoProcessor(lookup, NewPromoter(repo, zap.NewNop()), zap.NewNop())

	if err := vp.Handle(context.Background(), processVideoJob(t, v.YouTubeID)); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.public[v.YouTubeID]; !ok {
		t.Error("video was not promoted")
	}
}

func TestVideoProcessor_NothingStagedIsANoop(t *testing.T) {
	repo := newFakePromotionRepo()
	lookup := &fakeStagedLookup{byYouTubeID: map[string]storage.StagedVideo{}}
	vp := NewVideoProcessor(lookup, NewPromoter(repo, zap.NewNop()), zap.NewNop())

	if err := vp.Handle(context.Background(), processVideoJob(t, "yt-missing")); err != nil {
		t.Errorf("missing staged row must not fail the job, got %v", err)
	}
	if len(repo.public) != 0 {
		t.Error("nothing should have been promoted")
	}
}

func TestVideoProcessor_UnmatchedVideoLeftForMatcher(t *testing.T) {
	v := stagedVideo(0)
	v.BandID = ""
	repo := newFakePromotionRepo(v)
	lookup := &fakeStagedLookup{byYouTubeID: map[string]storage.StagedVideo{v.YouTubeID: v}}
	vp := NewVideoProcessor(lookup, NewPromoter(repo, zap.NewNop()), zap.NewNop())

	if err := vp.Handle(context.Background(), processVideoJob(t, v.YouTubeID)); err != nil {
		t.Fatal(err)
	}
	if len(repo.public) != 0 {
		t.Error("unmatched video must not be promoted")
	}
}

func TestVideoProcessor_BadPayloadIsConfiguration(t *testing.T) {
	vp := NewVideoProcessor(&fakeStagedLookup{}, NewPromoter(newFakePromotionRepo(), zap.NewNop()), zap.NewNop())

	job := &domain.Job{ID: "j1", Type: domain.TypeProcessVideo, Payload: []byte("{not json")}
	err := vp.Handle(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	if _, ok := err.(*domain.ConfigurationError); !ok {
		t.Errorf("err = %T, want ConfigurationError", err)
	}
}
