// Package video keeps the videos produced by completed jobs.
package video

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/pkg/models"
)

var (
	ErrNotFound  = errors.New("video not found")
	ErrDuplicate = errors.New("video already recorded")
)

const titleLength = 50

// Totals is what an owner has generated so far. Deleting a video does not
// reduce it.
type Totals struct {
	VideosGenerated      int `json:"videos_generated"`
	TotalDurationSeconds int `json:"total_duration_seconds"`
}

// Filter selects videos of one owner. Limit <= 0 returns everything.
type Filter struct {
	OwnerID string
	Status  models.VideoStatus
	Offset  int
	Limit   int
}

// Library is an in-process video catalogue.
type Library struct {
	mu     sync.RWMutex
	videos map[string]models.Video
	totals map[string]Totals
}

func NewLibrary() *Library {
	return &Library{
		videos: make(map[string]models.Video),
		totals: make(map[string]Totals),
	}
}

// FromResult builds the ready video that j produced.
func FromResult(j models.Job, res generation.Result, now time.Time) models.Video {
	duration := res.Duration
	if duration <= 0 {
		duration = j.Params.Duration
	}
	title := []rune(j.Params.Prompt)
	if len(title) > titleLength {
		title = title[:titleLength]
	}
	return models.Video{
		ID:           res.VideoID,
		OwnerID:      j.UserID,
		JobID:        j.ID,
		Title:        string(title),
		Description:  j.Params.Prompt,
		Duration:     duration,
		Resolution:   j.Params.Resolution,
		AspectRatio:  j.Params.AspectRatio,
		Style:        j.Params.Style,
		Model:        j.Params.Model,
		Status:       models.VideoStatusReady,
		URL:          res.URL,
		ThumbnailURL: res.ThumbnailURL,
		Metadata:     j.Params.Metadata,
		CreatedAt:    now.UTC(),
	}
}

// Record stores v and adds it to its owner's totals.
func (l *Library) Record(v models.Video) error {
	if v.ID == "" || v.OwnerID == "" {
		return fmt.Errorf("record video: id and owner are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.videos[v.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, v.ID)
	}
	l.videos[v.ID] = v
	t := l.totals[v.OwnerID]
	t.VideosGenerated++
	t.TotalDurationSeconds += v.Duration
	l.totals[v.OwnerID] = t
	return nil
}

func (l *Library) Get(id string) (models.Video, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return v, nil
}

// List returns one page of matching videos, newest first, and the number of
// matches.
func (l *Library) List(f Filter) ([]models.Video, int) {
	l.mu.RLock()
	var out []models.Video
	for _, v := range l.videos {
		if v.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		out = append(out, v)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})

	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= total {
			return []models.Video{}, total
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	if out == nil {
		out = []models.Video{}
	}
	return out, total
}

// Delete removes a video. It reports whether it existed.
func (l *Library) Delete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.videos[id]; !ok {
		return false
	}
	delete(l.videos, id)
	return true
}

func (l *Library) Totals(ownerID string) Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals[ownerID]
}
