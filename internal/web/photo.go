package web

import (
	"context"
	"strconv"
	"sync"

	"github.com/cjeanneret/camplay/internal/imagefile"
)

// PhotoMeta describes the photo currently shown.
type PhotoMeta struct {
	Version        int `json:"version"`
	Width          int `json:"width"`
	Height         int `json:"height"`
	OriginalWidth  int `json:"original_width"`
	OriginalHeight int `json:"original_height"`
	ScaleFactor    int `json:"scale_factor"`
}

// PhotoView is the browser's image view: it keeps the last displayed
// photo and tells connected clients to reload it.
type PhotoView struct {
	broadcaster *StatusBroadcaster

	mu   sync.RWMutex
	jpeg []byte
	meta PhotoMeta
}

// NewPhotoView creates an empty view. broadcaster may be nil.
func NewPhotoView(b *StatusBroadcaster) *PhotoView {
	return &PhotoView{broadcaster: b}
}

// Display stores photo and announces it to the UI.
func (v *PhotoView) Display(_ context.Context, photo *imagefile.Photo) error {
	v.mu.Lock()
	v.jpeg = photo.JPEG
	v.meta = PhotoMeta{
		Version:        v.meta.Version + 1,
		Width:          photo.Width(),
		Height:         photo.Height(),
		OriginalWidth:  photo.Options.OriginalWidth,
		OriginalHeight: photo.Options.OriginalHeight,
		ScaleFactor:    photo.Options.ScaleFactor,
	}
	version := v.meta.Version
	v.mu.Unlock()

	if v.broadcaster != nil {
		v.broadcaster.Broadcast(LevelPhoto, strconv.Itoa(version))
	}
	return nil
}

// Latest returns the current JPEG and its metadata. ok is false when
// nothing has been displayed yet.
func (v *PhotoView) Latest() (data []byte, meta PhotoMeta, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.jpeg == nil {
		return nil, PhotoMeta{}, false
	}
	return v.jpeg, v.meta, true
}
