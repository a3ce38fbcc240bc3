// Package conversation holds the per-session transcript and uploaded images.
//
// A Store is not safe for concurrent use. Callers serialize events for one
// session (see storage.SessionStore.Do); separate sessions never share a Store.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imagechat/internal/imaging"
	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/providers"
)

// Decoder normalizes raw upload bytes
type Decoder interface {
	Normalize(data []byte) (*imaging.Result, error)
}

// Analyzer derives descriptive text for a freshly ingested image
type Analyzer interface {
	Analyze(ctx context.Context, img *providers.Image) (*models.Analysis, error)
}

// ModelClient answers a prompt, optionally about an image
type ModelClient interface {
	Generate(ctx context.Context, prompt string, history []providers.Turn, img *providers.Image) (string, error)
}

// State of a store
type State int

const (
	StateEmpty State = iota
	StatePopulated
)

func (s State) String() string {
	if s == StateEmpty {
		return "empty"
	}
	return "populated"
}

// Upload is one file of a batch ingestion
type Upload struct {
	Key  string
	Data []byte
}

type Store struct {
	messages  []models.Message
	images    map[string]*models.Image
	activeKey string

	decoder  Decoder
	analyzer Analyzer
	client   ModelClient
	now      func() time.Time
}

// New returns an empty store. analyzer may be nil, in which case images are
// stored without analysis.
func New(decoder Decoder, client ModelClient, analyzer Analyzer) *Store {
	return &Store{
		images:   make(map[string]*models.Image),
		decoder:  decoder,
		analyzer: analyzer,
		client:   client,
		now:      time.Now,
	}
}

// IngestImage normalizes data and stores it under key, making it the active
// image. An existing key is replaced and its analysis recomputed. An empty key
// gets a generated one. On a decode failure the store is left untouched.
func (s *Store) IngestImage(ctx context.Context, key string, data []byte) (*models.Image, error) {
	if key == "" {
		key = uuid.NewString()
	}

	res, err := s.decoder.Normalize(data)
	if err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}

	img := &models.Image{
		Key:          key,
		Data:         res.Data,
		MIMEType:     res.MIMEType,
		SourceFormat: res.SourceFormat,
		Width:        res.Width,
		Height:       res.Height,
		OriginalSize: res.OriginalSize,
		Size:         len(res.Data),
		UploadedAt:   s.now(),
	}

	if s.analyzer != nil {
		analysis, err := s.analyzer.Analyze(ctx, payload(img))
		if err != nil {
			slog.Warn("Image analysis failed, storing without analysis", "key", key, "error", err)
		} else {
			img.Analysis = analysis
		}
	}

	if _, exists := s.images[key]; exists {
		slog.Info("Replacing image", "key", key)
	}
	s.images[key] = img
	s.activeKey = key

	slog.Info("Image ingested", "key", key, "source_format", res.SourceFormat, "width", res.Width, "height", res.Height, "size", img.Size)
	return img, nil
}

// IngestBatch ingests uploads in order. Each upload is atomic on its own;
// failures are joined and returned alongside the images that succeeded. The
// last successful upload ends up active.
func (s *Store) IngestBatch(ctx context.Context, uploads []Upload) ([]*models.Image, error) {
	var (
		ingested []*models.Image
		errs     []error
	)
	for _, u := range uploads {
		img, err := s.IngestImage(ctx, u.Key, u.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ingested = append(ingested, img)
	}
	return ingested, errors.Join(errs...)
}

// SelectImage makes key the active image
func (s *Store) SelectImage(key string) error {
	if _, ok := s.images[key]; !ok {
		return &NotFoundError{Key: key}
	}
	s.activeKey = key
	return nil
}

// Image returns the image stored under key
func (s *Store) Image(key string) (*models.Image, error) {
	img, ok := s.images[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return img, nil
}

// RemoveImage deletes one image, clearing the active key if it pointed there.
func (s *Store) RemoveImage(key string) error {
	if _, ok := s.images[key]; !ok {
		return &NotFoundError{Key: key}
	}
	delete(s.images, key)
	if s.activeKey == key {
		s.activeKey = ""
	}
	return nil
}

// ClearImages removes every image and the active selection
func (s *Store) ClearImages() {
	s.images = make(map[string]*models.Image)
	s.activeKey = ""
}

// ActiveKey returns the active image key, or "" when none is selected
func (s *Store) ActiveKey() string {
	return s.activeKey
}

// ActiveImage returns the active image, if any
func (s *Store) ActiveImage() (*models.Image, bool) {
	if s.activeKey == "" {
		return nil, false
	}
	img, ok := s.images[s.activeKey]
	return img, ok
}

// Images returns the stored images sorted by key
func (s *Store) Images() []*models.Image {
	out := make([]*models.Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Messages returns a copy of the transcript
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) State() State {
	if len(s.messages) == 0 && len(s.images) == 0 {
		return StateEmpty
	}
	return StatePopulated
}

func payload(img *models.Image) *providers.Image {
	return &providers.Image{MIMEType: img.MIMEType, Data: img.Data}
}
