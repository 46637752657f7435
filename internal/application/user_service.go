package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	repo "github.com/oksasatya/tourauth/internal/domain/repository"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
)

var (
	ErrPhotoStorageDisabled = errors.New("photo storage not configured")
	ErrSearchDisabled       = errors.New("user search not configured")
)

// UserService serves the signed-in user's profile and the admin directory.
type UserService struct {
	Repo         repo.UserRepository
	GCS          *storage.Client
	GCSBucket    string
	ES           *elasticsearch.Client
	ESUsersIndex string
	Logger       *logrus.Logger
}

func NewUserService(r repo.UserRepository, gcs *storage.Client, gcsBucket string, es *elasticsearch.Client, esUsersIndex string, logger *logrus.Logger) *UserService {
	if logger == nil {
		logger = helpers.NewDiscardLogger()
	}
	return &UserService{
		Repo:         r,
		GCS:          gcs,
		GCSBucket:    gcsBucket,
		ES:           es,
		ESUsersIndex: esUsersIndex,
		Logger:       logger,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	return s.Repo.FindByID(ctx, userID)
}

// UploadPhoto stores an image in GCS, points the user's photo at it and
// removes the photo it replaces when that one lives in the same bucket.
func (s *UserService) UploadPhoto(ctx context.Context, userID string, r io.Reader, filename, contentType string) (*entity.User, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperror.Validation("Not an image! Please upload only images.", map[string]string{"photo": "must be an image"})
	}
	if s.GCS == nil || s.GCSBucket == "" {
		return nil, apperror.Internal(ErrPhotoStorageDisabled)
	}
	u, err := s.Repo.FindByID(ctx, userID, repo.WithSecrets())
	if err != nil {
		return nil, err
	}
	previous := u.Photo

	url, err := helpers.UploadObject(ctx, s.GCS, helpers.ObjectUpload{
		Bucket:       s.GCSBucket,
		Path:         photoObjectPath(userID, filename),
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
		Metadata:     map[string]string{"user_id": userID},
	}, r)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	u.Photo = url
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{}); err != nil {
		return nil, err
	}
	s.IndexUser(ctx, u)

	if old, ok := helpers.ObjectPathFromURL(s.GCSBucket, previous); ok {
		if err := helpers.DeleteObject(ctx, s.GCS, s.GCSBucket, old); err != nil {
			s.Logger.WithError(err).WithField("object", old).Warn("old photo not removed")
		}
	}
	return u, nil
}

func photoObjectPath(userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
	default:
		ext = ""
	}
	return "users/" + userID + "/" + uuid.NewString() + ext
}

// IndexUser writes the public profile to the search index. Failures are logged only.
func (s *UserService) IndexUser(ctx context.Context, u *entity.User) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	if err := helpers.IndexDocument(ctx, s.ES, s.ESUsersIndex, u.ID, u.Public()); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
	}
}

// UserQuery filters the admin directory. An empty Text matches everyone.
type UserQuery struct {
	Text string
	Role entity.Role
	Size int
}

func (q UserQuery) body() map[string]any {
	var must any = map[string]any{"match_all": map[string]any{}}
	if t := strings.TrimSpace(q.Text); t != "" {
		must = map[string]any{"multi_match": map[string]any{"query": t, "fields": []string{"email^2", "name"}}}
	}
	boolQ := map[string]any{"must": must}
	if q.Role != "" {
		boolQ["filter"] = map[string]any{"term": map[string]any{"role": string(q.Role)}}
	}
	return map[string]any{"query": map[string]any{"bool": boolQ}, "size": q.Size}
}

// SearchUsers queries the user index for the admin directory.
func (s *UserService) SearchUsers(ctx context.Context, q UserQuery) ([]entity.PublicUser, error) {
	if q.Role != "" && !q.Role.Valid() {
		return nil, apperror.Validation("Invalid input data", map[string]string{"role": "must be one of: user, guide, lead-guide, admin"})
	}
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil, apperror.Internal(ErrSearchDisabled)
	}
	if q.Size <= 0 || q.Size > 50 {
		q.Size = 10
	}
	b, err := json.Marshal(q.body())
	if err != nil {
		return nil, apperror.Internal(err)
	}

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(s.ES.Search.WithContext(c), s.ES.Search.WithIndex(s.ESUsersIndex), s.ES.Search.WithBody(bytes.NewReader(b)))
	if err != nil {
		return nil, apperror.Internal(err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, apperror.Internal(errors.New("es search: " + res.Status()))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source entity.PublicUser `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperror.Internal(err)
	}

	out := make([]entity.PublicUser, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

var _ UserIndexer = (*UserService)(nil)
