// Package services – MediaService
//
// Image uploads go straight to the media host; the resulting URL is what
// clients put into a recipe's image list.
package services

import (
	"context"
	"errors"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/media"
)

// DefaultMediaFolder is used when neither the request nor the service
// names a folder.
const DefaultMediaFolder = "recipes"

// MediaService uploads images on behalf of authenticated users.
type MediaService struct {
	Host   media.Host
	Gate   *authz.Gate
	Folder string
}

// Upload stores image (a data URI or bare base64) under folder, or the
// service default when folder is blank.
func (s *MediaService) Upload(ctx context.Context, actor auth.Actor, image, folder string) (*media.Asset, error) {
	tr := otel.Tracer("services/MediaService")
	ctx, span := tr.Start(ctx, "Upload", trace.WithAttributes(attribute.Int("image.len", len(image))))
	defer span.End()

	if !s.Gate.Can(actor, authz.ObjMedia, authz.ActUpload) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(image) == "" {
		return nil, invalid("image", "is required")
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = s.Folder
	}
	if folder == "" {
		folder = DefaultMediaFolder
	}
	if strings.Contains(folder, "..") || len(folder) > 100 {
		return nil, invalid("folder", "is not a valid folder name")
	}
	if s.Host == nil {
		return nil, ErrMediaUnavailable
	}

	asset, err := s.Host.Upload(ctx, image, folder)
	switch {
	case err == nil:
		return asset, nil
	case errors.Is(err, media.ErrInvalidImage):
		return nil, invalid("image", "must be a base64 encoded jpeg, png, gif or webp image")
	case errors.Is(err, media.ErrMediaDisabled),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrMediaUnavailable
	default:
		span.RecordError(err)
		return nil, err
	}
}
