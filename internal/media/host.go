// Package media talks to the image host that stores recipe photos. The
// recipe service only needs two things from it: upload an image and delete
// an asset by its public URL. Cloudinary and S3 are supported; Noop is used
// when no provider is configured.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidImage is returned when upload data is not a decodable image.
var ErrInvalidImage = errors.New("invalid image data")

// Asset is an uploaded image.
type Asset struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// Host is a remote media store.
type Host interface {
	// Name identifies the provider in logs and health output.
	Name() string
	// Upload stores data (a data URI, or raw base64) under folder.
	Upload(ctx context.Context, data, folder string) (*Asset, error)
	// DeleteAsset removes the asset behind url. It returns false, nil when
	// the host answered but did not delete anything, and true, nil for URLs
	// the host does not own.
	DeleteAsset(ctx context.Context, url string) (bool, error)
	// Ping reports whether the host is configured and reachable.
	Ping(ctx context.Context) error
}

// Noop is the Host used when media hosting is disabled. Deletes succeed and
// uploads are refused.
type Noop struct{}

// ErrMediaDisabled is returned by Noop.Upload.
var ErrMediaDisabled = errors.New("media host not configured")

func (Noop) Name() string { return "none" }

func (Noop) Upload(context.Context, string, string) (*Asset, error) {
	return nil, ErrMediaDisabled
}

func (Noop) DeleteAsset(context.Context, string) (bool, error) { return true, nil }

func (Noop) Ping(context.Context) error { return ErrMediaDisabled }

// decodeImage accepts "data:image/png;base64,...." or bare base64 and returns
// the bytes together with the MIME type and file extension.
func decodeImage(data string) ([]byte, string, string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, "", "", ErrInvalidImage
	}
	mime := "image/jpeg"
	if strings.HasPrefix(data, "data:") {
		meta, payload, ok := strings.Cut(data[len("data:"):], ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", "", ErrInvalidImage
		}
		mime = strings.TrimSuffix(meta, ";base64")
		data = payload
	}
	ext, ok := imageExt[mime]
	if !ok {
		return nil, "", "", ErrInvalidImage
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(raw) == 0 {
		return nil, "", "", ErrInvalidImage
	}
	return raw, mime, ext, nil
}

var imageExt = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}
