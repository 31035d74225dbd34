package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// cloudinaryAPI is the slice of the Cloudinary SDK used here.
type cloudinaryAPI interface {
	Upload(ctx context.Context, file any, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Cloudinary stores images on Cloudinary.
type Cloudinary struct {
	api       cloudinaryAPI
	cloudName string
}

// NewCloudinary builds a Cloudinary host from account credentials.
func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{api: &cld.Upload, cloudName: cloudName}, nil
}

func (c *Cloudinary) Name() string { return "cloudinary" }

// Upload sends a data URI to Cloudinary under folder.
func (c *Cloudinary) Upload(ctx context.Context, data, folder string) (*Asset, error) {
	if _, _, _, err := decodeImage(data); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.TrimSpace(data), "data:") {
		data = "data:image/jpeg;base64," + strings.TrimSpace(data)
	}
	res, err := c.api.Upload(ctx, data, uploader.UploadParams{Folder: folder})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return &Asset{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

// DeleteAsset destroys the asset referenced by a Cloudinary delivery URL.
// URLs that do not point at Cloudinary are left alone.
func (c *Cloudinary) DeleteAsset(ctx context.Context, rawURL string) (bool, error) {
	id, ok := CloudinaryPublicID(rawURL)
	if !ok {
		return true, nil
	}
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{PublicID: id})
	if err != nil {
		return false, fmt.Errorf("cloudinary destroy %s: %w", id, err)
	}
	if res.Error.Message != "" {
		return false, fmt.Errorf("cloudinary destroy %s: %s", id, res.Error.Message)
	}
	return res.Result == "ok", nil
}

// Ping checks that credentials were supplied.
func (c *Cloudinary) Ping(context.Context) error {
	if c.api == nil || c.cloudName == "" {
		return errors.New("cloudinary: not configured")
	}
	return nil
}

// CloudinaryPublicID extracts the public id from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1712/recipes/pasta.jpg,
// which yields "recipes/pasta". Transformation segments before the version
// are skipped.
func CloudinaryPublicID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.HasSuffix(u.Host, "cloudinary.com") {
		return "", false
	}
	_, rest, ok := strings.Cut(u.Path, "/upload/")
	if !ok || rest == "" {
		return "", false
	}

	segs := strings.Split(rest, "/")
	for i, s := range segs {
		if isVersion(s) {
			segs = segs[i+1:]
			break
		}
	}
	// Without a version marker, leading transformation segments contain commas
	// or underscores with a key prefix such as "w_400,h_300".
	for len(segs) > 1 && isTransformation(segs[0]) {
		segs = segs[1:]
	}

	id := strings.Join(segs, "/")
	id = strings.TrimSuffix(id, path.Ext(id))
	if id == "" {
		return "", false
	}
	return id, true
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isTransformation(s string) bool {
	return len(s) > 2 && s[1] == '_' && (strings.Contains(s, ",") || strings.IndexByte("cwhqfgear", s[0]) >= 0)
}
