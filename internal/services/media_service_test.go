package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-recipe-backend/internal/media"
)

// uploadHost records the folder of the last upload and returns err when set.
type uploadHost struct {
	recordingHost
	folder string
	err    error
}

func (h *uploadHost) Upload(_ context.Context, _ string, folder string) (*media.Asset, error) {
	h.folder = folder
	if h.err != nil {
		return nil, h.err
	}
	return &media.Asset{URL: "https://cdn.test/" + folder + "/a.jpg", PublicID: folder + "/a"}, nil
}

func TestMediaService_Upload(t *testing.T) {
	ctx := context.Background()
	host := &uploadHost{}
	svc := &MediaService{Host: host, Gate: testGate(), Folder: "dishes"}

	a, err := svc.Upload(ctx, alice, "data:image/png;base64,iVBORw0KGgo=", "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if host.folder != "dishes" || a.PublicID != "dishes/a" {
		t.Fatalf("folder = %q, asset = %+v", host.folder, a)
	}

	if _, err := svc.Upload(ctx, alice, "aGk=", "/custom/"); err != nil || host.folder != "custom" {
		t.Fatalf("custom folder: folder=%q err=%v", host.folder, err)
	}
}

func TestMediaService_Upload_Errors(t *testing.T) {
	ctx := context.Background()

	svc := &MediaService{Host: &uploadHost{}, Gate: testGate()}
	if _, err := svc.Upload(ctx, anon, "aGk=", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous: want ErrForbidden, got %v", err)
	}

	var ve *ValidationError
	if _, err := svc.Upload(ctx, alice, "  ", ""); !errors.As(err, &ve) || !ve.Has("image") {
		t.Fatalf("blank image: want image violation, got %v", err)
	}
	if _, err := svc.Upload(ctx, alice, "aGk=", "../etc"); !errors.As(err, &ve) || !ve.Has("folder") {
		t.Fatalf("bad folder: want folder violation, got %v", err)
	}

	svc.Host = &uploadHost{err: media.ErrInvalidImage}
	if _, err := svc.Upload(ctx, alice, "nope", ""); !errors.As(err, &ve) || !ve.Has("image") {
		t.Fatalf("invalid image: want image violation, got %v", err)
	}

	svc.Host = media.Noop{}
	if _, err := svc.Upload(ctx, alice, "aGk=", ""); !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("noop host: want ErrMediaUnavailable, got %v", err)
	}

	boom := errors.New("boom")
	svc.Host = &uploadHost{err: boom}
	if _, err := svc.Upload(ctx, alice, "aGk=", ""); !errors.Is(err, boom) {
		t.Fatalf("host error: want passthrough, got %v", err)
	}
}
