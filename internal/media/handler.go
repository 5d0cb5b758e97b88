package media

import (
	"bytes"
	"context"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/apperr"
	applog "blogpress/app/internal/log"
)

const (
	thumbnailPrefix = "thumbnails/"
	defaultTimeout  = 15 * time.Second
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// HandlerOptions wires a Handler.
type HandlerOptions struct {
	Store    ObjectStore
	MaxBytes int64
	Timeout  time.Duration
	Logger   *logrus.Logger
}

// Handler screens uploads and hands accepted ones to the object store.
type Handler struct {
	store    ObjectStore
	maxBytes int64
	timeout  time.Duration
	logger   *logrus.Entry
	newKey   func(ext string) string
}

// NewHandler validates opts and returns a Handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Store == nil {
		return nil, eris.New("object store is required")
	}
	if opts.MaxBytes <= 0 {
		return nil, eris.New("max upload size must be greater than zero")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Handler{
		store:    opts.Store,
		maxBytes: opts.MaxBytes,
		timeout:  timeout,
		logger:   applog.Component(opts.Logger, "media"),
		newKey: func(ext string) string {
			return thumbnailPrefix + uuid.NewString() + ext
		},
	}, nil
}

// MaxBytes is the upload ceiling.
func (h *Handler) MaxBytes() int64 { return h.maxBytes }

// Accept checks the declared type, size and sniffed content of up, then stores it.
// Nothing reaches the store unless every check passes.
func (h *Handler) Accept(ctx context.Context, up Upload) (string, error) {
	if up.Body == nil {
		return "", eris.New("upload body is required")
	}

	declared := baseType(up.ContentType)
	if !allowedTypes[declared] {
		return "", eris.Wrapf(apperr.ErrUnsupportedMediaType, "declared type %q is not an allowed image", up.ContentType)
	}
	if up.Size > h.maxBytes {
		return "", eris.Wrapf(apperr.ErrPayloadTooLarge, "upload of %d bytes exceeds %d", up.Size, h.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, h.maxBytes+1))
	if err != nil {
		return "", eris.Wrap(err, "reading upload")
	}
	if int64(len(data)) > h.maxBytes {
		return "", eris.Wrapf(apperr.ErrPayloadTooLarge, "upload exceeds %d bytes", h.maxBytes)
	}

	detected := mimetype.Detect(data)
	sniffed := baseType(detected.String())
	if !allowedTypes[sniffed] {
		return "", eris.Wrapf(apperr.ErrUnsupportedMediaType, "content sniffed as %q", detected.String())
	}

	key := h.newKey(detected.Extension())

	storeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ref, err := h.store.Put(storeCtx, key, sniffed, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrapf(err, "storing upload %s", key)
	}

	h.logger.WithFields(logrus.Fields{
		"key":          key,
		"content_type": sniffed,
		"size":         len(data),
	}).Info("stored upload")

	return ref, nil
}

// Release deletes ref from the store. Failures are logged and swallowed so that cleanup
// never fails the operation that triggered it.
func (h *Handler) Release(ctx context.Context, ref string) {
	if strings.TrimSpace(ref) == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	if err := h.store.Delete(deleteCtx, ref); err != nil {
		h.logger.WithError(err).WithField("ref", ref).Warn("failed to release stored object")
		return
	}

	h.logger.WithField("ref", ref).Debug("released stored object")
}

func baseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return strings.ToLower(mediaType)
}
