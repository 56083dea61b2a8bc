// Package media loads the images and links a user attaches to a recap request.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxImages is the number of images a single request may carry.
	MaxImages = 5
	// MaxURLs is the number of links a single request may carry.
	MaxURLs = 5
	// MaxImageBytes caps the size of one image.
	MaxImageBytes = 10 << 20
)

var (
	ErrTooManyImages = fmt.Errorf("at most %d images are allowed", MaxImages)
	ErrTooManyURLs   = fmt.Errorf("at most %d URLs are allowed", MaxURLs)
	ErrNotImage      = errors.New("file is not an image")
	ErrImageTooLarge = fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
)

// Image is an inline image attachment.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// DataURL encodes the image as a data: URL for inline transmission.
func (img Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// NewImage validates raw bytes and sniffs their content type.
func NewImage(name string, data []byte) (Image, error) {
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("%s: %w", name, ErrImageTooLarge)
	}
	mt := http.DetectContentType(data)
	if !strings.HasPrefix(mt, "image/") {
		return Image{}, fmt.Errorf("%s (%s): %w", name, mt, ErrNotImage)
	}
	return Image{Name: name, MIMEType: mt, Data: data}, nil
}

// LoadFiles reads image files concurrently. The result preserves the order of paths.
func LoadFiles(ctx context.Context, paths []string) ([]Image, error) {
	if len(paths) > MaxImages {
		return nil, ErrTooManyImages
	}
	images := make([]Image, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()
			img, err := readImage(p, f)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// FromMultipart reads uploaded image files. Empty file inputs are skipped.
func FromMultipart(ctx context.Context, files []*multipart.FileHeader) ([]Image, error) {
	var nonEmpty []*multipart.FileHeader
	for _, fh := range files {
		if fh != nil && fh.Size > 0 {
			nonEmpty = append(nonEmpty, fh)
		}
	}
	if len(nonEmpty) > MaxImages {
		return nil, ErrTooManyImages
	}
	images := make([]Image, len(nonEmpty))
	g, ctx := errgroup.WithContext(ctx)
	for i, fh := range nonEmpty {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("open upload %s: %w", fh.Filename, err)
			}
			defer f.Close()
			img, err := readImage(fh.Filename, f)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func readImage(name string, r io.Reader) (Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", name, err)
	}
	return NewImage(name, data)
}

// NormalizeURLs trims the given links, drops blanks and checks that each is
// an absolute http(s) URL.
func NormalizeURLs(raw []string) ([]string, error) {
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse url %q: %w", s, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("url %q: only absolute http and https links are supported", s)
		}
		out = append(out, u.String())
	}
	if len(out) > MaxURLs {
		return nil, ErrTooManyURLs
	}
	return out, nil
}
