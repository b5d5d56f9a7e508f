package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	xwebp "golang.org/x/image/webp"
)

const maxDownload = 5 << 20

// Cache keeps doctor images on disk as WebP, scaled down to fit maxPx, so
// appointment cards render offline.
type Cache struct {
	dir   string
	maxPx int
	http  *http.Client

	mu       sync.Mutex
	inflight map[string]bool
	sem      chan struct{}
	wg       sync.WaitGroup
}

func New(dir string, maxPx int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		maxPx:    maxPx,
		http:     &http.Client{Timeout: 20 * time.Second},
		inflight: map[string]bool{},
		sem:      make(chan struct{}, 4),
	}, nil
}

func (c *Cache) WithHTTPClient(h *http.Client) *Cache {
	c.http = h
	return c
}

func (c *Cache) pathFor(src string) string {
	sum := sha256.Sum256([]byte(src))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".webp")
}

// Path returns the cached file for src, if present.
func (c *Cache) Path(src string) (string, bool) {
	p := c.pathFor(src)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Prefetch downloads missing images in the background. Failures are logged
// and retried on the next call.
func (c *Cache) Prefetch(urls []string) {
	for _, src := range urls {
		if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
			continue
		}
		if _, ok := c.Path(src); ok {
			continue
		}

		c.mu.Lock()
		if c.inflight[src] {
			c.mu.Unlock()
			continue
		}
		c.inflight[src] = true
		c.mu.Unlock()

		c.wg.Add(1)
		go func(src string) {
			defer c.wg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.inflight, src)
				c.mu.Unlock()
			}()

			c.sem <- struct{}{}
			defer func() { <-c.sem }()

			if _, err := c.Fetch(context.Background(), src); err != nil {
				log.Printf("media prefetch %s: %v", src, err)
			}
		}(src)
	}
}

// Wait blocks until background prefetches finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Fetch downloads src, stores it and returns the cached path.
func (c *Cache) Fetch(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return "", err
	}
	img, err := decode(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, fit(img, c.maxPx), &webp.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	target := c.pathFor(src)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return target, nil
}

func decode(raw []byte, contentType string) (image.Image, error) {
	if strings.HasPrefix(contentType, "image/webp") {
		return xwebp.Decode(bytes.NewReader(raw))
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

// fit scales img down so neither side exceeds maxPx.
func fit(img image.Image, maxPx int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxPx && h <= maxPx {
		return img
	}
	if w >= h {
		h = h * maxPx / w
		w = maxPx
	} else {
		w = w * maxPx / h
		h = maxPx
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
