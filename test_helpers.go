package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"go-passport-reader/mrz"

	"github.com/stretchr/testify/require"
)

var testConfig = ServerConfig{
	Host:           "localhost",
	Port:           8081,
	UseTls:         false,
	TlsCertPath:    "",
	TlsPrivKeyPath: "",
}

const (
	specimenLine1 = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<"
	specimenLine2 = "L898902C36UTO7408122F1204159ZE184226B<<<<<10"
)

var specimenIdentity = mrz.Identity{
	Name:           "ANNA MARIA",
	PassportNumber: "L898902C3",
	ExpirationDate: "15/04/2012",
}

func newTestState(t *testing.T, extractor IdentityExtractor) (*ServerState, *InMemoryUploadRegistry) {
	t.Helper()
	registry := NewInMemoryUploadRegistry()
	uploads, err := NewUploadStore(t.TempDir(), registry)
	require.NoError(t, err)

	return &ServerState{
		uploads:        uploads,
		extractor:      extractor,
		maxUploadBytes: defaultMaxUploadBytes,
		allowedOrigins: []string{"*"},
	}, registry
}

func startTestServer(t *testing.T, state *ServerState) *Server {
	t.Helper()

	srv, err := NewServer(state, testConfig)
	require.NoError(t, err)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()

	waitUntilHealthy(t, "http://localhost:8081/api/health")
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Logf("error shutting down server: %v", err)
		}
	})
	return srv
}

func waitUntilHealthy(t *testing.T, url string) {
	t.Helper()
	const maxAttempts = 50
	for i := 0; i < maxAttempts; i++ {
		if resp, err := http.Get(url); err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start in time")
}

// multipartBody builds a form with a single file part.
func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postFile[T any](t *testing.T, url, filename string, content []byte) (*http.Response, []byte, *T) {
	t.Helper()

	body, contentType := multipartBody(t, formFileField, filename, content)
	resp, err := http.Post(url, contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "artifacts left behind in %s", dir)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(w/2, h/2, color.Gray{Y: 0})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// test doubles

// fakeExtractor records whether the upload existed while it ran.
type fakeExtractor struct {
	mu         sync.Mutex
	identity   mrz.Identity
	err        error
	sawUpload  bool
	uploadPath string
}

func (f *fakeExtractor) Extract(_ context.Context, uploadPath string) (mrz.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadPath = uploadPath
	_, statErr := os.Stat(uploadPath)
	f.sawUpload = statErr == nil
	return f.identity, f.err
}

type fakeLocator struct {
	roi   image.Image
	err   error
	calls int
}

func (f *fakeLocator) Locate(_ context.Context, page image.Image) (image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.roi != nil {
		return f.roi, nil
	}
	return page, nil
}

// fakeRecognizer returns canned lines and checks that the strip was written.
type fakeRecognizer struct {
	lines     []string
	err       error
	stripPath string
	stripSize image.Point
}

func (f *fakeRecognizer) RecognizeLines(_ context.Context, imagePath string) ([]string, error) {
	f.stripPath = imagePath
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg, err := png.DecodeConfig(file)
	if err != nil {
		return nil, err
	}
	f.stripSize = image.Pt(cfg.Width, cfg.Height)
	return f.lines, f.err
}
