package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-passport-reader/models"
	"go-passport-reader/mrz"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_NO_FILE_PART = "No file part"
const ERR_NO_SELECTED_FILE = "No selected file"
const ERR_UNREADABLE_IMAGE = "Unable to read image. Please try again later."
const ERR_METHOD_NOT_ALLOWED = "method not allowed"

const formFileField = "file"

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	UseTls         bool   `json:"use_tls,omitempty"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty"`
	TlsCertPath    string `json:"tls_cert_path,omitempty"`
}

type ServerState struct {
	uploads        *UploadStore
	extractor      IdentityExtractor
	maxUploadBytes int64
	allowedOrigins []string
	staticDir      string
}

type SpaHandler struct {
	staticPath string
	indexPath  string
}

type Server struct {
	server *http.Server
	config ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down server")
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// ServeHTTP inspects the URL path to locate a file within the static dir
// on the SPA handler. If a file is found, it will be served. If not, the
// file located at the index path on the SPA handler will be served. This
// is suitable behavior for serving an SPA (single page application).
// https://github.com/gorilla/mux?tab=readme-ov-file#serving-single-page-applications
func (h SpaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Debug("SPA handler serving request", "path", r.URL.Path)
	// Join internally call path.Clean to prevent directory traversal
	path := filepath.Join(h.staticPath, r.URL.Path)
	// check whether a file exists or is a directory at the given path
	fi, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		// file does not exist or path is a directory, serve index.html
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	if err != nil {
		slog.Error("Error stating file", "path", path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	router := NewRouter(state)

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler: router,
		Addr:    addr,
		// OCR on a full page takes seconds on CPU
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  30 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

// NewRouter returns the API routes wrapped in the CORS handler.
func NewRouter(state *ServerState) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		if err := writeJSON(w, http.StatusOK, map[string]bool{"ok": true}); err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/extract-data", func(w http.ResponseWriter, r *http.Request) {
		handleExtractData(state, w, r)
	}).Methods(http.MethodPost)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithErr(w, http.StatusMethodNotAllowed, ERR_METHOD_NOT_ALLOWED, "invalid method", fmt.Errorf("%s %s", r.Method, r.URL.Path))
	})

	slog.Debug("Registered all API routes")

	if state.staticDir != "" {
		spa := SpaHandler{staticPath: state.staticDir, indexPath: "index.html"}
		// API paths keep their 404 and 405 answers
		router.PathPrefix("/").MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return !isAPIPath(r.URL.Path)
		}).Handler(spa)
	}

	return corsHandler(state.allowedOrigins)(router)
}

func isAPIPath(path string) bool {
	return path == "/extract-data" || strings.HasPrefix(path, "/api/")
}

func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Requested-With"}),
		handlers.MaxAge(600),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}

func handleExtractData(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	slog.Info("Received request to extract passport data")

	if state.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, state.maxUploadBytes)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, ERR_NO_FILE_PART, "failed to read multipart form", err)
		return
	}

	part, err := nextFilePart(reader, formFileField)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, ERR_NO_FILE_PART, "missing file part", err)
		return
	}
	defer part.Close()

	filename := part.FileName()
	if filename == "" {
		respondWithErr(w, http.StatusBadRequest, ERR_NO_SELECTED_FILE, "empty file name", nil)
		return
	}

	identity, err := extractUpload(r.Context(), state, part, filename)
	switch {
	case errors.Is(err, errUnreadableBody):
		respondWithErr(w, http.StatusBadRequest, ERR_NO_FILE_PART, "failed to read file part", err)
		return
	case errors.Is(err, ErrExtractionFailed):
		respondWithErr(w, http.StatusBadRequest, ERR_UNREADABLE_IMAGE, "failed to extract passport data", err)
		return
	case err != nil:
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "passport extraction pipeline failed", err)
		return
	}

	response := models.ExtractionResponse{
		Name:           identity.Name,
		PassportNumber: identity.PassportNumber,
		ExpirationDate: identity.ExpirationDate,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}

	slog.Info("Passport data extracted successfully")
}

var (
	errNoFilePart     = errors.New("no file part in form")
	errUnreadableBody = errors.New("request body unreadable")
)

// nextFilePart returns the first part named field that carries a filename
// parameter. Parts without one are plain form values and are skipped. An
// empty filename="" still marks a file part.
func nextFilePart(reader *multipart.Reader, field string) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFilePart
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == field && hasFileName(part) {
			return part, nil
		}
		part.Close()
	}
}

func hasFileName(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

// extractUpload stores the upload and runs the extractor on it. The stored
// file is gone by the time it returns.
func extractUpload(ctx context.Context, state *ServerState, src io.Reader, filename string) (mrz.Identity, error) {
	body := &readErrorRecorder{r: src}
	upload, err := state.uploads.Save(body, filename)
	if err != nil {
		if body.err != nil {
			return mrz.Identity{}, fmt.Errorf("%w: %w", errUnreadableBody, body.err)
		}
		return mrz.Identity{}, err
	}
	defer upload.Remove()
	slog.Debug("Upload stored", "upload_id", upload.Id)

	return state.extractor.Extract(ctx, upload.Path)
}

// readErrorRecorder keeps the first read error other than io.EOF, so a
// truncated or oversized body can be told apart from a failing disk.
type readErrorRecorder struct {
	r   io.Reader
	err error
}

func (r *readErrorRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}

// -----------------------------------------------------------------------------------

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	if code >= http.StatusInternalServerError {
		slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	} else {
		slog.Warn(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	}
	if err := writeJSON(w, code, models.ErrorResponse{Error: responseBody}); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}

// allowedOriginsFromList splits a comma separated origin list.
func allowedOriginsFromList(list string) []string {
	var origins []string
	for _, origin := range strings.Split(list, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
