package apiServer

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithQRCodec installs the QR image boundary. Without it the server
// still runs; QR-dependent responses just omit the image.
func WithQRCodec(codec QRCodec) Option {
	return func(s *Server) {
		if codec != nil {
			s.qr = codec
		}
	}
}

// WithBaseURL sets the public base used to build capsule short URLs.
func WithBaseURL(baseURL string) Option {
	return func(s *Server) {
		if baseURL != "" {
			s.baseURL = baseURL
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// writeError emits the uniform error shape; hint and help may be empty.
func writeError(w http.ResponseWriter, status int, message, hint, help string) {
	body := map[string]string{"error": message}
	if hint != "" {
		body["hint"] = hint
	}
	if help != "" {
		body["help"] = help
	}
	writeJSON(w, status, body)
}

func (s *Server) helpURL() string {
	return s.baseURL + "/api/troubleshoot"
}

func (s *Server) shortURL(shortID string) string {
	return s.baseURL + "/q/" + shortID
}
