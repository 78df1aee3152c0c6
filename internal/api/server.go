package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer returns a configured *http.Server for the operator API.
func NewServer(port uint16, h *HandlerProvider) *http.Server {
	addr := fmt.Sprintf(":%d", port)

	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
