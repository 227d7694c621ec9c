// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rootserv

import (
	"chamber/pkg/logger"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RootServer holds a mux and the list of attached sub-handlers.
type RootServer struct {
	log        *logger.Logger
	addr       string
	mux        *http.ServeMux
	subservers map[string]string // path -> description
	mainPage   http.Handler      // optional subserver for '/'
}

// New creates a new RootServer bound to an address. /index and /metrics are
// always served.
func New(addr string) *RootServer {
	ms := &RootServer{
		addr:       addr,
		mux:        http.NewServeMux(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
	ms.mux.HandleFunc("/index", ms.handleIndex)
	ms.mux.Handle("/metrics", promhttp.Handler())
	ms.subservers["/metrics"] = "Prometheus metrics"
	ms.mux.HandleFunc("/", ms.handleRoot)
	return ms
}

// Attach registers a new subserver under a path.
// If path == "/", it becomes the main page.
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	ms.log.Info("Attach: %s", path)

	if path == "/" {
		ms.mainPage = handler
		return
	}

	// ServeMux subtree matching needs the trailing '/'
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	strip := strings.TrimRight(path, "/")
	ms.subservers[strip] = desc

	// subserver sees clean URLs
	ms.mux.Handle(path, http.StripPrefix(strip, handler))
}

// Handler is the full handler chain: access log, panic recovery, routes.
func (ms *RootServer) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(ms),
		handlers.PrintRecoveryStack(logger.IsDebug()),
	)
	return handlers.LoggingHandler(logger.Writer(), recovery(ms.mux))
}

// Println lets the server act as the recovery logger.
func (ms *RootServer) Println(v ...any) {
	ms.log.Error("%s", fmt.Sprint(v...))
}

func (ms *RootServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if ms.mainPage != nil {
		ms.mainPage.ServeHTTP(w, r)
		return
	}
	http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
}

// handleIndex generates the HTML index page listing all subservers.
func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	fmt.Fprintln(w, "<!DOCTYPE html><html><head><title>Chamber</title></head><body>")
	fmt.Fprintln(w, "<h1>Available Sub-Servers</h1><ul>")

	paths := make([]string, 0, len(ms.subservers))
	for path := range ms.subservers {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Fprintf(w, `<li><a href="%s">%s</a> - %s</li>`, path, path, ms.subservers[path])
	}

	fmt.Fprintln(w, "</ul></body></html>")
}

// Run starts serving and blocks until the context is canceled.
func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("Running on %s", ms.addr)

	srv := &http.Server{
		Addr:              ms.addr,
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ms.log.Error("shutdown: %v", err)
		}
		ms.log.Info("Stopped")
	case err := <-errCh:
		if err != nil {
			ms.log.Error("Stopped: %T %+v", err, err)
		}
	}
}
