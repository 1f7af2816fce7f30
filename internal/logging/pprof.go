package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
)

// startPprof exposes net/http/pprof's profiling endpoints on addr, falling
// back to localhost:6060 when unset. Gated behind Config.PprofEnabled and
// always bound to loopback-style addresses the caller chooses — never
// started on the daemon's own namespace listener.
func startPprof(addr string) {
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		Logger().Info("pprof_server_start", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			Logger().Error("pprof_server_error", slog.String("error", err.Error()))
		}
	}()
}
