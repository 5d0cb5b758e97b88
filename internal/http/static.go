package http

import (
	stdhttp "net/http"
	"strings"
)

func (s *Server) registerUploadRoute() {
	if s.uploads.Dir == "" {
		return
	}

	prefix := "/" + strings.Trim(s.uploads.Prefix, "/")
	if prefix == "/" {
		prefix = "/uploads"
	}

	files := stdhttp.StripPrefix(prefix+"/", stdhttp.FileServer(stdhttp.Dir(s.uploads.Dir)))
	handler := stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			stdhttp.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})

	s.mux.Handle("GET "+prefix+"/", handler)
}
