package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bigbass1997/iars"
)

var conffile string

func init() {
	flag.StringVar(&conffile, "c", "config.json", "path to config file")
}

type server struct {
	item *iars.Item
	conf Config
	meta table
}

func (s *server) allowsOrigin(origin string) bool {
	if len(s.conf.AllowedOrigins) == 0 {
		return true
	}
	for i := range s.conf.AllowedOrigins {
		if s.conf.AllowedOrigins[i] == "*" ||
			s.conf.AllowedOrigins[i] == origin {
			return true
		}
	}
	return false
}

func (s *server) options(req *http.Request, w http.ResponseWriter) {
	origin := req.Header.Get("Origin")
	if !s.allowsOrigin(origin) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h := w.Header()

	// The allowed methods are not going to change.
	// Allow browsers to cache these results for a
	// long time.
	h.Set("Access-Control-Max-Age", "86400")
	h["Access-Control-Allow-Origin"] = s.conf.AllowedOrigins
	h["Access-Control-Allow-Methods"] = []string{"GET", "HEAD"}
	w.WriteHeader(200)
}

func errconv(w http.ResponseWriter, err error) {
	if errors.Is(err, iars.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "not found")
		return
	}
	var apiErr *iars.Error
	if errors.As(err, &apiErr) {
		w.WriteHeader(apiErr.Status)
		io.WriteString(w, apiErr.Message)
		return
	}
	// if we can't reach the archive, call a spade a spade
	var netErr net.Error
	if errors.As(err, &netErr) {
		w.WriteHeader(502)
		io.WriteString(w, "bad gateway")
		return
	}
	log.Printf("error: %s", err)
	w.WriteHeader(500)
	io.WriteString(w, "internal server error")
}

func sethdr(w http.ResponseWriter, info *cacheinfo) {
	h := w.Header()
	for i := range info.headers {
		h.Set(info.headers[i][0], info.headers[i][1])
	}
}

func (s *server) loadconf() {
	s.conf = DefaultConfig

	f, err := os.Open(conffile)
	if err != nil {
		log.Fatalf("couldn't open config: %s", err)
	}
	defer f.Close()

	err = json.NewDecoder(f).Decode(&s.conf)
	if err != nil {
		log.Fatalf("couldn't parse config: %s", err)
	}

	err = s.conf.Validate()
	if err != nil {
		log.Fatalf("bad config: %s", err)
	}
}

func (s *server) earlyOut(w http.ResponseWriter, headers http.Header, info *cacheinfo) bool {
	if match := headers.Get("If-None-Match"); match != "" {
		if match == info.etag {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	if match := headers.Get("If-Modified-Since"); match != "" {
		after, err := time.Parse(time.RFC1123, match)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return true
		}
		mod := info.info.Modified()
		if !mod.IsZero() && !mod.After(after) {
			w.Header().Set("Last-Modified", mod.Format(time.RFC1123))
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	if len(req.URL.Path) <= 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if req.URL.Path[0] == '/' {
		req.URL.Path = req.URL.Path[1:]
	}
	var info cacheinfo
	if !s.meta.get(req.URL.Path, &info) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// see if we can bail out early based on a conditional op
	if req.Method == "GET" || req.Method == "HEAD" {
		if s.earlyOut(w, req.Header, &info) {
			return
		}
	}

	switch req.Method {
	case "GET":
		// TODO: support Range headers; they can be
		// forwarded directly to the download endpoint
		f, err := s.item.Download(info.info.Path)
		if err != nil {
			errconv(w, err)
			return
		}
		defer f.Body.Close()
		sethdr(w, &info)
		w.WriteHeader(200)
		io.Copy(w, f.Body)
	case "HEAD":
		sethdr(w, &info)
		w.WriteHeader(200)
	case "OPTIONS":
		s.options(req, w)
	default:
		h := w.Header()
		h["Allow"] = []string{"GET", "HEAD", "OPTIONS"}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// populate updates the metadata cache
func (s *server) populate() error {
	files, err := s.item.List()
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(files))
	for i := range files {
		present[files[i].Path] = struct{}{}
		s.meta.update(&files[i])
	}

	// now delete stuff that isn't present any more
	s.meta.prune(present)
	return nil
}

func main() {
	flag.Parse()
	s := new(server)
	s.meta.init()
	s.loadconf()

	item, err := iars.NewItem(s.conf.Identifier)
	if err != nil {
		log.Fatalf("bad identifier: %s", err)
	}
	if s.conf.AccessKey != "" {
		item.WithCredentials(&iars.Credentials{
			Access: s.conf.AccessKey,
			Secret: s.conf.SecretKey,
		})
	}
	s.item = item

	log.Println("downloading and indexing item metadata...")
	if err := s.populate(); err != nil {
		log.Fatalf("couldn't fill metadata cache: %s", err)
	}

	go func() {
		for range time.Tick(s.conf.RefreshInterval) {
			if err := s.populate(); err != nil {
				log.Printf("couldn't refresh metadata cache: %s", err)
			}
		}
	}()

	log.Printf("beginning server on %s", s.conf.LocalAddress)

	// use http.ServeMux for matching 'Host: '
	mux := http.NewServeMux()
	mux.Handle(s.conf.host+"/", s)

	if s.conf.useTLS {
		log.Fatal(http.ListenAndServeTLS(s.conf.LocalAddress, s.conf.CertFile, s.conf.PemFile, mux))
	} else {
		log.Fatal(http.ListenAndServe(s.conf.LocalAddress, mux))
	}
}
