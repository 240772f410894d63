package main

import (
	"crypto/rand"
	"encoding/binary"
	"mime"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/bigbass1997/iars"
	"github.com/dchest/siphash"
)

type table struct {
	toplevel [8]hbucket
}

type hbucket struct {
	lock    sync.Mutex
	entries map[string]*cacheinfo
}

type cacheinfo struct {
	info    iars.FileInfo
	etag    string
	headers [][2]string
}

func (t *table) init() {
	for i := range t.toplevel {
		t.toplevel[i].entries = make(map[string]*cacheinfo)
	}
}

// siphash seeds; generated at start-up
var seed0, seed1 uint64

func init() {
	var buf [16]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		panic(err)
	}
	seed0 = binary.LittleEndian.Uint64(buf[:8])
	seed1 = binary.LittleEndian.Uint64(buf[8:])
}

func (t *table) bucket(name string) *hbucket {
	return &t.toplevel[siphash.Hash(seed0, seed1, []byte(name))&7]
}

func (t *table) update(meta *iars.FileInfo) {
	h := t.bucket(meta.Path)
	headers := fiheader(meta)
	h.lock.Lock()
	e, ok := h.entries[meta.Path]
	if !ok {
		e = new(cacheinfo)
		h.entries[meta.Path] = e
	}
	e.info = *meta
	e.etag = etag(meta)
	e.headers = headers
	h.lock.Unlock()
}

func (t *table) get(name string, out *cacheinfo) bool {
	var e *cacheinfo
	var ok bool
	h := t.bucket(name)
	h.lock.Lock()
	e, ok = h.entries[name]
	if ok {
		*out = *e
	}
	h.lock.Unlock()
	return ok
}

// drop every entry whose path isn't in present
func (t *table) prune(present map[string]struct{}) {
	for i := range t.toplevel {
		b := &t.toplevel[i]
		b.lock.Lock()
		for k := range b.entries {
			_, ok := present[k]
			if !ok {
				delete(b.entries, k)
			}
		}
		b.lock.Unlock()
	}
}

// The listing endpoint reports each file's MD5, which makes a
// fine ETag. Derived placeholders occasionally come back without
// one; hash the path and timestamp instead so conditional
// requests still behave.
func etag(fi *iars.FileInfo) string {
	if fi.ETag != "" {
		return fi.ETag
	}
	sum := siphash.Hash(seed0, seed1, []byte(fi.Path+"\x00"+fi.LastModified))
	return strconv.FormatUint(sum, 36)
}

func fiheader(fi *iars.FileInfo) [][2]string {
	ctype := mime.TypeByExtension(path.Ext(fi.Path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	out := [][2]string{
		{"Content-Type", ctype},
		{"Content-Length", strconv.FormatInt(fi.Size, 10)},
		{"ETag", etag(fi)},
	}
	if mod := fi.Modified(); !mod.IsZero() {
		out = append(out, [2]string{"Last-Modified", mod.Format(time.RFC1123)})
	}
	return out
}
