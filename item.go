package iars

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Item represents a particular item on the Internet Archive.
//
// An item is a named container of files: a book, a song, a movie,
// a dataset, and so on. Its identifier is unique across the entire
// archive and is validated when the Item is constructed.
type Item struct {
	identifier      string
	creds           *Credentials
	userAgent       string
	keepOldVersions bool
	cascadeDelete   bool

	// Client is the http.Client used to make requests.
	// If Client is nil, then http.DefaultClient is used.
	Client *http.Client
}

// NewItem creates a reference to the item with the given
// identifier. It returns an InvalidIdentifierError if the
// identifier violates archive.org's naming rules; no network
// traffic is generated.
func NewItem(identifier string) (*Item, error) {
	if !ValidateIdentifier(identifier) {
		return nil, InvalidIdentifierError(identifier)
	}
	return &Item{
		identifier: identifier,
		userAgent:  DefaultUserAgent,
	}, nil
}

// Identifier returns the item's identifier.
func (it *Item) Identifier() string {
	return it.identifier
}

// WithCredentials attaches credentials to be used with all
// subsequent requests for this item. Passing nil clears any
// previously attached credentials.
//
// Operations that write to the item require credentials; reads of
// public items do not.
func (it *Item) WithCredentials(creds *Credentials) *Item {
	it.creds = creds
	return it
}

// WithUserAgent sets the User-Agent header sent with all requests
// for this item. An empty string restores DefaultUserAgent.
func (it *Item) WithUserAgent(ua string) *Item {
	if ua == "" {
		ua = DefaultUserAgent
	}
	it.userAgent = ua
	return it
}

// WithKeepOldVersions controls whether file writes and deletes
// keep a backup of the previous version of the file (the server
// moves it under history/files/). Disabled by default.
func (it *Item) WithKeepOldVersions(keep bool) *Item {
	it.keepOldVersions = keep
	return it
}

// WithCascadeDelete controls whether deleting an original file
// also deletes its derivatives. Disabled by default.
func (it *Item) WithCascadeDelete(cascade bool) *Item {
	it.cascadeDelete = cascade
	return it
}

func (it *Item) http() *http.Client {
	if it.Client == nil {
		return http.DefaultClient
	}
	return it.Client
}

// common headers for every request made on behalf of this item
func (it *Item) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", it.userAgent)
	if it.creds != nil {
		req.Header.Set("Authorization", it.creds.AuthorizationHeader())
	}
}

func boolHeader(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// UploadRequest describes a single file upload. It is consumed by
// one call to Item.Upload and not retained.
type UploadRequest struct {
	// Path is the destination of the file within the item,
	// including the file name (e.g. "a_directory/myfile.txt").
	Path string

	// Body supplies the file contents. Exactly Size bytes are
	// read from it; the server requires an accurate length up
	// front, so the payload cannot be streamed open-ended.
	Body io.Reader
	Size int64

	// ContentType and ContentMD5 are optional. ContentMD5, if
	// set, must be the base64-encoded MD5 digest of the payload;
	// the server rejects uploads whose digest doesn't match.
	ContentType string
	ContentMD5  string

	// Metadata holds item metadata pairs (e.g. collection,
	// title) recorded when the upload creates the item. If the
	// item already exists, or AutoMakeBucket is false, the
	// server silently discards these.
	Metadata map[string]string

	// AutoMakeBucket creates the item if it does not exist yet.
	AutoMakeBucket bool

	// Derive queues the server-side derive process after the
	// upload, producing secondary files (thumbnails, text
	// layers, transcodes) from the uploaded data.
	Derive bool
}

// Upload writes a single file into the item via the IAS3
// endpoint. Credentials are required; Upload returns
// ErrMissingCredentials before any network traffic if none are
// attached.
//
// Uploaded files may not be visible immediately: the archive
// queues tasks to process new content. Use SearchTasks to watch
// their progress.
func (it *Item) Upload(r *UploadRequest) error {
	if it.creds == nil {
		return ErrMissingCredentials
	}

	req, err := http.NewRequest("PUT", s3URL+"/"+it.identifier+"/"+r.Path, r.Body)
	if err != nil {
		return fmt.Errorf("iars upload %s/%s: %w", it.identifier, r.Path, err)
	}
	req.ContentLength = r.Size
	it.setHeaders(req)
	req.Header.Set("X-Amz-Auto-Make-Bucket", boolHeader(r.AutoMakeBucket))
	req.Header.Set("X-Archive-Queue-Derive", boolHeader(r.Derive))
	req.Header.Set("X-Archive-Keep-Old-Version", boolHeader(it.keepOldVersions))
	req.Header.Set("X-Archive-Size-Hint", strconv.FormatInt(r.Size, 10))
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if r.ContentMD5 != "" {
		req.Header.Set("Content-MD5", r.ContentMD5)
	}
	for k, v := range r.Metadata {
		req.Header.Set("X-Archive-Meta-"+k, v)
	}

	res, err := it.http().Do(req)
	if err != nil {
		return fmt.Errorf("iars upload %s/%s: %w", it.identifier, r.Path, err)
	}
	if !success(res.StatusCode) {
		return s3Error("upload", res)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	return nil
}

// FileInfo describes one file within an item, as reported by the
// file listing endpoint.
type FileInfo struct {
	Path         string // path of the file within the item
	LastModified string // server-supplied modification timestamp
	ETag         string // MD5 checksum of the file contents
	Size         int64
}

// Modified parses the file's modification timestamp. It returns
// the zero time if the server supplied none, or one in a format
// we don't recognize.
func (f *FileInfo) Modified() time.Time {
	for _, layout := range []string{
		"2006-01-02T15:04:05.000Z", // listing endpoint
		http.TimeFormat,            // Last-Modified header
	} {
		if t, err := time.Parse(layout, f.LastModified); err == nil {
			return t
		}
	}
	return time.Time{}
}

// the XML document returned by GET s3.us.archive.org/{identifier}
type listBucketResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		ETag         string `xml:"ETag"`
		Size         int64  `xml:"Size"`
	} `xml:"Contents"`
}

// List retrieves the listing of all files contained in the item,
// in the order the server returns them.
func (it *Item) List() ([]FileInfo, error) {
	req, err := http.NewRequest("GET", s3URL+"/"+it.identifier, nil)
	if err != nil {
		return nil, fmt.Errorf("iars list %s: %w", it.identifier, err)
	}
	it.setHeaders(req)

	res, err := it.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("iars list %s: %w", it.identifier, err)
	}
	if !success(res.StatusCode) {
		return nil, s3Error("list", res)
	}
	defer res.Body.Close()

	var result listBucketResult
	if err := xml.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("iars list %s: %w", it.identifier, err)
	}

	files := make([]FileInfo, 0, len(result.Contents))
	for i := range result.Contents {
		c := &result.Contents[i]
		files = append(files, FileInfo{
			Path:         c.Key,
			LastModified: c.LastModified,
			ETag:         strings.Trim(c.ETag, `"`),
			Size:         c.Size,
		})
	}
	return files, nil
}

// File is a downloaded file: its metadata, as far as the download
// endpoint reports it, and its contents.
type File struct {
	FileInfo

	// Body is the body of the file. The caller must close it
	// after reading.
	Body io.ReadCloser
}

// Download fetches a single file from the item. The filepath is
// the file's location within the item; use List to discover the
// available paths.
//
// The returned File streams the response body; it is the caller's
// responsibility to close File.Body. A missing file yields an
// error satisfying errors.Is(err, ErrNotFound).
func (it *Item) Download(filepath string) (*File, error) {
	req, err := http.NewRequest("GET", downloadURL+"/"+it.identifier+"/"+filepath, nil)
	if err != nil {
		return nil, fmt.Errorf("iars download %s/%s: %w", it.identifier, filepath, err)
	}
	it.setHeaders(req)

	res, err := it.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("iars download %s/%s: %w", it.identifier, filepath, err)
	}
	if res.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("iars download %s/%s: %w", it.identifier, filepath, ErrNotFound)
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return nil, s3Error("download", res)
	}

	return &File{
		FileInfo: FileInfo{
			Path:         filepath,
			LastModified: res.Header.Get("Last-Modified"),
			ETag:         strings.Trim(res.Header.Get("ETag"), `"`),
			Size:         res.ContentLength,
		},
		Body: res.Body,
	}, nil
}

// Delete removes a single file from the item. Credentials are
// required. The item's WithKeepOldVersions and WithCascadeDelete
// settings control whether a backup is kept and whether derived
// files are removed along with the original.
func (it *Item) Delete(filepath string) error {
	if it.creds == nil {
		return ErrMissingCredentials
	}

	req, err := http.NewRequest("DELETE", s3URL+"/"+it.identifier+"/"+filepath, nil)
	if err != nil {
		return fmt.Errorf("iars delete %s/%s: %w", it.identifier, filepath, err)
	}
	it.setHeaders(req)
	req.Header.Set("X-Archive-Keep-Old-Version", boolHeader(it.keepOldVersions))
	req.Header.Set("X-Archive-Cascade-Delete", boolHeader(it.cascadeDelete))

	res, err := it.http().Do(req)
	if err != nil {
		return fmt.Errorf("iars delete %s/%s: %w", it.identifier, filepath, err)
	}
	if res.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		return fmt.Errorf("iars delete %s/%s: %w", it.identifier, filepath, ErrNotFound)
	}
	if !success(res.StatusCode) {
		return s3Error("delete", res)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	return nil
}

// ItemMetadata is the item's metadata record as returned by the
// metadata endpoint, including the archive's own bookkeeping
// fields alongside the item metadata proper.
type ItemMetadata struct {
	// Created is the UNIX timestamp of when this record was
	// generated, not when the item was created; check the
	// "addeddate" metadata key for the latter.
	Created int64 `json:"created"`

	// Primary and secondary data servers currently holding the
	// item, and its directory on them. Items migrate between
	// servers; don't build URLs from these.
	D1     string `json:"d1"`
	D2     string `json:"d2"`
	Dir    string `json:"dir"`
	Server string `json:"server"`

	WorkableServers    []string `json:"workable_servers"`
	ServersUnavailable bool     `json:"servers_unavailable"`

	// Metadata holds the item's own metadata. Values are usually
	// strings but some keys map to lists.
	Metadata map[string]interface{} `json:"metadata"`

	// Files holds per-file metadata maps. Common keys: name,
	// size, mtime, format, source, md5, sha1, crc32.
	Files      []map[string]string `json:"files"`
	FilesCount int                 `json:"files_count"`

	ItemSize        int64 `json:"item_size"`
	ItemLastUpdated int64 `json:"item_last_updated"`

	PendingTasks bool `json:"pending_tasks"`
	HasRedRow    bool `json:"has_redrow"`
	IsDark       bool `json:"is_dark"`
	NoDownload   bool `json:"nodownload"`
	IsCollection bool `json:"is_collection"`
}

// Metadata retrieves the item's metadata record. Recent changes
// submitted through the metadata API appear here even before the
// server has written them to disk.
//
// The endpoint returns an empty record, not a 404, for items that
// don't exist.
func (it *Item) Metadata() (*ItemMetadata, error) {
	req, err := http.NewRequest("GET", metadataURL+"/"+it.identifier, nil)
	if err != nil {
		return nil, fmt.Errorf("iars metadata %s: %w", it.identifier, err)
	}
	it.setHeaders(req)

	res, err := it.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("iars metadata %s: %w", it.identifier, err)
	}
	if !success(res.StatusCode) {
		return nil, s3Error("metadata", res)
	}
	defer res.Body.Close()

	meta := new(ItemMetadata)
	if err := json.NewDecoder(res.Body).Decode(meta); err != nil {
		return nil, fmt.Errorf("iars metadata %s: %w", it.identifier, err)
	}
	return meta, nil
}
