package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/paging"
)

const (
	folderFields   = "id,title,parent_id"
	noteListFields = "id,title"
	noteFields     = "id,title,updated_time"
	resourceFields = "id,title"
)

// JoplinOptions configures the Joplin Data API client.
type JoplinOptions struct {
	BaseURL  string // e.g. http://127.0.0.1:41184
	Token    string
	PageSize int
	Timeout  time.Duration
}

// Joplin implements Provider against the Joplin Data API.
type Joplin struct {
	base     *url.URL
	token    string
	pageSize int
	http     *http.Client
}

var _ Provider = (*Joplin)(nil)

// NewJoplin creates a client for the Data API served at opts.BaseURL.
func NewJoplin(opts JoplinOptions) (*Joplin, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("destination: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("destination: unsupported base url scheme %q", base.Scheme)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Joplin{
		base:     base,
		token:    opts.Token,
		pageSize: opts.PageSize,
		http:     &http.Client{Timeout: opts.Timeout},
	}, nil
}

// noteRecord is the wire shape of a note; updated_time is epoch milliseconds.
type noteRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	UpdatedTime int64  `json:"updated_time,omitempty"`
}

func (r noteRecord) model() models.Note {
	n := models.Note{ID: r.ID, Title: r.Title, Body: r.Body, ParentID: r.ParentID}
	if r.UpdatedTime > 0 {
		n.UpdatedTime = time.UnixMilli(r.UpdatedTime)
	}
	return n
}

func notePage(p paging.Page[noteRecord]) paging.Page[models.Note] {
	out := paging.Page[models.Note]{Items: make([]models.Note, len(p.Items)), HasMore: p.HasMore}
	for i, r := range p.Items {
		out.Items[i] = r.model()
	}
	return out
}

// Ping checks the clipper server answers and the token is valid.
func (j *Joplin) Ping(ctx context.Context) error {
	var raw json.RawMessage
	// /ping does not check the token, so list one folder instead.
	if err := j.do(ctx, http.MethodGet, "/folders", j.listQuery(1, "id", 1), nil, "", &raw); err != nil {
		return err
	}
	return nil
}

func (j *Joplin) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	var f models.Folder
	q := url.Values{"fields": {folderFields}}
	if err := j.do(ctx, http.MethodGet, "/folders/"+url.PathEscape(id), q, nil, "", &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (j *Joplin) ListFolders(ctx context.Context, page int) (paging.Page[models.Folder], error) {
	var p paging.Page[models.Folder]
	err := j.do(ctx, http.MethodGet, "/folders", j.listQuery(page, folderFields, j.pageSize), nil, "", &p)
	return p, err
}

func (j *Joplin) CreateFolder(ctx context.Context, parentID, title string) (*models.Folder, error) {
	var f models.Folder
	body := map[string]string{"parent_id": parentID, "title": title}
	if err := j.doJSON(ctx, http.MethodPost, "/folders", body, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (j *Joplin) ListNotes(ctx context.Context, folderID string, page int) (paging.Page[models.Note], error) {
	var p paging.Page[noteRecord]
	path := "/folders/" + url.PathEscape(folderID) + "/notes"
	if err := j.do(ctx, http.MethodGet, path, j.listQuery(page, noteListFields, j.pageSize), nil, "", &p); err != nil {
		return paging.Page[models.Note]{}, err
	}
	return notePage(p), nil
}

func (j *Joplin) GetNote(ctx context.Context, id string) (*models.Note, error) {
	var r noteRecord
	q := url.Values{"fields": {noteFields}}
	if err := j.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), q, nil, "", &r); err != nil {
		return nil, err
	}
	n := r.model()
	return &n, nil
}

func (j *Joplin) CreateNote(ctx context.Context, parentID, title, body string) (*models.Note, error) {
	var r noteRecord
	req := map[string]string{"parent_id": parentID, "title": title, "body": body}
	if err := j.doJSON(ctx, http.MethodPost, "/notes", req, &r); err != nil {
		return nil, err
	}
	n := r.model()
	return &n, nil
}

func (j *Joplin) UpdateNote(ctx context.Context, id, title, body string) (*models.Note, error) {
	var r noteRecord
	req := map[string]string{"title": title, "body": body}
	if err := j.doJSON(ctx, http.MethodPut, "/notes/"+url.PathEscape(id), req, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = id
	}
	n := r.model()
	return &n, nil
}

func (j *Joplin) ListNoteResources(ctx context.Context, noteID string, page int) (paging.Page[models.Resource], error) {
	var p paging.Page[models.Resource]
	path := "/notes/" + url.PathEscape(noteID) + "/resources"
	err := j.do(ctx, http.MethodGet, path, j.listQuery(page, resourceFields, j.pageSize), nil, "", &p)
	return p, err
}

func (j *Joplin) ListResourceNotes(ctx context.Context, resourceID string, page int) (paging.Page[models.Note], error) {
	var p paging.Page[noteRecord]
	path := "/resources/" + url.PathEscape(resourceID) + "/notes"
	if err := j.do(ctx, http.MethodGet, path, j.listQuery(page, noteListFields, j.pageSize), nil, "", &p); err != nil {
		return paging.Page[models.Note]{}, err
	}
	return notePage(p), nil
}

// CreateResource uploads a file as multipart form data: the file goes in the
// "data" part and the metadata JSON in "props".
func (j *Joplin) CreateResource(ctx context.Context, title, path string) (*models.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("destination: read resource file: %w", err)
	}
	mtype := mimetype.Detect(data)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	props, _ := json.Marshal(map[string]string{"title": title})
	if err := mw.WriteField("props", string(props)); err != nil {
		return nil, fmt.Errorf("destination: write props: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="data"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", mtype.String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("destination: create data part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("destination: write data part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("destination: close multipart: %w", err)
	}

	var r models.Resource
	if err := j.do(ctx, http.MethodPost, "/resources", nil, &buf, mw.FormDataContentType(), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (j *Joplin) DeleteResource(ctx context.Context, id string) error {
	return j.do(ctx, http.MethodDelete, "/resources/"+url.PathEscape(id), nil, nil, "", nil)
}

func (j *Joplin) listQuery(page int, fields string, limit int) url.Values {
	return url.Values{
		"page":   {strconv.Itoa(page)},
		"limit":  {strconv.Itoa(limit)},
		"fields": {fields},
	}
}

func (j *Joplin) doJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("destination: encode request: %w", err)
	}
	return j.do(ctx, method, path, nil, bytes.NewReader(payload), "application/json", out)
}

func (j *Joplin) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("token", j.token)

	u := *j.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("destination: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := j.http.Do(req)
	if err != nil {
		return fmt.Errorf("destination: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("destination: decode %s %s: %w", method, path, err)
	}
	return nil
}
