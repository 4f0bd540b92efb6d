package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/answer"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/chunker"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/ingest"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, texts []string) ([]types.Vector, error) {
	out := make([]types.Vector, len(texts))
	for i, t := range texts {
		switch t = strings.ToLower(t); {
		case strings.Contains(t, "sky"):
			out[i] = types.Vector{1, 0}
		default:
			out[i] = types.Vector{0, 1}
		}
	}
	return out, nil
}

func (axisEmbedder) Dimension() int { return 2 }

func newTestServer(t *testing.T) (*httptest.Server, *engine.Database) {
	t.Helper()
	db, err := engine.Open(engine.DataDirOptions(t.TempDir(), 2))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	emb := axisEmbedder{}
	s := NewServer(db,
		engine.NewAnswerer(db, emb, answer.StaticProvider{}, 1),
		ingest.NewPipeline(db, emb, chunker.New(512)),
		Options{UploadDir: t.TempDir()},
	)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, db
}

func upload(t *testing.T, srv *httptest.Server, name, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func TestServer_UploadThenAsk(t *testing.T) {
	srv, db := newTestServer(t)

	resp := upload(t, srv, "../../etc/sky notes.txt", "The sky is blue.")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	var up UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.Equal(t, "sky_notes.txt", up.Filename)
	assert.Equal(t, []string{"sky_notes.txt"}, up.Report.Processed)

	has, err := db.HasFilename("sky_notes.txt")
	require.NoError(t, err)
	assert.True(t, has)

	askResp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader(`{"question":"What colour is the sky?"}`))
	require.NoError(t, err)
	defer askResp.Body.Close()
	require.Equal(t, http.StatusOK, askResp.StatusCode)

	var res engine.RetrievalResult
	require.NoError(t, json.NewDecoder(askResp.Body).Decode(&res))
	assert.Equal(t, "The sky is blue.", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "sky_notes.txt", res.Sources[0].Filename)
}

func TestServer_UploadTwiceSkips(t *testing.T) {
	srv, db := newTestServer(t)

	resp := upload(t, srv, "a.txt", "Grass is green.")
	resp.Body.Close()
	resp = upload(t, srv, "a.txt", "Grass is green.")
	defer resp.Body.Close()

	var up UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.Empty(t, up.Report.Processed)
	require.Len(t, up.Report.Skipped, 1)
	assert.Equal(t, "a.txt", up.Report.Skipped[0].Filename)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Rows)
}

func TestServer_UploadWithoutFile(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/upload", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AskForm(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.PostForm(srv.URL+"/ask", url.Values{"question": {"anything"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res engine.RetrievalResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "No relevant documents found.", res.Answer)

	resp2, err := http.PostForm(srv.URL+"/ask", url.Values{"question": {"   "}})
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestServer_Search(t *testing.T) {
	srv, db := newTestServer(t)
	_, err := db.AddDocuments([]types.Vector{{1, 0}, {0, 1}}, []string{"x", "y"}, []string{"f", "f"})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/search", "application/json", strings.NewReader(`{"query":[0.1,0.9],"k":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results []types.Hit `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "y", out.Results[0].Content)
	assert.Equal(t, uint64(2), out.Results[0].ID)

	bad, err := http.Post(srv.URL+"/search", "application/json", strings.NewReader(`{"query":[1,2,3]}`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestServer_InfoEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/", "/health", "/stats"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ask")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_KeepsValidRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	const id = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(RequestIDHeader))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", SanitizeFilename("report.pdf"))
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "My_cool_movie.mov", SanitizeFilename(`C:\Users\me\My cool movie.mov`))
	assert.Equal(t, "", SanitizeFilename(".."))
	assert.Equal(t, "", SanitizeFilename(""))
}

func TestSaveFile_HalfWrittenUploadIsInvisibleToRun(t *testing.T) {
	db, err := engine.Open(engine.DataDirOptions(t.TempDir(), 2))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	p := ingest.NewPipeline(db, axisEmbedder{}, chunker.New(512))

	uploads, staging := t.TempDir(), t.TempDir()
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- saveFile(staging, filepath.Join(uploads, "b.txt"), pr) }()

	_, err = pw.Write([]byte("The first half. "))
	require.NoError(t, err)

	// another upload's run lists the directory while b.txt is mid-copy
	report, err := p.Run(context.Background(), uploads)
	require.NoError(t, err)
	assert.Empty(t, report.Processed)
	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = pw.Write([]byte("The sky is blue."))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	report, err = p.Run(context.Background(), uploads)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, report.Processed)

	hits, err := db.Search(types.Vector{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "The first half. The sky is blue.", hits[0].Content)

	left, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestNewServer_StagingBesideUploads(t *testing.T) {
	s := NewServer(nil, nil, nil, Options{UploadDir: "/srv/docqa/uploads/"})
	assert.Equal(t, filepath.Join("/srv/docqa", ".uploads-staging"), s.stagingDir)
}
