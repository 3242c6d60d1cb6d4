package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/promptgallery-backend/internal/clustering"
	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	"github.com/yungbote/promptgallery-backend/internal/data/repos/testutil"
	httpH "github.com/yungbote/promptgallery-backend/internal/http/handlers"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/services"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)
	db := testutil.SQLite(t)
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	assetRepo := repos.NewAssetRepo(db, log)
	memberRepo := repos.NewPromptMemberRepo(db, log)
	engine := clustering.NewEngine(memberRepo, clustering.DefaultConfig(), clustering.DefaultSuggestionConfig())
	embedder := similarity.NewExtractor(similarity.NewPixelEncoder(), nil, similarity.ExtractorConfig{})
	worker := services.NewAssetEmbedder(db, log, assetRepo, store, embedder)

	assets := services.NewAssetService(db, log, assetRepo, memberRepo, store, embedder,
		services.NewSyncDispatcher(log, worker), services.DefaultAssetServiceConfig())
	members := services.NewMemberService(db, log, memberRepo, assetRepo, engine, store)
	families := services.NewFamilyService(db, log, memberRepo, assetRepo, engine, 0)

	return NewRouter(RouterConfig{
		Log:           log,
		MemberHandler: httpH.NewMemberHandler(log, members, families),
		FamilyHandler: httpH.NewFamilyHandler(log, members, families),
		AssetHandler:  httpH.NewAssetHandler(log, assets, 0),
		HealthHandler: httpH.NewHealthHandler(nil),
	})
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return serve(t, r, req)
}

func serve(t *testing.T, r *gin.Engine, req *nethttp.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(rec.Body.Bytes()), []byte("{")) {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func upload(t *testing.T, r *gin.Engine, path, field string, files map[string][]byte, form map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(data)
	}
	for k, v := range form {
		mw.WriteField(k, v)
	}
	mw.Close()
	req := httptest.NewRequest(nethttp.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return serve(t, r, req)
}

func pngBytes(t *testing.T, w, h int, tint uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: tint, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func field(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

func createMember(t *testing.T, r *gin.Engine, prompt string) (id, family string) {
	t.Helper()
	rec, out := do(t, r, nethttp.MethodPost, "/api/members", map[string]string{"prompt_text": prompt})
	if rec.Code != nethttp.StatusCreated {
		t.Fatalf("POST /api/members: got=%d body=%s", rec.Code, rec.Body.String())
	}
	return field(out, "member", "id").(string), field(out, "member", "family_id").(string)
}

func TestHealthcheck(t *testing.T) {
	r := newTestRouter(t)
	rec, _ := do(t, r, nethttp.MethodGet, "/healthcheck", nil)
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: got=%d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("healthcheck: missing request id header")
	}
}

func TestMemberLifecycle(t *testing.T) {
	r := newTestRouter(t)
	firstID, fam := createMember(t, r, "a cat on a red sofa")

	rec, out := do(t, r, nethttp.MethodPost, "/api/members", map[string]string{"prompt_text": "a cat on a red sofa, 8k"})
	if rec.Code != nethttp.StatusCreated || field(out, "clustering", "joined") != true || field(out, "member", "family_id") != fam {
		t.Fatalf("create variant: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if field(out, "clustering", "matched_id") != firstID {
		t.Fatalf("create variant: matched_id got=%v", field(out, "clustering", "matched_id"))
	}

	rec, out = do(t, r, nethttp.MethodPatch, "/api/members/"+firstID, map[string]string{"title": "Cat"})
	if rec.Code != nethttp.StatusOK || field(out, "member", "title") != "Cat" {
		t.Fatalf("PATCH: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodGet, "/api/members/"+firstID+"/family", nil)
	if rec.Code != nethttp.StatusOK || field(out, "family", "member_count") != float64(2) {
		t.Fatalf("GET family: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodPost, "/api/members/"+firstID+"/like", nil)
	if rec.Code != nethttp.StatusOK || out["is_liked"] != true {
		t.Fatalf("like: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, r, nethttp.MethodDelete, "/api/members/"+firstID, nil)
	if rec.Code != nethttp.StatusNoContent {
		t.Fatalf("DELETE: got=%d", rec.Code)
	}
	rec, out = do(t, r, nethttp.MethodGet, "/api/members/"+firstID, nil)
	if rec.Code != nethttp.StatusNotFound || field(out, "error", "code") != "not_found" {
		t.Fatalf("GET deleted: got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMemberErrors(t *testing.T) {
	r := newTestRouter(t)
	cases := []struct {
		method, path string
		body         any
		status       int
		code         string
	}{
		{nethttp.MethodGet, "/api/members/not-a-uuid", nil, nethttp.StatusBadRequest, "invalid_id"},
		{nethttp.MethodPost, "/api/members", map[string]string{"prompt_text": "  "}, nethttp.StatusBadRequest, "validation"},
		{nethttp.MethodPost, "/api/members/00000000-0000-0000-0000-000000000001/main", nil, nethttp.StatusNotFound, "not_found"},
		{nethttp.MethodPost, "/api/families/merge", map[string]any{"member_ids": []string{"x"}}, nethttp.StatusBadRequest, "invalid_id"},
		{nethttp.MethodPost, "/api/families/merge", "not an object", nethttp.StatusBadRequest, "invalid_request"},
		{nethttp.MethodPost, "/api/members", []int{1}, nethttp.StatusBadRequest, "invalid_request"},
		{nethttp.MethodGet, "/api/families?page=two", nil, nethttp.StatusBadRequest, "invalid_request"},
		{nethttp.MethodGet, "/api/assets/liked?limit=x", nil, nethttp.StatusBadRequest, "invalid_request"},
		{nethttp.MethodGet, "/api/assets/00000000-0000-0000-0000-000000000001/similar?top_k=-1", nil, nethttp.StatusBadRequest, "invalid_request"},
		{nethttp.MethodGet, "/api/assets/00000000-0000-0000-0000-000000000001/similar?threshold=7", nil, nethttp.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		rec, out := do(t, r, tc.method, tc.path, tc.body)
		if rec.Code != tc.status || field(out, "error", "code") != tc.code {
			t.Fatalf("%s %s: got=%d body=%s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}
}

func TestFamilyOverrides(t *testing.T) {
	r := newTestRouter(t)
	w, famW := createMember(t, r, "a cat on a red sofa")
	z, _ := createMember(t, r, "a cat on a red sofa, 8k")
	other, famOther := createMember(t, r, "mountain lake at dawn")

	rec, out := do(t, r, nethttp.MethodPost, "/api/members/"+z+"/main", nil)
	if rec.Code != nethttp.StatusOK || field(out, "member", "is_main_variant") != true {
		t.Fatalf("main: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodPost, "/api/members/"+z+"/unlink", nil)
	if rec.Code != nethttp.StatusOK || out["family_id"] == famW {
		t.Fatalf("unlink: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodPost, "/api/members/"+w+"/link", map[string]any{"target_ids": []string{z}})
	if rec.Code != nethttp.StatusOK || out["updated"] != float64(1) || out["family_id"] != famW {
		t.Fatalf("link: got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, r, nethttp.MethodPost, "/api/members/"+w+"/link", map[string]any{"target_ids": []string{}})
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("link(empty): got=%d", rec.Code)
	}

	rec, out = do(t, r, nethttp.MethodPost, "/api/families/merge", map[string]any{"member_ids": []string{other, w}})
	if rec.Code != nethttp.StatusOK || out["family_id"] != famOther || out["updated"] != float64(2) {
		t.Fatalf("merge: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodGet, "/api/families?page=1&page_size=10", nil)
	if rec.Code != nethttp.StatusOK || out["total"] != float64(1) {
		t.Fatalf("families: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodGet, "/api/members/"+w+"/link-suggestions", nil)
	if rec.Code != nethttp.StatusOK || out["suggestions"] == nil {
		t.Fatalf("suggestions: got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAssetsAndSimilarity(t *testing.T) {
	r := newTestRouter(t)
	m, _ := createMember(t, r, "a cat on a red sofa")
	img := pngBytes(t, 32, 32, 40)

	rec, out := upload(t, r, "/api/members/"+m+"/assets", "files", map[string][]byte{"a.png": img}, map[string]string{"role": "generated"})
	if rec.Code != nethttp.StatusCreated {
		t.Fatalf("upload: got=%d body=%s", rec.Code, rec.Body.String())
	}
	results := out["results"].([]any)
	assetID := field(results[0].(map[string]any), "asset", "id").(string)

	rec, out = upload(t, r, "/api/members/"+m+"/assets", "files", map[string][]byte{"copy.png": img}, nil)
	if rec.Code != nethttp.StatusOK || field(out["results"].([]any)[0].(map[string]any), "duplicate") != true {
		t.Fatalf("duplicate upload: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = upload(t, r, "/api/assets/check-duplicates", "files", map[string][]byte{"q.png": img}, nil)
	if rec.Code != nethttp.StatusOK || field(out["results"].([]any)[0].(map[string]any), "duplicate") != true {
		t.Fatalf("check-duplicates: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = upload(t, r, "/api/search/similar", "file", map[string][]byte{"q.png": pngBytes(t, 48, 48, 40)}, nil)
	if rec.Code != nethttp.StatusOK || len(out["results"].([]any)) != 1 {
		t.Fatalf("search/similar: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = upload(t, r, "/api/search/similar", "file", map[string][]byte{"q.png": []byte("garbage")}, nil)
	if rec.Code != nethttp.StatusOK || len(out["results"].([]any)) != 0 {
		t.Fatalf("search/similar(broken): got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = do(t, r, nethttp.MethodGet, "/api/assets/"+assetID+"/similar?top_k=5", nil)
	if rec.Code != nethttp.StatusOK || len(out["results"].([]any)) != 0 {
		t.Fatalf("similar: got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, r, nethttp.MethodGet, "/api/assets/"+assetID+"/similar?threshold=7", nil)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("similar(bad threshold): got=%d", rec.Code)
	}

	rec, out = do(t, r, nethttp.MethodPost, "/api/assets/"+assetID+"/like", nil)
	if rec.Code != nethttp.StatusOK || out["is_liked"] != true {
		t.Fatalf("like: got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec, out = do(t, r, nethttp.MethodGet, "/api/assets/liked", nil)
	if rec.Code != nethttp.StatusOK || len(out["assets"].([]any)) != 1 {
		t.Fatalf("liked: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, r, nethttp.MethodDelete, "/api/assets/"+assetID, nil)
	if rec.Code != nethttp.StatusNoContent {
		t.Fatalf("delete: got=%d", rec.Code)
	}
	rec, _ = do(t, r, nethttp.MethodDelete, "/api/assets/"+assetID, nil)
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("delete(again): got=%d", rec.Code)
	}
}

func TestUploadRejectsMissingFiles(t *testing.T) {
	r := newTestRouter(t)
	m, _ := createMember(t, r, "a cat on a red sofa")
	rec, out := upload(t, r, "/api/members/"+m+"/assets", "other", map[string][]byte{"a.png": {1}}, nil)
	if rec.Code != nethttp.StatusBadRequest || field(out, "error", "code") != "invalid_upload" {
		t.Fatalf("upload(no files): got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec, _ = upload(t, r, fmt.Sprintf("/api/members/%s/assets", "00000000-0000-0000-0000-000000000009"), "files", map[string][]byte{"a.png": pngBytes(t, 8, 8, 1)}, nil)
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("upload(missing member): got=%d", rec.Code)
	}
}
