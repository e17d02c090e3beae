package app

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/export"
	"lifeblocks/api/internal/media"
)

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return doRequest(t, handler, method, path, token, reader)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeResponse(t, rr, &body)
	code, _ := body["code"].(string)
	return code
}

func TestBoardsRequireSession(t *testing.T) {
	server := NewHTTPServer(newTestService(newMemStore(), Deps{}), "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/boards", "", "")
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/boards", "not-a-jwt", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rr.Code)
	}
}

func TestBoardLifecycleOverHTTP(t *testing.T) {
	st := newMemStore()
	server := NewHTTPServer(newTestService(st, Deps{}), "*")
	handler := server.Handler()
	token := tokenFor(t, "usr_owner")

	rr := doJSON(t, handler, http.MethodPost, "/api/boards", token, `{"title":"Life","blocks":[`+habitBlockDoc+`]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create board: %d %s", rr.Code, rr.Body.String())
	}
	var created blocks.Board
	decodeResponse(t, rr, &created)
	base := "/api/boards/" + created.ID

	rr = doJSON(t, handler, http.MethodPost, base+"/blocks", token, `{"id":"todo1","type":"todo-list","x":400,"y":0,"items":[{"id":"t1","text":"Call mom"}]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add block: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, base+"/blocks", token, `{"id":"todo1","type":"text","text":"again"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected duplicate id conflict, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPatch, base+"/blocks/habit1", token, `{"title":"Evening"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch block: %d %s", rr.Code, rr.Body.String())
	}
	var patched map[string]any
	decodeResponse(t, rr, &patched)
	if patched["title"] != "Evening" || patched["history"] == nil {
		t.Fatalf("expected title changed and history kept, got %v", patched)
	}

	rr = doJSON(t, handler, http.MethodPatch, base+"/blocks/habit1", token, `{"type":"text"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected immutable type rejected, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, base+"/blocks/habit1/checks", token, `{"itemId":"h1","value":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rr.Code, rr.Body.String())
	}
	var check CheckResult
	decodeResponse(t, rr, &check)
	if check.Progress != 50 || check.Streak != 2 {
		t.Fatalf("unexpected check result %+v", check)
	}

	rr = doJSON(t, handler, http.MethodPost, base+"/blocks/todo1/checks", token, `{"itemId":"t1","value":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("todo check: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, base+"/analytics?date=2024-03-10", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("analytics: %d %s", rr.Code, rr.Body.String())
	}
	var snapshot struct {
		Date    string  `json:"date"`
		Overall float64 `json:"overall"`
		Blocks  []struct {
			ID string `json:"id"`
		} `json:"blocks"`
	}
	decodeResponse(t, rr, &snapshot)
	if snapshot.Date != "2024-03-10" || snapshot.Overall != 75 || len(snapshot.Blocks) != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	rr = doJSON(t, handler, http.MethodPut, base+"/blocks/todo1/hidden", token, `{"hidden":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("hide: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, base+"/mobile-order", token, `{"blockId":"todo1","index":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("mobile order: %d %s", rr.Code, rr.Body.String())
	}
	var order struct {
		MobileOrder []string `json:"mobileOrder"`
	}
	decodeResponse(t, rr, &order)
	if strings.Join(order.MobileOrder, ",") != "todo1,habit1" {
		t.Fatalf("unexpected order %v", order.MobileOrder)
	}

	rr = doJSON(t, handler, http.MethodGet, base, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get board: %d %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Board blocks.Board `json:"board"`
		Role  string       `json:"role"`
	}
	decodeResponse(t, rr, &got)
	todo, ok := got.Board.Block("todo1")
	if got.Role != "owner" || !ok || !todo.MobileHidden {
		t.Fatalf("unexpected board %+v", got)
	}

	rr = doJSON(t, handler, http.MethodDelete, base+"/blocks/todo1", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete block: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, handler, http.MethodDelete, base+"/blocks/todo1", token, "")
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "NOT_FOUND" {
		t.Fatalf("expected deleted block gone, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/boards", token, "")
	var list struct {
		Boards []struct {
			ID         string `json:"id"`
			BlockCount int    `json:"blockCount"`
		} `json:"boards"`
	}
	decodeResponse(t, rr, &list)
	if len(list.Boards) != 1 || list.Boards[0].BlockCount != 1 {
		t.Fatalf("unexpected board list %+v", list)
	}

	rr = doJSON(t, handler, http.MethodDelete, base, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete board: %d %s", rr.Code, rr.Body.String())
	}
}

func TestBoardErrorsAreFlat(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	handler := NewHTTPServer(newTestService(st, Deps{}), "*").Handler()

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
		code   string
	}{
		{"stranger", http.MethodGet, "/api/boards/brd_1", "usr_stranger", "", http.StatusNotFound, "NOT_FOUND"},
		{"viewer write", http.MethodPatch, "/api/boards/brd_1/blocks/habit1", "usr_viewer", `{"title":"x"}`, http.StatusForbidden, "FORBIDDEN"},
		{"editor delete board", http.MethodDelete, "/api/boards/brd_1", "usr_editor", "", http.StatusForbidden, "FORBIDDEN"},
		{"bad patch", http.MethodPatch, "/api/boards/brd_1/blocks/habit1", "usr_owner", `[1,2]`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown type", http.MethodPost, "/api/boards/brd_1/blocks", "usr_owner", `{"id":"x1","type":"weather"}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad json", http.MethodPost, "/api/boards/brd_1/blocks/habit1/checks", "usr_owner", `{`, http.StatusBadRequest, "INVALID_BODY"},
		{"missing hidden", http.MethodPut, "/api/boards/brd_1/blocks/habit1/hidden", "usr_owner", `{}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"move unknown", http.MethodPost, "/api/boards/brd_1/mobile-order", "usr_owner", `{"blockId":"nope","index":0}`, http.StatusNotFound, "NOT_FOUND"},
		{"bad days", http.MethodGet, "/api/boards/brd_1/blocks/habit1/series?days=many", "usr_owner", "", http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad date", http.MethodGet, "/api/boards/brd_1/analytics?date=yesterday", "usr_owner", "", http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown route", http.MethodGet, "/api/boards/brd_1/widgets", "usr_owner", "", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, handler, tt.method, tt.path, tokenFor(t, tt.user), tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rr.Code, rr.Body.String())
			}
			var body map[string]any
			decodeResponse(t, rr, &body)
			if body["code"] != tt.code || body["error"] == "" {
				t.Fatalf("expected flat error with code %s, got %v", tt.code, body)
			}
		})
	}
}

func TestSeriesEndpoint(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	handler := NewHTTPServer(newTestService(st, Deps{}), "*").Handler()

	rr := doJSON(t, handler, http.MethodGet, "/api/boards/brd_1/blocks/habit1/series?end=2024-03-09&days=2", tokenFor(t, "usr_viewer"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("series: %d %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Series []struct {
			Date     string  `json:"date"`
			Progress float64 `json:"progress"`
		} `json:"series"`
	}
	decodeResponse(t, rr, &body)
	if len(body.Series) != 2 || body.Series[1].Date != "2024-03-09" || body.Series[1].Progress != 100 {
		t.Fatalf("unexpected series %+v", body.Series)
	}
}

func TestExportEndpoint(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	exp := &fakeExporter{}
	handler := NewHTTPServer(newTestService(st, Deps{Export: exp}), "*").Handler()
	token := tokenFor(t, "usr_viewer")

	rr := doJSON(t, handler, http.MethodGet, "/api/boards/brd_1/export?format=HTML&date=2024-03-09", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="morning-2024-03-10.html"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if exp.got.Format != export.FormatHTML || exp.got.Board.ID != "brd_1" || exp.got.Date.Format("2006-01-02") != "2024-03-09" {
		t.Fatalf("unexpected export request %+v", exp.got)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/boards/brd_1/export?format=pdf", token, "")
	if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != "EXPORT_UNAVAILABLE" {
		t.Fatalf("expected pdf unavailable, got %d %s", rr.Code, rr.Body.String())
	}
}

func multipartImage(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestImageUploadAndDelete(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	files := &fakeMedia{}
	handler := NewHTTPServer(newTestService(st, Deps{Media: files}), "*").Handler()
	token := tokenFor(t, "usr_editor")

	body, contentType := multipartImage(t, "image/png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/boards/brd_1/blocks/gallery1/images", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}

	stored := st.board(t, "brd_1")
	gallery, _ := stored.Block("gallery1")
	images := gallery.Content.(*blocks.ImageGallery).Images
	if len(images) != 2 || images[1].Key != "usr_editor/gallery1/obj1" || images[1].Size != int64(len("png-bytes")) {
		t.Fatalf("unexpected images %+v", images)
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/boards/brd_1/blocks/gallery1/images/usr_owner/gallery1/abc", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete image: %d %s", rr.Code, rr.Body.String())
	}
	if len(files.deleted) != 1 || files.deleted[0] != "usr_owner:usr_owner/gallery1/abc" {
		t.Fatalf("expected original uploader refunded, got %v", files.deleted)
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/boards/brd_1/blocks/gallery1/images/usr_owner/gallery1/abc", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected missing image 404, got %d", rr.Code)
	}
}

func TestBoardResponseCarriesImageURLs(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	handler := NewHTTPServer(newTestService(st, Deps{Media: &fakeMedia{}}), "*").Handler()
	token := tokenFor(t, "usr_viewer")

	rr := doJSON(t, handler, http.MethodGet, "/api/boards/brd_1", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get board: %d %s", rr.Code, rr.Body.String())
	}
	var body struct {
		ImageURLs map[string]string `json:"imageUrls"`
	}
	decodeResponse(t, rr, &body)
	if got := body.ImageURLs["usr_owner/gallery1/abc"]; !strings.HasPrefix(got, "https://objects.test/usr_owner/gallery1/abc") {
		t.Fatalf("expected presigned url, got %v", body.ImageURLs)
	}

	rr = doJSON(t, handler, http.MethodPatch, "/api/boards/brd_1/blocks/gallery1", tokenFor(t, "usr_editor"), `{"images":[]}`)
	if rr.Code != http.StatusUnprocessableEntity || errorCode(t, rr) != "VALIDATION_ERROR" {
		t.Fatalf("expected images patch rejected, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestImageUploadRejections(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	files := &fakeMedia{uploadFn: func(req media.UploadRequest) (blocks.Image, error) {
		return blocks.Image{}, media.ErrUnsupportedType
	}}
	handler := NewHTTPServer(newTestService(st, Deps{Media: files}), "*").Handler()
	token := tokenFor(t, "usr_editor")

	body, contentType := multipartImage(t, "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/boards/brd_1/blocks/gallery1/images", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/brd_1/blocks/gallery1/images", token, `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart body, got %d", rr.Code)
	}
}

func TestMembersOverHTTP(t *testing.T) {
	st := newMemStore()
	seedBoard(t, st)
	owner := st.users["usr_owner"]
	owner.Role = "admin"
	st.users["usr_owner"] = owner
	handler := NewHTTPServer(newTestService(st, Deps{}), "*").Handler()
	token := tokenFor(t, "usr_owner")

	rr := doJSON(t, handler, http.MethodPut, "/api/boards/brd_1/members/usr_viewer", token, `{"role":"editor"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set member: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/boards/brd_1/members", tokenFor(t, "usr_viewer"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list members: %d %s", rr.Code, rr.Body.String())
	}
	var list struct {
		Members []struct {
			UserID string `json:"userId"`
			Role   string `json:"role"`
		} `json:"members"`
	}
	decodeResponse(t, rr, &list)
	if len(list.Members) != 3 {
		t.Fatalf("unexpected members %+v", list.Members)
	}
	for _, m := range list.Members {
		if m.UserID == "usr_viewer" && m.Role != "editor" {
			t.Fatalf("expected promoted role, got %+v", m)
		}
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/boards/brd_1/members/usr_owner", token, "")
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "OWNER_ROLE" {
		t.Fatalf("expected owner removal refused, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/boards/brd_1/members/usr_editor", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("remove member: %d %s", rr.Code, rr.Body.String())
	}
}
