package refserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hurrycache/hurrycache/internal/refserver/memstore"
	"github.com/hurrycache/hurrycache/pkg/auth"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
	"github.com/hurrycache/hurrycache/pkg/wire"
)

func newTestServer(t *testing.T) (ts *httptest.Server, bearer *auth.BearerProvider) {
	t.Helper()
	bearer = auth.NewBearerProvider([]byte("test-secret"))
	srv := New(memstore.New(), bearer)
	return httptest.NewServer(srv.Router()), bearer
}

func mustToken(t *testing.T, bearer *auth.BearerProvider, orgID string) string {
	t.Helper()
	tok, err := bearer.IssueToken(orgID, "test-runner")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// TestPutThenHeadThenGet covers S4 (hash mismatch on write) and the
// happy-path PUT/HEAD/GET round trip.
func TestPutThenHeadThenGet(t *testing.T) {
	ts, bearer := newTestServer(t)
	defer ts.Close()
	token := mustToken(t, bearer, "org-a")

	body := []byte("hello")
	key := hashkey.FromBuffer(body)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/cas/"+key.String(), bytes.NewReader([]byte("world")))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("mismatched put: got %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	headReq, _ := http.NewRequest(http.MethodHead, ts.URL+"/api/v1/cas/"+key.String(), nil)
	headReq.Header.Set("Authorization", "Bearer "+token)
	headResp, _ := http.DefaultClient.Do(headReq)
	if headResp.StatusCode != http.StatusNotFound {
		t.Fatalf("head after failed put: got %d, want 404", headResp.StatusCode)
	}
	headResp.Body.Close()

	okReq, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/cas/"+key.String(), bytes.NewReader(body))
	okReq.Header.Set("Authorization", "Bearer "+token)
	okResp, err := http.DefaultClient.Do(okReq)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if okResp.StatusCode != http.StatusCreated {
		t.Fatalf("put: got %d, want 201", okResp.StatusCode)
	}
	okResp.Body.Close()

	getResp, err := httpGetAuthed(ts.URL+"/api/v1/cas/"+key.String(), token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get: got %d, want 200", getResp.StatusCode)
	}
}

// TestVisibilityIsPerOrganization covers S6/§8 invariant 7: a different
// organization that never wrote a key cannot read it.
func TestVisibilityIsPerOrganization(t *testing.T) {
	ts, bearer := newTestServer(t)
	defer ts.Close()
	tokenA := mustToken(t, bearer, "org-a")
	tokenB := mustToken(t, bearer, "org-b")

	body := []byte("shared bytes")
	key := hashkey.FromBuffer(body)

	putReq, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/cas/"+key.String(), bytes.NewReader(body))
	putReq.Header.Set("Authorization", "Bearer "+tokenA)
	putResp, err := http.DefaultClient.Do(putReq)
	if err != nil || putResp.StatusCode != http.StatusCreated {
		t.Fatalf("put by org-a failed: %v status=%v", err, putResp)
	}
	putResp.Body.Close()

	headA, _ := http.NewRequest(http.MethodHead, ts.URL+"/api/v1/cas/"+key.String(), nil)
	headA.Header.Set("Authorization", "Bearer "+tokenA)
	respA, _ := http.DefaultClient.Do(headA)
	if respA.StatusCode != http.StatusOK {
		t.Fatalf("org-a head: got %d, want 200", respA.StatusCode)
	}
	respA.Body.Close()

	headB, _ := http.NewRequest(http.MethodHead, ts.URL+"/api/v1/cas/"+key.String(), nil)
	headB.Header.Set("Authorization", "Bearer "+tokenB)
	respB, _ := http.DefaultClient.Do(headB)
	if respB.StatusCode != http.StatusNotFound {
		t.Fatalf("org-b head: got %d, want 404 (never written)", respB.StatusCode)
	}
	respB.Body.Close()
}

// TestSaveRestoreReset exercises the cache plane's save/restore/reset
// cycle end to end (S6).
func TestSaveRestoreReset(t *testing.T) {
	ts, bearer := newTestServer(t)
	defer ts.Close()
	token := mustToken(t, bearer, "org-a")

	su := savedunit.SavedUnit{
		Key:  hashkey.FromBuffer([]byte("unit-tiny-0.1.0")),
		Kind: unit.KindLibrary,
		Files: []savedunit.SavedFile{{
			Path:       qualpath.New(qualpath.RootDepsDir, "x86_64-unknown-linux-gnu", "debug", "libtiny.rlib"),
			ContentKey: hashkey.FromBuffer([]byte("rlib bytes")),
		}},
		Library: &savedunit.LibrarySidecar{},
	}

	plan := wire.SavePlan{su.Key.String(): su}
	if err := postJSONAuthed(ts.URL+"/api/v1/cache/cargo/save", token, plan, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	var restoreResp wire.RestoreResponse
	restoreReq := wire.RestoreRequest{Keys: []string{su.Key.String()}}
	if err := postJSONAuthed(ts.URL+"/api/v1/cache/cargo/restore", token, restoreReq, &restoreResp); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := restoreResp.Hits[su.Key.String()]; !ok {
		t.Fatalf("expected hit for %s, got %#v", su.Key.String(), restoreResp.Hits)
	}

	if err := postJSONAuthed(ts.URL+"/api/v1/cache/cargo/reset", token, struct{}{}, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}

	var afterReset wire.RestoreResponse
	if err := postJSONAuthed(ts.URL+"/api/v1/cache/cargo/restore", token, restoreReq, &afterReset); err != nil {
		t.Fatalf("restore after reset: %v", err)
	}
	if len(afterReset.Hits) != 0 {
		t.Fatalf("expected no hits after reset, got %#v", afterReset.Hits)
	}
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/cas/" + hashkey.FromBuffer(nil).String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", resp.StatusCode)
	}
}

func httpGetAuthed(url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return http.DefaultClient.Do(req)
}

func postJSONAuthed(url, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
