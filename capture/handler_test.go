package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeService struct {
	res *Result
	err error
	got Request
}

func (f *fakeService) Capture(_ context.Context, req Request) (*Result, error) {
	f.got = req
	return f.res, f.err
}

func TestHandlerCapture(t *testing.T) {
	svc := &fakeService{res: &Result{
		RawHTML:       "<html><body>hi</body></html>",
		Title:         "Hi",
		ScreenshotURL: "mem://site_1/1.jpg",
		CapturedAt:    1700000000000,
	}}
	srv := httptest.NewServer(NewHandler(svc, "", nil).Routes())
	defer srv.Close()

	body := `{"url":"https://93.184.216.34/","takeScreenshot":true,"siteId":"site_1"}`
	resp, err := http.Post(srv.URL+"/capture", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var ar agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		t.Fatal(err)
	}
	if ar.Title != "Hi" || ar.Timestamp != 1700000000000 || ar.ScreenshotURL != "mem://site_1/1.jpg" {
		t.Errorf("response = %+v", ar)
	}
	if !svc.got.TakeScreenshot || svc.got.SiteID != "site_1" {
		t.Errorf("service request = %+v", svc.got)
	}
}

func TestHandlerRejectsUnsafeURL(t *testing.T) {
	svc := &fakeService{res: &Result{RawHTML: "x"}}
	srv := httptest.NewServer(NewHandler(svc, "", nil).Routes())
	defer srv.Close()

	for _, u := range []string{"file:///etc/passwd", "http://127.0.0.1/admin", "not a url"} {
		body, _ := json.Marshal(Request{URL: u})
		resp, err := http.Post(srv.URL+"/capture", "application/json", strings.NewReader(string(body)))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("url %q: status = %d, want 400", u, resp.StatusCode)
		}
	}
}

func TestHandlerRequiresToken(t *testing.T) {
	svc := &fakeService{res: &Result{RawHTML: "x"}}
	srv := httptest.NewServer(NewHandler(svc, "secret", nil).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/capture", "application/json",
		strings.NewReader(`{"url":"https://93.184.216.34/"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/capture",
		strings.NewReader(`{"url":"https://93.184.216.34/"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authorized status = %d, want 200", resp.StatusCode)
	}
}

func TestHandlerCaptureFailure(t *testing.T) {
	svc := &fakeService{err: errors.New("navigate: timeout")}
	srv := httptest.NewServer(NewHandler(svc, "", nil).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/capture", "application/json",
		strings.NewReader(`{"url":"https://93.184.216.34/"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var ar agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ar.Error, "timeout") {
		t.Errorf("error = %q", ar.Error)
	}
}
