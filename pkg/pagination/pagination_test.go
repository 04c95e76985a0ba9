package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContextDefaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("params = %+v, want limit %d offset 0", p, DefaultLimit)
	}
}

func TestFromContextClampsLimit(t *testing.T) {
	p := paramsFor(t, "limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("limit = %d, want %d", p.Limit, MaxLimit)
	}
}

func TestFromContextRejectsNegatives(t *testing.T) {
	p := paramsFor(t, "limit=-1&offset=-10")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("params = %+v, want defaults", p)
	}
}

func TestFromContextIgnoresGarbage(t *testing.T) {
	p := paramsFor(t, "limit=abc&offset=xyz")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("params = %+v, want defaults", p)
	}
}

func TestNewResponseHasMore(t *testing.T) {
	r := NewResponse(nil, 50, 20, 0)
	if !r.HasMore {
		t.Error("has_more = false on a first page of 50")
	}
	r = NewResponse(nil, 50, 20, 40)
	if r.HasMore {
		t.Error("has_more = true on the last page")
	}
}

func TestNextOffset(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if p.NextOffset() != 60 {
		t.Errorf("next offset = %d, want 60", p.NextOffset())
	}
	if p.HasNext(50) {
		t.Error("HasNext = true past the end")
	}
	if !p.HasNext(100) {
		t.Error("HasNext = false with results remaining")
	}
}
