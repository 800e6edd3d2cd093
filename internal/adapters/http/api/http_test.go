package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/charsort/internal/adapters/repository"
	service "github.com/okian/charsort/internal/app"
	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.InitWith(io.Discard, "error", logger.FormatText); err != nil {
		panic(err)
	}
}

type apiFixture struct {
	svc     *service.Service
	handler http.Handler
}

func newFixture(ctx context.Context) (*apiFixture, error) {
	svc := service.New(service.WithStore(repository.NewMemoryStore()), service.WithSeed(1))
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return &apiFixture{svc: svc, handler: NewServer(svc, WithMaxBodyBytes(256)).Handler()}, nil
}

func (f *apiFixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

// seed creates a list with n characters named c1..cn.
func (f *apiFixture) seed(ctx context.Context, alg model.Algorithm, n int) (model.CharacterList, error) {
	l, err := f.svc.CreateList(ctx, "favourites", alg)
	if err != nil {
		return l, err
	}
	for i := 1; i <= n; i++ {
		if _, err := f.svc.AddCharacter(ctx, l.ID, fmt.Sprintf("c%d", i), "show"); err != nil {
			return l, err
		}
	}
	return l, nil
}

func decode[T any](rr *httptest.ResponseRecorder) T {
	var v T
	_ = json.Unmarshal(rr.Body.Bytes(), &v)
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given a running API", t, func() {
		ctx := context.Background()
		f, err := newFixture(ctx)
		So(err, ShouldBeNil)
		defer f.svc.Stop()

		Convey("When probing liveness", func() {
			rr := f.do(http.MethodGet, "/healthz", "", nil)

			Convey("Then it reports ok with a request id", func() {
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(decode[ackResponse](rr).Status, ShouldEqual, "ok")
				So(rr.Header().Get(RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When the client sends its own request id", func() {
			rr := f.do(http.MethodGet, "/healthz", "", map[string]string{RequestIDHeader: "abc"})

			Convey("Then it is echoed back", func() {
				So(rr.Header().Get(RequestIDHeader), ShouldEqual, "abc")
			})
		})

		Convey("When scraping metrics", func() {
			f.do(http.MethodGet, "/healthz", "", nil)
			rr := f.do(http.MethodGet, "/metrics", "", nil)

			Convey("Then the service metrics are exposed", func() {
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(rr.Body.String(), ShouldContainSubstring, "charsort_ranking_http_requests_total")
			})
		})
	})
}

func TestListsEndpoints(t *testing.T) {
	Convey("Given a running API", t, func() {
		ctx := context.Background()
		f, err := newFixture(ctx)
		So(err, ShouldBeNil)
		defer f.svc.Stop()

		Convey("When there are no lists", func() {
			rr := f.do(http.MethodGet, "/lists", "", nil)

			Convey("Then an empty array is returned", func() {
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(rr.Body.String(), ShouldContainSubstring, `"lists":[]`)
			})
		})

		Convey("When creating a list and adding characters over HTTP", func() {
			rr := f.do(http.MethodPost, "/lists", `{"title":"villains","algorithm":"Glicko"}`, nil)
			So(rr.Code, ShouldEqual, http.StatusCreated)
			l := decode[model.CharacterList](rr)
			So(l.Algorithm, ShouldEqual, model.Glicko)

			path := fmt.Sprintf("/lists/%d/characters", l.ID)
			So(f.do(http.MethodPost, path, `{"name":"Vader","fandom":"Star Wars"}`, nil).Code, ShouldEqual, http.StatusCreated)
			So(f.do(http.MethodPost, path, `{"name":"Sauron"}`, nil).Code, ShouldEqual, http.StatusCreated)

			Convey("Then the summary shows both with Glicko annotations", func() {
				rr := f.do(http.MethodGet, fmt.Sprintf("/lists/%d", l.ID), "", nil)
				So(rr.Code, ShouldEqual, http.StatusOK)
				view := decode[service.ListView](rr)
				So(len(view.Entries), ShouldEqual, 2)
				So(view.Entries[0].Annotation, ShouldEqual, "800")
				So(view.Progress, ShouldEqual, "Average confidence: 0.500")
				So(view.Next, ShouldNotBeNil)
				So(view.Graph, ShouldNotBeNil)
			})

			Convey("Then the graph is served", func() {
				rr := f.do(http.MethodGet, fmt.Sprintf("/lists/%d/graph", l.ID), "", nil)
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(rr.Body.String(), ShouldContainSubstring, `"names"`)
			})
		})

		Convey("When creating a list with a bad algorithm or title", func() {
			Convey("Then it is a bad request", func() {
				So(f.do(http.MethodPost, "/lists", `{"title":"x","algorithm":"bubble"}`, nil).Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodPost, "/lists", `{"title":"  "}`, nil).Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodPost, "/lists", `{"title":"x","extra":1}`, nil).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the body exceeds the limit", func() {
			body := `{"title":"` + strings.Repeat("x", 512) + `"}`
			rr := f.do(http.MethodPost, "/lists", body, nil)

			Convey("Then it is rejected", func() {
				So(rr.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When addressing lists that do not exist or bad ids", func() {
			Convey("Then unknown ids are not found and malformed ids are bad requests", func() {
				So(f.do(http.MethodGet, "/lists/999", "", nil).Code, ShouldEqual, http.StatusNotFound)
				So(f.do(http.MethodGet, "/lists/abc", "", nil).Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodGet, "/lists/0/next", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When asking an insertion list for its graph", func() {
			l, err := f.seed(ctx, model.InsertionSort, 2)
			So(err, ShouldBeNil)
			rr := f.do(http.MethodGet, fmt.Sprintf("/lists/%d/graph", l.ID), "", nil)

			Convey("Then there is no graph", func() {
				So(rr.Code, ShouldEqual, http.StatusNotFound)
				So(decode[errorResponse](rr).Code, ShouldEqual, "no_graph")
			})
		})
	})
}

func TestComparisonEndpoints(t *testing.T) {
	Convey("Given an insertion list of two characters", t, func() {
		ctx := context.Background()
		f, err := newFixture(ctx)
		So(err, ShouldBeNil)
		defer f.svc.Stop()
		l, err := f.seed(ctx, model.InsertionSort, 2)
		So(err, ShouldBeNil)
		base := fmt.Sprintf("/lists/%d", l.ID)

		Convey("When fetching the next matchup", func() {
			rr := f.do(http.MethodGet, base+"/next", "", nil)

			Convey("Then the engine asks about the new character against the first", func() {
				So(rr.Code, ShouldEqual, http.StatusOK)
				m := decode[model.Matchup](rr)
				So(m.A, ShouldNotEqual, m.B)
			})
		})

		Convey("When the matchup is answered", func() {
			m, _, err := f.svc.Next(ctx, l.ID)
			So(err, ShouldBeNil)
			body := fmt.Sprintf(`{"a":%d,"b":%d,"value":-1}`, m.A, m.B)
			rr := f.do(http.MethodPost, base+"/comparisons", body, map[string]string{IdempotencyKeyHeader: "k1"})

			Convey("Then the record is created and the list is done", func() {
				So(rr.Code, ShouldEqual, http.StatusCreated)
				rec := decode[model.ComparisonRecord](rr)
				So(rec.Value, ShouldEqual, model.PreferB)
				So(f.do(http.MethodGet, base+"/next", "", nil).Code, ShouldEqual, http.StatusNoContent)
			})

			Convey("Then a retry with the same key is acknowledged as a duplicate", func() {
				rr := f.do(http.MethodPost, base+"/comparisons", body, map[string]string{IdempotencyKeyHeader: "k1"})
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(decode[ackResponse](rr).Status, ShouldEqual, "duplicate")
			})

			Convey("Then undo removes it and a second undo finds nothing", func() {
				rr := f.do(http.MethodPost, base+"/undo", "", nil)
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(f.do(http.MethodGet, base+"/next", "", nil).Code, ShouldEqual, http.StatusOK)
				So(f.do(http.MethodPost, base+"/undo", "", nil).Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the verdict is invalid", func() {
			Convey("Then it is a bad request", func() {
				So(f.do(http.MethodPost, base+"/comparisons", `{"a":1,"b":1,"value":1}`, nil).Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodPost, base+"/comparisons", `{"a":1,"b":2,"value":5}`, nil).Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodPost, base+"/comparisons", `{"a":1,"b":2}`, nil).Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodPost, base+"/comparisons", `not json`, nil).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the wrong method is used", func() {
			rr := f.do(http.MethodDelete, base+"/undo", "", nil)

			Convey("Then the mux rejects it", func() {
				So(rr.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}
