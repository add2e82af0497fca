package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arn-sess/sessguard/middleware"
	"github.com/arn-sess/sessguard/session"
	"github.com/arn-sess/sessguard/store/memory"
)

func TestManageCreatesSessionAndSetsCookie(t *testing.T) {
	m := middleware.NewManager(memory.New(), session.Config{})
	handler := m.Manage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "__Host-id", cookies[0].Name)
}

func TestManageExposesEngineToHandler(t *testing.T) {
	m := middleware.NewManager(memory.New(), session.Config{})
	var gotValue any
	handler := m.Manage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := middleware.Get(r.Context())
		require.NotNil(t, e)
		require.NoError(t, e.Set("hits", float64(1)))
		v, err := e.Get("hits", nil)
		require.NoError(t, err)
		gotValue = v
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, float64(1), gotValue)
}

func TestManageRoundTripsSessionAcrossRequests(t *testing.T) {
	s := memory.New()
	m := middleware.NewManager(s, session.Config{})

	setHandler := m.Manage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := middleware.Get(r.Context())
		require.NoError(t, e.Set("user", "alice"))
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	setHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	var gotUser any
	readHandler := m.Manage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := middleware.Get(r.Context())
		v, err := e.Get("user", nil)
		require.NoError(t, err)
		gotUser = v
		w.WriteHeader(http.StatusOK)
	}))
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookies[0])
	readHandler.ServeHTTP(rec2, req2)

	assert.Equal(t, "alice", gotUser)
}

func TestGetReturnsNilOutsideManage(t *testing.T) {
	assert.Nil(t, middleware.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestManageCommitsEvenWhenHandlerOnlyWritesBody(t *testing.T) {
	m := middleware.NewManager(memory.New(), session.Config{})
	handler := m.Manage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Len(t, rec.Result().Cookies(), 1)
}
