package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/groupaccess/pkg/observability"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "extra": 1}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Name string `json:"name"`
			}

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "test", dest.Name)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`nope`))
	var dest map[string]string

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name        string
		vars        map[string]string
		expected    int64
		expectError bool
	}{
		{name: "valid", vars: map[string]string{"id": "9007199254740993"}, expected: 9007199254740993},
		{name: "missing", vars: map[string]string{}, expectError: true},
		{name: "not a number", vars: map[string]string{"id": "abc"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)

			val, err := ParsePathInt64(req, "id")

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, val)
		})
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "x"})

	_, ok := ParsePathInt64OrError(w, req, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?account=42&op=update&bad=x", nil)

	account, err := ParseQueryInt64(req, "account", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), account)

	missing, err := ParseQueryInt64(req, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), missing)

	_, err = ParseQueryInt64(req, "bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "update", ParseQueryString(req, "op", "view"))
	assert.Equal(t, "view", ParseQueryString(req, "operation", "view"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"editor", "staff"}, SplitList(" editor, ,staff,"))
	assert.Nil(t, SplitList(""))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	t.Run("keeps incoming ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "req-1", seen)
		assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	})

	t.Run("assigns new ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mark("outer"), mark("inner"), LoggingMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestMaxBytesMiddleware(t *testing.T) {
	handler := MaxBytesMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var dest map[string]string
		if !ParseJSONOrError(w, r, &dest) {
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"too long"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
