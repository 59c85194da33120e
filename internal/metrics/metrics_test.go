package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDispatchMetrics(t *testing.T) {
	t.Run("DispatchTotal", func(t *testing.T) {
		before := testutil.ToFloat64(DispatchTotal.WithLabelValues("batched-triangular-solve", "success"))
		DispatchTotal.WithLabelValues("batched-triangular-solve", "success").Inc()
		after := testutil.ToFloat64(DispatchTotal.WithLabelValues("batched-triangular-solve", "success"))
		assert.Equal(t, before+1, after)
	})

	t.Run("DispatchDuration", func(t *testing.T) {
		assert.NotPanics(t, func() {
			DispatchDuration.WithLabelValues("batched-lu-factorization").Observe(0.42)
		})
	})

	t.Run("DispatchBatchSize", func(t *testing.T) {
		DispatchBatchSize.Set(128)
		assert.Equal(t, float64(128), testutil.ToFloat64(DispatchBatchSize))
	})
}

func TestPoolMetrics(t *testing.T) {
	t.Run("PoolIdleHandles", func(t *testing.T) {
		PoolIdleHandles.Set(3)
		assert.Equal(t, float64(3), testutil.ToFloat64(PoolIdleHandles))
	})

	t.Run("PoolBorrows", func(t *testing.T) {
		before := testutil.ToFloat64(PoolBorrows.WithLabelValues("hit"))
		PoolBorrows.WithLabelValues("hit").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(PoolBorrows.WithLabelValues("hit")))
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("records explicit status", func(t *testing.T) {
		before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/teapot", "418"))
		handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}), "/teapot")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/teapot", "418")))
	})

	t.Run("defaults to 200", func(t *testing.T) {
		before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/ok", "200"))
		handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok"))
		}), "/ok")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

		assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/ok", "200")))
	})
}
