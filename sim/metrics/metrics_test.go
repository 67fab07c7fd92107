package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_NilIsNoop(t *testing.T) {
	var r *Run
	assert.NotPanics(t, func() {
		r.ObservePropagation(time.Second, nil)
		r.ObserveProduct("had", true)
		r.ObserveStage("x", time.Now())
		r.AddEventGroups(3)
		r.AddShowers(3)
		r.IncPlaceholder()
		r.AddShard(10)
	})
	assert.NoError(t, r.Push(context.Background(), "http://unused", "job", "id"))
}

func TestRun_Counters(t *testing.T) {
	r := NewRun()
	r.ObservePropagation(10*time.Millisecond, nil)
	r.ObservePropagation(10*time.Millisecond, errors.New("boom"))
	r.ObservePropagation(10*time.Millisecond, nil)
	r.AddShard(100)
	r.AddShard(50)
	r.ObserveProduct("em", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.PropagatorCalls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PropagatorCalls.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ShardsWritten))
	assert.Equal(t, 150.0, testutil.ToFloat64(r.ShardBytesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SecondaryProducts.WithLabelValues("em", "false")))
}

func TestRun_IndependentRegistries(t *testing.T) {
	a, b := NewRun(), NewRun()
	a.AddEventGroups(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(a.EventGroupsGenerated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EventGroupsGenerated))
}

func TestRun_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRun()
	r.AddShowers(7)
	require.NoError(t, r.Push(context.Background(), srv.URL, "eventgen", "abc"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/eventgen/run_id/abc"), gotPath)
	assert.NotEmpty(t, gotBody)
}
