package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/ghoapi"
	"github.com/giygas/gho-indicators/reshape"
	"github.com/giygas/gho-indicators/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGHO serves a fixed catalog and per-indicator payloads
type fakeGHO struct {
	catalog      []entities.IndicatorRecord
	observations map[string]string // code -> value array JSON
	statuses     map[string]int    // code -> forced status
	catalogHits  atomic.Int32
}

func (f *fakeGHO) start(t *testing.T) *ghoapi.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/")
		w.Header().Set("Content-Type", "application/json")

		if code == "Indicator" {
			f.catalogHits.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"value": f.catalog})
			return
		}
		if status, ok := f.statuses[code]; ok {
			w.WriteHeader(status)
			return
		}
		body, ok := f.observations[code]
		if !ok {
			body = "[]"
		}
		fmt.Fprintf(w, `{"value":%s}`, body)
	}))
	t.Cleanup(srv.Close)
	return ghoapi.NewClient(srv.URL)
}

func topic(name string, keywords ...string) entities.Topic {
	slug := strings.ToLower(name)
	return entities.Topic{
		Name:     name,
		Keywords: keywords,
		LongFile: slug + "_all_long.csv",
		WideFile: slug + "_all_wide.csv",
	}
}

func diseaseGHO() *fakeGHO {
	return &fakeGHO{
		catalog: []entities.IndicatorRecord{
			{Code: "X2", Name: "Bar Rate"},
			{Code: "X1", Name: "Foo Disease Cases"},
		},
		observations: map[string]string{
			"X1": `[{"SpatialDim":"USA","TimeDim":2020,"NumericValue":5.0},{"SpatialDim":"USA","TimeDim":2021,"NumericValue":null}]`,
			"X2": `[{"SpatialDim":"FRA","TimeDim":2020,"NumericValue":1}]`,
		},
	}
}

func TestRunDiseaseScenario(t *testing.T) {
	client := diseaseGHO().start(t)
	p := New(client)

	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), topic("Foo", "disease"), catalog)
	require.NoError(t, err)

	assert.Equal(t, []entities.IndicatorRecord{{Code: "X1", Name: "Foo Disease Cases"}}, result.Indicators)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Files)

	require.Len(t, result.Long.Rows, 2)
	assert.Equal(t, "USA", result.Long.Rows[0].Country)
	assert.Equal(t, 2020, result.Long.Rows[0].Year)
	assert.Equal(t, 5.0, *result.Long.Rows[0].NumericValue)
	assert.Nil(t, result.Long.Rows[1].NumericValue)

	assert.Equal(t, []string{"USA"}, result.Wide.Countries)
	v, ok := result.Wide.Cell("USA", entities.ColumnKey{IndicatorCode: "X1", Year: 2021})
	assert.True(t, ok)
	assert.Nil(t, v)

	assert.Equal(t, 2, result.Report.LongRows)
	assert.Equal(t, 1, result.Report.NullValues)
}

func TestExecuteWritesIdenticalOutput(t *testing.T) {
	gho := diseaseGHO()
	gho.catalog = append(gho.catalog, entities.IndicatorRecord{Code: "X3", Name: "Other disease deaths"})
	gho.observations["X3"] = `[{"SpatialDim":"AFG","TimeDim":"2019","NumericValue":12.5}]`
	client := gho.start(t)

	run := func(dir string, concurrency int) (string, string) {
		p := New(client, WithConcurrency(concurrency), WithWriter(writer.FileWriter{Dir: dir}))
		catalog, err := p.Catalog(context.Background())
		require.NoError(t, err)

		result, err := p.Execute(context.Background(), topic("Foo", "DISEASE"), catalog)
		require.NoError(t, err)
		require.Len(t, result.Files, 2)

		long, err := os.ReadFile(filepath.Join(dir, "foo_all_long.csv"))
		require.NoError(t, err)
		wide, err := os.ReadFile(filepath.Join(dir, "foo_all_wide.csv"))
		require.NoError(t, err)
		return string(long), string(wide)
	}

	long1, wide1 := run(t.TempDir(), 1)
	long2, wide2 := run(t.TempDir(), 1)
	long3, wide3 := run(t.TempDir(), 4)

	assert.Equal(t, long1, long2)
	assert.Equal(t, wide1, wide2)
	assert.Equal(t, long1, long3)
	assert.Equal(t, wide1, wide3)

	assert.Equal(t, "COUNTRY,YEAR,IndicatorCode,NumericValue\n"+
		"USA,2020,X1,5.0\n"+
		"USA,2021,X1,\n"+
		"AFG,2019,X3,12.5\n", long1)
	assert.Equal(t, "IndicatorCode,X1,X1,X3\n"+
		"YEAR,2020,2021,2019\n"+
		"COUNTRY,,,\n"+
		"AFG,,,12.5\n"+
		"USA,5.0,,\n", wide1)
}

func TestExecuteWithoutObservationsWritesNothing(t *testing.T) {
	gho := diseaseGHO()
	gho.observations = map[string]string{"X1": "[]"}
	client := gho.start(t)

	dir := filepath.Join(t.TempDir(), "out")
	p := New(client, WithWriter(writer.FileWriter{Dir: dir}))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), topic("Foo", "disease"), catalog)
	require.ErrorIs(t, err, ErrNoObservations)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "no output directory should be created")
}

func TestRunNoMatchIsNoObservations(t *testing.T) {
	p := New(diseaseGHO().start(t))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), topic("Nothing", "zzz"), catalog)
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestRunSkipsUnavailableIndicators(t *testing.T) {
	gho := diseaseGHO()
	gho.catalog = append(gho.catalog, entities.IndicatorRecord{Code: "X0", Name: "Gone disease"})
	gho.statuses = map[string]int{"X0": http.StatusNotFound}

	for _, concurrency := range []int{1, 3} {
		p := New(gho.start(t), WithConcurrency(concurrency))
		catalog, err := p.Catalog(context.Background())
		require.NoError(t, err)

		result, err := p.Run(context.Background(), topic("Foo", "disease"), catalog)
		require.NoError(t, err)
		assert.Equal(t, []string{"X0"}, result.Report.UnavailableIndicators)
		assert.Len(t, result.Long.Rows, 2)
	}
}

func TestRunTransportFailureIsFatal(t *testing.T) {
	gho := diseaseGHO()
	gho.observations["X1"] = `[{"SpatialDim":"USA","TimeDim":{"bad":true}}]`

	p := New(gho.start(t))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), topic("Foo", "disease"), catalog)
	assert.ErrorIs(t, err, ghoapi.ErrTransport)
}

func TestRunMissingNumericValue(t *testing.T) {
	gho := diseaseGHO()
	gho.observations["X1"] = `[{"SpatialDim":"USA","TimeDim":2020},{"SpatialDim":"CAN","TimeDim":2020}]`

	p := New(gho.start(t))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), topic("Foo", "disease"), catalog)
	require.NoError(t, err)
	for _, row := range result.Long.Rows {
		assert.Nil(t, row.NumericValue)
	}
	assert.Equal(t, []string{"CAN", "USA"}, result.Wide.Countries)
}

func TestRunMissingRequiredColumn(t *testing.T) {
	gho := diseaseGHO()
	gho.observations["X1"] = `[{"TimeDim":2020,"NumericValue":1}]`

	p := New(gho.start(t))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), topic("Foo", "disease"), catalog)
	require.ErrorIs(t, err, reshape.ErrMissingColumns)
	assert.Contains(t, err.Error(), "SpatialDim")
}

func TestRunDuplicatePolicy(t *testing.T) {
	gho := diseaseGHO()
	gho.observations["X1"] = `[{"SpatialDim":"USA","TimeDim":2020,"NumericValue":1},{"SpatialDim":"USA","TimeDim":2020,"NumericValue":3}]`
	client := gho.start(t)

	p := New(client, WithDuplicatePolicy(reshape.DuplicateMean))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), topic("Foo", "disease"), catalog)
	require.NoError(t, err)
	v, _ := result.Wide.Cell("USA", entities.ColumnKey{IndicatorCode: "X1", Year: 2020})
	require.NotNil(t, v)
	assert.Equal(t, 2.0, *v)
	assert.Equal(t, 1, result.Report.DuplicateCells)

	_, err = New(client, WithDuplicatePolicy(reshape.DuplicateReject)).Run(context.Background(), topic("Foo", "disease"), catalog)
	assert.ErrorIs(t, err, reshape.ErrDuplicateObservation)
}

func TestRunTopicsSharesCatalog(t *testing.T) {
	gho := diseaseGHO()
	p := New(gho.start(t), WithWriter(writer.FileWriter{Dir: t.TempDir()}))

	results, err := p.RunTopics(context.Background(), []entities.Topic{
		topic("Foo", "disease"),
		topic("Empty", "nothing matches"),
		topic("Bar", "rate"),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoObservations)
	assert.Contains(t, err.Error(), "Empty")

	require.Len(t, results, 2)
	assert.Equal(t, "Foo", results[0].Topic.Name)
	assert.Equal(t, "Bar", results[1].Topic.Name)
	assert.Equal(t, int32(1), gho.catalogHits.Load())
}

func TestRunTopicsCatalogFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	results, err := New(ghoapi.NewClient(srv.URL)).RunTopics(context.Background(), []entities.Topic{topic("Foo", "disease")})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ghoapi.ErrTransport)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	p := New(diseaseGHO().start(t))
	catalog, err := p.Catalog(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, topic("Foo", "disease"), catalog)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "empty", outcome(fmt.Errorf("x: %w", ErrNoObservations)))
	assert.Equal(t, "transport_error", outcome(&ghoapi.StatusError{StatusCode: 500}))
	assert.Equal(t, "data_error", outcome(&reshape.YearError{}))
	assert.Equal(t, "error", outcome(fmt.Errorf("boom")))
}
