package marshal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/value"
)

func sampleEvent(t *testing.T) *event.Event {
	t.Helper()
	e := event.New()
	e.Timestamp = time.Date(2023, 7, 8, 9, 10, 11, 12, time.UTC)
	require.NoError(t, e.SetField("message", "hello"))
	require.NoError(t, e.SetField("count", int64(3)))
	require.NoError(t, e.SetField("ratio", 0.5))
	require.NoError(t, e.SetField("ok", true))
	require.NoError(t, e.SetField("seen", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, e.SetField("nested", map[string]any{
		"list": []any{"a", int64(1), []any{2.5, map[string]any{"deep": false}}},
	}))
	e.SetRaw(event.VersionField, value.String("1"))
	return e
}

// TestRoundTrip tests that every field survives toDocument then toEvent.
func TestRoundTrip(t *testing.T) {
	e := sampleEvent(t)

	doc, err := ToDocument(e)
	require.NoError(t, err)

	out := event.New()
	require.NoError(t, ToEvent(doc, out))

	assert.Equal(t, e.Keys(), out.Keys())
	for _, k := range e.Keys() {
		want, ok := e.Field(k)
		require.True(t, ok, k)
		got, ok := out.Field(k)
		require.True(t, ok, k)
		assert.True(t, value.Equal(want, got), "field %s: want %#v, got %#v", k, want, got)
	}
	assert.True(t, e.Timestamp.Equal(out.Timestamp))
}

func TestToDocumentLayout(t *testing.T) {
	e := sampleEvent(t)
	require.NoError(t, e.SetMetadata("index", "logs"))

	doc, err := ToDocument(e)
	require.NoError(t, err)

	assert.Equal(t, value.NewTimestamp(e.Timestamp), doc.Metadata[TimestampKey])
	assert.Equal(t, value.String("logs"), doc.Metadata["index"])
	assert.Equal(t, value.String("1"), doc.Source[event.VersionField])
	assert.NotContains(t, doc.Source, event.TimestampField)
	assert.NotContains(t, doc.Source, "index")
}

func TestToDocumentConvertsForeignValues(t *testing.T) {
	e, err := event.FromMap(map[string]any{
		"n":    json.Number("12"),
		"u":    uint16(7),
		"tags": []string{"a"},
	})
	require.NoError(t, err)

	doc, err := ToDocument(e)
	require.NoError(t, err)

	assert.Equal(t, value.Int(12), doc.Source["n"])
	assert.Equal(t, value.Int(7), doc.Source["u"])
	assert.Equal(t, value.List{value.String("a")}, doc.Source["tags"])
}

func TestToDocumentDoesNotAliasEvent(t *testing.T) {
	e := sampleEvent(t)
	doc, err := ToDocument(e)
	require.NoError(t, err)

	doc.Source["nested"].(value.Object)["list"] = value.Null{}

	v, _ := e.Field("nested")
	assert.IsType(t, value.List{}, v.(value.Object)["list"])
}

func TestToDocumentCopiesVersion(t *testing.T) {
	e := event.New()
	e.SetRaw(event.VersionField, value.Object{"schema": value.String("1")})

	doc, err := ToDocument(e)
	require.NoError(t, err)
	require.NoError(t, doc.Set(event.VersionField+".x", value.String("changed")))

	raw, _ := e.RawField(event.VersionField)
	assert.Equal(t, value.Object{"schema": value.String("1")}, raw)
	assert.Equal(t, value.String("changed"), doc.Source[event.VersionField].(value.Object)["x"])
}

func TestToDocumentRejectsUnconvertible(t *testing.T) {
	e := event.New()
	e.SetRaw("bad", make(chan int))

	_, err := ToDocument(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "bad"`)
}

func TestToEventVersionBypassesNormalisation(t *testing.T) {
	doc := ingest.NewDocument(value.Object{event.VersionField: value.Int(2)}, nil)
	e := event.New()

	require.NoError(t, ToEvent(doc, e))

	raw, ok := e.RawField(event.VersionField)
	require.True(t, ok)
	assert.Equal(t, value.Int(2), raw)
}

func TestToEventFoldsMetadataIntoFields(t *testing.T) {
	doc := ingest.NewDocument(
		value.Object{"a": value.Int(1)},
		value.Object{"pipeline_hint": value.String("x")},
	)
	e := event.New()

	require.NoError(t, ToEvent(doc, e))

	assert.Equal(t, []string{"a", "pipeline_hint"}, e.Keys())
	assert.Empty(t, e.MetadataKeys())
}

func TestToEventTimestamp(t *testing.T) {
	prior := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("absent keeps prior", func(t *testing.T) {
		e := event.New()
		e.Timestamp = prior
		require.NoError(t, ToEvent(ingest.NewDocument(nil, nil), e))
		assert.Equal(t, prior, e.Timestamp)
	})

	t.Run("timestamp value", func(t *testing.T) {
		ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.FixedZone("x", 3600))
		e := event.New()
		require.NoError(t, ToEvent(ingest.NewDocument(nil, value.Object{TimestampKey: value.NewTimestamp(ts)}), e))
		assert.True(t, ts.Equal(e.Timestamp))
		assert.Equal(t, time.UTC, e.Timestamp.Location())
	})

	t.Run("rfc3339 string", func(t *testing.T) {
		e := event.New()
		require.NoError(t, ToEvent(ingest.NewDocument(nil, value.Object{TimestampKey: value.String("2024-02-03T04:05:06Z")}), e))
		assert.Equal(t, 2024, e.Timestamp.Year())
	})

	t.Run("wrong kind", func(t *testing.T) {
		e := event.New()
		err := ToEvent(ingest.NewDocument(nil, value.Object{TimestampKey: value.Int(1)}), e)
		require.Error(t, err)
	})
}
