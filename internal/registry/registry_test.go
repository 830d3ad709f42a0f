package registry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ingestfilter/internal/definition"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/value"
)

func parse(t *testing.T, src string) []definition.Definition {
	t.Helper()
	defs, err := definition.Parse([]byte(src))
	require.NoError(t, err)
	return defs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(t *testing.T, src string, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	reg, err := Build(context.Background(), parse(t, src), ingest.Builtins(), opts...)
	require.NoError(t, err)
	return reg
}

func exec(t *testing.T, p *ingest.Pipeline, source value.Object) (*ingest.Document, error) {
	t.Helper()
	return p.Execute(context.Background(), ingest.NewDocument(source, nil))
}

// TestCrossPipelineRouting tests main setting x then invoking sub, which sets y.
func TestCrossPipelineRouting(t *testing.T) {
	reg := build(t, `{
  "main": {"processors": [
    {"set": {"field": "x", "value": 1}},
    {"pipeline": {"name": "sub"}}
  ]},
  "sub": {"processors": [{"set": {"field": "y", "value": 2}}]}
}`)

	assert.Equal(t, "main", reg.PrimaryName())
	assert.Equal(t, []string{"main", "sub"}, reg.Names())

	out, err := exec(t, reg.Primary(), value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), out.Source["x"])
	assert.Equal(t, value.Int(2), out.Source["y"])
}

func TestInvokedPipelineCanDrop(t *testing.T) {
	reg := build(t, `{
  "main": {"processors": [
    {"pipeline": {"name": "dropper"}},
    {"set": {"field": "after", "value": true}}
  ]},
  "dropper": {"processors": [{"drop": {}}]}
}`)

	out, err := exec(t, reg.Primary(), value.Object{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

// TestMissingPipeline tests invoking an unregistered name.
func TestMissingPipeline(t *testing.T) {
	reg := build(t, `{"main": {"processors": [{"pipeline": {"name": "ghost"}}]}}`)

	_, err := exec(t, reg.Primary(), value.Object{})
	require.Error(t, err)
	assert.True(t, IsInvocationError(err))

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "ghost", ie.Pipeline)
	assert.Equal(t, ReasonNotFound, ie.Reason)
	assert.Contains(t, err.Error(), "could not find pipeline [ghost]")
}

func TestMissingPipelineIgnored(t *testing.T) {
	reg := build(t, `{"main": {"processors": [
    {"pipeline": {"name": "ghost", "ignore_missing_pipeline": true}},
    {"set": {"field": "ok", "value": true}}
  ]}}`)

	out, err := exec(t, reg.Primary(), value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), out.Source["ok"])
}

func TestMissingPipelineHandledByOnFailure(t *testing.T) {
	reg := build(t, `{"main": {"processors": [
    {"pipeline": {"name": "ghost", "on_failure": [
      {"set": {"field": "err", "copy_from": "_ingest.on_failure_message"}}
    ]}}
  ]}}`)

	out, err := exec(t, reg.Primary(), value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.String("could not find pipeline [ghost]"), out.Source["err"])
}

// TestRecursionLimit tests that a self-invoking pipeline stops at the depth limit.
func TestRecursionLimit(t *testing.T) {
	reg := build(t, `{
  "a": {"processors": [{"append": {"field": "trail", "value": "a"}}, {"pipeline": {"name": "b"}}]},
  "b": {"processors": [{"append": {"field": "trail", "value": "b"}}, {"pipeline": {"name": "a"}}]}
}`, WithMaxDepth(5))

	_, err := exec(t, reg.Primary(), value.Object{})
	require.Error(t, err)

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonRecursionLimit, ie.Reason)
	assert.Equal(t, 5, ie.Limit)
	assert.Equal(t, []string{"b", "a", "b", "a", "b", "a"}, ie.Chain)

	require.Len(t, reg.Cycles(), 1)
	assert.Equal(t, []string{"a", "b", "a"}, reg.Cycles()[0].Path)
}

// TestNestedFailureWrappedOnce tests that a failure deep in a call chain
// carries a single processor wrapper naming where it happened.
func TestNestedFailureWrappedOnce(t *testing.T) {
	reg := build(t, `{
  "a": {"processors": [{"pipeline": {"name": "b"}}]},
  "b": {"processors": [{"pipeline": {"name": "a"}}]}
}`, WithMaxDepth(20))

	_, err := exec(t, reg.Primary(), value.Object{})
	require.Error(t, err)

	var pe *ingest.ProcessorError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "a", pe.Pipeline)
	assert.Equal(t, PipelineProcessor, pe.Type)
	assert.Equal(t, 1, strings.Count(err.Error(), "processor [pipeline]"))
	assert.Equal(t, "pipeline [a] processor [pipeline]: pipeline [b]: recursion limit of 20 nested invocations exceeded", err.Error())
}

func TestNestedFailureReachesOuterHandler(t *testing.T) {
	reg := build(t, `{
  "main": {"processors": [
    {"pipeline": {"name": "sub", "on_failure": [
      {"set": {"field": "failed_type", "copy_from": "_ingest.on_failure_processor_type"}},
      {"set": {"field": "failed_message", "copy_from": "_ingest.on_failure_message"}}
    ]}}
  ]},
  "sub": {"processors": [{"fail": {"message": "boom"}}]}
}`)

	out, err := exec(t, reg.Primary(), value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.String("fail"), out.Source["failed_type"])
	assert.Equal(t, value.String("boom"), out.Source["failed_message"])
}

func TestBoundedRecursionSucceeds(t *testing.T) {
	reg := build(t, `{
  "outer": {"processors": [{"pipeline": {"name": "middle"}}]},
  "middle": {"processors": [{"pipeline": {"name": "inner"}}]},
  "inner": {"processors": [{"set": {"field": "deep", "value": true}}]}
}`, WithMaxDepth(2))

	out, err := exec(t, reg.Primary(), value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), out.Source["deep"])
	assert.Empty(t, reg.Cycles())
}

// TestSecurityUserIsNoOp tests the compatibility processor.
func TestSecurityUserIsNoOp(t *testing.T) {
	reg := build(t, `{"main": {"processors": [
    {"set_security_user": {"field": "user", "properties": ["username", "roles"], "anything": {"x": 1}}},
    {"set": {"field": "touched", "value": true}},
    {"set_security_user": {}}
  ]}}`)

	in := value.Object{"message": value.String("hi"), "n": value.Int(3)}
	out, err := exec(t, reg.Primary(), in.Clone())
	require.NoError(t, err)

	want := in.Clone()
	want["touched"] = value.Bool(true)
	assert.True(t, value.Equal(want, out.Source), "got %#v", out.Source)
}

func TestCompileFailureIsLoggedAndSkipped(t *testing.T) {
	var logs bytes.Buffer
	defs := parse(t, `{
  "main": {"processors": [{"set": {"field": "a", "value": 1}}]},
  "broken": {"processors": [{"no_such_processor": {}}]}
}`)

	reg, err := Build(context.Background(), defs, ingest.Builtins(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	_, ok := reg.Lookup("broken")
	assert.False(t, ok)
	assert.Equal(t, []string{"main"}, reg.Names())
	assert.Contains(t, reg.Failures(), "broken")
	assert.Contains(t, logs.String(), "failed to compile pipeline")
	assert.Contains(t, logs.String(), "pipeline=broken")
}

func TestPrimaryResolution(t *testing.T) {
	src := `{
  "first": {"processors": []},
  "second": {"processors": [{"bogus": {}}]},
  "third": {"processors": []}
}`

	t.Run("explicit", func(t *testing.T) {
		reg := build(t, src, WithPrimary("third"))
		assert.Equal(t, "third", reg.PrimaryName())
		assert.Equal(t, "third", reg.Primary().ID())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Build(context.Background(), parse(t, src), ingest.Builtins(), WithLogger(quietLogger()), WithPrimary("nope"))
		require.Error(t, err)
		assert.True(t, definition.IsConfigError(err))
		assert.Contains(t, err.Error(), "could not find primary pipeline [nope]")
	})

	t.Run("failed to compile", func(t *testing.T) {
		_, err := Build(context.Background(), parse(t, src), ingest.Builtins(), WithLogger(quietLogger()), WithPrimary("second"))
		require.Error(t, err)
		assert.True(t, ingest.IsConfigurationError(err))
	})

	t.Run("default is first", func(t *testing.T) {
		reg := build(t, src)
		assert.Equal(t, "first", reg.PrimaryName())
	})
}

func TestBuildRejectsEmptyAndDuplicates(t *testing.T) {
	_, err := Build(context.Background(), nil, ingest.Builtins())
	require.Error(t, err)
	assert.True(t, definition.IsConfigError(err))

	defs := []definition.Definition{{Name: "a"}, {Name: "a"}}
	_, err = Build(context.Background(), defs, ingest.Builtins(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate pipeline name")
}

func TestBuildPassesEngineOptions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	reg := build(t, `{"main": {"processors": [{"set": {"field": "a", "value": 1}}]}}`,
		WithEngineOptions(ingest.WithMaxExecutionTime(time.Second), ingest.WithClock(clock)), WithMaxDepth(3))

	assert.Equal(t, 3, reg.MaxDepth())
	_, err := exec(t, reg.Primary(), value.Object{})
	require.Error(t, err)
	assert.True(t, ingest.IsInterrupted(err))
}
