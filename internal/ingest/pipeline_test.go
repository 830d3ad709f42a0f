package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ingestfilter/internal/value"
)

func compileJSON(t *testing.T, src string, opts ...Option) *Pipeline {
	t.Helper()
	cfg, err := value.ParseJSONObject([]byte(src))
	require.NoError(t, err)
	p, err := Compile("test", cfg, Builtins(), opts...)
	require.NoError(t, err)
	return p
}

func run(t *testing.T, p *Pipeline, source value.Object) (*Document, error) {
	t.Helper()
	return p.Execute(context.Background(), NewDocument(source, nil))
}

// TestCompile_ProcessorOrder tests that processor order is preserved.
func TestCompile_ProcessorOrder(t *testing.T) {
	p := compileJSON(t, `{
		"description": "ordering",
		"processors": [
			{"set": {"field": "a", "value": 1}},
			{"lowercase": {"field": "b"}},
			{"drop": {}}
		]
	}`)

	assert.Equal(t, "test", p.ID())
	assert.Equal(t, "ordering", p.Description())
	assert.Equal(t, []string{"set", "lowercase", "drop"}, p.ProcessorTypes())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing processors", `{}`, "[processors] required property is missing"},
		{"processors not a list", `{"processors": {}}`, "expected a list"},
		{"unknown pipeline key", `{"processors": [], "extra": 1}`, "[extra]"},
		{"unknown processor", `{"processors": [{"nope": {}}]}`, "no processor type exists with name [nope]"},
		{"two types in one entry", `{"processors": [{"set": {}, "drop": {}}]}`, "exactly one processor type"},
		{"missing required param", `{"processors": [{"set": {"value": 1}}]}`, "[field] required property is missing"},
		{"leftover param", `{"processors": [{"drop": {"bogus": true}}]}`, "[bogus]"},
		{"bad params kind", `{"processors": [{"drop": 3}]}`, "expected parameters object"},
		{"bad nested on_failure", `{"processors": [{"drop": {"on_failure": [{"nope": {}}]}}]}`, "[nope]"},
		{"bad convert type", `{"processors": [{"convert": {"field": "a", "type": "uuid"}}]}`, "type [uuid] not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := value.ParseJSONObject([]byte(tt.src))
			require.NoError(t, err)

			_, err = Compile("p1", cfg, Builtins())
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err), "got %T", err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "pipeline [p1]")
		})
	}
}

func TestCompile_DoesNotMutateConfig(t *testing.T) {
	cfg, err := value.ParseJSONObject([]byte(`{"processors": [{"set": {"field": "a", "value": 1, "tag": "t"}}]}`))
	require.NoError(t, err)
	before := cfg.Clone()

	_, err = Compile("p", cfg, Builtins())
	require.NoError(t, err)
	assert.True(t, value.Equal(before, cfg))
}

func TestExecute_Drop(t *testing.T) {
	p := compileJSON(t, `{"processors": [{"drop": {}}, {"fail": {"message": "unreachable"}}]}`)

	out, err := run(t, p, value.Object{"a": value.Int(1)})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExecute_NilDocument(t *testing.T) {
	p := compileJSON(t, `{"processors": []}`)
	_, err := p.Execute(context.Background(), nil)
	require.Error(t, err)
}

// TestExecute_FailWrapsProcessorError tests error structure of a failing chain.
func TestExecute_FailWrapsProcessorError(t *testing.T) {
	p := compileJSON(t, `{"processors": [
		{"set": {"field": "a", "value": 1}},
		{"fail": {"message": "boom", "tag": "stop"}}
	]}`)

	_, err := run(t, p, value.Object{})
	require.Error(t, err)
	assert.True(t, IsFailError(err))

	var pe *ProcessorError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fail", pe.Type)
	assert.Equal(t, "stop", pe.Tag)
	assert.Equal(t, "test", pe.Pipeline)
	assert.Equal(t, "pipeline [test] processor [fail] tag [stop]: boom", err.Error())
}

func TestExecute_IgnoreFailure(t *testing.T) {
	p := compileJSON(t, `{"processors": [
		{"fail": {"message": "skip me", "ignore_failure": true}},
		{"set": {"field": "after", "value": true}}
	]}`)

	out, err := run(t, p, value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), out.Source["after"])
}

// TestExecute_ProcessorOnFailure tests that a handled failure continues the chain.
func TestExecute_ProcessorOnFailure(t *testing.T) {
	p := compileJSON(t, `{"processors": [
		{"rename": {
			"field": "missing", "target_field": "x", "tag": "mv",
			"on_failure": [
				{"set": {"field": "error.message", "copy_from": "_ingest.on_failure_message"}},
				{"set": {"field": "error.type", "copy_from": "_ingest.on_failure_processor_type"}},
				{"set": {"field": "error.tag", "copy_from": "_ingest.on_failure_processor_tag"}}
			]
		}},
		{"set": {"field": "continued", "value": true}}
	]}`)

	out, err := run(t, p, value.Object{})
	require.NoError(t, err)

	want := value.Object{
		"message": value.String("field [missing] not present as part of path [missing]"),
		"type":    value.String("rename"),
		"tag":     value.String("mv"),
	}
	assert.True(t, value.Equal(want, out.Source["error"]), "got %#v", out.Source["error"])
	assert.Equal(t, value.Bool(true), out.Source["continued"])
	assert.NotContains(t, out.Metadata, OnFailureMessage)
}

func TestExecute_PipelineOnFailureStopsChain(t *testing.T) {
	p := compileJSON(t, `{
		"processors": [
			{"fail": {"message": "nope"}},
			{"set": {"field": "skipped", "value": true}}
		],
		"on_failure": [
			{"set": {"field": "handled", "copy_from": "_ingest.on_failure_message"}}
		]
	}`)

	out, err := run(t, p, value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.String("nope"), out.Source["handled"])
	assert.NotContains(t, out.Source, "skipped")
}

func TestExecute_OnFailureHandlerCanDrop(t *testing.T) {
	p := compileJSON(t, `{"processors": [
		{"fail": {"message": "x", "on_failure": [{"drop": {}}]}},
		{"set": {"field": "never", "value": 1}}
	]}`)

	out, err := run(t, p, value.Object{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExecute_FailingHandlerPropagates(t *testing.T) {
	p := compileJSON(t, `{"processors": [
		{"fail": {"message": "first", "on_failure": [{"fail": {"message": "second"}}]}}
	]}`)

	_, err := run(t, p, value.Object{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
}

// TestExecute_Watchdog tests interruption once the execution budget is spent.
func TestExecute_Watchdog(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		now := base.Add(time.Duration(calls) * time.Second)
		calls++
		return now
	}

	p := compileJSON(t, `{"processors": [
		{"set": {"field": "a", "value": 1, "ignore_failure": true}},
		{"set": {"field": "b", "value": 2}},
		{"set": {"field": "c", "value": 3}},
		{"set": {"field": "d", "value": 4}}
	], "on_failure": [{"set": {"field": "handled", "value": true}}]}`,
		WithMaxExecutionTime(2*time.Second), WithClock(clock))

	_, err := run(t, p, value.Object{})
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	assert.Contains(t, err.Error(), "pipeline [test]")
}

func TestExecute_ContextCancelled(t *testing.T) {
	p := compileJSON(t, `{"processors": [{"set": {"field": "a", "value": 1}}]}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, NewDocument(nil, nil))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFactoriesWith(t *testing.T) {
	base := Builtins()
	custom := base.With("noop", func(Factories, string, value.Object) (Processor, error) {
		return ProcessorFunc(func(_ context.Context, d *Document) (*Document, error) { return d, nil }), nil
	})

	assert.Contains(t, custom, "noop")
	assert.NotContains(t, base, "noop")
	assert.Contains(t, Factories(nil).With("x", nil), "x")
}
