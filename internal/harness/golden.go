package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ingestfilter/internal/value"
)

// TraceSnapshot captures the batches of a scenario execution.
// Content-addressed ids and error texts are left out; a failed batch is
// marked with "failed": true.
type TraceSnapshot struct {
	ScenarioName string
	Batches      []BatchTrace
}

// toCanonicalValue converts the snapshot for canonical JSON serialization.
func (s *TraceSnapshot) toCanonicalValue() value.Object {
	batches := make(value.List, len(s.Batches))
	for i, b := range s.Batches {
		outcomes := make(value.List, len(b.Outcomes))
		for j, o := range b.Outcomes {
			outcomes[j] = value.Object{
				"index":   value.Int(o.Index),
				"outcome": value.String(o.Outcome),
				"event":   o.Event,
			}
		}
		batch := value.Object{
			"seq":      value.Int(b.Seq),
			"matched":  value.Int(b.Matched),
			"outcomes": outcomes,
		}
		if b.Error != "" {
			batch["failed"] = value.Bool(true)
		}
		batches[i] = batch
	}
	return value.Object{
		"scenario_name": value.String(s.ScenarioName),
		"batches":       batches,
	}
}

// Snapshot renders the golden form of result: RFC 8785 canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Batches:      result.Batches,
	}
	return value.MarshalCanonical(snapshot.toCanonicalValue())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
