package harness

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed baseline.schema.json
var baselineSchema string

// ErrBaselineNotFound is returned when no record matches a key.
var ErrBaselineNotFound = errors.New("baseline not found")

// Number is a baseline value that may be written as a JSON number or string.
type Number float64

// UnmarshalJSON accepts 0.693 as well as "0.693".
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("baseline value %s: %w", string(data), err)
	}
	*n = Number(v)
	return nil
}

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}

// StepTimeEntry is the expected step time on one GPU model.
type StepTimeEntry struct {
	GPU   string `json:"GPU"`
	Value Number `json:"value"`
}

// BaselineKey identifies the record a baseline scenario is checked against.
type BaselineKey struct {
	Precision Precision
	Top       int
	Experts   int
}

func (k BaselineKey) String() string {
	return fmt.Sprintf("top%d/%s/e%d", k.Top, k.Precision, k.Experts)
}

// legacyKeys maps record positions of unkeyed baseline files to keys.
var legacyKeys = []BaselineKey{
	{PrecisionFloat16, 1, 1},
	{PrecisionFloat16, 1, 2},
	{PrecisionFloat32, 1, 1},
	{PrecisionFloat32, 1, 2},
	{PrecisionFloat16, 2, 1},
	{PrecisionFloat16, 2, 2},
	{PrecisionFloat32, 2, 1},
	{PrecisionFloat32, 2, 2},
}

// BaselineRecord holds the expected results of one scenario.
// Top and Experts are optional in files; records without them are keyed by
// their position.
type BaselineRecord struct {
	Precision Precision       `json:"dtype"`
	Top       int             `json:"top,omitempty"`
	Experts   int             `json:"num_local_experts,omitempty"`
	StepTimes []StepTimeEntry `json:"step_time"`
	Losses    []Number        `json:"losses"`
}

// Key returns the record's lookup key.
func (r *BaselineRecord) Key() BaselineKey {
	return BaselineKey{Precision: r.Precision, Top: r.Top, Experts: r.Experts}
}

// ExpectedLosses returns the losses as float64s.
func (r *BaselineRecord) ExpectedLosses() []float64 {
	out := make([]float64, len(r.Losses))
	for i, l := range r.Losses {
		out[i] = float64(l)
	}
	return out
}

// MatchStepTimes returns the entries whose GPU name occurs in gpuModel,
// e.g. "A100" matches "NVIDIA A100-SXM4-40GB". An empty model matches nothing.
func (r *BaselineRecord) MatchStepTimes(gpuModel string) []StepTimeEntry {
	if gpuModel == "" {
		return nil
	}
	var out []StepTimeEntry
	for _, e := range r.StepTimes {
		if e.GPU != "" && strings.Contains(gpuModel, e.GPU) {
			out = append(out, e)
		}
	}
	return out
}

// Baseline is a loaded, normalized dataset. Read-only after ParseBaseline.
type Baseline struct {
	Records []BaselineRecord
	index   map[BaselineKey]int
}

// LoadBaseline reads and parses a baseline file.
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baseline %q: %w", path, err)
	}
	b, err := ParseBaseline(data)
	if err != nil {
		return nil, fmt.Errorf("baseline %q: %w", path, err)
	}
	return b, nil
}

// ParseBaseline validates data against the baseline schema, assigns keys
// and rounds every loss to its record's precision.
func ParseBaseline(data []byte) (*Baseline, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(baselineSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return nil, fmt.Errorf("schema invalid: %s", strings.Join(errs, "; "))
	}

	var records []BaselineRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	b := &Baseline{Records: make([]BaselineRecord, 0, len(records)), index: make(map[BaselineKey]int, len(records))}
	position := make(map[BaselineKey]int, len(records))
	for i := range records {
		rec := records[i]
		keep, err := assignKey(&rec, i)
		if err != nil {
			return nil, err
		}
		if !keep {
			logrus.Warnf("baseline record %d has no key and no legacy position, ignored", i)
			continue
		}
		digits := rec.Precision.Digits()
		for j, l := range rec.Losses {
			rec.Losses[j] = Number(RoundLoss(float64(l), digits))
		}
		key := rec.Key()
		if prev, dup := position[key]; dup {
			return nil, fmt.Errorf("records %d and %d share key %s", prev, i, key)
		}
		position[key] = i
		b.index[key] = len(b.Records)
		b.Records = append(b.Records, rec)
	}
	return b, nil
}

// assignKey fills in the positional key of an unkeyed legacy record.
// Unkeyed records past the legacy positions are not kept.
func assignKey(rec *BaselineRecord, i int) (bool, error) {
	switch {
	case rec.Top != 0 && rec.Experts != 0:
		return true, nil
	case rec.Top != 0 || rec.Experts != 0:
		return false, fmt.Errorf("record %d: top and num_local_experts must be set together", i)
	case i >= len(legacyKeys):
		return false, nil
	}
	key := legacyKeys[i]
	if rec.Precision != key.Precision {
		return false, fmt.Errorf("record %d: dtype %q does not match positional key %s", i, rec.Precision, key)
	}
	rec.Top, rec.Experts = key.Top, key.Experts
	return true, nil
}

// Lookup returns the record for key.
func (b *Baseline) Lookup(key BaselineKey) (*BaselineRecord, error) {
	i, ok := b.index[key]
	if !ok {
		available := make([]string, 0, len(b.index))
		for _, k := range b.Keys() {
			available = append(available, k.String())
		}
		return nil, fmt.Errorf("%w for %s (available: %v)", ErrBaselineNotFound, key, available)
	}
	return &b.Records[i], nil
}

// Keys returns every key in the dataset, sorted.
func (b *Baseline) Keys() []BaselineKey {
	keys := make([]BaselineKey, 0, len(b.index))
	for k := range b.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Top != keys[j].Top {
			return keys[i].Top < keys[j].Top
		}
		if keys[i].Precision != keys[j].Precision {
			return keys[i].Precision < keys[j].Precision
		}
		return keys[i].Experts < keys[j].Experts
	})
	return keys
}

// WriteBaseline writes keyed records as indented JSON.
func WriteBaseline(path string, records []BaselineRecord) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
