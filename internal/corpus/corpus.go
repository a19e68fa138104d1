// Package corpus loads the analytics schema and the labeled test cases.
package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"

	"github.com/sqleval/sqleval/datasets"
	"github.com/sqleval/sqleval/pkg/types"
)

// LoadError reports a corpus file that could not be read, parsed or validated.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Options locates the corpus files. Empty paths select the embedded datasets.
type Options struct {
	SchemaPath string
	CasesPath  string
	GoldenPath string
}

// Corpus is the immutable, loaded evaluation corpus.
type Corpus struct {
	schema types.Schema
	cases  []types.TestCase
	index  map[string]int
}

type casesFile struct {
	TestCases []types.TestCase `json:"test_cases"`
}

type goldenFile struct {
	Contexts map[string]struct {
		RequiredContext []string `json:"required_context"`
	} `json:"contexts"`
}

// Load reads, validates and merges the corpus files.
func Load(opts Options) (*Corpus, error) {
	var schema types.Schema
	if err := loadFile(opts.SchemaPath, datasets.SchemaFile, kindSchema, &schema); err != nil {
		return nil, err
	}

	var cf casesFile
	if err := loadFile(opts.CasesPath, datasets.CasesFile, kindCases, &cf); err != nil {
		return nil, err
	}

	var golden goldenFile
	switch {
	case opts.GoldenPath != "":
		if err := loadFile(opts.GoldenPath, "", kindGolden, &golden); err != nil {
			return nil, err
		}
	case opts.CasesPath == "":
		if err := loadFile("", datasets.GoldenFile, kindGolden, &golden); err != nil {
			return nil, err
		}
	}

	casesName := opts.CasesPath
	if casesName == "" {
		casesName = datasets.CasesFile
	}

	c := &Corpus{
		schema: schema,
		cases:  make([]types.TestCase, 0, len(cf.TestCases)),
		index:  make(map[string]int, len(cf.TestCases)),
	}
	for i, tc := range cf.TestCases {
		tc.ID = strings.TrimSpace(tc.ID)
		if tc.ID == "" {
			return nil, &LoadError{File: casesName, Err: fmt.Errorf("test case %d has an empty id", i)}
		}
		if _, dup := c.index[tc.ID]; dup {
			return nil, &LoadError{File: casesName, Err: fmt.Errorf("duplicate test case id %q", tc.ID)}
		}
		if _, err := types.ParseDifficulty(string(tc.Difficulty)); err != nil {
			return nil, &LoadError{File: casesName, Err: fmt.Errorf("test case %q: %w", tc.ID, err)}
		}
		if strings.TrimSpace(tc.Question) == "" {
			return nil, &LoadError{File: casesName, Err: fmt.Errorf("test case %q has an empty question", tc.ID)}
		}
		if g, ok := golden.Contexts[tc.ID]; ok {
			tc.ExpectedContext = mergeContext(tc.ExpectedContext, g.RequiredContext)
		}
		c.index[tc.ID] = len(c.cases)
		c.cases = append(c.cases, tc)
	}
	return c, nil
}

// LoadDefault loads the embedded datasets.
func LoadDefault() (*Corpus, error) {
	return Load(Options{})
}

// loadFile reads path (or the embedded file when path is empty), validates it
// and decodes it into out.
func loadFile(path, embedded, kind string, out any) error {
	name := path
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		name = embedded
		raw, err = fs.ReadFile(datasets.FS, embedded)
	}
	if err != nil {
		return &LoadError{File: name, Err: err}
	}

	data, err := toJSON(name, raw)
	if err != nil {
		return &LoadError{File: name, Err: err}
	}
	if err := validateJSON(kind, data); err != nil {
		return &LoadError{File: name, Err: fmt.Errorf("invalid %s file: %w", kind, err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &LoadError{File: name, Err: err}
	}
	return nil
}

// toJSON normalizes a JSON, YAML or TOML document to JSON bytes.
func toJSON(name string, raw []byte) ([]byte, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json", "":
		if !json.Valid(raw) {
			return nil, fmt.Errorf("malformed JSON")
		}
		return raw, nil
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return json.Marshal(doc)
	case ".toml":
		var doc map[string]any
		if _, err := toml.Decode(string(raw), &doc); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		return json.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
}

func mergeContext(local, golden []string) []string {
	seen := make(map[string]bool, len(local)+len(golden))
	out := make([]string, 0, len(local)+len(golden))
	for _, list := range [][]string{local, golden} {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Schema returns the analytics schema.
func (c *Corpus) Schema() *types.Schema {
	return &c.schema
}

// All returns every test case in file order.
func (c *Corpus) All() []types.TestCase {
	return append([]types.TestCase(nil), c.cases...)
}

// ByID returns the case with the given id.
func (c *Corpus) ByID(id string) (types.TestCase, bool) {
	i, ok := c.index[id]
	if !ok {
		return types.TestCase{}, false
	}
	return c.cases[i], true
}

// Counts returns the number of cases per difficulty.
func (c *Corpus) Counts() map[types.Difficulty]int {
	out := make(map[types.Difficulty]int, len(types.Difficulties))
	for _, tc := range c.cases {
		out[tc.Difficulty]++
	}
	return out
}

// Len returns the number of cases.
func (c *Corpus) Len() int { return len(c.cases) }
