package lookup

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var embeddedTables []byte

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Tables is the immutable, indexed form of the lookup document. All lookups
// are case-insensitive.
type Tables struct {
	Version     string
	LastUpdated string

	aliases     map[string]Alias
	boroughs    map[string][]string
	knownCities map[string]Alias
	stateByName map[string]string
	stateByCode map[string]string
	codeByState map[string]string

	typeSynonyms map[string][]string
	typeGroupOf  map[string]string

	fields     map[string]*FieldSpec
	fieldOrder []*FieldSpec

	intentTerms map[string][]string

	typePatterns      []termPattern
	locationPatterns  []termPattern
	fieldPatterns     []termPattern
	ownershipPatterns []termPattern
}

type termPattern struct {
	key string
	re  *regexp.Regexp
}

// Default returns the tables compiled into the binary.
func Default() *Tables {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = Parse(embeddedTables)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded lookup tables are invalid: %v", defaultErr))
	}
	return defaultTables
}

// Load reads a tables document from path, for deployments that override the
// embedded copy.
func Load(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lookup tables: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Tables, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lookup tables: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc.index(), nil
}

func (d *document) validate() error {
	if d.Version == "" {
		return fmt.Errorf("lookup tables: version is required")
	}
	for key, alias := range d.Locations.Aliases {
		if alias.City == "" {
			return fmt.Errorf("lookup tables: alias %q has no city", key)
		}
	}
	for name, code := range d.Locations.States {
		if len(code) != 2 {
			return fmt.Errorf("lookup tables: state %q has invalid code %q", name, code)
		}
	}
	seen := make(map[string]bool)
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("lookup tables: field without name")
		}
		if f.Kind != FieldStructured && f.Kind != FieldEnrichment {
			return fmt.Errorf("lookup tables: field %q has unknown kind %q", f.Name, f.Kind)
		}
		if seen[f.Name] {
			return fmt.Errorf("lookup tables: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func normKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (d *document) index() *Tables {
	t := &Tables{
		Version:      d.Version,
		LastUpdated:  d.LastUpdated,
		aliases:      make(map[string]Alias),
		boroughs:     make(map[string][]string),
		knownCities:  make(map[string]Alias),
		stateByName:  make(map[string]string),
		stateByCode:  make(map[string]string),
		codeByState:  make(map[string]string),
		typeSynonyms: make(map[string][]string),
		typeGroupOf:  make(map[string]string),
		fields:       make(map[string]*FieldSpec),
		intentTerms:  make(map[string][]string),
	}

	for name, code := range d.Locations.States {
		t.stateByName[normKey(name)] = name
		t.stateByCode[strings.ToUpper(code)] = name
		t.codeByState[name] = strings.ToUpper(code)
	}
	for key, alias := range d.Locations.Aliases {
		t.aliases[normKey(key)] = alias
	}
	for city, boroughs := range d.Locations.MultiBoroughCities {
		t.boroughs[normKey(city)] = boroughs
	}
	for city, state := range d.Locations.KnownCities {
		t.knownCities[normKey(city)] = Alias{City: city, State: state}
	}

	for key, synonyms := range d.FacilityTypes {
		k := normKey(key)
		t.typeSynonyms[k] = synonyms
		t.typeGroupOf[k] = k
		for _, s := range synonyms {
			t.typeGroupOf[normKey(s)] = k
		}
	}

	for i := range d.Fields {
		f := &d.Fields[i]
		t.fieldOrder = append(t.fieldOrder, f)
		t.fields[normFieldKey(f.Name)] = f
		for _, a := range f.Aliases {
			t.fields[normFieldKey(a)] = f
		}
		for _, term := range f.Terms {
			t.fieldPatterns = append(t.fieldPatterns, newTermPattern(term, f.Name))
		}
	}

	for label, terms := range d.Ownership {
		t.ownershipPatterns = append(t.ownershipPatterns, newTermPattern(label, label))
		for _, term := range terms {
			t.ownershipPatterns = append(t.ownershipPatterns, newTermPattern(term, label))
		}
	}

	for kind, terms := range d.Intents {
		for _, term := range terms {
			t.intentTerms[kind] = append(t.intentTerms[kind], normKey(term))
		}
	}

	for key := range t.typeSynonyms {
		t.typePatterns = append(t.typePatterns, newTypePattern(key))
	}
	for key := range t.aliases {
		t.locationPatterns = append(t.locationPatterns, newTermPattern(key, key))
	}
	for key := range t.stateByName {
		t.locationPatterns = append(t.locationPatterns, newTermPattern(key, key))
	}
	for key := range t.knownCities {
		t.locationPatterns = append(t.locationPatterns, newTermPattern(key, key))
	}

	longestFirst(t.typePatterns)
	longestFirst(t.locationPatterns)
	longestFirst(t.fieldPatterns)
	longestFirst(t.ownershipPatterns)
	return t
}

func newTermPattern(term, key string) termPattern {
	return termPattern{
		key: key,
		re:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(normKey(term)) + `\b`),
	}
}

// newTypePattern also consumes a plural and a trailing generic noun, so
// "mental health clinics" is read as one type rather than two.
func newTypePattern(key string) termPattern {
	stem := regexp.QuoteMeta(key) + `(?:s|es)?`
	if strings.HasSuffix(key, "y") {
		stem = regexp.QuoteMeta(strings.TrimSuffix(key, "y")) + `(?:y|ies)`
	}
	return termPattern{
		key: key,
		re: regexp.MustCompile(`(?i)\b` + stem +
			`(?:\s+(?:clinic|center|centre|facilit(?:y|ie)|service|program|home)s?)?\b`),
	}
}

// longestFirst orders patterns so that "mental health" is tried before
// "health", and ties break alphabetically for stable output.
func longestFirst(p []termPattern) {
	sort.SliceStable(p, func(i, j int) bool {
		li, lj := len(p[i].re.String()), len(p[j].re.String())
		if li != lj {
			return li > lj
		}
		return p[i].key < p[j].key
	})
}
