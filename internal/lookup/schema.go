package lookup

type FieldKind string

const (
	FieldStructured FieldKind = "structured"
	FieldEnrichment FieldKind = "enrichment"
)

type Alias struct {
	City  string `yaml:"city"`
	State string `yaml:"state"`
}

type LocationTables struct {
	Aliases            map[string]Alias    `yaml:"aliases"`
	MultiBoroughCities map[string][]string `yaml:"multi_borough_cities"`
	KnownCities        map[string]string   `yaml:"known_cities"`
	States             map[string]string   `yaml:"states"`
}

type FieldSpec struct {
	Name       string    `yaml:"name"`
	Kind       FieldKind `yaml:"kind"`
	Label      string    `yaml:"label"`
	Aliases    []string  `yaml:"aliases"`
	Terms      []string  `yaml:"terms"`
	SearchHint string    `yaml:"search_hint"`
}

type document struct {
	Version       string              `yaml:"version"`
	LastUpdated   string              `yaml:"last_updated"`
	Locations     LocationTables      `yaml:"locations"`
	FacilityTypes map[string][]string `yaml:"facility_types"`
	Ownership     map[string][]string `yaml:"ownership"`
	Fields        []FieldSpec         `yaml:"fields"`
	Intents       map[string][]string `yaml:"intents"`
}
