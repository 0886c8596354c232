package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/giygas/gho-indicators/entities"
	"github.com/spf13/viper"
)

// ErrUnknownTopic is returned when a requested topic is not in the registry
var ErrUnknownTopic = errors.New("unknown topic")

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a topic name into a file name stem, e.g. "Oral Health" -> "oral_health"
func Slug(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(s, "_")
}

// LoadTopics reads the topic registry. The file has a top-level "topics" list and
// an optional "defaults" block for country_column and output_dir. File names left
// empty default to <slug>_all_long.<format> and <slug>_all_wide.<format>.
func LoadTopics(path, format string) ([]entities.Topic, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GHO")
	v.AutomaticEnv() // GHO_DEFAULTS_OUTPUT_DIR etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("defaults.country_column", entities.ColumnCountry)
	v.SetDefault("defaults.output_dir", "")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read topics file %s: %w", path, err)
	}

	var topics []entities.Topic
	if err := v.UnmarshalKey("topics", &topics); err != nil {
		return nil, fmt.Errorf("failed to decode topics in %s: %w", path, err)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no topics defined in %s", ErrInvalidConfig, path)
	}

	defaultCountry := v.GetString("defaults.country_column")
	defaultDir := v.GetString("defaults.output_dir")

	seen := make(map[string]string, len(topics))
	for i := range topics {
		t := &topics[i]
		if t.CountryColumn == "" {
			t.CountryColumn = defaultCountry
		}
		if t.OutputDir == "" {
			t.OutputDir = defaultDir
		}
		ApplyTopicDefaults(t, format)

		if err := ValidateTopic(*t); err != nil {
			return nil, fmt.Errorf("%w: topic #%d: %w", ErrInvalidConfig, i+1, err)
		}

		slug := Slug(t.Name)
		if prev, dup := seen[slug]; dup {
			return nil, fmt.Errorf("%w: topics %q and %q share the file stem %q", ErrInvalidConfig, prev, t.Name, slug)
		}
		seen[slug] = t.Name
	}

	return topics, nil
}

// ApplyTopicDefaults fills in output file names and the country column. File
// names always end in the format's extension.
func ApplyTopicDefaults(t *entities.Topic, format string) {
	ext := format
	if ext == "" {
		ext = "csv"
	}
	slug := Slug(t.Name)
	if t.LongFile == "" {
		t.LongFile = slug + "_all_long"
	}
	if t.WideFile == "" {
		t.WideFile = slug + "_all_wide"
	}
	t.LongFile = withExtension(t.LongFile, ext)
	t.WideFile = withExtension(t.WideFile, ext)
	if t.CountryColumn == "" {
		t.CountryColumn = entities.ColumnCountry
	}
}

// withExtension gives a file name the extension of the output format, replacing
// a .csv or .tsv suffix so the name always matches the delimiter
func withExtension(name, ext string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv":
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name + "." + ext
}

// ValidateTopic checks a single topic definition
func ValidateTopic(t entities.Topic) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if Slug(t.Name) == "" {
		return fmt.Errorf("name %q has no usable characters", t.Name)
	}

	keywords := 0
	for _, k := range t.Keywords {
		if strings.TrimSpace(k) != "" {
			keywords++
		}
	}
	if keywords == 0 {
		return fmt.Errorf("topic %q needs at least one keyword", t.Name)
	}

	if !slices.Contains(entities.CountryColumns, t.CountryColumn) {
		return fmt.Errorf("topic %q: country_column must be one of %s, got %q",
			t.Name, strings.Join(entities.CountryColumns, ", "), t.CountryColumn)
	}

	for _, f := range []string{t.LongFile, t.WideFile} {
		if strings.ContainsAny(f, `/\`) || strings.Contains(f, "..") {
			return fmt.Errorf("topic %q: output file %q must be a plain file name", t.Name, f)
		}
	}
	if t.LongFile == t.WideFile {
		return fmt.Errorf("topic %q: long and wide files must differ", t.Name)
	}

	return nil
}

// FindTopic looks a topic up by name or slug, case-insensitively
func FindTopic(topics []entities.Topic, name string) (entities.Topic, error) {
	want := Slug(name)
	for _, t := range topics {
		if strings.EqualFold(t.Name, name) || Slug(t.Name) == want {
			return t, nil
		}
	}
	return entities.Topic{}, fmt.Errorf("%w: %s", ErrUnknownTopic, name)
}
