package entities

// Topic parameterizes one run of the pipeline
type Topic struct {
	Name          string   `json:"name" mapstructure:"name"`
	Keywords      []string `json:"keywords" mapstructure:"keywords"`
	LongFile      string   `json:"longFile" mapstructure:"long_file"`
	WideFile      string   `json:"wideFile" mapstructure:"wide_file"`
	CountryColumn string   `json:"countryColumn" mapstructure:"country_column"`
	OutputDir     string   `json:"outputDir,omitempty" mapstructure:"output_dir"`
}
