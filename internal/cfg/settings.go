package cfg

import "time"

// Settings is the resolved runtime configuration shared by both binaries.
type Settings struct {
	ListenAddr   string
	DataPath     string
	TextColumn   string
	TargetColumn string
	VocabSize    int
	VocabName    string
	Loss         string
	Repeats      int
	ALEBins      int
	LocalSamples int
	LocalBudget  int
	Workers      int
	Seed         int64
	ModelWeights string
	ModelURL     string
	ModelTimeout time.Duration
	StorePath    string
	JobLimit     int
	LogLevel     string
}

// ConfigFile is the YAML layout accepted via GLASSBOX_CONFIG.
type ConfigFile struct {
	Server struct {
		ListenAddr string `yaml:"listenAddr"`
		JobLimit   int    `yaml:"jobLimit"`
	} `yaml:"server"`

	Data struct {
		Path         string `yaml:"path"`
		TextColumn   string `yaml:"textColumn"`
		TargetColumn string `yaml:"targetColumn"`
	} `yaml:"data"`

	Pipeline struct {
		VocabSize int    `yaml:"vocabSize"`
		VocabName string `yaml:"vocabName"`
	} `yaml:"pipeline"`

	Engine struct {
		Loss         string `yaml:"loss"`
		Repeats      int    `yaml:"repeats"`
		ALEBins      int    `yaml:"aleBins"`
		LocalSamples int    `yaml:"localSamples"`
		LocalBudget  int    `yaml:"localBudget"`
		Workers      int    `yaml:"workers"`
		Seed         int64  `yaml:"seed"`
	} `yaml:"engine"`

	Model struct {
		Weights string `yaml:"weights"`
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"model"`

	System struct {
		StorePath string `yaml:"storePath"`
		LogLevel  string `yaml:"logLevel"`
	} `yaml:"system"`
}
