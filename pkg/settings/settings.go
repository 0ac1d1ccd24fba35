// Package settings holds the configuration of an agentic-research run, as
// loaded from flags, environment and config file through viper.
package settings

import (
	"os"
	"time"

	"github.com/go-go-golems/agentic-research/pkg/mcp"
	"github.com/go-go-golems/agentic-research/pkg/workflow"
	"github.com/huandu/go-clone"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type APIType string

const (
	APITypeResponses APIType = "responses"
	APITypeChat      APIType = "chat"
)

const DefaultQuery = "Find if Microsoft 365 Copilot has SOC2 and HIPAA compliance. " +
	"Do not be distracted with other products under Copilot brand. " +
	"Ground your answers in official data from Microsoft."

type Settings struct {
	APIKey         string        `mapstructure:"openai-api-key" yaml:"-"`
	BaseURL        string        `mapstructure:"openai-base-url" yaml:"openai_base_url"`
	APIType        APIType       `mapstructure:"api-type" yaml:"api_type"`
	ResultsDir     string        `mapstructure:"results-dir" yaml:"results_dir"`
	DefaultQuery   string        `mapstructure:"default-query" yaml:"default_query"`
	RequestTimeout time.Duration `mapstructure:"request-timeout" yaml:"request_timeout"`

	ResearchModel    string `mapstructure:"research-model" yaml:"research_model"`
	CritiqueModel    string `mapstructure:"critique-model" yaml:"critique_model"`
	FinalReportModel string `mapstructure:"final-report-model" yaml:"final_report_model"`

	MaxTurnsResearch    int `mapstructure:"max-turns-research" yaml:"max_turns_research"`
	MaxTurnsCritique    int `mapstructure:"max-turns-critique" yaml:"max_turns_critique"`
	MaxTurnsFinalReport int `mapstructure:"max-turns-final-report" yaml:"max_turns_final_report"`

	DeepWikiURL            string        `mapstructure:"deepwiki-url" yaml:"deepwiki_url"`
	DeepWikiTimeout        time.Duration `mapstructure:"deepwiki-timeout" yaml:"deepwiki_timeout"`
	DeepWikiSSEReadTimeout time.Duration `mapstructure:"deepwiki-sse-read-timeout" yaml:"deepwiki_sse_read_timeout"`
	DeepWikiSessionTimeout time.Duration `mapstructure:"deepwiki-session-timeout" yaml:"deepwiki_session_timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() *Settings {
	deepWiki := mcp.DeepWiki()
	return &Settings{
		BaseURL:                "https://api.openai.com/v1",
		APIType:                APITypeResponses,
		ResultsDir:             "results",
		DefaultQuery:           DefaultQuery,
		RequestTimeout:         10 * time.Minute,
		ResearchModel:          workflow.DefaultModels.Research,
		CritiqueModel:          workflow.DefaultModels.Critique,
		FinalReportModel:       workflow.DefaultModels.FinalReport,
		MaxTurnsResearch:       workflow.DefaultMaxTurns.Research,
		MaxTurnsCritique:       workflow.DefaultMaxTurns.Critique,
		MaxTurnsFinalReport:    workflow.DefaultMaxTurns.FinalReport,
		DeepWikiURL:            deepWiki.URL,
		DeepWikiTimeout:        deepWiki.Timeout,
		DeepWikiSSEReadTimeout: deepWiki.SSEReadTimeout,
		DeepWikiSessionTimeout: deepWiki.SessionTimeout,
	}
}

// SetDefaults registers the defaults of every key on v, so that
// AutomaticEnv lookups work for keys without a flag.
func SetDefaults(v *viper.Viper) error {
	m := map[string]interface{}{}
	if err := mapstructure.Decode(Default(), &m); err != nil {
		return errors.Wrap(err, "failed to encode default settings")
	}
	for k, val := range m {
		v.SetDefault(k, val)
	}
	return nil
}

// Load decodes the settings from v. OPENAI_API_KEY is used when no API key
// was configured otherwise.
func Load(v *viper.Viper) (*Settings, error) {
	ret := Default()
	err := v.Unmarshal(ret, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if ret.APIKey == "" {
		ret.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Settings) Validate() error {
	switch s.APIType {
	case APITypeResponses, APITypeChat:
	default:
		return errors.Errorf("unknown api-type %q (expected responses or chat)", s.APIType)
	}
	if s.MaxTurnsResearch <= 0 || s.MaxTurnsCritique <= 0 || s.MaxTurnsFinalReport <= 0 {
		return errors.New("max turns must be positive")
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Models() workflow.Models {
	return workflow.Models{
		Research:    s.ResearchModel,
		Critique:    s.CritiqueModel,
		FinalReport: s.FinalReportModel,
	}
}

func (s *Settings) MaxTurns() workflow.MaxTurns {
	return workflow.MaxTurns{
		Research:    s.MaxTurnsResearch,
		Critique:    s.MaxTurnsCritique,
		FinalReport: s.MaxTurnsFinalReport,
	}
}

// DeepWiki is the MCP configuration of the documentation server.
func (s *Settings) DeepWiki() mcp.Config {
	ret := mcp.DeepWiki()
	ret.URL = s.DeepWikiURL
	ret.Timeout = s.DeepWikiTimeout
	ret.SSEReadTimeout = s.DeepWikiSSEReadTimeout
	ret.SessionTimeout = s.DeepWikiSessionTimeout
	return ret
}

func (s *Settings) Validation() workflow.ValidationSettings {
	return workflow.ValidationSettings{
		APIKey:       s.APIKey,
		ResultsDir:   s.ResultsDir,
		DefaultQuery: s.DefaultQuery,
	}
}
