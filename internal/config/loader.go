package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// knownUserIDs is the closed set of family identities that may carry a
// profile or appear in the fallback hierarchy.
var knownUserIDs = []string{"dad", "mom", "teen", "child"}

// LoadVoice reads and validates the voice sidecar configuration at path.
// Values absent from the file keep their [DefaultVoice] defaults.
func LoadVoice(path string) (*VoiceConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadVoiceFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadVoiceFromReader decodes a voice config from r over the defaults and
// validates the result. Useful in tests where configs are string literals.
func LoadVoiceFromReader(r io.Reader) (*VoiceConfig, error) {
	cfg := DefaultVoice()
	if err := decodeStrict(r, cfg); err != nil {
		return nil, err
	}
	if err := ValidateVoice(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateVoice checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func ValidateVoice(cfg *VoiceConfig) error {
	var errs []error

	errs = append(errs, validateServer(cfg.Server)...)

	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.3f is out of range [0, 1]", cfg.VAD.Threshold))
	}
	if cfg.SpeakerID.ConfidenceHigh < cfg.SpeakerID.ConfidenceLow {
		errs = append(errs, fmt.Errorf("speaker_id.confidence_high %.2f is below confidence_low %.2f",
			cfg.SpeakerID.ConfidenceHigh, cfg.SpeakerID.ConfidenceLow))
	}
	if cfg.SpeakerID.ConfidenceLow < 0 || cfg.SpeakerID.ConfidenceHigh > 1 {
		errs = append(errs, fmt.Errorf("speaker_id confidence thresholds must lie in [0, 1]"))
	}
	if cfg.SpeakerID.EmbeddingsPath == "" {
		errs = append(errs, fmt.Errorf("speaker_id.embeddings_path is required"))
	}
	if len(cfg.SpeakerID.FallbackHierarchy) == 0 {
		errs = append(errs, fmt.Errorf("speaker_id.fallback_hierarchy must not be empty"))
	}
	for i, uid := range cfg.SpeakerID.FallbackHierarchy {
		if !slices.Contains(knownUserIDs, uid) {
			errs = append(errs, fmt.Errorf("speaker_id.fallback_hierarchy[%d] %q is not a known user", i, uid))
		}
	}
	if cfg.Audit.LogPath == "" {
		errs = append(errs, fmt.Errorf("audit.log_path is required"))
	}

	return errors.Join(errs...)
}

// LoadLLM reads and validates the LLM sidecar configuration at path.
// Values absent from the file keep their [DefaultLLM] defaults.
func LoadLLM(path string) (*LLMConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadLLMFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadLLMFromReader decodes an LLM config from r over the defaults and
// validates the result.
func LoadLLMFromReader(r io.Reader) (*LLMConfig, error) {
	cfg := DefaultLLM()
	if err := decodeStrict(r, cfg); err != nil {
		return nil, err
	}
	if err := ValidateLLM(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateLLM checks that cfg contains a coherent set of values.
func ValidateLLM(cfg *LLMConfig) error {
	var errs []error

	errs = append(errs, validateServer(cfg.Server)...)

	if cfg.Ollama.Models.Fast == "" || cfg.Ollama.Models.Full == "" {
		errs = append(errs, fmt.Errorf("ollama.models.fast and ollama.models.full are both required"))
	}
	if cfg.Memory.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("memory.postgres_dsn is required"))
	}
	if cfg.Memory.ChatTopK <= 0 {
		errs = append(errs, fmt.Errorf("memory.chat_top_k must be positive"))
	}
	if cfg.Embeddings.Model == "" {
		errs = append(errs, fmt.Errorf("embeddings.model is required"))
	}
	if cfg.Classifier.Mode != "heuristic" {
		errs = append(errs, fmt.Errorf("classifier.mode %q is invalid; valid values: heuristic", cfg.Classifier.Mode))
	}
	if cfg.Classifier.FastThresholdWords > cfg.Classifier.FullThresholdWords {
		errs = append(errs, fmt.Errorf("classifier.fast_threshold_words %d exceeds full_threshold_words %d",
			cfg.Classifier.FastThresholdWords, cfg.Classifier.FullThresholdWords))
	}
	for uid, profile := range cfg.UserProfiles {
		if !slices.Contains(knownUserIDs, uid) {
			errs = append(errs, fmt.Errorf("user_profiles.%s is not a known user", uid))
		}
		if !profile.Role.IsValid() {
			errs = append(errs, fmt.Errorf("user_profiles.%s.role %q is invalid; valid values: admin, user", uid, profile.Role))
		}
		switch profile.ModelPreference {
		case "", "fast", "full":
		default:
			errs = append(errs, fmt.Errorf("user_profiles.%s.model_preference %q is invalid; valid values: fast, full", uid, profile.ModelPreference))
		}
	}

	return errors.Join(errs...)
}

// LoadLearning reads and validates the learning sidecar configuration at path.
// Values absent from the file keep their [DefaultLearning] defaults.
func LoadLearning(path string) (*LearningConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadLearningFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadLearningFromReader decodes a learning config from r over the defaults
// and validates the result.
func LoadLearningFromReader(r io.Reader) (*LearningConfig, error) {
	cfg := DefaultLearning()
	if err := decodeStrict(r, cfg); err != nil {
		return nil, err
	}
	if err := ValidateLearning(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateLearning checks that cfg contains a coherent set of values.
func ValidateLearning(cfg *LearningConfig) error {
	var errs []error

	errs = append(errs, validateServer(cfg.Server)...)

	if cfg.LLMSidecar.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm_sidecar.base_url is required"))
	}
	if !slices.Contains(knownUserIDs, cfg.LLMSidecar.GateUserID) {
		errs = append(errs, fmt.Errorf("llm_sidecar.gate_user_id %q is not a known user", cfg.LLMSidecar.GateUserID))
	}
	if t := cfg.Gates.Gate2AConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("gates.gate2a_confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Storage.BasePath == "" {
		errs = append(errs, fmt.Errorf("storage.base_path is required"))
	}
	if cfg.Notification.Enabled && cfg.Notification.Command == "" {
		errs = append(errs, fmt.Errorf("notification.command is required when notifications are enabled"))
	}

	return errors.Join(errs...)
}

// APIKey returns the vendor API key from the configured environment
// variable, or "" when unset.
func (c FactCheckConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// decodeStrict decodes YAML from r into cfg, rejecting unknown fields.
// An empty document leaves cfg (the defaults) untouched.
func decodeStrict(r io.Reader, cfg any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// validateServer checks the shared server block.
func validateServer(s ServerConfig) []error {
	var errs []error
	if s.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("server.listen_addr is required"))
	}
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	return errs
}
