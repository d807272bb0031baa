// Package config loads server configuration from a YAML file with
// environment-variable fallbacks for deployment overrides.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Mongo struct {
		URI string `yaml:"uri"`
	} `yaml:"mongo"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Game GameConfig `yaml:"game"`
}

// GameConfig holds the gameplay tunables.
type GameConfig struct {
	MaxQuestions int `yaml:"maxQuestions"`
	// QuestionTimeout is the buzz window per question. GenreTimeouts
	// overrides it per genre.
	QuestionTimeout string            `yaml:"questionTimeout"`
	GenreTimeouts   map[string]string `yaml:"genreTimeouts"`
	AnswerTimeout   string            `yaml:"answerTimeout"`
	AdvanceDelay    string            `yaml:"advanceDelay"`
	TeardownDelay   string            `yaml:"teardownDelay"`
	StaleThreshold  string            `yaml:"staleThreshold"`
	QuestionTTL     string            `yaml:"questionTTL"`
	// Scoring constants are pointers so an explicit zero in the file is
	// distinguishable from an absent key.
	CorrectScore   *int     `yaml:"correctScore"`
	MissPenalty    int      `yaml:"missPenalty"`
	SessionBonus   *int     `yaml:"sessionBonus"`
	SoloMultiplier *float64 `yaml:"soloMultiplier"`
}

// Load reads YAML config from path and applies defaults. A missing file
// is not an error; defaults plus environment variables apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-secret"
	}
	if c.Game.MaxQuestions <= 0 {
		c.Game.MaxQuestions = 10
	}
}

// TokenTTL returns the session token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return duration(c.Auth.TokenTTL, 12*time.Hour)
}

// QuestionTimeoutFor returns the buzz window for a genre.
func (g *GameConfig) QuestionTimeoutFor(genre string) time.Duration {
	if raw, ok := g.GenreTimeouts[genre]; ok {
		return duration(raw, 30*time.Second)
	}
	return duration(g.QuestionTimeout, 30*time.Second)
}

// AnswerTimeoutDuration returns the answering window after a buzz grant.
func (g *GameConfig) AnswerTimeoutDuration() time.Duration {
	return duration(g.AnswerTimeout, 8*time.Second)
}

// AdvanceDelayDuration returns the reveal pause before the next question.
func (g *GameConfig) AdvanceDelayDuration() time.Duration {
	return duration(g.AdvanceDelay, 4*time.Second)
}

// TeardownDelayDuration returns the grace period after settlement before
// the room is torn down.
func (g *GameConfig) TeardownDelayDuration() time.Duration {
	return duration(g.TeardownDelay, 7*time.Second)
}

// StaleThresholdDuration returns the idle age after which a waiting room
// is swept.
func (g *GameConfig) StaleThresholdDuration() time.Duration {
	return duration(g.StaleThreshold, 8*time.Minute)
}

// QuestionTTLDuration returns the question cache TTL.
func (g *GameConfig) QuestionTTLDuration() time.Duration {
	return duration(g.QuestionTTL, time.Hour)
}

// CorrectScorePoints returns the score awarded per correct answer.
func (g *GameConfig) CorrectScorePoints() int {
	if g.CorrectScore != nil {
		return *g.CorrectScore
	}
	return 10
}

// SessionBonusPoints returns the flat bonus added to each participant's
// score when experience is settled.
func (g *GameConfig) SessionBonusPoints() int {
	if g.SessionBonus != nil {
		return *g.SessionBonus
	}
	return 50
}

// SoloExperienceMultiplier returns the experience multiplier for
// single-participant sessions.
func (g *GameConfig) SoloExperienceMultiplier() float64 {
	if g.SoloMultiplier != nil {
		return *g.SoloMultiplier
	}
	return 0.1
}

func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
