package gateway

import (
	"errors"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config points the gateway at a notes backend.
type Config struct {
	// BaseURL is the API root, for example http://localhost:8080/api.
	BaseURL string `yaml:"base_url"`
	// Timeout bounds each request. Zero leaves it to the transport.
	Timeout time.Duration `yaml:"timeout"`
	// Token, when set, is sent as a bearer token.
	Token string `yaml:"token"`
}

func DefaultConfig() Config {
	return Config{BaseURL: "http://localhost:8080/api"}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}
