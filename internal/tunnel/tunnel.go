package tunnel

import (
	"context"
	"errors"
	"fmt"

	"legato/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// ErrNoAuthToken is returned when the tunnel is enabled without a token.
var ErrNoAuthToken = errors.New("ngrok auth token not found; set NGROK_AUTHTOKEN or ngrok.auth_token")

// Service forwards a public ngrok endpoint to the local HTTP server.
type Service struct {
	config *config.NgrokConfig
	agent  ngrok.Agent
	fwd    ngrok.EndpointForwarder
	logger *logrus.Logger
}

// NewService returns nil when the tunnel is disabled. The auth token has
// already been merged from the environment by config loading.
func NewService(cfg *config.NgrokConfig, logger *logrus.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.AuthToken == "" {
		return nil, ErrNoAuthToken
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	return &Service{config: cfg, agent: agent, logger: logger}, nil
}

// Start opens the tunnel to localAddress.
func (s *Service) Start(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil
	}

	var opts []ngrok.EndpointOption
	if s.config.Domain != "" {
		opts = append(opts, ngrok.WithURL(s.config.Domain))
	}

	fwd, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), opts...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.fwd = fwd

	s.logger.WithFields(logrus.Fields{
		"public_url": fwd.URL().String(),
		"upstream":   localAddress,
	}).Info("Ngrok tunnel active")
	return nil
}

// PublicURL returns the public URL of the tunnel, or "" when none is open.
func (s *Service) PublicURL() string {
	if s == nil || s.fwd == nil {
		return ""
	}
	return s.fwd.URL().String()
}

// Stop closes the tunnel.
func (s *Service) Stop() error {
	if s == nil || s.fwd == nil {
		return nil
	}
	s.logger.Info("Stopping ngrok tunnel")
	return s.fwd.Close()
}
