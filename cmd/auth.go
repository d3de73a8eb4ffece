package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/hitscan/internal/server"
	"github.com/desertthunder/hitscan/internal/services"
	"github.com/desertthunder/hitscan/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 5 * time.Minute

// Auth performs the OAuth2 authorization code flow for Spotify and saves the tokens to the config file.
//
// Starts a local HTTP server on the redirect URI, opens the browser and waits for the callback.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if !config.Credentials.Spotify.HasClientCredentials() {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map(), services.WithServiceLogger(r.logger))
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	token, err := r.doOAuth(ctx, config, svc)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: hitscan collect\n")

	return nil
}

// callbackAddr returns the listen address for redirectURI, falling back to the [server] config for missing parts.
func callbackAddr(redirectURI string, fallback shared.ServerConfig) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	host, port := u.Hostname(), u.Port()
	if host == "" {
		host = fallback.Host
	}
	if port == "" {
		port = strconv.Itoa(fallback.Port)
	}
	return net.JoinHostPort(host, port), nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, config *shared.Config, svc *services.SpotifyService) (*oauth2.Token, error) {
	redirectURI := svc.OAuthConfig().RedirectURL
	handler, err := server.NewOAuthHandler(svc, shared.GenerateState(), redirectURI)
	if err != nil {
		return nil, err
	}

	addr, err := callbackAddr(redirectURI, config.Server)
	if err != nil {
		return nil, err
	}

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	srv, err := server.Start(addr, router)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			r.logger.Warn("failed to stop callback server", "error", err)
		}
		if err, ok := <-srv.Errors(); ok {
			r.logger.Warn("callback server failed", "error", err)
		}
	}()
	r.logger.Infof("waiting for OAuth callback at %v", srv.Addr())

	authURL := svc.GetAuthURL(handler.State())
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	return handler.Wait(ctx)
}
