// Spotify Web API implementation of [Catalog]
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/hitscan/internal/models"
	"github.com/desertthunder/hitscan/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	defaultRedirectURI = "http://127.0.0.1:3000/callback"
	playlistItemsLimit = 100
)

// SpotifyService implements [Catalog] and [AnalysisFetcher] for the Spotify Web API.
type SpotifyService struct {
	config      *oauth2.Config
	credentials map[string]string
	baseURL     string
	tokenURL    string
	limiter     *rate.Limiter
	logger      *log.Logger

	mu             sync.Mutex
	client         *spotify.Client
	tokenSource    oauth2.TokenSource
	onTokenRefresh func(*oauth2.Token)
}

// Option configures a [SpotifyService].
type Option func(*SpotifyService)

// WithBaseURL points the API client at url instead of api.spotify.com.
func WithBaseURL(url string) Option {
	return func(s *SpotifyService) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		s.baseURL = url
	}
}

// WithTokenURL overrides the accounts token endpoint.
func WithTokenURL(url string) Option {
	return func(s *SpotifyService) {
		s.tokenURL = url
		s.config.Endpoint.TokenURL = url
	}
}

// WithRateLimit caps requests per second. Zero or less disables throttling.
func WithRateLimit(rps float64) Option {
	return func(s *SpotifyService) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithServiceLogger sets the logger used for skipped responses.
func WithServiceLogger(l *log.Logger) Option {
	return func(s *SpotifyService) { s.logger = l }
}

// NewSpotifyService creates a Spotify service from the keys of [shared.SpotifyConfig.Map].
func NewSpotifyService(credentials map[string]string, opts ...Option) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = defaultRedirectURI
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{spotifyauth.ScopeUserReadPrivate},
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
		credentials: credentials,
		tokenURL:    spotifyauth.TokenURL,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate builds the API client.
//
// A stored access or refresh token is used when present, otherwise the client credentials grant is performed.
// An expired stored token is refreshed here, so the callback sees the new token before any API call.
func (s *SpotifyService) Authenticate(ctx context.Context) error {
	var ts oauth2.TokenSource

	stored := shared.SpotifyConfig{
		AccessToken:  s.credentials["access_token"],
		RefreshToken: s.credentials["refresh_token"],
		TokenExpiry:  s.credentials["token_expiry"],
	}
	if token := stored.Token(); token != nil {
		ts = s.config.TokenSource(ctx, token)
	} else {
		cc := &clientcredentials.Config{
			ClientID:     s.config.ClientID,
			ClientSecret: s.config.ClientSecret,
			TokenURL:     s.tokenURL,
		}
		ts = cc.TokenSource(ctx)
	}

	s.mu.Lock()
	source := &refreshableTokenSource{source: ts, callback: s.onTokenRefresh}
	s.mu.Unlock()

	if _, err := source.Token(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	clientOpts := []spotify.ClientOption{spotify.WithRetry(true)}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(s.baseURL))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenSource = source
	s.client = spotify.New(oauth2.NewClient(ctx, source), clientOpts...)
	return nil
}

// SetTokenRefreshCallback registers fn to receive every new token. It takes effect on the next [SpotifyService.Authenticate].
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
}

// Token returns the current token, refreshing it if needed.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	ts := s.tokenSource
	s.mu.Unlock()
	if ts == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return ts.Token()
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig returns the authorization code flow configuration.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// ready waits for the rate limiter and returns the authenticated client.
func (s *SpotifyService) ready(ctx context.Context) (*spotify.Client, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// NewReleases implements [Catalog].
func (s *SpotifyService) NewReleases(ctx context.Context, locale string, limit, offset int) (*models.AlbumPage, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	page, err := client.NewReleases(ctx, spotify.Country(locale), spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapError("new releases", err)
	}

	out := &models.AlbumPage{Total: int(page.Total), Items: make([]models.Album, 0, len(page.Albums))}
	for _, a := range page.Albums {
		album := models.Album{
			URI:         string(a.URI),
			Type:        a.AlbumType,
			Name:        a.Name,
			Href:        a.Endpoint,
			ReleaseDate: a.ReleaseDate,
		}
		for _, artist := range a.Artists {
			album.Artists = append(album.Artists, models.Artist{Name: artist.Name, URI: string(artist.URI)})
		}
		out.Items = append(out.Items, album)
	}
	return out, nil
}

// AlbumTracks implements [Catalog].
func (s *SpotifyService) AlbumTracks(ctx context.Context, albumURI string, limit int) (*models.TrackPage, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	page, err := client.GetAlbumTracks(ctx, toID(albumURI), spotify.Limit(limit))
	if err != nil {
		if isNotFound(err) {
			s.logger.Debug("album not found", "album", albumURI)
			return nil, nil
		}
		return nil, wrapError("album tracks", err)
	}

	out := &models.TrackPage{Items: make([]models.TrackItem, 0, len(page.Tracks))}
	for _, t := range page.Tracks {
		out.Items = append(out.Items, models.TrackItem{
			URI:        string(t.URI),
			Name:       t.Name,
			DurationMS: int(t.Duration),
		})
	}
	return out, nil
}

// AudioFeatures implements [Catalog].
func (s *SpotifyService) AudioFeatures(ctx context.Context, trackURI string) (*models.AudioFeatures, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	features, err := client.GetAudioFeatures(ctx, toID(trackURI))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapError("audio features", err)
	}
	if len(features) == 0 || features[0] == nil {
		return nil, nil
	}

	f := features[0]
	return &models.AudioFeatures{
		Danceability:     float64(f.Danceability),
		Energy:           float64(f.Energy),
		Key:              int(f.Key),
		Loudness:         float64(f.Loudness),
		Mode:             int(f.Mode),
		Speechiness:      float64(f.Speechiness),
		Acousticness:     float64(f.Acousticness),
		Instrumentalness: float64(f.Instrumentalness),
		Liveness:         float64(f.Liveness),
		Valence:          float64(f.Valence),
		Tempo:            float64(f.Tempo),
	}, nil
}

// TrackDetails implements [Catalog].
func (s *SpotifyService) TrackDetails(ctx context.Context, trackURI string) (*models.TrackDetails, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	track, err := client.GetTrack(ctx, toID(trackURI))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapError("track", err)
	}
	if track == nil {
		return nil, nil
	}

	popularity := int(track.Popularity)
	return &models.TrackDetails{URI: string(track.URI), Popularity: &popularity}, nil
}

// FeaturedPlaylists implements [Catalog].
func (s *SpotifyService) FeaturedPlaylists(ctx context.Context, locale string, limit int) (*models.PlaylistPage, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	_, page, err := client.FeaturedPlaylists(ctx, spotify.Country(locale), spotify.Limit(limit))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapError("featured playlists", err)
	}
	if page == nil {
		return nil, nil
	}

	out := &models.PlaylistPage{Items: make([]models.PlaylistRef, 0, len(page.Playlists))}
	for _, p := range page.Playlists {
		out.Items = append(out.Items, models.PlaylistRef{ID: string(p.ID), Name: p.Name})
	}
	return out, nil
}

// PlaylistItems implements [Catalog]. A missing playlist yields nothing.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string) iter.Seq2[*models.PlaylistItemPage, error] {
	return func(yield func(*models.PlaylistItemPage, error) bool) {
		client, err := s.ready(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		page, err := client.GetPlaylistItems(ctx, toID(playlistID), spotify.Limit(playlistItemsLimit))
		if err != nil {
			if isNotFound(err) {
				s.logger.Debug("playlist not found", "playlist", playlistID)
				return
			}
			yield(nil, wrapError("playlist items", err))
			return
		}

		for {
			if !yield(convertPlaylistItems(page), nil) {
				return
			}
			if page.Next == "" {
				return
			}

			if client, err = s.ready(ctx); err != nil {
				yield(nil, err)
				return
			}
			err := client.NextPage(ctx, page)
			if errors.Is(err, spotify.ErrNoMorePages) {
				return
			}
			if err != nil {
				yield(nil, wrapError("playlist items", err))
				return
			}
		}
	}
}

// AudioAnalysis implements [AnalysisFetcher].
func (s *SpotifyService) AudioAnalysis(ctx context.Context, trackURI string) (*models.AudioAnalysis, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	analysis, err := client.GetAudioAnalysis(ctx, toID(trackURI))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapError("audio analysis", err)
	}
	if analysis == nil {
		return nil, nil
	}

	return &models.AudioAnalysis{
		Bars:   convertMarkers(analysis.Bars),
		Beats:  convertMarkers(analysis.Beats),
		Tatums: convertMarkers(analysis.Tatums),
	}, nil
}

func convertPlaylistItems(page *spotify.PlaylistItemPage) *models.PlaylistItemPage {
	out := &models.PlaylistItemPage{Next: page.Next, TrackURIs: make([]string, 0, len(page.Items))}
	for _, item := range page.Items {
		if item.Track.Track == nil {
			continue
		}
		out.TrackURIs = append(out.TrackURIs, string(item.Track.Track.URI))
	}
	return out
}

func convertMarkers(in []spotify.Marker) []models.Marker {
	out := make([]models.Marker, len(in))
	for i, m := range in {
		out[i] = models.Marker{Start: m.Start, Duration: m.Duration, Confidence: m.Confidence}
	}
	return out
}

// toID accepts a URI like spotify:track:<id> or a bare ID.
func toID(uri string) spotify.ID {
	if i := strings.LastIndex(uri, ":"); i >= 0 {
		return spotify.ID(uri[i+1:])
	}
	return spotify.ID(uri)
}

func isNotFound(err error) bool {
	var se spotify.Error
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// wrapError maps a client error onto the shared sentinels. Context errors pass through untouched.
func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, op, err)
	}

	var se spotify.Error
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %s", shared.ErrTokenExpired, op, se.Message)
		case se.Status >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s: %s", shared.ErrServiceUnavailable, op, se.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
}

// refreshableTokenSource reports each new access token to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}
